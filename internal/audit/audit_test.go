package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/models"
)

func TestWriteIteration(t *testing.T) {
	w := NewWriter(t.TempDir())

	line := 12
	rec := models.IterationRecord{
		Iteration: 2,
		Critique:  "## Bugs\n- Null check missing on line 12\n",
		Issues: []models.Issue{
			{Category: "Bugs", Description: "Null check missing on line 12", Line: &line, IterationSeen: 2},
		},
		ContentBefore:  "before",
		ContentAfter:   "after",
		CreatedThreads: map[string]int{"src/app.py:12:Bugs": 101},
	}

	path, err := w.WriteIteration(42, "src/app.py", rec)
	require.NoError(t, err)
	assert.Equal(t, "iteration_2_42_src_app.py.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got models.IterationRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rec.Issues, got.Issues)
	assert.Equal(t, rec.CreatedThreads, got.CreatedThreads)
}

func TestWriteSession(t *testing.T) {
	w := NewWriter(t.TempDir())

	result := &models.SessionResult{
		PullRequestID:       42,
		FilePath:            "src/pkg/app.py",
		IterationsCompleted: 3,
		AllResolved:         true,
		Outcome:             models.SessionOutcomeResolved,
		FinalContent:        "final",
		Timestamp:           time.Now().UTC(),
	}

	path, err := w.WriteSession(42, "src/pkg/app.py", result)
	require.NoError(t, err)
	assert.Equal(t, "final_improvement_42_src_pkg_app.py.json", filepath.Base(path))
}

func TestWriteBatch(t *testing.T) {
	w := NewWriter(t.TempDir())

	batch := &models.BatchResult{
		PullRequestID:  42,
		Repository:     "app",
		FilesProcessed: 1,
		FileResults: []models.FileResult{
			{FilePath: "a.py", IterationsCompleted: 1, AllResolved: true, Outcome: models.SessionOutcomeResolved},
		},
		Timestamp: time.Now().UTC(),
	}

	path, err := w.WriteBatch(batch)
	require.NoError(t, err)
	assert.Equal(t, "batch_improvement_42.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got models.BatchResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, batch.FileResults, got.FileResults)
}

func TestWriterCreatesDirectoryOnFirstWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w := NewWriter(dir)

	_, err := w.WriteBatch(&models.BatchResult{PullRequestID: 1})
	require.NoError(t, err)

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "src_pkg_app.py", SanitizeFilename("src/pkg/app.py"))
	assert.Equal(t, "C__repo_app.py", SanitizeFilename(`C:\repo\app.py`))
	assert.Equal(t, "plain.py", SanitizeFilename("plain.py"))
}
