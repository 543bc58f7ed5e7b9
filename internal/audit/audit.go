// Package audit persists review results as JSON documents: one snapshot per
// iteration, one document per completed session, and one summary per batch.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reviewloop/reviewloop/internal/models"
)

// Writer writes audit documents under a single output directory.
type Writer struct {
	dir string
}

// NewWriter returns a writer rooted at dir. The directory is created on
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteIteration persists one iteration snapshot and returns the file path.
func (w *Writer) WriteIteration(pullRequestID int, filePath string, rec models.IterationRecord) (string, error) {
	name := fmt.Sprintf("iteration_%d_%d_%s.json", rec.Iteration, pullRequestID, SanitizeFilename(filePath))
	return w.write(name, rec)
}

// WriteSession persists the full session document, keyed by the sanitized
// (pull request, file path) pair.
func (w *Writer) WriteSession(pullRequestID int, filePath string, result *models.SessionResult) (string, error) {
	name := fmt.Sprintf("final_improvement_%d_%s.json", pullRequestID, SanitizeFilename(filePath))
	return w.write(name, result)
}

// WriteBatch persists the batch summary for a pull request run.
func (w *Writer) WriteBatch(batch *models.BatchResult) (string, error) {
	name := fmt.Sprintf("batch_improvement_%d.json", batch.PullRequestID)
	return w.write(name, batch)
}

func (w *Writer) write(name string, v any) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("create audit directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// SanitizeFilename replaces path separators and drive colons so a repo file
// path can serve as part of a flat audit file name.
func SanitizeFilename(path string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return r.Replace(path)
}
