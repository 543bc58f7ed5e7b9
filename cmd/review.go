package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/output"
)

var (
	fileOldPath string
	filePRID    int
	fileWrite   bool
)

var prCmd = &cobra.Command{
	Use:   "pr <pull-request-id>",
	Short: "Review every changed file of a pull request iteratively",
	Long: `Run the iterative review loop over all changed files of a pull request.

Each file gets its own session: critique, post PR threads, fix, and
reconcile, until the file has no remaining issues or the iteration bound
is reached. One file's failure does not stop the others.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return prRun(cmd, args[0])
	},
}

var fileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Review a single local file iteratively",
	Long: `Run the iterative review loop over one local file.

With --pr, findings are posted as discussion threads on that pull request.
Without it, the loop runs locally and only writes the audit trail.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fileRun(cmd, args[0])
	},
}

func init() {
	fileCmd.Flags().StringVar(&fileOldPath, "old", "", "Path to the previous version of the file (default: treat as new)")
	fileCmd.Flags().IntVar(&filePRID, "pr", 0, "Pull request to post threads on")
	fileCmd.Flags().BoolVarP(&fileWrite, "write", "w", false, "Write the improved content back to the file")

	rootCmd.AddCommand(prCmd)
	rootCmd.AddCommand(fileCmd)
}

func prRun(cmd *cobra.Command, rawID string) error {
	prID, err := strconv.Atoi(rawID)
	if err != nil || prID <= 0 {
		return fmt.Errorf("invalid pull request id: %s", rawID)
	}

	engine, err := getEngine(true)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would review all changed files of PR #%d", prID)
		return nil
	}

	batch, err := engine.ProcessPullRequest(cmd.Context(), prID)
	if err != nil {
		return err
	}

	printBatch(batch)
	return nil
}

func fileRun(cmd *cobra.Command, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	oldContent := ""
	if fileOldPath != "" {
		old, err := os.ReadFile(fileOldPath)
		if err != nil {
			return fmt.Errorf("read old file: %w", err)
		}
		oldContent = string(old)
	}

	engine, err := getEngine(filePRID > 0)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would review %s (%d bytes)", path, len(content))
		return nil
	}

	pr := &models.PullRequest{ID: filePRID}
	if filePRID > 0 {
		remote, err := getRemote()
		if err != nil {
			return err
		}
		pr, err = remote.GetPullRequest(cmd.Context(), filePRID)
		if err != nil {
			return fmt.Errorf("fetch pull request %d: %w", filePRID, err)
		}
	}

	result, improveErr := engine.Improve(cmd.Context(), pr, path, oldContent, string(content))
	if result != nil {
		printSession(result)
		if fileWrite && result.FinalContent != string(content) {
			if err := os.WriteFile(path, []byte(result.FinalContent), 0644); err != nil {
				return fmt.Errorf("write improved content: %w", err)
			}
			ui.Success("Wrote improved content to %s", path)
		}
	}
	return improveErr
}

func printBatch(batch *models.BatchResult) {
	ui.Info("PR #%d (%s): processed %d file(s)", batch.PullRequestID, batch.Title, batch.FilesProcessed)

	table := ui.Table([]string{"File", "Iterations", "Outcome", "Error"})
	for _, fr := range batch.FileResults {
		errText := fr.Error
		if len(errText) > 60 {
			errText = errText[:57] + "..."
		}
		table.Append([]string{
			fr.FilePath,
			strconv.Itoa(fr.IterationsCompleted),
			output.OutcomeColor(string(fr.Outcome)),
			errText,
		})
	}
	_ = table.Render()
}

func printSession(result *models.SessionResult) {
	if result.AllResolved {
		ui.Success("%s: all issues resolved in %d iteration(s)", result.FilePath, result.IterationsCompleted)
	} else {
		ui.Warning("%s: %s after %d iteration(s)", result.FilePath, result.Outcome, result.IterationsCompleted)
	}
	if len(result.ThreadIDs) > 0 {
		ui.VerboseLog("threads: %v", result.ThreadIDs)
	}
}
