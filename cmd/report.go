package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/models"
	"github.com/reviewloop/reviewloop/internal/output"
)

var (
	reportPRID  int
	reportLimit int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List past review sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportListRun(cmd)
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session's iteration audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportShowRun(cmd, args[0])
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportPRID, "pr", 0, "Filter by pull request ID")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20, "Maximum sessions to list")
	reportCmd.AddCommand(reportShowCmd)
	rootCmd.AddCommand(reportCmd)
}

func reportListRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	sessions, err := s.ListReviewSessions(cmd.Context(), reportPRID, reportLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		ui.Info("No review sessions recorded")
		return nil
	}

	table := ui.Table([]string{"ID", "PR", "File", "Iterations", "Outcome", "Started"})
	for _, sess := range sessions {
		id := sess.ID
		if len(id) > 8 {
			id = id[:8]
		}
		table.Append([]string{
			id,
			strconv.Itoa(sess.PullRequestID),
			sess.FilePath,
			strconv.Itoa(sess.IterationsCompleted),
			output.OutcomeColor(string(sess.Outcome)),
			sess.StartedAt.Local().Format(time.DateTime),
		})
	}
	return table.Render()
}

func reportShowRun(cmd *cobra.Command, sessionID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	session, err := resolveSession(cmd, sessionID)
	if err != nil {
		return err
	}

	ui.Info("Session %s (PR #%d, %s)", session.ID, session.PullRequestID, session.FilePath)
	fmt.Fprintf(ui.Out, "  outcome: %s, iterations: %d\n\n", output.OutcomeColor(string(session.Outcome)), session.IterationsCompleted)
	if session.Error != "" {
		ui.Warning("session error: %s", session.Error)
	}

	records, err := s.ListIterationRecords(cmd.Context(), session.ID)
	if err != nil {
		return err
	}

	for _, rec := range records {
		fmt.Fprintf(ui.Out, "%s\n", output.Cyan(fmt.Sprintf("── Iteration %d ──", rec.Iteration)))
		fmt.Fprintf(ui.Out, "  issues: %d, resolved since last: %d, threads created: %d\n",
			len(rec.Issues), len(rec.ResolvedSinceLast), len(rec.CreatedThreads))
		for _, issue := range rec.Issues {
			line := "-"
			if issue.Line != nil {
				line = strconv.Itoa(*issue.Line)
			}
			fmt.Fprintf(ui.Out, "    [%s] line %s: %s\n", issue.Category, line, issue.Description)
		}
	}
	return nil
}

// resolveSession finds a session by full ID or unique prefix.
func resolveSession(cmd *cobra.Command, id string) (*models.ReviewSession, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	if full, err := s.GetReviewSession(cmd.Context(), id); err == nil {
		return full, nil
	}

	sessions, err := s.ListReviewSessions(cmd.Context(), 0, 0)
	if err != nil {
		return nil, err
	}

	var matches []*models.ReviewSession
	for _, candidate := range sessions {
		if strings.HasPrefix(candidate.ID, strings.ToUpper(id)) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("session not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous session ID %s: matches %d sessions", id, len(matches))
	}
}
