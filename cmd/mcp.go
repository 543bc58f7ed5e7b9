package cmd

import (
	"github.com/spf13/cobra"

	"github.com/reviewloop/reviewloop/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Run a Model Context Protocol server exposing reviewloop as tools.

Tools: review_pr, review_list_sessions, review_get_session. Intended to
be launched by an MCP client; all protocol traffic flows over stdio.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(cmd *cobra.Command) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	engine, err := getEngine(true)
	if err != nil {
		return err
	}

	srv := mcp.NewServer(s, engine)
	return srv.ServeStdio(cmd.Context())
}
