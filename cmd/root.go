package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reviewloop/reviewloop/internal/audit"
	"github.com/reviewloop/reviewloop/internal/azdo"
	"github.com/reviewloop/reviewloop/internal/llm"
	"github.com/reviewloop/reviewloop/internal/output"
	"github.com/reviewloop/reviewloop/internal/review"
	"github.com/reviewloop/reviewloop/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

// Set from main via Execute.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "reviewloop",
	Short: "Iterative AI code review for pull requests",
	Long: `reviewloop runs an iterative review-and-fix loop over pull request files.
Each round it critiques the current code, posts findings as PR discussion
threads, applies fixes, and reconciles which findings the fix resolved,
until the file converges or the iteration bound is reached.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/reviewloop/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "reviewloop")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVIEWLOOP")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "reviewloop")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "reviewloop.db"))
	viper.SetDefault("azdo.organization", "")
	viper.SetDefault("azdo.project", "")
	viper.SetDefault("azdo.pat", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("review.max_iterations", 3)
	viper.SetDefault("review.post_comments", true)
	viper.SetDefault("review.timeout", 2*time.Minute)
	viper.SetDefault("review.output_dir", "reviews/improvements")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is initialized lazily so config/version commands run
	// without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getRemote builds the Azure DevOps client from configuration.
func getRemote() (*azdo.Client, error) {
	return azdo.New(
		viper.GetString("azdo.organization"),
		viper.GetString("azdo.project"),
		viper.GetString("azdo.pat"),
	)
}

// getEngine wires up the review engine from configuration. The Azure DevOps
// client is only required when thread posting or PR fetching is needed.
func getEngine(needRemote bool) (*review.Engine, error) {
	cfg := review.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var remote *azdo.Client
	if needRemote || cfg.PostComments {
		c, err := getRemote()
		if err != nil {
			if needRemote {
				return nil, err
			}
			// No remote configured: run locally without comment posting.
			ui.VerboseLog("no Azure DevOps credentials, disabling comment posting")
			cfg.PostComments = false
		} else {
			remote = c
		}
	}

	client := llm.NewClient(viper.GetString("anthropic.api_key"), viper.GetString("anthropic.model"))
	auditor := audit.NewWriter(viper.GetString("review.output_dir"))

	s, err := getStore()
	if err != nil {
		return nil, err
	}

	// remote may be a nil *azdo.Client; hand the engine untyped nils so its
	// interface checks behave.
	var threads review.ThreadStore
	var prs review.PullRequests
	if remote != nil {
		threads = remote
		prs = remote
	}

	return review.NewEngine(client, client, threads, prs, auditor, s, ui, cfg), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "reviewloop %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}
