package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/os-autoinst/jobgroupsync/internal/config"
	"github.com/os-autoinst/jobgroupsync/internal/diag"
	"github.com/os-autoinst/jobgroupsync/internal/openqa"
	"github.com/os-autoinst/jobgroupsync/internal/reconcile"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	github    bool

	// Mode flags
	dryRun   bool
	jobGroup int
	fileName string
)

// defaultConfigFile is looked up in the working directory; its absence
// selects the built-in defaults.
const defaultConfigFile = ".jobgroupsync.yaml"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jobgroupsync",
	Short: "Fetch and push openQA job groups",
	Long: `jobgroupsync keeps a git repository of openQA job group templates in sync
with the server's database.

A manifest (job_groups.yaml) maps server-side job group ids to local file
names under job_groups/. The gendb, fetch and push commands move data
between the two sides; orphans and headers verify repository integrity.

API credentials are taken from the APIKEY/APISECRET environment variables,
from ~/.config/openqa/client.conf or from /etc/openqa/client.conf.`,
	SilenceUsage: true,
}

var gendbCmd = &cobra.Command{
	Use:   "gendb",
	Short: "Generate the manifest from the server's job group listing",
	Long: `Gendb rebuilds job_groups.yaml from the remote job group directory. Every
remote group gets an entry with a normalized file name slug; entries for
groups that no longer exist remotely are dropped.

With -j only that job group's entry is computed and appended to the
manifest, and only when it is not tracked yet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(func(ctx context.Context, e *reconcile.Engine) error {
			return e.GenerateManifest(ctx)
		})
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download all job groups referenced by the manifest",
	Long: `Fetch downloads the template of every job group tracked in job_groups.yaml
into job_groups/<slug>.yaml, prepending the warning header when the
template does not already carry it. Files are fully overwritten, so
fetching an unchanged server state is byte-idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(func(ctx context.Context, e *reconcile.Engine) error {
			return e.Fetch(ctx)
		})
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload all job groups referenced by the manifest",
	Long: `Push posts every tracked job_groups/<slug>.yaml to the server.

With --dry-run the server only validates (preview) and all validation
errors are reported before the command exits non-zero. Without it the
first server error stops the batch immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(func(ctx context.Context, e *reconcile.Engine) error {
			return e.Push(ctx)
		})
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Check manifest, files and server for dangling references",
	Long: `Orphans cross-checks the three sources of truth: every local file must be
referenced by the manifest, every manifest id must exist on the server and
every manifest entry must have its backing file. All findings are reported
and any finding makes the command exit non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(func(ctx context.Context, e *reconcile.Engine) error {
			return e.Orphans(ctx)
		})
	},
}

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "Check that every job group file carries its header exactly once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMode(func(ctx context.Context, e *reconcile.Engine) error {
			return e.Headers()
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jobgroupsync %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+defaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&github, "github", false, "emit diagnostics as GitHub workflow commands")

	// Mode flags
	for _, cmd := range []*cobra.Command{gendbCmd, fetchCmd, pushCmd} {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "don't write anything; in push mode ask the server for a preview")
		cmd.Flags().IntVarP(&jobGroup, "job-group", "j", 0, "only process this job group id")
	}
	for _, cmd := range []*cobra.Command{fetchCmd, pushCmd} {
		cmd.Flags().StringVarP(&fileName, "file", "f", "", "only process this job group yaml file")
	}

	// Add commands
	rootCmd.AddCommand(gendbCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(headersCmd)
	rootCmd.AddCommand(versionCmd)
}

// runMode wires one engine invocation: logger, config, credential source,
// API client and emitter. Any returned error maps to exit status 1.
func runMode(run func(context.Context, *reconcile.Engine) error) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Create dependencies
	creds := openqa.NewCredentialSource(cfg.API.Host, logger)
	client := openqa.NewShellClient(cfg.API.ClientBinary, cfg.API.Host, cfg.API.Schema, creds, logger)
	emitter := diag.NewEmitter(github, os.Stdout, os.Stderr)

	engine := reconcile.NewEngine(cfg, client, emitter, logger, os.Stdout, os.Stderr, reconcile.Options{
		DryRun:     dryRun,
		IDFilter:   jobGroup,
		NameFilter: fileName,
	})

	return run(ctx, engine)
}

// setupLogger builds the slog logger. It writes to stderr: stdout is
// reserved for machine-readable output (gendb echo lines and GitHub
// workflow commands).
func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)
		return config.Load(cfgFile)
	}

	if _, err := os.Stat(defaultConfigFile); err == nil {
		logger.Info("loading configuration", "path", defaultConfigFile)
		return config.Load(defaultConfigFile)
	}

	logger.Debug("no config file, using defaults")
	return config.Default(), nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
