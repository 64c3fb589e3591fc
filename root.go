package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/driveup/internal/config"
	"github.com/tonimelisma/driveup/internal/drive"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagToken      string
	flagVerbose    bool
	flagQuiet      bool
	flagYes        bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Resolved

// metadataTimeout bounds metadata API requests. Upload transfers use a
// client without a timeout — a large chunk on a slow link legitimately
// takes longer than any fixed deadline.
const metadataTimeout = 30 * time.Second

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "driveup",
		Short:   "Resumable Drive uploads and cleanup tools",
		Long:    "Upload files to Google Drive over the resumable protocol, and clean up duplicates and broken photo dates.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagToken, "token", "", "bearer token (overrides config and DRIVEUP_TOKEN)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.PersistentFlags().BoolVar(&flagYes, "yes", false, "answer yes to all confirmation prompts")

	// Register subcommands.
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newDedupCmd())
	cmd.AddCommand(newDatefixCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		Token:      flagToken,
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// CLI flags override config (highest priority).
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newDriveClient creates a metadata API client from the resolved config.
func newDriveClient(logger *slog.Logger) *drive.Client {
	baseURL := resolvedCfg.APIURL
	if baseURL == "" {
		baseURL = drive.DefaultBaseURL
	}

	httpClient := &http.Client{Timeout: metadataTimeout}

	return drive.NewClient(baseURL, httpClient, drive.StaticToken(resolvedCfg.Token), logger)
}

// commandContext returns a context canceled on SIGINT/SIGTERM, so an
// in-flight transfer or pending backoff aborts cleanly.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// confirm asks the user a y/n question on stdin. --yes short-circuits to
// true; non-interactive input without --yes refuses rather than guessing.
func confirm(prompt string) bool {
	if flagYes {
		return true
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(os.Stderr, "stdin is not a terminal; pass --yes to proceed")
		return false
	}

	fmt.Printf("%s (y/n) ", prompt)

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}

	return strings.TrimSpace(answer) == "y"
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
