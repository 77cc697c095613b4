package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fgeck/rclone-sync-helper/internal/config"
	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const envPrefix = "RCLONE_SYNC_HELPER"

var (
	// Version is set at build time.
	Version = "dev"

	// Global flags.
	jobName    string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   xdg.BinaryName,
	Short: "Run and monitor rclone bisync jobs",
	Long: `rclone_sync_helper runs rclone bisync jobs and backs the sync panel applet:
  - one TOML config and one cached status record per job
  - lock handling, stale bisync lock cleanup and --resync recovery
  - per-run log files
  - optional systemd --user timer per job
  - desktop and Telegram notifications

Without a subcommand it prints the status of the selected job.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	RunE:          showStatus,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&jobName, "job", "j", models.DefaultJobName, "job name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("rclone_bin", models.DefaultRcloneBin)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(systemdCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(secretsCmd)
}

func setupLogging() {
	// Logs go to stderr so stdout stays usable for command output.
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
		}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

// environment bundles what most commands need.
type environment struct {
	dirs  xdg.Dirs
	store *config.Store
}

func newEnvironment() (*environment, error) {
	dirs, err := xdg.Resolve()
	if err != nil {
		return nil, err
	}
	return &environment{dirs: dirs, store: config.NewStore(dirs.JobsDir())}, nil
}

// rcloneBinary is "rclone" unless RCLONE_SYNC_HELPER_RCLONE_BIN overrides it.
func rcloneBinary() string {
	return viper.GetString("rclone_bin")
}

// executablePath returns the resolved path of the running binary.
func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
