package main

import (
	"fmt"

	"github.com/fgeck/rclone-sync-helper/internal/services/runner"
	"github.com/fgeck/rclone-sync-helper/internal/services/status"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one bisync of a job",
	Long: `Run one bisync of the job (used by the systemd timer):
1. Load the job config (an empty one is created for unknown jobs)
2. Remove stale rclone bisync lock files (if enabled)
3. Acquire the job lock; skip if another run holds it
4. Run rclone bisync for every pair, retrying after stale lock cleanup
   and with --resync when bisync asks for it (if enabled)
5. Write the run log, update the cached status, prune old logs
6. Send desktop and Telegram notifications (if configured)`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	cfg, created, err := env.store.LoadOrCreate(jobName)
	if err != nil {
		msg := fmt.Sprintf("Sync run failed: %v", err)
		if _, recErr := status.New(log.Logger, env.dirs.StateDir()).RecordFailure(jobName, msg); recErr != nil {
			log.Error().Err(recErr).Msg("failed to persist sync state")
		}
		log.Error().Err(err).Str("job", jobName).Msg("failed to load config")
		return err
	}
	path, _ := env.store.Path(jobName)
	if created {
		log.Warn().Str("file", path).Msg("created empty job config, edit it before the next run")
	}

	log.Info().
		Str("config", path).
		Str("local", cfg.LocalPath).
		Str("remote", cfg.Remote).
		Msg("configuration loaded")

	ctx, cancel := signalContext()
	defer cancel()

	runnerSvc := runner.New(log.Logger, env.dirs, rcloneBinary())
	result, err := runnerSvc.Run(ctx, jobName, cfg, path)
	if err != nil {
		log.Error().Err(err).Msg("sync failed")
		return err
	}

	if result.ExitCode != 0 {
		return fmt.Errorf("Job %s failed (exit %d)", cfg.Name, result.ExitCode) //nolint:staticcheck // user-facing message
	}

	if !result.Skipped {
		log.Info().Msg("sync completed successfully")
	}
	return nil
}
