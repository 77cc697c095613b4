package main

import (
	"fmt"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/config"
	"github.com/fgeck/rclone-sync-helper/internal/schedule"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var jobsValidateCmd = &cobra.Command{
	Use:   "validate [job]",
	Short: "Validate a job config",
	Long:  `Validate the job config without running rclone.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  validateJob,
}

func validateJob(cmd *cobra.Command, args []string) error {
	name := argOrJob(args)
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	// Load configuration
	cfg, err := env.store.Load(name)
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("failed to load config")
		return err
	}
	path, _ := env.store.Path(name)

	// Validate configuration
	if err := config.Validate(cfg, path); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	sched, err := schedule.Parse(cfg.EffectiveSchedule())
	if err != nil {
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Job: %s\n", cfg.Name)
	fmt.Printf("  File: %s\n", path)
	fmt.Printf("  Local base: %s\n", orDash(cfg.LocalPath))
	fmt.Printf("  Remote base: %s\n", orDash(cfg.Remote))
	fmt.Printf("  Extra args: %v\n", cfg.ExtraArgs)
	fmt.Printf("  Lock file: %s\n", env.dirs.Expand(cfg.EffectiveLockFile()))
	fmt.Printf("  Log dir: %s\n", env.dirs.Expand(cfg.EffectiveLogDir()))
	fmt.Println()
	fmt.Println("Pairs:")
	for i, pair := range config.ResolvePairs(cfg) {
		fmt.Printf("  %d. %s <-> %s\n", i+1, pair.Local, pair.Remote)
	}
	fmt.Println()
	fmt.Println("Schedule:")
	fmt.Printf("  Expression: %s\n", sched)
	fmt.Printf("  OnCalendar: %s\n", sched.OnCalendar())
	fmt.Printf("  Next run: %s\n", sched.Next(time.Now()).Format("2006-01-02 15:04:05"))
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Auto resync: %v\n", cfg.AutoResync)
	fmt.Printf("  Clean bisync locks: %v\n", cfg.CleanBisyncLocks)
	fmt.Printf("  nice/ionice: %v\n", cfg.UseNiceIonice)
	fmt.Printf("  Keep logs: %d\n", cfg.KeepLogs)
	fmt.Printf("  Desktop notifications: %v\n", cfg.Notify.Desktop)
	fmt.Printf("  Telegram: %v\n", cfg.Notify.TelegramChatID != "")

	if cfg.KeyringService != "" {
		fmt.Println()
		fmt.Println("Keyring Configuration:")
		fmt.Printf("  Service: %s\n", cfg.KeyringService)
		fmt.Printf("  rclone config password: (from keyring)\n")
	}

	if cfg.Notify.TelegramChatID != "" {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Notify.TelegramChatID)
	}

	return nil
}
