package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fgeck/rclone-sync-helper/internal/config"
	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/services/logs"
	"github.com/fgeck/rclone-sync-helper/internal/services/opener"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsOpen   bool
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the latest run log of a job",
	Args:  cobra.NoArgs,
	RunE:  showLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "F", false, "keep printing new output, switching to newer runs")
	logsCmd.Flags().BoolVar(&logsOpen, "open", false, "open the log file in a desktop application")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 0, "print only the last N lines (0 prints all)")
}

func showLogs(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	cfg, err := env.store.Load(jobName)
	if err != nil {
		if !errors.Is(err, config.ErrJobNotFound) {
			return err
		}
		empty := models.NewJobConfig(jobName)
		cfg = &empty
	}
	dir := env.dirs.Expand(cfg.EffectiveLogDir())

	logsSvc := logs.New(log.Logger)
	path, err := logsSvc.Latest(dir)
	if err != nil {
		if errors.Is(err, logs.ErrNoLogs) {
			return fmt.Errorf("no run logs for job %s in %s", jobName, dir)
		}
		return err
	}

	if logsOpen {
		return opener.New(log.Logger).OpenLog(path)
	}

	if logsFollow {
		ctx, cancel := signalContext()
		defer cancel()
		fmt.Printf("==> %s <==\n", path)
		return logsSvc.Follow(ctx, dir, path, 0, os.Stdout)
	}

	lines, err := logsSvc.Tail(path, logsLines)
	if err != nil {
		return err
	}
	fmt.Printf("==> %s <==\n", path)
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
