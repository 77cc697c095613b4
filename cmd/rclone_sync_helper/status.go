package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/rclone-sync-helper/internal/config"
	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/services/locks"
	"github.com/fgeck/rclone-sync-helper/internal/services/status"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cached status of a job",
	Long: `Show the last run of a job, whether a sync is running right now and
the state of its systemd timer.`,
	Args: cobra.NoArgs,
	RunE: showStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "output format: text or json")
}

// jobStatus is the combined view printed by status.
type jobStatus struct {
	Job        string              `json:"job"`
	Phase      models.Phase        `json:"phase"`
	Configured bool                `json:"configured"`
	Running    *models.RunningInfo `json:"running,omitempty"`
	State      *models.SyncState   `json:"state"`
	Timer      *models.TimerStatus `json:"timer,omitempty"`
}

func showStatus(cmd *cobra.Command, args []string) error {
	if err := config.ValidateName(jobName); err != nil {
		return err
	}
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	st, err := collectStatus(cmd, env, jobName)
	if err != nil {
		return err
	}

	switch statusFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "text", "":
		printStatus(st, time.Now())
		return nil
	default:
		return fmt.Errorf("unknown format %q (use text or json)", statusFormat)
	}
}

func collectStatus(cmd *cobra.Command, env *environment, name string) (*jobStatus, error) {
	st := &jobStatus{Job: name, Configured: true}

	cfg, err := env.store.Load(name)
	if err != nil {
		if !errors.Is(err, config.ErrJobNotFound) {
			return nil, err
		}
		empty := models.NewJobConfig(name)
		cfg, st.Configured = &empty, false
	}

	state, err := status.New(log.Logger, env.dirs.StateDir()).Load(name)
	if err != nil {
		return nil, err
	}
	st.State = state

	running, ok := locks.New(log.Logger).DetectRunning(env.dirs.Expand(cfg.EffectiveLockFile()))
	if ok {
		st.Running = running
	}
	st.Phase = state.Phase(ok)

	if exe, err := executablePath(); err == nil {
		if timer, err := newSystemd(env, exe).Status(cmd.Context(), name); err == nil {
			st.Timer = timer
		} else {
			log.Debug().Err(err).Msg("timer status unavailable")
		}
	}
	return st, nil
}

func printStatus(st *jobStatus, now time.Time) {
	state := st.State

	fmt.Printf("Job:          %s\n", st.Job)
	if !st.Configured {
		fmt.Printf("Config:       not created yet\n")
	}
	fmt.Printf("Status:       %s\n", st.Phase)
	if st.Running != nil {
		fmt.Printf("Running:      PID %d since %s\n", st.Running.PID, humanize.RelTime(st.Running.StartedAt, now, "ago", "from now"))
	}
	fmt.Printf("Last run:     %s\n", relTime(state.LastRun, now))
	fmt.Printf("Last success: %s\n", relTime(state.LastSuccess, now))
	if state.LastDurationSecs != nil {
		fmt.Printf("Duration:     %s\n", time.Duration(*state.LastDurationSecs)*time.Second)
	}
	if state.LastChangedCount != nil {
		fmt.Printf("Changes:      %s\n", humanize.Comma(int64(*state.LastChangedCount)))
	}
	if state.RemoteSummary != nil {
		fmt.Printf("Remote:       %s\n", *state.RemoteSummary)
	}
	if state.LastError != nil {
		fmt.Printf("Error:        %s\n", *state.LastError)
	}
	if state.LastLogFile != nil {
		fmt.Printf("Log file:     %s\n", *state.LastLogFile)
	}
	if st.Timer != nil {
		fmt.Printf("Timer:        %s\n", timerSummary(st.Timer))
	}

	if len(state.LogPreview) > 0 {
		fmt.Println()
		fmt.Println("Recent output:")
		for _, line := range state.LogPreview {
			fmt.Printf("  %s\n", line)
		}
	}
}

func relTime(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04:05"), humanize.RelTime(*t, now, "ago", "from now"))
}
