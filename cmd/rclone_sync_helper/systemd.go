package main

import (
	"fmt"

	"github.com/fgeck/rclone-sync-helper/internal/config"
	"github.com/fgeck/rclone-sync-helper/internal/services/systemd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var enableAfterInstall bool

var systemdCmd = &cobra.Command{
	Use:   "systemd",
	Short: "Manage the systemd --user timer of a job",
}

var systemdInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Write the service and timer units and reload systemd",
	RunE: withSystemd(func(cmd *cobra.Command, svc *systemd.Impl, env *environment) error {
		cfg, err := env.store.Load(jobName)
		if err != nil {
			return err
		}
		if err := svc.Install(cmd.Context(), jobName, cfg.EffectiveSchedule()); err != nil {
			return err
		}
		fmt.Printf("Installed %s and %s\n", systemd.ServiceUnit(jobName), systemd.TimerUnit(jobName))
		if !enableAfterInstall {
			return nil
		}
		if err := svc.Enable(cmd.Context(), jobName); err != nil {
			return err
		}
		fmt.Printf("Enabled %s\n", systemd.TimerUnit(jobName))
		return nil
	}),
}

var systemdEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Enable and start the timer",
	RunE: withSystemd(func(cmd *cobra.Command, svc *systemd.Impl, _ *environment) error {
		if err := svc.Enable(cmd.Context(), jobName); err != nil {
			return err
		}
		fmt.Printf("Enabled %s\n", systemd.TimerUnit(jobName))
		return nil
	}),
}

var systemdDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Disable and stop the timer",
	RunE: withSystemd(func(cmd *cobra.Command, svc *systemd.Impl, _ *environment) error {
		if err := svc.Disable(cmd.Context(), jobName); err != nil {
			return err
		}
		fmt.Printf("Disabled %s\n", systemd.TimerUnit(jobName))
		return nil
	}),
}

var systemdStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the timer is installed, enabled and active",
	RunE: withSystemd(func(cmd *cobra.Command, svc *systemd.Impl, _ *environment) error {
		st, err := svc.Status(cmd.Context(), jobName)
		if err != nil {
			return err
		}
		fmt.Printf("Timer:     %s\n", systemd.TimerUnit(jobName))
		fmt.Printf("Installed: %v\n", st.Installed)
		fmt.Printf("Enabled:   %v\n", st.Enabled)
		fmt.Printf("Active:    %v\n", st.Active)
		fmt.Printf("Next run:  %s\n", orDash(st.NextElapse))
		return nil
	}),
}

var systemdUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Disable the timer and remove both units",
	RunE: withSystemd(func(cmd *cobra.Command, svc *systemd.Impl, _ *environment) error {
		if err := svc.Uninstall(cmd.Context(), jobName); err != nil {
			return err
		}
		fmt.Printf("Removed %s and %s\n", systemd.ServiceUnit(jobName), systemd.TimerUnit(jobName))
		return nil
	}),
}

func init() {
	systemdInstallCmd.Flags().BoolVar(&enableAfterInstall, "enable", false, "also enable and start the timer")

	systemdCmd.AddCommand(systemdInstallCmd)
	systemdCmd.AddCommand(systemdEnableCmd)
	systemdCmd.AddCommand(systemdDisableCmd)
	systemdCmd.AddCommand(systemdStatusCmd)
	systemdCmd.AddCommand(systemdUninstallCmd)
}

// withSystemd validates the job name and builds the systemd service.
func withSystemd(fn func(*cobra.Command, *systemd.Impl, *environment) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.ValidateName(jobName); err != nil {
			return err
		}
		env, err := newEnvironment()
		if err != nil {
			return err
		}
		exe, err := executablePath()
		if err != nil {
			return err
		}
		return fn(cmd, newSystemd(env, exe), env)
	}
}

func newSystemd(env *environment, exe string) *systemd.Impl {
	return systemd.New(log.Logger, env.dirs.SystemdUserDir(), exe)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
