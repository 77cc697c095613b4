package main

import (
	"fmt"

	"github.com/fgeck/rclone-sync-helper/internal/services/installer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	installBinDir    string
	installDataDir   string
	installNoRestart bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the binary and the panel applet files",
	Long: `Copy this binary into the user's bin directory and install the desktop
entry, icon and AppStream metainfo into the XDG data directory so the panel
can offer the applet. Running it again replaces the files in place.

Defaults follow XDG_BIN_HOME (~/.local/bin) and XDG_DATA_HOME (~/.local/share).`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().StringVar(&installBinDir, "bin-dir", "", "directory for the binary")
	installCmd.Flags().StringVar(&installDataDir, "data-dir", "", "XDG data directory for desktop files")
	installCmd.Flags().BoolVar(&installNoRestart, "no-restart-panel", false, "do not restart cosmic-panel afterwards")
}

func runInstall(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	exe, err := executablePath()
	if err != nil {
		return err
	}

	opts := installer.Options{
		SourceBinary: exe,
		BinDir:       installBinDir,
		DataDir:      installDataDir,
		RestartPanel: !installNoRestart,
	}
	if opts.BinDir == "" {
		opts.BinDir = env.dirs.BinHome
	}
	if opts.DataDir == "" {
		opts.DataDir = env.dirs.DataHome
	}

	result, err := installer.New(log.Logger).Install(cmd.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("installation failed")
		return err
	}

	for _, target := range result.Targets {
		fmt.Printf("  %s  %s\n", target.Mode, target.Path)
	}
	fmt.Println()
	fmt.Printf("Installed %s\n", result.BinaryPath)
	if result.PanelRestarted {
		fmt.Println("Restarted cosmic-panel; add the applet from the panel settings.")
	} else if opts.RestartPanel {
		fmt.Println("cosmic-panel was not running; the applet appears after the next login.")
	}
	return nil
}
