package main

import (
	"errors"
	"os"
	"os/exec"

	"github.com/fgeck/rclone-sync-helper/internal/services/rclone"
	"github.com/fgeck/rclone-sync-helper/internal/services/secrets"
	"github.com/fgeck/rclone-sync-helper/internal/services/systemd"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the tools a sync depends on",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

type check struct {
	name   string
	status string
	detail string
}

const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "FAIL"
)

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var checks []check

	rcloneCheck := check{name: "rclone", status: checkOK}
	if v, err := rclone.New(log.Logger, rcloneBinary()).Version(ctx); err != nil {
		rcloneCheck.status, rcloneCheck.detail = checkFail, err.Error()
	} else {
		rcloneCheck.detail = "v" + v.String()
		if !rclone.SupportsBisync(v) {
			rcloneCheck.status = checkWarn
			rcloneCheck.detail += ", " + rclone.MinBisyncVersion + " or newer recommended for bisync"
		}
	}
	checks = append(checks, rcloneCheck)

	systemdCheck := check{name: "systemctl --user", status: checkOK, detail: "user manager reachable"}
	if _, err := (&systemd.DefaultExecutor{}).Execute(ctx, "systemctl", "--user", "show-environment"); err != nil {
		systemdCheck.status, systemdCheck.detail = checkWarn, "timers unavailable: "+err.Error()
	}
	checks = append(checks, systemdCheck)

	for _, tool := range []string{"nice", "ionice"} {
		c := check{name: tool, status: checkOK}
		if path, err := exec.LookPath(tool); err != nil {
			c.status, c.detail = checkWarn, "not found, rclone runs at normal priority"
		} else {
			c.detail = path
		}
		checks = append(checks, c)
	}

	keyringCheck := check{name: "keyring", status: checkOK, detail: "secret service available"}
	if !secrets.New(log.Logger).Available() {
		keyringCheck.status, keyringCheck.detail = checkWarn, "unavailable, keyring_service cannot be used"
	}
	checks = append(checks, keyringCheck)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Check", "Status", "Detail"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	failed := false
	for _, c := range checks {
		table.Append([]string{c.name, c.status, c.detail})
		failed = failed || c.status == checkFail
	}
	table.Render()

	if failed {
		return errors.New("required checks failed")
	}
	return nil
}
