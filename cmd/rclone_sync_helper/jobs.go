package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/rclone-sync-helper/internal/config"
	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/services/locks"
	"github.com/fgeck/rclone-sync-helper/internal/services/opener"
	"github.com/fgeck/rclone-sync-helper/internal/services/rclone"
	"github.com/fgeck/rclone-sync-helper/internal/services/status"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Flags of jobs create.
var (
	createLocal    string
	createRemote   string
	createPairs    []string
	createSchedule string
	createKeepLogs int
	createKeyring  string
	createChatID   string
	createForce    bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage job configs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured jobs",
	Args:  cobra.NoArgs,
	RunE:  listJobs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show [job]",
	Short: "Print a job's config and resolved pairs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showJob,
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create <job>",
	Short: "Create a job config",
	Example: `  rclone_sync_helper jobs create docs --local ~/Documents --remote gdrive:Documents
  rclone_sync_helper jobs create media --local ~/Media --remote gdrive:Media \
      --pair Photos=Photos --pair Music=Audio --schedule "*/30 * * * *"`,
	Args: cobra.ExactArgs(1),
	RunE: createJob,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job>",
	Short: "Delete a job's config, cached status and timer units",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteJob,
}

var jobsEditCmd = &cobra.Command{
	Use:   "edit [job]",
	Short: "Open a job's config in an editor",
	Args:  cobra.MaximumNArgs(1),
	RunE:  editJob,
}

func init() {
	jobsCreateCmd.Flags().StringVar(&createLocal, "local", "", "base local path")
	jobsCreateCmd.Flags().StringVar(&createRemote, "remote", "", "base remote, e.g. gdrive: or gdrive:backup")
	jobsCreateCmd.Flags().StringArrayVar(&createPairs, "pair", nil, "pair as local=remote, relative to the bases (repeatable)")
	jobsCreateCmd.Flags().StringVar(&createSchedule, "schedule", "", "timer schedule: hourly, daily, ... or a cron expression")
	jobsCreateCmd.Flags().IntVar(&createKeepLogs, "keep-logs", 0, "keep only the newest N run logs (0 keeps all)")
	jobsCreateCmd.Flags().StringVar(&createKeyring, "keyring-service", "", "keyring service holding the rclone config password")
	jobsCreateCmd.Flags().StringVar(&createChatID, "telegram-chat-id", "", "send Telegram notifications to this chat")
	jobsCreateCmd.Flags().BoolVar(&createForce, "force", false, "overwrite an existing job")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsValidateCmd)
	jobsCmd.AddCommand(jobsEditCmd)
}

// argOrJob returns the positional job name, falling back to --job.
func argOrJob(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return jobName
}

func listJobs(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	names, err := env.store.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Printf("No jobs configured in %s\n", env.store.Dir())
		return nil
	}

	statusSvc := status.New(log.Logger, env.dirs.StateDir())
	locksSvc := locks.New(log.Logger)
	exe, err := executablePath()
	if err != nil {
		return err
	}
	systemdSvc := newSystemd(env, exe)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job", "Pairs", "Schedule", "Last run", "Result", "Timer"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, name := range names {
		row := []string{name, "-", "-", "never", "-", "-"}

		cfg, err := env.store.Load(name)
		if err != nil {
			row[4] = "invalid config"
			table.Append(row)
			continue
		}
		row[1] = strconv.Itoa(len(config.ResolvePairs(cfg)))
		row[2] = cfg.EffectiveSchedule()

		if state, err := statusSvc.Load(name); err == nil {
			_, running := locksSvc.DetectRunning(env.dirs.Expand(cfg.EffectiveLockFile()))
			if state.LastRun != nil {
				row[3] = humanize.Time(*state.LastRun)
			}
			row[4] = resultSummary(state, running)
		}

		if st, err := systemdSvc.Status(cmd.Context(), name); err == nil {
			row[5] = timerSummary(st)
		}
		table.Append(row)
	}

	table.Render()
	return nil
}

func resultSummary(state *models.SyncState, running bool) string {
	phase := state.Phase(running)
	switch phase {
	case models.PhaseOK:
		if state.LastChangedCount != nil {
			return fmt.Sprintf("ok (%s changed)", humanize.Comma(int64(*state.LastChangedCount)))
		}
	case models.PhaseError:
		if state.LastExitCode != nil {
			return fmt.Sprintf("error (exit %d)", *state.LastExitCode)
		}
	}
	return string(phase)
}

func timerSummary(st *models.TimerStatus) string {
	switch {
	case !st.Installed:
		return "not installed"
	case !st.Enabled:
		return "disabled"
	case st.NextElapse != "":
		return "next " + st.NextElapse
	case st.Active:
		return "active"
	default:
		return "enabled"
	}
}

func showJob(cmd *cobra.Command, args []string) error {
	name := argOrJob(args)
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	cfg, err := env.store.Load(name)
	if err != nil {
		return err
	}
	path, _ := env.store.Path(name)

	content, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s\n", path, strings.TrimRight(string(content), "\n"))

	rcloneSvc := rclone.New(log.Logger, rcloneBinary())
	fmt.Println()
	fmt.Println("Resolved pairs:")
	for i, pair := range config.ResolvePairs(cfg) {
		fmt.Printf("  %d. %s <-> %s\n", i+1, pair.Local, pair.Remote)
		line := rcloneSvc.CommandLine(models.BisyncRequest{
			Local:            pair.Local,
			Remote:           pair.Remote,
			RcloneConfigPath: env.dirs.Expand(cfg.RcloneConfigPath),
			ExtraArgs:        cfg.ExtraArgs,
			UseNiceIonice:    cfg.UseNiceIonice,
		})
		fmt.Printf("     %s\n", strings.Join(line, " "))
	}
	return nil
}

func createJob(cmd *cobra.Command, args []string) error {
	name := args[0]
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	if env.store.Exists(name) && !createForce {
		return fmt.Errorf("job %s already exists (use --force to overwrite)", name)
	}

	pairs, err := parsePairs(createPairs)
	if err != nil {
		return err
	}

	cfg := models.NewJobConfig(name)
	cfg.LocalPath = createLocal
	cfg.Remote = createRemote
	cfg.Pairs = pairs
	cfg.Schedule = createSchedule
	cfg.KeepLogs = createKeepLogs
	cfg.KeyringService = createKeyring
	cfg.Notify.TelegramChatID = createChatID

	path, err := env.store.Path(name)
	if err != nil {
		return err
	}
	if err := config.Validate(&cfg, path); err != nil {
		return err
	}
	if err := env.store.Save(&cfg); err != nil {
		return err
	}

	log.Info().Str("job", name).Str("file", path).Msg("job created")
	fmt.Printf("Created %s\n", path)
	return nil
}

// parsePairs turns "local=remote" flags into sync pairs. Either side may be
// empty to use the job's base path.
func parsePairs(values []string) ([]models.SyncPair, error) {
	pairs := make([]models.SyncPair, 0, len(values))
	for _, v := range values {
		local, remote, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid pair %q: expected local=remote", v)
		}
		local, remote = strings.TrimSpace(local), strings.TrimSpace(remote)
		if local == "" && remote == "" {
			return nil, fmt.Errorf("invalid pair %q: both sides are empty", v)
		}
		pairs = append(pairs, models.SyncPair{Local: local, Remote: remote})
	}
	return pairs, nil
}

func deleteJob(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := config.ValidateName(name); err != nil {
		return err
	}
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	if exe, err := executablePath(); err == nil {
		if err := newSystemd(env, exe).Uninstall(cmd.Context(), name); err != nil {
			log.Warn().Err(err).Str("job", name).Msg("failed to remove timer units")
		}
	}

	if err := status.New(log.Logger, env.dirs.StateDir()).Delete(name); err != nil {
		log.Warn().Err(err).Str("job", name).Msg("failed to remove cached status")
	}

	if err := env.store.Delete(name); err != nil {
		if errors.Is(err, config.ErrJobNotFound) {
			log.Warn().Str("job", name).Msg("job has no config file")
			return nil
		}
		return err
	}

	fmt.Printf("Deleted job %s\n", name)
	return nil
}

func editJob(cmd *cobra.Command, args []string) error {
	name := argOrJob(args)
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	path, err := env.store.Path(name)
	if err != nil {
		return err
	}
	// An existing file is opened even when it does not parse.
	if !env.store.Exists(name) {
		if _, _, err := env.store.LoadOrCreate(name); err != nil {
			return err
		}
	}
	return opener.New(log.Logger).OpenConfig(path)
}
