// Package runner orchestrates a single bisync run of a job.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/config"
	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/services/locks"
	"github.com/fgeck/rclone-sync-helper/internal/services/logs"
	"github.com/fgeck/rclone-sync-helper/internal/services/notify"
	"github.com/fgeck/rclone-sync-helper/internal/services/rclone"
	"github.com/fgeck/rclone-sync-helper/internal/services/secrets"
	"github.com/fgeck/rclone-sync-helper/internal/services/status"
	"github.com/fgeck/rclone-sync-helper/internal/services/telegram"
	"github.com/fgeck/rclone-sync-helper/internal/xdg"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	resyncNote        = "Resync required, but auto_resync=false; run with --resync to recover."
	notifyTimeout     = 30 * time.Second
	failedRunExitCode = 1
)

var resyncMarkers = []string{
	"cannot find prior path1 or path2 listings",
	"must run --resync",
	"bisync aborted",
}

// Service defines the interface for the sync runner.
type Service interface {
	Run(ctx context.Context, job string, cfg *models.JobConfig, configPath string) (*models.RunResult, error)
}

// Services bundles the collaborators of a run.
type Services struct {
	Rclone   rclone.Service
	Locks    locks.Service
	Status   status.Service
	Logs     logs.Service
	Notify   notify.Service
	Telegram telegram.Service
	Secrets  secrets.Service
}

// Impl implements the runner Service interface.
type Impl struct {
	svc    Services
	dirs   xdg.Dirs
	clock  clockwork.Clock
	newID  func() string
	logger zerolog.Logger
}

// New creates a new runner service.
func New(logger zerolog.Logger, dirs xdg.Dirs, rcloneBin string) *Impl {
	return NewWithServices(logger, Services{
		Rclone:   rclone.New(logger, rcloneBin),
		Locks:    locks.New(logger),
		Status:   status.New(logger, dirs.StateDir()),
		Logs:     logs.New(logger),
		Notify:   notify.New(logger),
		Telegram: telegram.New(logger),
		Secrets:  secrets.New(logger),
	}, dirs, clockwork.NewRealClock())
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(logger zerolog.Logger, svc Services, dirs xdg.Dirs, clock clockwork.Clock) *Impl {
	return &Impl{
		svc:    svc,
		dirs:   dirs,
		clock:  clock,
		newID:  func() string { return uuid.NewString() },
		logger: logger,
	}
}

// Run executes one sync of cfg and records the outcome under job, the name
// the job is stored as. A failed rclone run is reported through the result's
// ExitCode; an error means the run could not be carried out at all, in which
// case the failure is recorded in the state.
func (s *Impl) Run(ctx context.Context, job string, cfg *models.JobConfig, configPath string) (result *models.RunResult, err error) {
	startTime := s.clock.Now()
	var state *models.SyncState

	s.logger.Info().
		Str("job", job).
		Int("pairs", len(config.ResolvePairs(cfg))).
		Msg("starting sync run")

	defer func() {
		exitCode := failedRunExitCode
		if result != nil {
			exitCode = result.ExitCode
		}
		s.sendNotifications(ctx, job, cfg, startTime, result, state, exitCode)
	}()

	result, err = s.execute(ctx, cfg, configPath, startTime)
	if err != nil {
		msg := fmt.Sprintf("Sync run failed: %v", err)
		var recErr error
		if state, recErr = s.svc.Status.RecordFailure(job, msg); recErr != nil {
			s.logger.Error().Err(recErr).Msg("failed to persist sync state")
		}
		return nil, err
	}

	if state, err = s.svc.Status.Record(job, result); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist sync state")
		err = nil
	}

	if result.Skipped {
		s.logger.Warn().Str("job", job).Msg(result.Stderr)
		return result, nil
	}

	if cfg.KeepLogs > 0 {
		if _, perr := s.svc.Logs.Prune(s.dirs.Expand(cfg.EffectiveLogDir()), cfg.KeepLogs); perr != nil {
			s.logger.Warn().Err(perr).Msg("failed to prune old run logs")
		}
	}

	event := s.logger.Info()
	if result.ExitCode != 0 {
		event = s.logger.Error()
	}
	event.
		Str("job", job).
		Int("exit_code", result.ExitCode).
		Str("log_file", result.LogFile).
		Dur("duration", result.Duration).
		Msg("sync run finished")

	return result, nil
}

//nolint:gocognit // the run has several ordered steps
func (s *Impl) execute(ctx context.Context, cfg *models.JobConfig, configPath string, timestamp time.Time) (*models.RunResult, error) {
	if err := config.Validate(cfg, configPath); err != nil {
		return nil, err
	}

	runID := s.newID()

	if cfg.CleanBisyncLocks {
		if _, err := s.svc.Locks.CleanBisyncLocks(ctx, s.dirs.BisyncCacheDir()); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clean bisync lock files")
		}
	}

	lock, err := s.svc.Locks.Acquire(s.dirs.Expand(cfg.EffectiveLockFile()))
	if err != nil {
		var running *locks.AlreadyRunningError
		if errors.As(err, &running) {
			return &models.RunResult{
				RunID:     runID,
				Timestamp: timestamp,
				Stderr:    fmt.Sprintf("%s. Skipping this run.", running.Error()),
				Skipped:   true,
			}, nil
		}
		return nil, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			s.logger.Warn().Err(rerr).Msg("failed to release job lock")
		}
	}()

	env, err := s.svc.Secrets.RcloneEnv(cfg.KeyringService)
	if err != nil {
		return nil, err
	}

	file, logPath, err := s.svc.Logs.Create(s.dirs.Expand(cfg.EffectiveLogDir()), timestamp)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	lw := &logWriter{w: file}
	lw.printf("=== rclone bisync run started ===\n")
	lw.printf("job=%s\n", cfg.Name)
	lw.printf("local_base=%s\n", cfg.LocalPath)
	lw.printf("remote_base=%s\n", cfg.Remote)
	lw.printf("timestamp=%s\n", timestamp.UTC().Format(time.RFC3339))
	lw.printf("run_id=%s\n", runID)
	if len(cfg.Pairs) > 0 {
		lw.printf("pairs=%s\n", formatPairs(cfg.Pairs))
	}
	if lw.err != nil {
		return nil, fmt.Errorf("writing run log %s: %w", logPath, lw.err)
	}

	pairs := config.ResolvePairs(cfg)
	var stdout, stderr strings.Builder
	finalExit := 0
	results := make([]models.PairResult, 0, len(pairs))

	for i, pair := range pairs {
		if ctx.Err() != nil {
			break
		}

		lw.printf("\n=== pair %d/%d: %s <-> %s ===\n", i+1, len(pairs), pair.Local, pair.Remote)

		pr, out, err := s.runPair(ctx, cfg, pair, env, lw)
		if err != nil {
			return nil, err
		}
		results = append(results, pr)

		appendOutput(&stdout, out.Stdout)
		appendOutput(&stderr, out.Stderr)
		if out.ExitCode != 0 {
			finalExit = out.ExitCode
		}
	}

	if ctx.Err() != nil && finalExit == 0 {
		finalExit = failedRunExitCode
		appendOutput(&stderr, "Sync run interrupted: "+ctx.Err().Error())
	}

	lw.printf("=== rclone bisync run finished (exit=%d) ===\n", finalExit)
	if lw.err != nil {
		s.logger.Warn().Err(lw.err).Str("log_file", logPath).Msg("run log is incomplete")
	}

	return &models.RunResult{
		RunID:     runID,
		Timestamp: timestamp,
		ExitCode:  finalExit,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		LogFile:   logPath,
		Duration:  s.clock.Since(timestamp),
		Pairs:     results,
	}, nil
}

// runPair syncs one pair: a normal attempt, a retry after removing a stale
// bisync lock, and a --resync recovery when rclone asks for one.
func (s *Impl) runPair(
	ctx context.Context,
	cfg *models.JobConfig,
	pair models.SyncPair,
	env []string,
	lw *logWriter,
) (models.PairResult, *models.BisyncResult, error) {
	pr := models.PairResult{Local: pair.Local, Remote: pair.Remote}

	attempt := func(label string, resync bool) (*models.BisyncResult, error) {
		res, err := s.svc.Rclone.Bisync(ctx, models.BisyncRequest{
			Local:            pair.Local,
			Remote:           pair.Remote,
			RcloneConfigPath: s.dirs.Expand(cfg.RcloneConfigPath),
			ExtraArgs:        cfg.ExtraArgs,
			Resync:           resync,
			UseNiceIonice:    cfg.UseNiceIonice,
			Env:              env,
		})
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", cfg.Name, err)
		}
		pr.Attempts = append(pr.Attempts, label)
		writeChunk(lw, label, res)
		return res, nil
	}

	res, err := attempt(models.AttemptNormal, false)
	if err != nil {
		return pr, nil, err
	}

	if res.ExitCode != 0 {
		if lockPath := locks.DetectPriorLockFile(res.Stdout, res.Stderr); lockPath != "" {
			removed, rerr := s.svc.Locks.RemoveStaleLockFile(ctx, lockPath)
			if rerr != nil {
				s.logger.Warn().Err(rerr).Str("lock_file", lockPath).Msg("could not remove prior bisync lock")
			}
			if removed {
				if res, err = attempt(models.AttemptRetryAfterLock, false); err != nil {
					return pr, nil, err
				}
			}
		}
	}

	if res.ExitCode != 0 && NeedsResync(res.Stdout, res.Stderr) {
		if cfg.AutoResync {
			s.logger.Warn().Str("local", pair.Local).Str("remote", pair.Remote).Msg("bisync needs recovery, retrying with --resync")
			if res, err = attempt(models.AttemptResyncRecovery, true); err != nil {
				return pr, nil, err
			}
		} else {
			lw.printf("\n--- note ---\n%s\n", resyncNote)
		}
	}

	pr.ExitCode = res.ExitCode
	return pr, res, nil
}

func (s *Impl) sendNotifications(
	ctx context.Context,
	job string,
	cfg *models.JobConfig,
	startTime time.Time,
	result *models.RunResult,
	state *models.SyncState,
	exitCode int,
) {
	n, ok := notify.ForRun(job, exitCode, state)
	if !ok {
		return
	}

	n.StartTime = startTime
	n.Duration = s.clock.Since(startTime)
	if result != nil {
		n.LogFile = result.LogFile
	}

	// Still deliver after an interrupt cancelled the run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if cfg.Notify.Desktop {
		res, err := s.svc.Notify.Send(ctx, n)
		switch {
		case err != nil:
			s.logger.Error().Err(err).Msg("failed to send desktop notification")
		case res.Error != nil:
			s.logger.Warn().Err(res.Error).Msg("failed to send desktop notification")
		}
	}

	if chatID := strings.TrimSpace(cfg.Notify.TelegramChatID); chatID != "" {
		token, err := s.svc.Secrets.TelegramToken(cfg.KeyringService)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to read Telegram bot token")
			return
		}
		if token == "" {
			s.logger.Warn().Msgf("telegram_chat_id is set but no bot token found (set %s or store %q in the keyring)",
				secrets.TelegramTokenEnv, secrets.UserTelegramToken)
			return
		}

		res, err := s.svc.Telegram.SendNotification(ctx, models.TelegramConfig{BotToken: token, ChatID: chatID}, n)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to send Telegram notification")
			return
		}
		if res.Error != nil {
			s.logger.Error().Err(res.Error).Msg("failed to send Telegram notification")
			return
		}

		s.logger.Info().Msg("Telegram notification sent")
	}
}

// NeedsResync reports whether rclone output asks for a --resync.
func NeedsResync(stdout, stderr string) bool {
	combined := strings.ToLower(stdout + "\n" + stderr)
	for _, marker := range resyncMarkers {
		if strings.Contains(combined, marker) {
			return true
		}
	}
	return false
}

// logWriter records the first write error and skips later writes.
type logWriter struct {
	w   io.Writer
	err error
}

func (l *logWriter) printf(format string, args ...any) {
	if l.err != nil {
		return
	}
	_, l.err = fmt.Fprintf(l.w, format, args...)
}

func writeChunk(lw *logWriter, label string, res *models.BisyncResult) {
	lw.printf("\n--- attempt=%s (exit=%d) ---\n", label, res.ExitCode)
	if strings.TrimSpace(res.Stdout) != "" {
		lw.printf("STDOUT:\n%s\n", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "" {
		lw.printf("STDERR:\n%s\n", res.Stderr)
	}
}

func formatPairs(pairs []models.SyncPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, "("+strconv.Quote(p.Local)+", "+strconv.Quote(p.Remote)+")")
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func appendOutput(b *strings.Builder, s string) {
	if s == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(s)
}
