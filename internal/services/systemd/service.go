// Package systemd manages the per-job systemd --user service and timer.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/schedule"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const unitPrefix = "rclonesync-helper@"

// ServiceUnit returns the service unit name of a job.
func ServiceUnit(job string) string {
	return unitPrefix + job + ".service"
}

// TimerUnit returns the timer unit name of a job.
func TimerUnit(job string) string {
	return unitPrefix + job + ".timer"
}

// Service defines the interface for systemd --user operations.
type Service interface {
	Install(ctx context.Context, job, sched string) error
	Enable(ctx context.Context, job string) error
	Disable(ctx context.Context, job string) error
	Status(ctx context.Context, job string) (*models.TimerStatus, error)
	Uninstall(ctx context.Context, job string) error
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its stdout. On failure the error
// carries stderr.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}

// Impl implements the Service interface.
type Impl struct {
	fs       afero.Fs
	dir      string
	exe      string
	executor CommandExecutor
	loc      *time.Location
	logger   zerolog.Logger
}

// New creates a systemd service writing units into dir. exe is the absolute
// path the service unit runs.
func New(logger zerolog.Logger, dir, exe string) *Impl {
	return NewWithDeps(logger, afero.NewOsFs(), &DefaultExecutor{}, dir, exe, time.Local)
}

// NewWithDeps creates a systemd service with custom dependencies (for testing).
func NewWithDeps(
	logger zerolog.Logger,
	fs afero.Fs,
	executor CommandExecutor,
	dir string,
	exe string,
	loc *time.Location,
) *Impl {
	return &Impl{
		fs:       fs,
		dir:      dir,
		exe:      exe,
		executor: executor,
		loc:      loc,
		logger:   logger,
	}
}

// ServiceText renders the oneshot service unit of a job.
func ServiceText(job, exe string) string {
	return fmt.Sprintf(`[Unit]
Description=Rclone bisync job (%s)

[Service]
Type=oneshot
ExecStart=%s run --job %s
`, job, quoteExec(exe), job)
}

// TimerText renders the timer unit of a job.
func TimerText(job string, sched *schedule.Schedule) string {
	return fmt.Sprintf(`[Unit]
Description=Run rclone bisync job (%s) %s

[Timer]
OnCalendar=%s
Persistent=true
Unit=%s

[Install]
WantedBy=timers.target
`, job, sched.Description(), sched.OnCalendar(), ServiceUnit(job))
}

func quoteExec(path string) string {
	if strings.ContainsAny(path, " \t\"") {
		return strconv.Quote(path)
	}
	return path
}

// Install writes both unit files and reloads the user manager.
func (s *Impl) Install(ctx context.Context, job, sched string) error {
	parsed, err := schedule.Parse(sched)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}

	units := []struct {
		name string
		text string
	}{
		{ServiceUnit(job), ServiceText(job, s.exe)},
		{TimerUnit(job), TimerText(job, parsed)},
	}
	for _, u := range units {
		path := filepath.Join(s.dir, u.name)
		if err := afero.WriteFile(s.fs, path, []byte(u.text), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	s.logger.Info().
		Str("job", job).
		Str("on_calendar", parsed.OnCalendar()).
		Str("dir", s.dir).
		Msg("installed systemd units")

	return s.daemonReload(ctx)
}

// Enable enables and starts the job's timer.
func (s *Impl) Enable(ctx context.Context, job string) error {
	_, err := s.systemctl(ctx, "enable", "--now", TimerUnit(job))
	return err
}

// Disable stops and disables the job's timer.
func (s *Impl) Disable(ctx context.Context, job string) error {
	_, err := s.systemctl(ctx, "disable", "--now", TimerUnit(job))
	return err
}

// Uninstall disables the timer, removes both unit files and reloads. Units
// that are already gone are not an error.
func (s *Impl) Uninstall(ctx context.Context, job string) error {
	if err := s.Disable(ctx, job); err != nil {
		s.logger.Debug().Err(err).Str("job", job).Msg("disable before uninstall failed")
	}

	for _, name := range []string{TimerUnit(job), ServiceUnit(job)} {
		path := filepath.Join(s.dir, name)
		if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	return s.daemonReload(ctx)
}

// Status reports whether the units are installed, enabled and active, and
// when the timer fires next.
func (s *Impl) Status(ctx context.Context, job string) (*models.TimerStatus, error) {
	unit := TimerUnit(job)
	st := &models.TimerStatus{Unit: unit}

	timerOK, _ := afero.Exists(s.fs, filepath.Join(s.dir, unit))
	serviceOK, _ := afero.Exists(s.fs, filepath.Join(s.dir, ServiceUnit(job)))
	st.Installed = timerOK && serviceOK

	_, err := s.systemctl(ctx, "is-enabled", unit)
	st.Enabled = err == nil
	_, err = s.systemctl(ctx, "is-active", unit)
	st.Active = err == nil

	if out, err := s.systemctl(ctx, "list-timers", "--all", "--no-pager", "--no-legend", unit); err == nil {
		st.NextElapse = ParseListTimersNext(out)
	}
	if st.NextElapse == "" {
		out, err := s.systemctl(ctx, "show", unit, "-p", "NextElapseUSecRealtime")
		if err != nil {
			return nil, err
		}
		st.NextElapse = ParseNextElapse(showProperty(out, "NextElapseUSecRealtime"), s.loc)
	}

	return st, nil
}

func (s *Impl) daemonReload(ctx context.Context) error {
	_, err := s.systemctl(ctx, "daemon-reload")
	return err
}

func (s *Impl) systemctl(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"--user"}, args...)
	out, err := s.executor.Execute(ctx, "systemctl", full...)
	if err != nil {
		return string(out), fmt.Errorf("systemctl --user %s failed: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

func showProperty(out, prop string) string {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), prop+"="); ok {
			return v
		}
	}
	return ""
}

// ParseListTimersNext extracts the NEXT column from list-timers output, e.g.
// "Tue 2026-01-06 14:05:00 CET  55min left  ..." yields
// "Tue 2026-01-06 14:05:00 CET".
func ParseListTimersNext(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return ""
	}
	if strings.EqualFold(tokens[0], "n/a") || tokens[0] == "-" {
		return ""
	}
	if len(tokens) < 3 {
		return ""
	}

	next := tokens[:3]
	if len(tokens) >= 4 && tzLike(tokens[3]) {
		next = tokens[:4]
	}
	return strings.Join(next, " ")
}

func tzLike(s string) bool {
	if len(s) > 6 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_' || r == '/') {
			return false
		}
	}
	return true
}

// ParseNextElapse normalizes a NextElapseUSecRealtime value. Raw microsecond
// timestamps are rendered in loc; anything else is returned as is.
func ParseNextElapse(value string, loc *time.Location) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "n/a") || value == "0" {
		return ""
	}

	if isDigits(value) {
		if us, err := strconv.ParseUint(value, 10, 64); err == nil {
			return time.UnixMicro(int64(us)).In(loc).Format("2006-01-02 15:04:05")
		}
	}
	return value
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
