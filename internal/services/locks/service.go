// Package locks manages the per-job PID lock file and rclone's own bisync
// lock files.
package locks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// StaleAfter is the age after which a lock without a PID is considered
// abandoned, provided no bisync process is running.
const StaleAfter = 60 * time.Minute

const bisyncLockExt = ".lck"

// ErrAlreadyRunning is returned when another live process holds the job lock.
var ErrAlreadyRunning = errors.New("sync already running")

// AlreadyRunningError carries the PID of the process holding the lock.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("Sync already running (PID: %d)", e.PID)
}

// Unwrap lets callers match with errors.Is(err, ErrAlreadyRunning).
func (e *AlreadyRunningError) Unwrap() error {
	return ErrAlreadyRunning
}

// Service defines the interface for lock operations.
type Service interface {
	Acquire(path string) (*Lock, error)
	DetectRunning(path string) (*models.RunningInfo, bool)
	CleanBisyncLocks(ctx context.Context, dir string) ([]string, error)
	RemoveStaleLockFile(ctx context.Context, path string) (bool, error)
}

// ProcessChecker reports whether a PID belongs to a live process.
type ProcessChecker interface {
	Alive(pid int) bool
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultProcessChecker probes processes with signal 0.
type DefaultProcessChecker struct{}

// Alive reports whether pid exists. EPERM means it exists but belongs to
// another user.
func (DefaultProcessChecker) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Impl implements the Service interface.
type Impl struct {
	fs       afero.Fs
	procs    ProcessChecker
	executor CommandExecutor
	clock    clockwork.Clock
	logger   zerolog.Logger
	pid      int
}

// New creates a new lock service on the OS filesystem.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		fs:       afero.NewOsFs(),
		procs:    DefaultProcessChecker{},
		executor: &DefaultExecutor{},
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		pid:      os.Getpid(),
	}
}

// NewWithDeps creates a new lock service with custom dependencies (for testing).
func NewWithDeps(
	logger zerolog.Logger,
	fs afero.Fs,
	procs ProcessChecker,
	executor CommandExecutor,
	clock clockwork.Clock,
	pid int,
) *Impl {
	return &Impl{
		fs:       fs,
		procs:    procs,
		executor: executor,
		clock:    clock,
		logger:   logger,
		pid:      pid,
	}
}

// Lock is a held job lock. Release removes the lock file.
type Lock struct {
	fs   afero.Fs
	path string
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.fs == nil {
		return nil
	}
	if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file %s: %w", l.path, err)
	}
	return nil
}

// Acquire takes the job lock at path. A lock held by a live process yields an
// *AlreadyRunningError; a lock left by a dead process is replaced.
func (s *Impl) Acquire(path string) (*Lock, error) {
	if pid, ok := s.readPID(path); ok {
		if s.procs.Alive(pid) {
			return nil, &AlreadyRunningError{PID: pid}
		}
		s.logger.Warn().Str("lock_file", path).Int("pid", pid).Msg("removing stale job lock")
	}
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing old lock file %s: %w", path, err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Lost a race with another run starting at the same moment.
			pid, _ := s.readPID(path)
			return nil, &AlreadyRunningError{PID: pid}
		}
		return nil, fmt.Errorf("creating lock file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "%d\n", s.pid); err != nil {
		_ = s.fs.Remove(path)
		return nil, fmt.Errorf("writing lock file %s: %w", path, err)
	}

	s.logger.Debug().Str("lock_file", path).Int("pid", s.pid).Msg("job lock acquired")
	return &Lock{fs: s.fs, path: path}, nil
}

// DetectRunning reports whether a live process holds the job lock. A lock
// whose PID is dead is removed.
func (s *Impl) DetectRunning(path string) (*models.RunningInfo, bool) {
	pid, ok := s.readPID(path)
	if !ok {
		return nil, false
	}

	if !s.procs.Alive(pid) {
		_ = s.fs.Remove(path)
		return nil, false
	}

	info := &models.RunningInfo{PID: pid}
	if fi, err := s.fs.Stat(path); err == nil {
		info.StartedAt = fi.ModTime()
	}
	return info, true
}

// CleanBisyncLocks removes rclone bisync .lck files from dir. With no bisync
// process running every lock goes; otherwise only stale ones do.
func (s *Impl) CleanBisyncLocks(ctx context.Context, dir string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	running := s.bisyncRunning(ctx)

	var removed []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != bisyncLockExt {
			continue
		}
		path := filepath.Join(dir, e.Name())

		if running && !s.isStale(path) {
			continue
		}
		if err := s.fs.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("lock_file", path).Msg("failed to remove bisync lock")
			continue
		}
		removed = append(removed, path)
	}

	if len(removed) > 0 {
		s.logger.Info().Strs("removed", removed).Bool("bisync_running", running).Msg("cleaned bisync lock files")
	}
	return removed, nil
}

// RemoveStaleLockFile removes the bisync lock rclone complained about if it
// is stale: its PID is dead, or it has no PID, no bisync is running and it is
// older than StaleAfter.
func (s *Impl) RemoveStaleLockFile(ctx context.Context, path string) (bool, error) {
	if ok, _ := afero.Exists(s.fs, path); !ok {
		return false, nil
	}

	if _, hasPID := s.readPID(path); !hasPID && s.bisyncRunning(ctx) {
		return false, nil
	}
	if !s.isStale(path) {
		return false, nil
	}

	if err := s.fs.Remove(path); err != nil {
		return false, fmt.Errorf("removing stale lock file %s: %w", path, err)
	}
	s.logger.Info().Str("lock_file", path).Msg("removed stale bisync lock file")
	return true, nil
}

// isStale decides from the lock's PID, or from its age when it has none.
func (s *Impl) isStale(path string) bool {
	if pid, ok := s.readPID(path); ok {
		return !s.procs.Alive(pid)
	}
	fi, err := s.fs.Stat(path)
	if err != nil {
		return false
	}
	return s.clock.Since(fi.ModTime()) > StaleAfter
}

func (s *Impl) bisyncRunning(ctx context.Context) bool {
	_, err := s.executor.Execute(ctx, "pgrep", "-f", "rclone.*bisync")
	return err == nil
}

// readPID parses the first line of a lock file as a PID.
func (s *Impl) readPID(path string) (int, bool) {
	content, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return 0, false
	}
	first, _, _ := strings.Cut(string(content), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// DetectPriorLockFile returns the path from rclone's "prior lock file found:"
// message, if present.
func DetectPriorLockFile(stdout, stderr string) string {
	for _, line := range strings.Split(stdout+"\n"+stderr, "\n") {
		_, rest, found := strings.Cut(line, "prior lock file found:")
		if !found {
			continue
		}
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}
