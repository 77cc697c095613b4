// Package logs manages the per-run log files of a job.
package logs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	filePrefix = "sync_"
	fileSuffix = ".log"
	timeLayout = "20060102_150405"
)

// ErrNoLogs is returned when a log directory holds no run logs.
var ErrNoLogs = errors.New("no log files found")

// Service defines the interface for run log operations.
type Service interface {
	Create(dir string, ts time.Time) (afero.File, string, error)
	Latest(dir string) (string, error)
	Read(path string) ([]string, error)
	Tail(path string, n int) ([]string, error)
	Follow(ctx context.Context, dir, path string, offset int64, w io.Writer) error
	Prune(dir string, keep int) ([]string, error)
}

// Impl implements the Service interface.
type Impl struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// New creates a log service on the OS filesystem.
func New(logger zerolog.Logger) *Impl {
	return NewWithFs(logger, afero.NewOsFs())
}

// NewWithFs creates a log service on fs (useful for testing).
func NewWithFs(logger zerolog.Logger, fs afero.Fs) *Impl {
	return &Impl{fs: fs, logger: logger}
}

// FileName returns the log file name of a run started at ts.
func FileName(ts time.Time) string {
	return filePrefix + ts.UTC().Format(timeLayout) + fileSuffix
}

// IsRunLog reports whether name looks like a run log file.
func IsRunLog(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

// Create makes dir and opens a new run log in it.
func (s *Impl) Create(dir string, ts time.Time) (afero.File, string, error) {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("creating log directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName(ts))
	f, err := s.fs.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, path, nil
}

// Latest returns the run log in dir with the newest modification time.
func (s *Impl) Latest(dir string) (string, error) {
	logs, err := s.list(dir)
	if err != nil {
		return "", err
	}
	if len(logs) == 0 {
		return "", ErrNoLogs
	}
	return logs[0].path, nil
}

// Read returns every line of a log file.
func (s *Impl) Read(path string) ([]string, error) {
	content, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := strings.TrimRight(string(content), "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

// Tail returns the last n lines of a log file; n <= 0 returns all of them.
func (s *Impl) Tail(path string, n int) ([]string, error) {
	lines, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Follow copies bytes appended to path after offset into w until ctx is
// done. When a newer run log appears in dir, it switches to that file.
func (s *Impl) Follow(ctx context.Context, dir, path string, offset int64, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	s.logger.Debug().Str("file", path).Int64("offset", offset).Msg("following log")

	offset, err = s.copyFrom(path, offset, w)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Name == path && ev.Has(fsnotify.Write):
				if offset, err = s.copyFrom(path, offset, w); err != nil {
					return err
				}
			case ev.Name != path && ev.Has(fsnotify.Create) && IsRunLog(filepath.Base(ev.Name)):
				path, offset = ev.Name, 0
				_, _ = fmt.Fprintf(w, "\n==> %s <==\n", path)
				if offset, err = s.copyFrom(path, offset, w); err != nil {
					return err
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watching %s: %w", dir, werr)
		}
	}
}

func (s *Impl) copyFrom(path string, offset int64, w io.Writer) (int64, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		return offset, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return offset, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if fi.Size() < offset {
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("failed to seek %s: %w", path, err)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return offset + n, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return offset + n, nil
}

// Prune removes all but the newest keep run logs in dir. keep <= 0 keeps
// everything.
func (s *Impl) Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}

	logs, err := s.list(dir)
	if err != nil {
		if errors.Is(err, ErrNoLogs) {
			return nil, nil
		}
		return nil, err
	}
	if len(logs) <= keep {
		return nil, nil
	}

	var removed []string
	for _, l := range logs[keep:] {
		if err := s.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing old log %s: %w", l.path, err)
		}
		removed = append(removed, l.path)
	}

	s.logger.Debug().Str("dir", dir).Int("removed", len(removed)).Msg("pruned old run logs")
	return removed, nil
}

type logFile struct {
	path    string
	modTime time.Time
}

// list returns the run logs in dir, newest first.
func (s *Impl) list(dir string) ([]logFile, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLogs
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var logs []logFile
	for _, e := range entries {
		if e.IsDir() || !IsRunLog(e.Name()) {
			continue
		}
		logs = append(logs, logFile{path: filepath.Join(dir, e.Name()), modTime: e.ModTime()})
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].modTime.Equal(logs[j].modTime) {
			return logs[i].path > logs[j].path
		}
		return logs[i].modTime.After(logs[j].modTime)
	})
	return logs, nil
}
