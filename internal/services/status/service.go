// Package status persists the cached sync state of each job.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const stateFileSuffix = "-status.json"

// Service defines the interface for cached state operations.
type Service interface {
	Load(job string) (*models.SyncState, error)
	Record(job string, result *models.RunResult) (*models.SyncState, error)
	RecordFailure(job string, message string) (*models.SyncState, error)
	Delete(job string) error
	Path(job string) string
}

// Impl implements the Service interface.
type Impl struct {
	fs     afero.Fs
	dir    string
	logger zerolog.Logger
}

// New creates a state store in dir on the OS filesystem.
func New(logger zerolog.Logger, dir string) *Impl {
	return NewWithFs(logger, afero.NewOsFs(), dir)
}

// NewWithFs creates a state store on fs (useful for testing).
func NewWithFs(logger zerolog.Logger, fs afero.Fs, dir string) *Impl {
	return &Impl{fs: fs, dir: dir, logger: logger}
}

// Path returns the state file of a job.
func (s *Impl) Path(job string) string {
	return filepath.Join(s.dir, job+stateFileSuffix)
}

// Load reads the cached state of a job. A missing or unreadable state file
// yields a fresh state.
func (s *Impl) Load(job string) (*models.SyncState, error) {
	path := s.Path(job)
	fresh := models.NewSyncState(job)

	content, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fresh, nil
		}
		return nil, fmt.Errorf("reading state file %s: %w", path, err)
	}

	var state models.SyncState
	if err := json.Unmarshal(content, &state); err != nil {
		s.logger.Warn().Err(err).Str("file", path).Msg("discarding corrupt state file")
		return &fresh, nil
	}
	if state.Job == "" {
		state.Job = job
	}
	if state.LogPreview == nil {
		state.LogPreview = []string{}
	}
	return &state, nil
}

// Record folds a run result into the job's state and persists it.
func (s *Impl) Record(job string, result *models.RunResult) (*models.SyncState, error) {
	state, err := s.Load(job)
	if err != nil {
		return nil, err
	}

	UpdateFromResult(state, result)

	if err := s.persist(state); err != nil {
		return state, err
	}
	return state, nil
}

// RecordFailure stores an error for a run that could not start rclone.
func (s *Impl) RecordFailure(job string, message string) (*models.SyncState, error) {
	state, err := s.Load(job)
	if err != nil {
		return nil, err
	}

	state.LastError = &message

	if err := s.persist(state); err != nil {
		return state, err
	}
	return state, nil
}

// Delete removes the state file of a job, if any.
func (s *Impl) Delete(job string) error {
	if err := s.fs.Remove(s.Path(job)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing state file: %w", err)
	}
	return nil
}

func (s *Impl) persist(state *models.SyncState) error {
	content, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	path := s.Path(state.Job)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, content, 0o644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	s.logger.Debug().Str("file", path).Msg("state persisted")
	return nil
}

// UpdateFromResult applies a run result to state.
func UpdateFromResult(state *models.SyncState, result *models.RunResult) {
	ts := result.Timestamp
	exit := result.ExitCode
	duration := int64(result.Duration.Seconds())

	state.LastRun = &ts
	state.LastExitCode = &exit
	state.LogPreview = PreviewLines(result.Stdout, result.Stderr)
	state.RemoteSummary = RemoteSummary(result.Stdout, result.Stderr)
	state.LastChangedCount = ChangedCount(result.Stdout, result.Stderr)
	state.LastDurationSecs = &duration
	state.LastRunID = result.RunID

	state.LastLogFile = nil
	if result.LogFile != "" {
		logFile := result.LogFile
		state.LastLogFile = &logFile
	}

	if exit == 0 {
		state.LastSuccess = &ts
		state.LastError = nil
	} else {
		state.LastError = ErrorSummary(result.Stderr, exit)
	}
}
