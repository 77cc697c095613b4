package models

import "time"

// SyncState is the cached record of the last run of a job.
type SyncState struct {
	Job              string     `json:"job"`
	LastRun          *time.Time `json:"last_run"`
	LastSuccess      *time.Time `json:"last_success"`
	LastError        *string    `json:"last_error"`
	LogPreview       []string   `json:"log_preview"`
	RemoteSummary    *string    `json:"remote_summary"`
	LastExitCode     *int       `json:"last_exit_code"`
	LastLogFile      *string    `json:"last_log_file,omitempty"`
	LastChangedCount *int       `json:"last_changed_count,omitempty"`
	LastDurationSecs *int64     `json:"last_duration_secs,omitempty"`
	LastRunID        string     `json:"last_run_id,omitempty"`
}

// NewSyncState returns an empty state for the given job.
func NewSyncState(job string) SyncState {
	return SyncState{Job: job, LogPreview: []string{}}
}

// Phase is a coarse classification of a state for display.
type Phase string

// Phases shown by status and list output.
const (
	PhaseSyncing Phase = "syncing"
	PhaseError   Phase = "error"
	PhaseOK      Phase = "ok"
	PhaseIdle    Phase = "idle"
)

// Phase classifies the state the same way the panel icon does.
func (s SyncState) Phase(syncing bool) Phase {
	switch {
	case syncing:
		return PhaseSyncing
	case s.LastError != nil:
		return PhaseError
	case s.LastRun != nil:
		return PhaseOK
	default:
		return PhaseIdle
	}
}
