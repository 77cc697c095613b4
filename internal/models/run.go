package models

import "time"

// Attempt labels written to run logs.
const (
	AttemptNormal         = "normal"
	AttemptRetryAfterLock = "retry_after_lock_cleanup"
	AttemptResyncRecovery = "resync_recovery"
)

// BisyncRequest describes one rclone bisync invocation.
type BisyncRequest struct {
	Local            string
	Remote           string
	RcloneConfigPath string
	ExtraArgs        []string
	Resync           bool
	UseNiceIonice    bool
	Env              []string
}

// BisyncResult holds the outcome of one rclone bisync invocation.
type BisyncResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// PairResult holds the final outcome of one pair after retries.
type PairResult struct {
	Local    string
	Remote   string
	Attempts []string
	ExitCode int
}

// RunResult holds the outcome of a complete job run.
type RunResult struct {
	RunID     string
	Timestamp time.Time
	ExitCode  int
	Stdout    string
	Stderr    string
	LogFile   string // empty when the run was skipped
	Duration  time.Duration
	Pairs     []PairResult
	Skipped   bool
}

// RunningInfo describes a sync in progress detected from a lock file.
type RunningInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}
