// Package models contains the data structures used throughout rclone-sync-helper.
package models

// Defaults applied to a job when the config leaves a field unset.
const (
	DefaultJobName   = "default"
	DefaultLockFile  = "/tmp/rclone-sync.lock"
	DefaultLogDir    = "~/logs/rclone-sync"
	DefaultSchedule  = "hourly"
	DefaultRcloneBin = "rclone"
)

// JobConfig holds the settings of a single bisync job. It is stored as
// <config-dir>/jobs/<name>.toml and must never contain secrets.
type JobConfig struct {
	Name             string
	LocalPath        string
	Remote           string
	ExtraArgs        []string
	RcloneConfigPath string
	Pairs            []SyncPair
	Directories      []string // legacy, migrated into Pairs
	LockFile         string
	LogDir           string
	Schedule         string
	KeepLogs         int
	KeyringService   string
	AutoResync       bool
	CleanBisyncLocks bool
	UseNiceIonice    bool
	Notify           NotifySettings
}

// SyncPair is one local/remote bisync root. Relative or empty sides are
// resolved against the job's LocalPath and Remote.
type SyncPair struct {
	Local  string `toml:"local" mapstructure:"local"`
	Remote string `toml:"remote" mapstructure:"remote"`
}

// NotifySettings controls run notifications.
type NotifySettings struct {
	Desktop        bool
	TelegramChatID string
}

// NewJobConfig returns an unconfigured job with defaults applied.
func NewJobConfig(name string) JobConfig {
	return JobConfig{
		Name:             name,
		AutoResync:       true,
		CleanBisyncLocks: true,
		UseNiceIonice:    true,
		Notify:           NotifySettings{Desktop: true},
	}
}

// EffectiveLockFile returns the configured lock file or the default one.
func (j JobConfig) EffectiveLockFile() string {
	if j.LockFile == "" {
		return DefaultLockFile
	}
	return j.LockFile
}

// EffectiveLogDir returns the configured log directory or the default one.
func (j JobConfig) EffectiveLogDir() string {
	if j.LogDir == "" {
		return DefaultLogDir
	}
	return j.LogDir
}

// EffectiveSchedule returns the configured timer schedule or "hourly".
func (j JobConfig) EffectiveSchedule() string {
	if j.Schedule == "" {
		return DefaultSchedule
	}
	return j.Schedule
}
