package status

import (
	"io"
	"testing"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stateDir = "/home/user/.local/state/sync-helper"

func newTestStore(t *testing.T) (*Impl, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewWithFs(zerolog.New(io.Discard), fs, stateDir), fs
}

func sampleResult(exitCode int, stdout, stderr string) *models.RunResult {
	return &models.RunResult{
		RunID:     "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Timestamp: time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC),
		ExitCode:  exitCode,
		Stdout:    stdout,
		Stderr:    stderr,
		LogFile:   "/home/user/logs/rclone-sync/sync_20240105_120000.log",
		Duration:  123 * time.Second,
	}
}

func TestPath(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Equal(t, stateDir+"/photos-status.json", store.Path("photos"))
}

func TestLoad_MissingFileReturnsFreshState(t *testing.T) {
	store, _ := newTestStore(t)

	state, err := store.Load("photos")
	require.NoError(t, err)
	assert.Equal(t, "photos", state.Job)
	assert.Nil(t, state.LastRun)
	assert.Empty(t, state.LogPreview)
	assert.Equal(t, models.PhaseIdle, state.Phase(false))
}

func TestLoad_CorruptFileReturnsFreshState(t *testing.T) {
	store, fs := newTestStore(t)
	require.NoError(t, afero.WriteFile(fs, store.Path("photos"), []byte("{not json"), 0o644))

	state, err := store.Load("photos")
	require.NoError(t, err)
	assert.Equal(t, "photos", state.Job)
	assert.Nil(t, state.LastExitCode)
}

func TestRecord_SuccessThenFailure(t *testing.T) {
	store, _ := newTestStore(t)

	state, err := store.Record("default", sampleResult(0, "remote state reached", ""))
	require.NoError(t, err)
	require.NotNil(t, state.LastSuccess)
	assert.Nil(t, state.LastError)
	assert.Equal(t, models.PhaseOK, state.Phase(false))
	require.NotNil(t, state.LastDurationSecs)
	assert.Equal(t, int64(123), *state.LastDurationSecs)

	state, err = store.Record("default", sampleResult(2, "attempt", "failed"))
	require.NoError(t, err)
	require.NotNil(t, state.LastError)
	assert.Equal(t, "failed", *state.LastError)
	require.NotNil(t, state.LastExitCode)
	assert.Equal(t, 2, *state.LastExitCode)
	assert.NotNil(t, state.LastSuccess, "last success survives a failed run")
	assert.Equal(t, models.PhaseError, state.Phase(false))
}

func TestRecord_PersistsToDisk(t *testing.T) {
	store, fs := newTestStore(t)

	_, err := store.Record("default", sampleResult(0, "Transferred:          4 / 4, 100%", ""))
	require.NoError(t, err)

	exists, err := afero.Exists(fs, store.Path("default"))
	require.NoError(t, err)
	assert.True(t, exists)

	tmpExists, err := afero.Exists(fs, store.Path("default")+".tmp")
	require.NoError(t, err)
	assert.False(t, tmpExists)

	reloaded, err := store.Load("default")
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastChangedCount)
	assert.Equal(t, 4, *reloaded.LastChangedCount)
	require.NotNil(t, reloaded.LastLogFile)
	assert.Equal(t, "/home/user/logs/rclone-sync/sync_20240105_120000.log", *reloaded.LastLogFile)
	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", reloaded.LastRunID)
	assert.Equal(t, []string{"Transferred:          4 / 4, 100%"}, reloaded.LogPreview)
}

func TestRecord_SkippedRunHasNoLogFile(t *testing.T) {
	store, _ := newTestStore(t)

	result := sampleResult(0, "", "Sync already running (PID: 99). Skipping this run.")
	result.LogFile = ""
	result.Skipped = true

	state, err := store.Record("default", result)
	require.NoError(t, err)
	assert.Nil(t, state.LastLogFile)
	assert.Nil(t, state.LastError)
}

func TestRecordFailure(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Record("default", sampleResult(0, "ok", ""))
	require.NoError(t, err)

	state, err := store.RecordFailure("default", "Sync run failed: creating log directory: permission denied")
	require.NoError(t, err)
	require.NotNil(t, state.LastError)
	assert.Equal(t, "Sync run failed: creating log directory: permission denied", *state.LastError)
	assert.NotNil(t, state.LastRun, "earlier run data is kept")

	reloaded, err := store.Load("default")
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, *state.LastError, *reloaded.LastError)
}

func TestDelete(t *testing.T) {
	store, fs := newTestStore(t)

	_, err := store.Record("old", sampleResult(0, "", ""))
	require.NoError(t, err)

	require.NoError(t, store.Delete("old"))
	exists, err := afero.Exists(fs, store.Path("old"))
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, store.Delete("never-existed"))
}
