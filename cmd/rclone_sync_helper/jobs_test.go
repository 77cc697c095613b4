package main

import (
	"testing"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    []models.SyncPair
		wantErr bool
	}{
		{
			name:   "relative pairs",
			values: []string{"Photos=Photos", "Music=Audio"},
			want:   []models.SyncPair{{Local: "Photos", Remote: "Photos"}, {Local: "Music", Remote: "Audio"}},
		},
		{
			name:   "absolute local and full remote",
			values: []string{"/home/u/Docs=gdrive:Docs"},
			want:   []models.SyncPair{{Local: "/home/u/Docs", Remote: "gdrive:Docs"}},
		},
		{
			name:   "empty side uses base",
			values: []string{"Notes="},
			want:   []models.SyncPair{{Local: "Notes", Remote: ""}},
		},
		{
			name:    "missing separator",
			values:  []string{"Photos"},
			wantErr: true,
		},
		{
			name:    "both sides empty",
			values:  []string{" = "},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePairs(tt.values)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResultSummary(t *testing.T) {
	now := time.Now()
	changed := 1234
	exit := 2
	msg := "boom"

	assert.Equal(t, "idle", resultSummary(&models.SyncState{}, false))
	assert.Equal(t, "syncing", resultSummary(&models.SyncState{LastRun: &now}, true))
	assert.Equal(t, "ok (1,234 changed)", resultSummary(&models.SyncState{LastRun: &now, LastChangedCount: &changed}, false))
	assert.Equal(t, "ok", resultSummary(&models.SyncState{LastRun: &now}, false))
	assert.Equal(t, "error (exit 2)", resultSummary(&models.SyncState{LastRun: &now, LastError: &msg, LastExitCode: &exit}, false))
}

func TestTimerSummary(t *testing.T) {
	assert.Equal(t, "not installed", timerSummary(&models.TimerStatus{}))
	assert.Equal(t, "disabled", timerSummary(&models.TimerStatus{Installed: true}))
	assert.Equal(t, "enabled", timerSummary(&models.TimerStatus{Installed: true, Enabled: true}))
	assert.Equal(t, "active", timerSummary(&models.TimerStatus{Installed: true, Enabled: true, Active: true}))
	assert.Equal(t, "next 2024-05-01 10:00:00",
		timerSummary(&models.TimerStatus{Installed: true, Enabled: true, Active: true, NextElapse: "2024-05-01 10:00:00"}))
}

func TestArgOrJob(t *testing.T) {
	orig := jobName
	jobName = "default"
	t.Cleanup(func() { jobName = orig })

	assert.Equal(t, "default", argOrJob(nil))
	assert.Equal(t, "docs", argOrJob([]string{"docs"}))
}
