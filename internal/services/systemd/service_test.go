package systemd

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/schedule"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	unitDir = "/home/user/.config/systemd/user"
	exePath = "/home/user/.local/bin/rclone_sync_helper"
)

type mockExecutor struct {
	executeFunc func(ctx context.Context, name string, args ...string) ([]byte, error)
	calls       []string
}

func (m *mockExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, name+" "+strings.Join(args, " "))
	if m.executeFunc != nil {
		return m.executeFunc(ctx, name, args...)
	}
	return nil, nil
}

func newTestService(executor *mockExecutor) (*Impl, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewWithDeps(zerolog.New(io.Discard), fs, executor, unitDir, exePath, time.UTC), fs
}

func TestUnitNames(t *testing.T) {
	assert.Equal(t, "rclonesync-helper@photos.service", ServiceUnit("photos"))
	assert.Equal(t, "rclonesync-helper@photos.timer", TimerUnit("photos"))
}

func TestServiceText(t *testing.T) {
	expected := `[Unit]
Description=Rclone bisync job (photos)

[Service]
Type=oneshot
ExecStart=/home/user/.local/bin/rclone_sync_helper run --job photos
`
	assert.Equal(t, expected, ServiceText("photos", exePath))

	assert.Contains(t, ServiceText("photos", "/opt/my tools/rclone_sync_helper"),
		`ExecStart="/opt/my tools/rclone_sync_helper" run --job photos`)
}

func TestTimerText(t *testing.T) {
	hourly, err := schedule.Parse("hourly")
	require.NoError(t, err)

	expected := `[Unit]
Description=Run rclone bisync job (photos) hourly

[Timer]
OnCalendar=hourly
Persistent=true
Unit=rclonesync-helper@photos.service

[Install]
WantedBy=timers.target
`
	assert.Equal(t, expected, TimerText("photos", hourly))

	cron, err := schedule.Parse("30 9 * * *")
	require.NoError(t, err)
	text := TimerText("photos", cron)
	assert.Contains(t, text, "OnCalendar=*-*-* 09:30:00\n")
	assert.Contains(t, text, `Description=Run rclone bisync job (photos) on schedule "30 9 * * *"`)
}

func TestInstall(t *testing.T) {
	executor := &mockExecutor{}
	svc, fs := newTestService(executor)

	require.NoError(t, svc.Install(context.Background(), "photos", "daily"))

	service, err := afero.ReadFile(fs, unitDir+"/rclonesync-helper@photos.service")
	require.NoError(t, err)
	assert.Contains(t, string(service), "ExecStart="+exePath+" run --job photos")

	timer, err := afero.ReadFile(fs, unitDir+"/rclonesync-helper@photos.timer")
	require.NoError(t, err)
	assert.Contains(t, string(timer), "OnCalendar=daily")

	assert.Equal(t, []string{"systemctl --user daemon-reload"}, executor.calls)
}

func TestInstall_InvalidSchedule(t *testing.T) {
	executor := &mockExecutor{}
	svc, fs := newTestService(executor)

	err := svc.Install(context.Background(), "photos", "every tuesday")
	require.Error(t, err)

	exists, _ := afero.DirExists(fs, unitDir)
	assert.False(t, exists)
	assert.Empty(t, executor.calls)
}

func TestEnableDisable(t *testing.T) {
	executor := &mockExecutor{}
	svc, _ := newTestService(executor)

	require.NoError(t, svc.Enable(context.Background(), "photos"))
	require.NoError(t, svc.Disable(context.Background(), "photos"))

	assert.Equal(t, []string{
		"systemctl --user enable --now rclonesync-helper@photos.timer",
		"systemctl --user disable --now rclonesync-helper@photos.timer",
	}, executor.calls)
}

func TestEnable_Error(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("exit status 1: Failed to connect to bus")
		},
	}
	svc, _ := newTestService(executor)

	err := svc.Enable(context.Background(), "photos")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "systemctl --user enable --now rclonesync-helper@photos.timer failed")
	assert.Contains(t, err.Error(), "Failed to connect to bus")
}

func TestUninstall(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if args[1] == "disable" {
				return nil, errors.New("unit not loaded")
			}
			return nil, nil
		},
	}
	svc, fs := newTestService(executor)
	require.NoError(t, afero.WriteFile(fs, unitDir+"/rclonesync-helper@photos.timer", []byte("x"), 0o644))

	require.NoError(t, svc.Uninstall(context.Background(), "photos"))

	exists, _ := afero.Exists(fs, unitDir+"/rclonesync-helper@photos.timer")
	assert.False(t, exists)
	assert.Equal(t, "systemctl --user daemon-reload", executor.calls[len(executor.calls)-1])
}

func TestStatus(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			switch args[1] {
			case "is-enabled":
				return []byte("enabled\n"), nil
			case "is-active":
				return []byte("inactive\n"), errors.New("exit status 3")
			case "list-timers":
				return []byte("Tue 2026-01-06 14:05:00 CET 55min left Tue 2026-01-06 13:10:00 CET 2min ago rclonesync-helper@photos.timer rclonesync-helper@photos.service\n"), nil
			}
			return nil, errors.New("unexpected call")
		},
	}
	svc, fs := newTestService(executor)
	require.NoError(t, afero.WriteFile(fs, unitDir+"/rclonesync-helper@photos.timer", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, unitDir+"/rclonesync-helper@photos.service", []byte("x"), 0o644))

	st, err := svc.Status(context.Background(), "photos")
	require.NoError(t, err)

	assert.Equal(t, "rclonesync-helper@photos.timer", st.Unit)
	assert.True(t, st.Installed)
	assert.True(t, st.Enabled)
	assert.False(t, st.Active)
	assert.Equal(t, "Tue 2026-01-06 14:05:00 CET", st.NextElapse)
}

func TestStatus_FallsBackToShow(t *testing.T) {
	executor := &mockExecutor{
		executeFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			switch args[1] {
			case "list-timers":
				return []byte(""), nil
			case "show":
				return []byte("NextElapseUSecRealtime=1767708300000000\n"), nil
			}
			return nil, errors.New("exit status 1")
		},
	}
	svc, _ := newTestService(executor)

	st, err := svc.Status(context.Background(), "photos")
	require.NoError(t, err)

	assert.False(t, st.Installed)
	assert.False(t, st.Enabled)
	assert.Equal(t, "2026-01-06 14:05:00", st.NextElapse)
}

func TestParseListTimersNext(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{name: "with timezone", out: "Tue 2026-01-06 14:05:00 CET  55min left  -  -  x.timer  x.service", want: "Tue 2026-01-06 14:05:00 CET"},
		{name: "without timezone", out: "Tue 2026-01-06 14:05:00 55min left", want: "Tue 2026-01-06 14:05:00"},
		{name: "region timezone too long", out: "Tue 2026-01-06 14:05:00 Europe/Berlin", want: "Tue 2026-01-06 14:05:00"},
		{name: "not scheduled", out: "n/a n/a n/a n/a", want: ""},
		{name: "dash", out: "- - - x.timer", want: ""},
		{name: "empty", out: "", want: ""},
		{name: "too short", out: "Tue 2026-01-06", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseListTimersNext(tt.out))
		})
	}
}

func TestParseNextElapse(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"", ""},
		{"n/a", ""},
		{"0", ""},
		{"1767708300000000", "2026-01-06 14:05:00"},
		{"Mon 2026-01-05 15:00:00 UTC", "Mon 2026-01-05 15:00:00 UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNextElapse(tt.value, time.UTC))
		})
	}
}
