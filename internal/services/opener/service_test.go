package opener

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLauncher struct {
	available map[string]bool
	started   []string
	args      [][]string
}

func (m *mockLauncher) Start(name string, args ...string) error {
	if !m.available[name] {
		return errors.New("exec: \"" + name + "\": executable file not found in $PATH")
	}
	m.started = append(m.started, name)
	m.args = append(m.args, args)
	return nil
}

func envWith(editor string) func(string) string {
	return func(key string) string {
		if key == "EDITOR" {
			return editor
		}
		return ""
	}
}

func TestOpenConfig_FallbackChain(t *testing.T) {
	tests := []struct {
		name      string
		available map[string]bool
		editor    string
		want      string
		wantErr   bool
	}{
		{name: "cosmic-edit", available: map[string]bool{"cosmic-edit": true, "gtk-launch": true}, want: "cosmic-edit"},
		{name: "gtk-launch", available: map[string]bool{"gtk-launch": true}, want: "gtk-launch"},
		{name: "editor", available: map[string]bool{"nvim": true}, editor: "nvim", want: "nvim"},
		{name: "nothing", available: map[string]bool{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			launcher := &mockLauncher{available: tt.available}
			svc := NewWithLauncher(zerolog.New(io.Discard), launcher, envWith(tt.editor))

			err := svc.OpenConfig("/home/user/.config/io/rclone/sync-helper/jobs/default.toml")
			if tt.wantErr {
				assert.ErrorContains(t, err, "COSMIC Edit")
				assert.Empty(t, launcher.started)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, launcher.started)
		})
	}
}

func TestOpenConfig_EditorWithArguments(t *testing.T) {
	path := "/home/user/.config/io/rclone/sync-helper/jobs/default.toml"
	launcher := &mockLauncher{available: map[string]bool{"code": true}}
	svc := NewWithLauncher(zerolog.New(io.Discard), launcher, envWith("  code --wait "))

	require.NoError(t, svc.OpenConfig(path))
	assert.Equal(t, []string{"code"}, launcher.started)
	assert.Equal(t, [][]string{{"--wait", path}}, launcher.args)
}

func TestOpenLog_FallbackChain(t *testing.T) {
	launcher := &mockLauncher{available: map[string]bool{"xdg-open": true}}
	svc := NewWithLauncher(zerolog.New(io.Discard), launcher, envWith(""))

	require.NoError(t, svc.OpenLog("/tmp/sync_20260107_000000.log"))
	assert.Equal(t, []string{"xdg-open"}, launcher.started)

	launcher = &mockLauncher{available: map[string]bool{}}
	svc = NewWithLauncher(zerolog.New(io.Discard), launcher, envWith(""))
	assert.ErrorContains(t, svc.OpenLog("/tmp/x.log"), "xdg-open")
}
