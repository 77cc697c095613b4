// Package opener hands files to desktop applications.
package opener

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Launcher allows mocking process spawning in tests.
type Launcher interface {
	Start(name string, args ...string) error
}

// DefaultLauncher starts a detached process without waiting for it.
type DefaultLauncher struct{}

// Start implements Launcher.
func (DefaultLauncher) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

type candidate struct {
	name string
	args []string
}

// Service defines the interface for opening files.
type Service interface {
	OpenConfig(path string) error
	OpenLog(path string) error
}

// Impl implements the Service interface.
type Impl struct {
	launcher Launcher
	getenv   func(string) string
	logger   zerolog.Logger
}

// New creates an opener that spawns real processes.
func New(logger zerolog.Logger) *Impl {
	return NewWithLauncher(logger, DefaultLauncher{}, os.Getenv)
}

// NewWithLauncher creates an opener with a custom launcher (for testing).
func NewWithLauncher(logger zerolog.Logger, launcher Launcher, getenv func(string) string) *Impl {
	return &Impl{launcher: launcher, getenv: getenv, logger: logger}
}

// OpenConfig opens a job file in COSMIC Edit, falling back to its desktop
// entry and then $EDITOR.
func (s *Impl) OpenConfig(path string) error {
	chain := []candidate{
		{name: "cosmic-edit", args: []string{path}},
		{name: "gtk-launch", args: []string{"com.system76.CosmicEdit", path}},
	}
	if editor := strings.Fields(s.getenv("EDITOR")); len(editor) > 0 {
		args := append(editor[1:], path)
		chain = append(chain, candidate{name: editor[0], args: args})
	}

	if s.first(chain) {
		return nil
	}
	return fmt.Errorf("failed to launch COSMIC Edit (cosmic-edit / gtk-launch com.system76.CosmicEdit)")
}

// OpenLog opens a run log in COSMIC Edit, falling back to xdg-open.
func (s *Impl) OpenLog(path string) error {
	chain := []candidate{
		{name: "cosmic-edit", args: []string{path}},
		{name: "xdg-open", args: []string{path}},
	}

	if s.first(chain) {
		return nil
	}
	return fmt.Errorf("failed to open log file (cosmic-edit / xdg-open)")
}

func (s *Impl) first(chain []candidate) bool {
	for _, c := range chain {
		if err := s.launcher.Start(c.name, c.args...); err != nil {
			s.logger.Debug().Err(err).Str("command", c.name).Msg("launcher unavailable, trying next")
			continue
		}
		s.logger.Debug().Str("command", c.name).Strs("args", c.args).Msg("launched")
		return true
	}
	return false
}
