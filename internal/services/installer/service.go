// Package installer places the binary and desktop integration files into the
// user's XDG directories.
package installer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/xdg"
	"github.com/fgeck/rclone-sync-helper/resources"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// File modes of installed files.
const (
	ModeBinary os.FileMode = 0o755
	ModeData   os.FileMode = 0o644
)

const panelProcess = "cosmic-panel"

// Options controls an installation.
type Options struct {
	SourceBinary string // binary to copy
	BinDir       string // e.g. ~/.local/bin
	DataDir      string // e.g. ~/.local/share
	RestartPanel bool
}

// Service defines the interface for installation.
type Service interface {
	Install(ctx context.Context, opts Options) (*models.InstallResult, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// Impl implements the Service interface.
type Impl struct {
	fs        afero.Fs
	resources fs.FS
	executor  CommandExecutor
	logger    zerolog.Logger
}

// New creates an installer on the OS filesystem using the embedded resources.
func New(logger zerolog.Logger) *Impl {
	return NewWithDeps(logger, afero.NewOsFs(), resources.Files, &DefaultExecutor{})
}

// NewWithDeps creates an installer with custom dependencies (for testing).
func NewWithDeps(logger zerolog.Logger, fsys afero.Fs, res fs.FS, executor CommandExecutor) *Impl {
	return &Impl{
		fs:        fsys,
		resources: res,
		executor:  executor,
		logger:    logger,
	}
}

// Paths returns the destinations of an installation, binary first.
func Paths(binDir, dataDir string) (binary, desktop, icon string, metainfo []string) {
	binary = filepath.Join(binDir, xdg.BinaryName)
	desktop = filepath.Join(dataDir, "applications", xdg.AppID+".desktop")
	icon = filepath.Join(dataDir, "icons", "hicolor", "scalable", "apps", xdg.AppID+".svg")
	metainfo = []string{
		filepath.Join(dataDir, "appdata", xdg.AppID+".metainfo.xml"),
		filepath.Join(dataDir, "metainfo", xdg.AppID+".metainfo.xml"),
	}
	return binary, desktop, icon, metainfo
}

type placement struct {
	path    string
	mode    os.FileMode
	content []byte
}

// Install copies the binary and resources. Every source is read before the
// first write, so a missing source leaves the destinations untouched.
func (s *Impl) Install(ctx context.Context, opts Options) (*models.InstallResult, error) {
	if opts.BinDir == "" || opts.DataDir == "" {
		return nil, fmt.Errorf("bin and data directories are required")
	}

	binPath, desktopPath, iconPath, metainfoPaths := Paths(opts.BinDir, opts.DataDir)

	binary, err := afero.ReadFile(s.fs, opts.SourceBinary)
	if err != nil {
		return nil, fmt.Errorf("reading binary %s: %w", opts.SourceBinary, err)
	}
	desktop, err := fs.ReadFile(s.resources, resources.DesktopEntry)
	if err != nil {
		return nil, fmt.Errorf("reading desktop entry: %w", err)
	}
	icon, err := fs.ReadFile(s.resources, resources.Icon)
	if err != nil {
		return nil, fmt.Errorf("reading icon: %w", err)
	}
	metainfo, err := fs.ReadFile(s.resources, resources.Metainfo)
	if err != nil {
		return nil, fmt.Errorf("reading metainfo: %w", err)
	}

	plan := []placement{
		{path: binPath, mode: ModeBinary, content: binary},
		{path: desktopPath, mode: ModeData, content: RewriteDesktopEntry(desktop, binPath)},
		{path: iconPath, mode: ModeData, content: icon},
	}
	for _, p := range metainfoPaths {
		plan = append(plan, placement{path: p, mode: ModeData, content: metainfo})
	}

	result := &models.InstallResult{BinaryPath: binPath}
	for _, p := range plan {
		if err := s.place(p); err != nil {
			return result, err
		}
		result.Targets = append(result.Targets, models.InstallTarget{Path: p.path, Mode: p.mode})
		s.logger.Info().Str("path", p.path).Str("mode", p.mode.String()).Msg("installed")
	}

	if opts.RestartPanel {
		result.PanelRestarted = s.restartPanel(ctx)
	}

	return result, nil
}

// place writes a file through a temporary sibling and renames it, so a
// running binary can be replaced.
func (s *Impl) place(p placement) error {
	dir := filepath.Dir(p.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(p.path)+".tmp")
	if err := afero.WriteFile(s.fs, tmp, p.content, p.mode); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("writing %s: %w", p.path, err)
	}
	if err := s.fs.Chmod(tmp, p.mode); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("setting mode of %s: %w", p.path, err)
	}
	if err := s.fs.Rename(tmp, p.path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", p.path, err)
	}
	return nil
}

// restartPanel asks the panel to reload applets. Failure only means the
// panel was not running.
func (s *Impl) restartPanel(ctx context.Context) bool {
	if _, err := s.executor.Execute(ctx, "pkill", panelProcess); err != nil {
		s.logger.Debug().Err(err).Msg("panel not restarted")
		return false
	}
	s.logger.Info().Msg("restarted " + panelProcess)
	return true
}

// RewriteDesktopEntry points the Exec= and TryExec= lines at binPath and
// leaves every other line unchanged.
func RewriteDesktopEntry(content []byte, binPath string) []byte {
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "TryExec="):
			lines[i] = "TryExec=" + binPath
		case strings.HasPrefix(line, "Exec="):
			lines[i] = "Exec=" + binPath
		}
	}
	return []byte(strings.Join(lines, "\n"))
}
