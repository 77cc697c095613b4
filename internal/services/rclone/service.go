// Package rclone runs rclone bisync and inspects the installed rclone.
package rclone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/hashicorp/go-version"
	"github.com/rs/zerolog"
)

// MinBisyncVersion is the oldest rclone whose bisync handles lock files and
// --resync recovery the way the runner expects.
const MinBisyncVersion = "1.64.0"

// Service defines the interface for rclone operations.
type Service interface {
	Bisync(ctx context.Context, req models.BisyncRequest) (*models.BisyncResult, error)
	Version(ctx context.Context) (*version.Version, error)
	CommandLine(req models.BisyncRequest) []string
}

// Output is the captured result of a finished process.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
	ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) (*Output, error)
	LookPath(name string) (string, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// Execute runs a command and returns its combined output.
func (e *DefaultExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// ExecuteWithEnv runs a command with additional environment variables. A
// non-zero exit status is reported through Output.ExitCode, not as an error.
func (e *DefaultExecutor) ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) (*Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out, nil
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	default:
		return out, err
	}
}

// LookPath searches PATH for an executable.
func (e *DefaultExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
	binary   string
}

// New creates a new rclone service using the given rclone binary.
func New(logger zerolog.Logger, binary string) *Impl {
	return NewWithExecutor(logger, &DefaultExecutor{}, binary)
}

// NewWithExecutor creates a new rclone service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor, binary string) *Impl {
	if binary == "" {
		binary = models.DefaultRcloneBin
	}
	return &Impl{
		executor: executor,
		logger:   logger,
		binary:   binary,
	}
}

func (s *Impl) bisyncArgs(req models.BisyncRequest) []string {
	args := []string{"bisync", req.Local, req.Remote}

	if path := strings.TrimSpace(req.RcloneConfigPath); path != "" {
		args = append(args, "--config", path)
	}

	args = append(args, req.ExtraArgs...)

	if req.Resync {
		args = append(args, "--resync")
	}
	return args
}

// CommandLine returns the full command a request runs, including the
// nice/ionice wrapper when it applies.
func (s *Impl) CommandLine(req models.BisyncRequest) []string {
	args := s.bisyncArgs(req)

	if req.UseNiceIonice && s.available("nice") && s.available("ionice") {
		return append([]string{"nice", "-n", "19", "ionice", "-c", "3", s.binary}, args...)
	}
	return append([]string{s.binary}, args...)
}

func (s *Impl) available(name string) bool {
	_, err := s.executor.LookPath(name)
	return err == nil
}

// Bisync runs one rclone bisync invocation. A failed sync is reported through
// the result's ExitCode; an error means rclone could not be started.
func (s *Impl) Bisync(ctx context.Context, req models.BisyncRequest) (*models.BisyncResult, error) {
	cmdline := s.CommandLine(req)

	s.logger.Info().
		Str("local", req.Local).
		Str("remote", req.Remote).
		Bool("resync", req.Resync).
		Msg("starting rclone bisync")
	s.logger.Debug().Strs("command", cmdline).Msg("rclone command line")

	start := time.Now()
	out, err := s.executor.ExecuteWithEnv(ctx, req.Env, cmdline[0], cmdline[1:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute rclone bisync (%s <-> %s): %w", req.Local, req.Remote, err)
	}

	result := &models.BisyncResult{
		ExitCode: out.ExitCode,
		Stdout:   string(out.Stdout),
		Stderr:   string(out.Stderr),
		Duration: time.Since(start),
	}

	s.logger.Info().
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("rclone bisync finished")

	return result, nil
}

// Version returns the installed rclone version.
func (s *Impl) Version(ctx context.Context) (*version.Version, error) {
	output, err := s.executor.Execute(ctx, s.binary, "version")
	if err != nil {
		return nil, fmt.Errorf("failed to run %s version: %w, output: %s", s.binary, err, string(output))
	}
	return ParseVersion(string(output))
}

// ParseVersion extracts the version from `rclone version` output, whose
// first line reads "rclone v1.66.0".
func ParseVersion(output string) (*version.Version, error) {
	first, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	fields := strings.Fields(first)
	if len(fields) < 2 || fields[0] != "rclone" {
		return nil, fmt.Errorf("unexpected rclone version output: %q", first)
	}

	v, err := version.NewVersion(strings.TrimPrefix(fields[1], "v"))
	if err != nil {
		return nil, fmt.Errorf("parsing rclone version %q: %w", fields[1], err)
	}
	return v, nil
}

// SupportsBisync reports whether v is at least MinBisyncVersion.
func SupportsBisync(v *version.Version) bool {
	return !v.LessThan(version.Must(version.NewVersion(MinBisyncVersion)))
}
