package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/fgeck/rclone-sync-helper/internal/schedule"
)

// ErrInvalidJobName is returned for names that cannot be used as a file stem
// and systemd template instance.
var ErrInvalidJobName = errors.New("invalid job name")

var jobNamePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// secretFlagPattern matches rclone flags that carry credentials inline.
var secretFlagPattern = regexp.MustCompile(`(?i)^--[a-z0-9-]*(pass|token|secret)[a-z0-9-]*=.+|^--[a-z0-9-]*-key=.+`)

// commandFlagSuffix marks flags whose value is a command producing the
// secret, e.g. --password-command.
const commandFlagSuffix = "-command"

func isSecretFlag(arg string) bool {
	name, _, _ := strings.Cut(arg, "=")
	if strings.HasSuffix(strings.ToLower(name), commandFlagSuffix) {
		return false
	}
	return secretFlagPattern.MatchString(arg)
}

// ValidateName checks that name is usable as a job name.
func ValidateName(name string) error {
	if !jobNamePattern.MatchString(name) {
		return fmt.Errorf("%w %q: use letters, digits, '_', '.' and '-' only", ErrInvalidJobName, name)
	}
	return nil
}

// Validate checks that a job can be run. path is the job's config file and
// is only used to point the user at the file to edit.
func Validate(cfg *models.JobConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}
	if path == "" {
		path = "<config file>"
	}

	if err := ValidateName(cfg.Name); err != nil {
		return err
	}

	localOK := strings.TrimSpace(cfg.LocalPath) != ""
	remoteOK := strings.TrimSpace(cfg.Remote) != ""

	if len(cfg.Pairs) == 0 {
		if !localOK || !remoteOK {
			return fmt.Errorf("job '%s' is not configured. Please set local_path and remote in %s", cfg.Name, path)
		}
	}

	if !localOK {
		for _, p := range cfg.Pairs {
			local := strings.TrimSpace(p.Local)
			if local == "" || !strings.HasPrefix(local, "/") {
				return fmt.Errorf("job '%s' is missing local_path and has a relative/empty pair.local. Update %s", cfg.Name, path)
			}
		}
	}

	if !remoteOK {
		for _, p := range cfg.Pairs {
			remote := strings.TrimSpace(p.Remote)
			if remote == "" || !strings.Contains(remote, ":") {
				return fmt.Errorf("job '%s' is missing remote and has a non-absolute/empty pair.remote. Update %s", cfg.Name, path)
			}
		}
	}

	for _, arg := range cfg.ExtraArgs {
		if isSecretFlag(arg) {
			name, _, _ := strings.Cut(arg, "=")
			return fmt.Errorf("job '%s' passes a credential inline (%s); keep secrets in rclone's own config", cfg.Name, name)
		}
	}

	if _, err := schedule.Parse(cfg.EffectiveSchedule()); err != nil {
		return fmt.Errorf("job '%s': %w", cfg.Name, err)
	}

	return nil
}

// ResolvePairs returns the absolute local/remote roots the job syncs.
// A job without pairs syncs local_path <-> remote.
func ResolvePairs(cfg *models.JobConfig) []models.SyncPair {
	if len(cfg.Pairs) == 0 {
		return []models.SyncPair{{Local: cfg.LocalPath, Remote: cfg.Remote}}
	}

	out := make([]models.SyncPair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		out = append(out, models.SyncPair{
			Local:  resolveLocal(cfg.LocalPath, strings.TrimSpace(p.Local)),
			Remote: resolveRemote(cfg.Remote, strings.TrimSpace(p.Remote)),
		})
	}
	return out
}

func resolveLocal(base, local string) string {
	switch {
	case strings.HasPrefix(local, "/"):
		return local
	case local == "":
		return base
	default:
		return strings.TrimRight(base, "/") + "/" + local
	}
}

func resolveRemote(base, remote string) string {
	switch {
	case strings.Contains(remote, ":"):
		return remote
	case remote == "":
		return base
	}

	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, ":") {
		return base + remote
	}
	return base + "/" + remote
}
