// Package secrets reads job credentials from the OS keyring so they never
// have to live in a job file.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

// Keyring users under a job's keyring service.
const (
	UserRcloneConfig  = "rclone-config"
	UserTelegramToken = "telegram-bot-token"
)

// TelegramTokenEnv overrides the keyring for the Telegram bot token.
const TelegramTokenEnv = "RCLONE_SYNC_HELPER_TELEGRAM_TOKEN"

// RcloneConfigPassEnv is read by rclone to decrypt its config.
const RcloneConfigPassEnv = "RCLONE_CONFIG_PASS"

const probeService = "io.rclone.sync-helper"

// Keyring allows mocking the OS keyring in tests.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

// SystemKeyring is the OS keyring (Secret Service on Linux).
type SystemKeyring struct{}

// Get implements Keyring.
func (SystemKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Set implements Keyring.
func (SystemKeyring) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

// Delete implements Keyring.
func (SystemKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// Service defines the interface for secret lookups.
type Service interface {
	RcloneEnv(service string) ([]string, error)
	TelegramToken(service string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
	Available() bool
}

// Impl implements the Service interface.
type Impl struct {
	keyring Keyring
	getenv  func(string) string
	logger  zerolog.Logger
}

// New creates a secrets service backed by the OS keyring.
func New(logger zerolog.Logger) *Impl {
	return NewWithKeyring(logger, SystemKeyring{}, os.Getenv)
}

// NewWithKeyring creates a secrets service with a custom keyring and
// environment (for testing).
func NewWithKeyring(logger zerolog.Logger, kr Keyring, getenv func(string) string) *Impl {
	return &Impl{keyring: kr, getenv: getenv, logger: logger}
}

// RcloneEnv returns the extra environment for rclone. With a keyring service
// configured and a stored password, RCLONE_CONFIG_PASS is set.
func (s *Impl) RcloneEnv(service string) ([]string, error) {
	if strings.TrimSpace(service) == "" {
		return nil, nil
	}

	pass, err := s.keyring.Get(service, UserRcloneConfig)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			s.logger.Debug().Str("service", service).Msg("no rclone config password in keyring")
			return nil, nil
		}
		return nil, fmt.Errorf("reading rclone config password from keyring: %w", err)
	}

	return []string{RcloneConfigPassEnv + "=" + pass}, nil
}

// TelegramToken returns the bot token from the environment or the keyring.
// An empty token with a nil error means none is configured.
func (s *Impl) TelegramToken(service string) (string, error) {
	if token := strings.TrimSpace(s.getenv(TelegramTokenEnv)); token != "" {
		return token, nil
	}
	if strings.TrimSpace(service) == "" {
		return "", nil
	}

	token, err := s.keyring.Get(service, UserTelegramToken)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading telegram token from keyring: %w", err)
	}
	return token, nil
}

// Set stores a secret.
func (s *Impl) Set(service, user, secret string) error {
	if err := s.keyring.Set(service, user, secret); err != nil {
		return fmt.Errorf("storing %s in keyring: %w", user, err)
	}
	return nil
}

// Delete removes a secret; a missing one is not an error.
func (s *Impl) Delete(service, user string) error {
	if err := s.keyring.Delete(service, user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting %s from keyring: %w", user, err)
	}
	return nil
}

// Available reports whether the keyring accepts writes.
func (s *Impl) Available() bool {
	const probeUser = "probe"
	if err := s.keyring.Set(probeService, probeUser, "probe"); err != nil {
		return false
	}
	_ = s.keyring.Delete(probeService, probeUser)
	return true
}

// ValidUser reports whether user is one of the keyring users a job reads.
func ValidUser(user string) bool {
	return user == UserRcloneConfig || user == UserTelegramToken
}
