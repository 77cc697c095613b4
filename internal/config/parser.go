// Package config provides job configuration parsing, validation and storage.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Parser handles job file parsing.
type Parser struct {
	fs afero.Fs
}

// NewParser creates a new job file parser reading from the OS filesystem.
func NewParser() *Parser {
	return &Parser{fs: afero.NewOsFs()}
}

// NewParserWithFs creates a parser reading from fs (useful for testing).
func NewParserWithFs(fs afero.Fs) *Parser {
	return &Parser{fs: fs}
}

func (p *Parser) newViper() *viper.Viper {
	v := viper.New()
	v.SetFs(p.fs)
	v.SetConfigType("toml")
	return v
}

// LoadFile loads a job from path. The job name defaults to the file stem.
func (p *Parser) LoadFile(path string) (*models.JobConfig, error) {
	v := p.newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading job config %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cfg, err := p.parse(v, name)
	if err != nil {
		return nil, fmt.Errorf("parsing job config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadReader loads a job from TOML content (useful for testing).
func (p *Parser) LoadReader(name, content string) (*models.JobConfig, error) {
	v := p.newViper()
	if err := v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading job config: %w", err)
	}

	return p.parse(v, name)
}

func (p *Parser) parse(v *viper.Viper, name string) (*models.JobConfig, error) {
	cfg := models.NewJobConfig(name)

	if n := strings.TrimSpace(v.GetString("name")); n != "" {
		cfg.Name = n
	}

	cfg.LocalPath = v.GetString("local_path")
	cfg.Remote = v.GetString("remote")
	cfg.ExtraArgs = v.GetStringSlice("extra_args")
	cfg.RcloneConfigPath = strings.TrimSpace(v.GetString("rclone_config_path"))
	cfg.Directories = v.GetStringSlice("directories")
	cfg.LockFile = strings.TrimSpace(v.GetString("lock_file"))
	cfg.LogDir = strings.TrimSpace(v.GetString("log_dir"))
	cfg.Schedule = strings.TrimSpace(v.GetString("schedule"))
	cfg.KeepLogs = v.GetInt("keep_logs")
	cfg.KeyringService = strings.TrimSpace(v.GetString("keyring_service"))

	if v.IsSet("pairs") {
		if err := v.UnmarshalKey("pairs", &cfg.Pairs); err != nil {
			return nil, fmt.Errorf("pairs must be a list of {local, remote} tables: %w", err)
		}
	}

	// Booleans default to true; only an explicit false turns them off.
	if v.IsSet("auto_resync") {
		cfg.AutoResync = v.GetBool("auto_resync")
	}
	if v.IsSet("clean_bisync_locks") {
		cfg.CleanBisyncLocks = v.GetBool("clean_bisync_locks")
	}
	if v.IsSet("use_nice_ionice") {
		cfg.UseNiceIonice = v.GetBool("use_nice_ionice")
	}
	if v.IsSet("notify.desktop") {
		cfg.Notify.Desktop = v.GetBool("notify.desktop")
	}
	cfg.Notify.TelegramChatID = strings.TrimSpace(v.GetString("notify.telegram_chat_id"))

	if cfg.KeepLogs < 0 {
		return nil, fmt.Errorf("keep_logs must not be negative")
	}

	migrateDirectories(&cfg)

	return &cfg, nil
}

// migrateDirectories turns the legacy directories list into pairs whose
// local and remote sides are the same suffix.
func migrateDirectories(cfg *models.JobConfig) {
	if len(cfg.Pairs) > 0 {
		return
	}
	for _, d := range cfg.Directories {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		cfg.Pairs = append(cfg.Pairs, models.SyncPair{Local: d, Remote: d})
	}
}
