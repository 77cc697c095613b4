package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fgeck/rclone-sync-helper/internal/models"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// ErrJobNotFound is returned when a job has no config file.
var ErrJobNotFound = errors.New("job not found")

const jobFileExt = ".toml"

// Store manages the job config files in a jobs directory.
type Store struct {
	fs     afero.Fs
	dir    string
	parser *Parser
}

// NewStore creates a store over dir on the OS filesystem.
func NewStore(dir string) *Store {
	return NewStoreWithFs(afero.NewOsFs(), dir)
}

// NewStoreWithFs creates a store over dir on fs (useful for testing).
func NewStoreWithFs(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir, parser: NewParserWithFs(fs)}
}

// Dir returns the jobs directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the config file path of a job.
func (s *Store) Path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+jobFileExt), nil
}

// List returns the names of all configured jobs, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading jobs directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != jobFileExt {
			continue
		}
		name := strings.TrimSuffix(e.Name(), jobFileExt)
		if ValidateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether a job has a config file.
func (s *Store) Exists(name string) bool {
	path, err := s.Path(name)
	if err != nil {
		return false
	}
	ok, _ := afero.Exists(s.fs, path)
	return ok
}

// Load reads a job config.
func (s *Store) Load(name string) (*models.JobConfig, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	if !s.Exists(name) {
		return nil, fmt.Errorf("%w: %s (expected %s)", ErrJobNotFound, name, path)
	}

	cfg, err := s.parser.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrCreate reads a job config, writing an empty one first if the job
// does not exist yet. created reports whether a new file was written.
func (s *Store) LoadOrCreate(name string) (cfg *models.JobConfig, created bool, err error) {
	cfg, err = s.Load(name)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, false, err
	}

	empty := models.NewJobConfig(name)
	if err := s.Save(&empty); err != nil {
		return nil, false, err
	}
	return &empty, true, nil
}

// Save writes a job config, replacing any existing file.
func (s *Store) Save(cfg *models.JobConfig) error {
	path, err := s.Path(cfg.Name)
	if err != nil {
		return err
	}

	content, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating jobs directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, content, 0o644); err != nil {
		return fmt.Errorf("writing job config %s: %w", path, err)
	}
	return nil
}

// Delete removes a job config file.
func (s *Store) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, name)
		}
		return fmt.Errorf("removing job config %s: %w", path, err)
	}
	return nil
}

// jobFile is the on-disk layout. Defaults are omitted so files stay short.
type jobFile struct {
	Name             string            `toml:"name"`
	LocalPath        string            `toml:"local_path"`
	Remote           string            `toml:"remote"`
	ExtraArgs        []string          `toml:"extra_args,omitempty"`
	RcloneConfigPath string            `toml:"rclone_config_path,omitempty"`
	LockFile         string            `toml:"lock_file,omitempty"`
	LogDir           string            `toml:"log_dir,omitempty"`
	Schedule         string            `toml:"schedule,omitempty"`
	KeepLogs         int               `toml:"keep_logs,omitempty"`
	KeyringService   string            `toml:"keyring_service,omitempty"`
	AutoResync       *bool             `toml:"auto_resync,omitempty"`
	CleanBisyncLocks *bool             `toml:"clean_bisync_locks,omitempty"`
	UseNiceIonice    *bool             `toml:"use_nice_ionice,omitempty"`
	Pairs            []models.SyncPair `toml:"pairs,omitempty"`
	Notify           *notifyFile       `toml:"notify,omitempty"`
}

type notifyFile struct {
	Desktop        *bool  `toml:"desktop,omitempty"`
	TelegramChatID string `toml:"telegram_chat_id,omitempty"`
}

// Marshal renders a job config as TOML. Migrated legacy directories are
// written back as pairs.
func Marshal(cfg *models.JobConfig) ([]byte, error) {
	f := jobFile{
		Name:             cfg.Name,
		LocalPath:        cfg.LocalPath,
		Remote:           cfg.Remote,
		ExtraArgs:        cfg.ExtraArgs,
		RcloneConfigPath: cfg.RcloneConfigPath,
		LockFile:         cfg.LockFile,
		LogDir:           cfg.LogDir,
		Schedule:         cfg.Schedule,
		KeepLogs:         cfg.KeepLogs,
		KeyringService:   cfg.KeyringService,
		AutoResync:       falseOnly(cfg.AutoResync),
		CleanBisyncLocks: falseOnly(cfg.CleanBisyncLocks),
		UseNiceIonice:    falseOnly(cfg.UseNiceIonice),
		Pairs:            cfg.Pairs,
	}

	if !cfg.Notify.Desktop || cfg.Notify.TelegramChatID != "" {
		f.Notify = &notifyFile{
			Desktop:        falseOnly(cfg.Notify.Desktop),
			TelegramChatID: cfg.Notify.TelegramChatID,
		}
	}

	content, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding job config: %w", err)
	}
	return content, nil
}

func falseOnly(v bool) *bool {
	if v {
		return nil
	}
	return &v
}
