package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"session-backup/src/layout"
)

// DefaultMaxBackups is the number of snapshots kept when no setting is given.
const DefaultMaxBackups = 5

// DefaultDebounce is how long the watcher waits for the session store to go
// quiet before taking a backup.
const DefaultDebounce = 2 * time.Second

// Settings mirrors the optional session-backup.yaml file.
type Settings struct {
	SessionsDir   string        `yaml:"sessions_dir"`
	BackupDir     string        `yaml:"backup_dir"`
	SessionConfig string        `yaml:"session_config"`
	MaxBackups    *int          `yaml:"max_backups" validate:"omitempty,gte=0"`
	LogLevel      string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Watch         WatchSettings `yaml:"watch"`
}

// WatchSettings configures the watch command.
type WatchSettings struct {
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
}

// Resolved is the effective configuration after defaults and home expansion.
type Resolved struct {
	Layout     layout.Layout
	MaxBackups int
	LogLevel   slog.Level
	Debounce   time.Duration
}

var validate = validator.New()

// Load reads the settings file at path. A missing file yields zero Settings.
func Load(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := validate.Struct(s); err != nil {
		return s, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

// Resolve applies s on top of the default layout for home.
func (s Settings) Resolve(home string) Resolved {
	l := layout.FromHome(home)
	if s.SessionsDir != "" {
		l.SessionsDir = layout.ExpandHome(s.SessionsDir, home)
		l.CurrentSessionsFile = filepath.Join(l.SessionsDir, layout.CurrentSessionsFileName)
	}
	if s.BackupDir != "" {
		l.BackupRoot = layout.ExpandHome(s.BackupDir, home)
	}
	if s.SessionConfig != "" {
		l.SessionConfigFile = layout.ExpandHome(s.SessionConfig, home)
	}

	r := Resolved{Layout: l, MaxBackups: DefaultMaxBackups, LogLevel: slog.LevelInfo, Debounce: DefaultDebounce}
	if s.MaxBackups != nil {
		r.MaxBackups = *s.MaxBackups
	}
	if s.LogLevel != "" {
		r.LogLevel = ParseLevel(s.LogLevel)
	}
	if s.Watch.Debounce > 0 {
		r.Debounce = s.Watch.Debounce
	}
	return r
}

// ValidateLevel reports whether s is one of debug|info|warn|error, using the
// same rule as the log_level setting.
func ValidateLevel(s string) error {
	if err := validate.Var(s, "required,oneof=debug info warn error"); err != nil {
		return fmt.Errorf("invalid log level %q: want debug|info|warn|error", s)
	}
	return nil
}

// ParseLevel maps debug|info|warn|error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
