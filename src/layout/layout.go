package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// File and directory names under the .claude directory.
const (
	ClaudeDirName           = ".claude"
	SessionsDirName         = "sessions"
	CurrentSessionsFileName = ".current-sessions"
	SessionConfigFileName   = "session-config"
	BackupRootDirName       = "session-backups"
	HooksDirName            = "hooks"
	CommandsDirName         = "commands"
	BinDirName              = "bin"
	SettingsFileName        = "session-backup.yaml"
)

// Layout is the set of paths shared by the backup manager, the installer and
// the safety auditor. All fields are absolute.
type Layout struct {
	Home                string
	ClaudeDir           string
	SessionsDir         string
	CurrentSessionsFile string
	SessionConfigFile   string
	BackupRoot          string
	HooksDir            string
	CommandsDir         string
	BinDir              string
	SettingsFile        string
}

// FromHome builds the layout rooted at the given home directory.
func FromHome(home string) Layout {
	home = filepath.Clean(home)
	claude := filepath.Join(home, ClaudeDirName)
	sessions := filepath.Join(claude, SessionsDirName)
	return Layout{
		Home:                home,
		ClaudeDir:           claude,
		SessionsDir:         sessions,
		CurrentSessionsFile: filepath.Join(sessions, CurrentSessionsFileName),
		SessionConfigFile:   filepath.Join(claude, SessionConfigFileName),
		BackupRoot:          filepath.Join(claude, BackupRootDirName),
		HooksDir:            filepath.Join(claude, HooksDirName),
		CommandsDir:         filepath.Join(claude, CommandsDirName),
		BinDir:              filepath.Join(claude, BinDirName),
		SettingsFile:        filepath.Join(claude, SettingsFileName),
	}
}

// Default resolves the layout for the current user's home directory.
func Default() (Layout, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Layout{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return FromHome(home), nil
}

// Rel returns path relative to the home directory for display. Paths outside
// home are returned unchanged.
func (l Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.Home, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// ExpandHome replaces a leading "~" with home.
func ExpandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(home, path[2:])
	}
	return path
}

// ParseRoot parses a backup root override like "dir:/mnt/nas/claude-backups"
// and returns the cleaned absolute directory.
func ParseRoot(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("backup root must not be empty; expected format 'dir:/path'")
	}
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", fmt.Errorf("invalid backup root %q; expected format 'dir:/path'", raw)
	}
	scheme := strings.ToLower(strings.TrimSpace(s[:i]))
	if scheme != "dir" {
		return "", fmt.Errorf("unsupported backup root scheme %q", scheme)
	}
	val := strings.TrimSpace(s[i+1:])
	if val == "" {
		return "", fmt.Errorf("backup root path must not be empty")
	}
	clean := filepath.Clean(val)
	if !(filepath.IsAbs(clean) || (runtime.GOOS == "windows" && strings.HasPrefix(clean, `\\?\`))) {
		return "", fmt.Errorf("backup root must be an absolute path: %q", val)
	}
	return clean, nil
}
