package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"session-backup/src/config"
	"session-backup/src/layout"
	"session-backup/src/safety"
)

// addGlobalFlags adds persistent path and safety flags to the root command.
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("home", "", "Home directory containing .claude (default: current user's home)")
	cmd.PersistentFlags().String("settings", "", "Settings file (default: <home>/.claude/session-backup.yaml)")
	cmd.PersistentFlags().String("backup-root", "", "Override the backup root (e.g., dir:/mnt/nas/claude-backups)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().Bool("dry-run", false, "Show planned actions without making changes")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")
}

// getSafetyOptions reads global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	return safety.Options{DryRun: dry, Yes: yes}
}

// env is the resolved configuration shared by all subcommands.
type env struct {
	config.Resolved
	Logger *slog.Logger
}

// loadEnv resolves home, settings and flag overrides for cmd.
func loadEnv(cmd *cobra.Command, stderr io.Writer) (*env, error) {
	flags := cmd.Root().PersistentFlags()
	home, _ := flags.GetString("home")
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		home = h
	}
	home, err := filepath.Abs(home)
	if err != nil {
		return nil, err
	}

	settingsPath, _ := flags.GetString("settings")
	if settingsPath == "" {
		settingsPath = layout.FromHome(home).SettingsFile
	}
	s, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}
	r := s.Resolve(home)

	if raw, _ := flags.GetString("backup-root"); raw != "" {
		root, err := layout.ParseRoot(raw)
		if err != nil {
			return nil, err
		}
		r.Layout.BackupRoot = root
	}
	if lvl, _ := flags.GetString("log-level"); lvl != "" {
		if err := config.ValidateLevel(lvl); err != nil {
			return nil, err
		}
		r.LogLevel = config.ParseLevel(lvl)
	}

	if stderr == nil {
		stderr = io.Discard
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: r.LogLevel}))
	return &env{Resolved: r, Logger: logger}, nil
}
