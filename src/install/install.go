// Package install places hook scripts, slash commands and the session config
// template under the assistant's config directory. Runs are idempotent and
// never modify session data.
package install

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"session-backup/src/audit"
	"session-backup/src/layout"
)

// ErrProtectedPath is returned when an install step would overwrite user data.
var ErrProtectedPath = errors.New("refusing to modify protected path")

// RetiredCommands are slash commands shipped by older releases that are
// removed on upgrade.
var RetiredCommands = []string{"list", "start", "new", "switch", "update", "status", "cleanup", "test", "worktree"}

// Asset directories inside the assets filesystem.
const (
	hooksAssetDir    = "hooks"
	commandsAssetDir = "commands"
	configTemplate   = "config/session-config.template"
)

// Classifier decides whether a path holds user data.
type Classifier interface {
	Classify(path string) audit.Class
}

// Options configures an Installer.
type Options struct {
	Assets fs.FS
	Guard  Classifier
	Out    io.Writer
	Logger *slog.Logger
	DryRun bool
}

// Report lists what a run did, or would do in dry-run mode.
type Report struct {
	ExistingSessions int
	CreatedDirs      []string
	Hooks            []string
	Commands         []string
	Unchanged        []string
	RemovedCommands  []string
	ConfigSeeded     bool
}

// Installer installs tool files for one layout.
type Installer struct {
	layout layout.Layout
	opts   Options
	out    io.Writer
	logger *slog.Logger
}

// New returns an installer for l.
func New(l layout.Layout, opts Options) *Installer {
	in := &Installer{layout: l, opts: opts, out: opts.Out, logger: opts.Logger}
	if in.out == nil {
		in.out = io.Discard
	}
	if in.logger == nil {
		in.logger = slog.New(slog.DiscardHandler)
	}
	return in
}

// Run performs the installation.
func (in *Installer) Run() (*Report, error) {
	if in.opts.Assets == nil {
		return nil, errors.New("install: no assets")
	}
	rep := &Report{}

	n, err := countSessions(in.layout.SessionsDir)
	if err != nil {
		return nil, err
	}
	rep.ExistingSessions = n
	if n > 0 {
		fmt.Fprintf(in.out, "Found %d existing sessions - these will NOT be touched\n", n)
	}

	for _, d := range []string{in.layout.SessionsDir, in.layout.CommandsDir, in.layout.HooksDir} {
		created, err := in.ensureDir(d)
		if err != nil {
			return nil, err
		}
		if created {
			rep.CreatedDirs = append(rep.CreatedDirs, d)
		}
	}

	fmt.Fprintln(in.out, "Installing hooks...")
	if err := in.installDir(hooksAssetDir, in.layout.HooksDir, 0o755, func(name string, changed bool) {
		in.record(rep, &rep.Hooks, name, changed)
	}); err != nil {
		return nil, err
	}

	fmt.Fprintln(in.out, "Setting up slash commands...")
	for _, c := range RetiredCommands {
		removed, err := in.removeRetired(filepath.Join(in.layout.CommandsDir, c+".md"))
		if err != nil {
			return nil, err
		}
		if removed {
			rep.RemovedCommands = append(rep.RemovedCommands, c)
			fmt.Fprintf(in.out, "  Removed old: /%s\n", c)
		}
	}
	if err := in.installDir(commandsAssetDir, in.layout.CommandsDir, 0o644, func(name string, changed bool) {
		in.record(rep, &rep.Commands, "/"+strings.TrimSuffix(name, ".md"), changed)
	}); err != nil {
		return nil, err
	}

	seeded, err := in.seedConfig()
	if err != nil {
		return nil, err
	}
	rep.ConfigSeeded = seeded
	if seeded {
		fmt.Fprintln(in.out, "Configuration created")
	} else {
		fmt.Fprintln(in.out, "Session config already exists")
	}
	return rep, nil
}

func (in *Installer) record(rep *Report, list *[]string, name string, changed bool) {
	if !changed {
		rep.Unchanged = append(rep.Unchanged, name)
		fmt.Fprintf(in.out, "  %s (unchanged)\n", name)
		return
	}
	*list = append(*list, name)
	fmt.Fprintf(in.out, "  %s\n", name)
}

func (in *Installer) ensureDir(dir string) (bool, error) {
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if in.opts.DryRun {
		return true, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", dir, err)
	}
	return true, nil
}

// installDir copies every file of assetDir into destDir with mode.
func (in *Installer) installDir(assetDir, destDir string, mode fs.FileMode, done func(name string, changed bool)) error {
	entries, err := fs.ReadDir(in.opts.Assets, assetDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := fs.ReadFile(in.opts.Assets, path.Join(assetDir, e.Name()))
		if err != nil {
			return err
		}
		changed, err := in.writeFile(filepath.Join(destDir, e.Name()), data, mode)
		if err != nil {
			return err
		}
		done(e.Name(), changed)
	}
	return nil
}

// writeFile replaces dst with data unless it already holds exactly that
// content and mode. Symlinks left by older installs are replaced, not followed.
func (in *Installer) writeFile(dst string, data []byte, mode fs.FileMode) (bool, error) {
	if err := in.guard(dst); err != nil {
		return false, err
	}
	if info, err := os.Lstat(dst); err == nil && info.Mode().IsRegular() && info.Mode().Perm() == mode {
		if cur, err := os.ReadFile(dst); err == nil && bytes.Equal(cur, data) {
			return false, nil
		}
	}
	if in.opts.DryRun {
		return true, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return false, fmt.Errorf("install %s: %w", dst, err)
	}
	in.logger.Debug("installed file", "path", dst)
	return true, nil
}

func (in *Installer) removeRetired(p string) (bool, error) {
	if _, err := os.Lstat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := in.guard(p); err != nil {
		return false, err
	}
	if in.opts.DryRun {
		return true, nil
	}
	if err := os.Remove(p); err != nil {
		return false, fmt.Errorf("remove %s: %w", p, err)
	}
	return true, nil
}

// seedConfig creates the session config from the template only when absent.
// An existing config is user data and is never rewritten.
func (in *Installer) seedConfig() (bool, error) {
	dst := in.layout.SessionConfigFile
	if _, err := os.Lstat(dst); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	data, err := fs.ReadFile(in.opts.Assets, configTemplate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if in.opts.DryRun {
		return true, nil
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, err
	}
	return true, f.Close()
}

func (in *Installer) guard(p string) error {
	if in.opts.Guard == nil {
		return nil
	}
	if in.opts.Guard.Classify(p) == audit.Protected {
		return fmt.Errorf("%s: %w", p, ErrProtectedPath)
	}
	return nil
}

func countSessions(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			n++
		}
	}
	return n, nil
}
