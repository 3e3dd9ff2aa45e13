// Package backup takes point-in-time copies of the session store and keeps
// the number of snapshots in the backup root bounded.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"session-backup/src/backend"
	dir "session-backup/src/backend/directory"
	"session-backup/src/layout"
	"session-backup/src/lock"
	"session-backup/src/retention"
	"session-backup/src/util/checksum"
)

const (
	// TimestampLayout formats the snapshot time. It has no colons and sorts
	// lexically in time order.
	TimestampLayout = "2006-01-02T15-04-05"

	// SessionSuffix identifies session files in the store.
	SessionSuffix = ".md"

	ChecksumsName = checksum.FileName
	ManifestName  = dir.ManifestName
	LockFileName  = ".lock"

	stagingPrefix = ".staging-"
	maxCollisions = 99
)

// Swapped in tests to inject copy and deletion failures.
var (
	copyFn    = copyFile
	removeAll = os.RemoveAll
)

// Options configures a Manager. Paths must be absolute.
type Options struct {
	SessionsDir         string
	CurrentSessionsFile string
	SessionConfigFile   string
	BackupRoot          string
	MaxBackups          int

	// Out receives human-readable status lines. Nil discards them.
	Out io.Writer
	// Progress, when set, receives per-file copy progress.
	Progress io.Writer
	Logger   *slog.Logger
	// Now overrides the clock.
	Now func() time.Time
}

// OptionsFromLayout fills the path fields of Options from l.
func OptionsFromLayout(l layout.Layout, maxBackups int) Options {
	return Options{
		SessionsDir:         l.SessionsDir,
		CurrentSessionsFile: l.CurrentSessionsFile,
		SessionConfigFile:   l.SessionConfigFile,
		BackupRoot:          l.BackupRoot,
		MaxBackups:          maxBackups,
	}
}

// Manager creates snapshots of a session store.
type Manager struct {
	opts   Options
	out    io.Writer
	logger *slog.Logger
	now    func() time.Time
}

// NewManager returns a Manager for opts.
func NewManager(opts Options) *Manager {
	m := &Manager{opts: opts, out: opts.Out, logger: opts.Logger, now: opts.Now}
	if m.out == nil {
		m.out = io.Discard
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Create copies every session file plus the sidecar files into a new
// snapshot, then prunes snapshots beyond the configured maximum.
//
// A nil Result with a nil error means there was nothing to back up. Any
// failure before the snapshot is committed aborts the run without pruning.
// Prune failures are reported in the Result and never fail the run.
func (m *Manager) Create() (*Result, error) {
	files, err := m.scan()
	if err != nil {
		return nil, err
	}
	if files == nil {
		return nil, nil
	}

	root := m.opts.BackupRoot
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &IOError{Op: "create backup root", Path: root, Err: err}
	}
	lk, err := lock.Acquire(filepath.Join(root, LockFileName))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			m.logger.Warn("failed to release backup lock", "error", err)
		}
	}()
	m.sweepStaging()

	fmt.Fprintf(m.out, "Creating backup of %d sessions...\n", len(files))
	res, err := m.snapshot(files)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(m.out, "Backup created: %s\n", res.Path)
	fmt.Fprintf(m.out, "   %d sessions backed up\n", res.Sessions)
	m.logger.Info("backup created", "snapshot", res.Name, "sessions", res.Sessions, "sidecars", len(res.Sidecars))

	m.prune(res)
	return res, nil
}

// scan lists the session files in the store. It returns nil when the store
// is missing or holds no session files.
func (m *Manager) scan() ([]string, error) {
	src := m.opts.SessionsDir
	entries, err := os.ReadDir(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(m.out, "No sessions directory found; nothing to back up.")
			m.logger.Debug("session store missing", "path", src)
			return nil, nil
		}
		return nil, &IOError{Op: "read sessions", Path: src, Err: err}
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, SessionSuffix) {
			continue
		}
		info, err := os.Stat(filepath.Join(src, name))
		if errors.Is(err, fs.ErrNotExist) {
			// removed since the listing, or a dangling symlink
			continue
		}
		if err != nil {
			return nil, &IOError{Op: "stat", Path: filepath.Join(src, name), Err: err}
		}
		if !info.Mode().IsRegular() {
			m.logger.Debug("skipping non-regular session entry", "name", name)
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		fmt.Fprintln(m.out, "No sessions to back up.")
		return nil, nil
	}
	sort.Strings(files)
	return files, nil
}

// snapshot populates a staging directory and renames it into place.
func (m *Manager) snapshot(files []string) (*Result, error) {
	root := m.opts.BackupRoot
	now := m.now().UTC()

	staging := filepath.Join(root, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return nil, &IOError{Op: "create snapshot", Path: staging, Err: err}
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := os.RemoveAll(staging); err != nil {
			m.logger.Warn("failed to remove staging directory", "path", staging, "error", err)
		}
	}()

	for _, name := range files {
		src := filepath.Join(m.opts.SessionsDir, name)
		if err := copyFn(src, filepath.Join(staging, name), m.opts.Progress); err != nil {
			return nil, &IOError{Op: "copy", Path: src, Err: err}
		}
	}

	var sidecars []string
	for _, src := range []string{m.opts.CurrentSessionsFile, m.opts.SessionConfigFile} {
		ok, err := m.copySidecar(src, staging)
		if err != nil {
			return nil, err
		}
		if ok {
			sidecars = append(sidecars, filepath.Base(src))
		}
	}

	mf := Manifest{
		Type:         "sessions",
		CreatedAt:    now,
		Source:       m.opts.SessionsDir,
		SessionCount: len(files),
		Files:        files,
		Sidecars:     sidecars,
	}
	if err := writeJSON(filepath.Join(staging, ManifestName), mf); err != nil {
		return nil, &IOError{Op: "write manifest", Path: staging, Err: err}
	}
	sums := append(append(append([]string(nil), files...), sidecars...), ManifestName)
	if err := checksum.Write(staging, sums); err != nil {
		return nil, &IOError{Op: "write checksums", Path: staging, Err: err}
	}

	name, err := m.freeName(now)
	if err != nil {
		return nil, err
	}
	final := filepath.Join(root, name)
	if err := os.Rename(staging, final); err != nil {
		return nil, &IOError{Op: "commit snapshot", Path: final, Err: err}
	}
	committed = true

	return &Result{Name: name, Path: final, Sessions: len(files), Sidecars: sidecars}, nil
}

// copySidecar copies src into dst when it exists. Absence is not an error.
func (m *Manager) copySidecar(src, dst string) (bool, error) {
	if src == "" {
		return false, nil
	}
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &IOError{Op: "stat", Path: src, Err: err}
	}
	if !info.Mode().IsRegular() {
		m.logger.Warn("skipping sidecar that is not a regular file", "path", src)
		return false, nil
	}
	if err := copyFn(src, filepath.Join(dst, filepath.Base(src)), m.opts.Progress); err != nil {
		return false, &IOError{Op: "copy", Path: src, Err: err}
	}
	return true, nil
}

// freeName picks backup-<ts>, or backup-<ts>-NN when a snapshot for the same
// second already exists. Both forms sort before the next second.
func (m *Manager) freeName(now time.Time) (string, error) {
	base := backend.SnapshotPrefix + now.Format(TimestampLayout)
	name := base
	for i := 1; ; i++ {
		_, err := os.Lstat(filepath.Join(m.opts.BackupRoot, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", &IOError{Op: "stat", Path: filepath.Join(m.opts.BackupRoot, name), Err: err}
		}
		if i > maxCollisions {
			return "", fmt.Errorf("%s: %w", base, ErrSnapshotExists)
		}
		name = fmt.Sprintf("%s-%02d", base, i)
	}
}

// prune removes snapshots beyond MaxBackups, never the one just written.
func (m *Manager) prune(res *Result) {
	root := m.opts.BackupRoot
	names, err := dir.SnapshotNames(root)
	if err != nil {
		fmt.Fprintf(m.out, "   Could not list old backups: %v\n", err)
		m.logger.Warn("failed to list snapshots for pruning", "root", root, "error", err)
		return
	}
	doomed := retention.Plan(names, m.opts.MaxBackups, res.Name)
	if len(doomed) == 0 {
		return
	}
	removed, failures := retention.Apply(root, doomed, removeAll, m.logger)
	for _, name := range removed {
		fmt.Fprintf(m.out, "   Removed old backup: %s\n", name)
	}
	for _, f := range failures {
		fmt.Fprintf(m.out, "   Failed to remove old backup %s: %v\n", f.Name, f.Err)
	}
	res.Pruned = removed
	res.PruneFailures = failures
}

// sweepStaging removes staging directories left behind by an interrupted run.
// Callers must hold the backup root lock.
func (m *Manager) sweepStaging() {
	entries, err := os.ReadDir(m.opts.BackupRoot)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		p := filepath.Join(m.opts.BackupRoot, e.Name())
		if err := os.RemoveAll(p); err != nil {
			m.logger.Warn("failed to remove stale staging directory", "path", p, "error", err)
			continue
		}
		m.logger.Info("removed stale staging directory", "path", p)
	}
}
