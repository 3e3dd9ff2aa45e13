package backup_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-backup/src/backup"
	"session-backup/src/layout"
	"session-backup/src/lock"
)

var fixedNow = time.Date(2024, 1, 7, 12, 30, 45, 123_000_000, time.UTC)

type fixture struct {
	layout layout.Layout
	out    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{layout: layout.FromHome(t.TempDir()), out: &bytes.Buffer{}}
}

func (f *fixture) manager(maxBackups int) *backup.Manager {
	opts := backup.OptionsFromLayout(f.layout, maxBackups)
	opts.Out = f.out
	opts.Now = func() time.Time { return fixedNow }
	return backup.NewManager(opts)
}

func (f *fixture) writeSession(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.layout.SessionsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.layout.SessionsDir, name), []byte(body), 0o644))
}

func (f *fixture) seedSnapshots(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(f.layout.BackupRoot, n), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(f.layout.BackupRoot, n, "a.md"), []byte("old"), 0o644))
	}
}

func (f *fixture) snapshots(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.layout.BackupRoot)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) > 7 && e.Name()[:7] == "backup-" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestCreate_NoSessionStoreIsNoop(t *testing.T) {
	f := newFixture(t)

	res, err := f.manager(5).Create()
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Contains(t, f.out.String(), "nothing to back up")

	_, err = os.Stat(f.layout.BackupRoot)
	assert.ErrorIs(t, err, fs.ErrNotExist, "backup root must not be created")
}

func TestCreate_EmptySessionStoreIsNoop(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "notes.txt", "not a session")
	require.NoError(t, os.MkdirAll(filepath.Join(f.layout.SessionsDir, "dir.md"), 0o755))

	res, err := f.manager(5).Create()
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Contains(t, f.out.String(), "No sessions to back up.")

	_, err = os.Stat(f.layout.BackupRoot)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestCreate_SnapshotWithIndex(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "# session a\n")
	f.writeSession(t, "b.md", "# session b\n")
	f.writeSession(t, ".current-sessions", "### Agent: main\n- Session: a.md\n")

	res, err := f.manager(5).Create()
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "backup-2024-01-07T12-30-45", res.Name)
	assert.Equal(t, filepath.Join(f.layout.BackupRoot, res.Name), res.Path)
	assert.Equal(t, 2, res.Sessions)
	assert.Equal(t, []string{".current-sessions"}, res.Sidecars)
	assert.Empty(t, res.Pruned)

	assert.Equal(t, []string{".current-sessions", "a.md", "b.md", "checksums.txt", "manifest.json"}, listFiles(t, res.Path))
	assert.Equal(t, []string{res.Name}, f.snapshots(t))
	assert.Contains(t, f.out.String(), "Backup created: "+res.Path)
	assert.Contains(t, f.out.String(), "2 sessions backed up")

	assert.FileExists(t, filepath.Join(f.layout.BackupRoot, backup.LockFileName))
}

func TestCreate_CopiesBytesExactly(t *testing.T) {
	f := newFixture(t)
	want := map[string][]byte{}
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("2025-08-%02d-session.md", i+1)
		body := bytes.Repeat([]byte{byte(i), 0x00, 0xff, '\n'}, 1000*i+1)
		want[name] = body
		f.writeSession(t, name, string(body))
	}

	res, err := f.manager(5).Create()
	require.NoError(t, err)
	require.Equal(t, len(want), res.Sessions)

	for name, body := range want {
		got, err := os.ReadFile(filepath.Join(res.Path, name))
		require.NoError(t, err)
		assert.Equal(t, body, got, name)
	}

	var mf backup.Manifest
	data, err := os.ReadFile(filepath.Join(res.Path, backup.ManifestName))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &mf))
	assert.Equal(t, "sessions", mf.Type)
	assert.Equal(t, len(want), mf.SessionCount)
	assert.Len(t, mf.Files, len(want))
	assert.True(t, sort.StringsAreSorted(mf.Files))
	assert.True(t, mf.CreatedAt.Equal(fixedNow))
}

func TestCreate_DoesNotWriteSessionStore(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	before := listFiles(t, f.layout.SessionsDir)
	info, err := os.Stat(filepath.Join(f.layout.SessionsDir, "a.md"))
	require.NoError(t, err)

	_, err = f.manager(5).Create()
	require.NoError(t, err)

	assert.Equal(t, before, listFiles(t, f.layout.SessionsDir))
	after, err := os.Stat(filepath.Join(f.layout.SessionsDir, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
}

func TestCreate_SessionConfigSidecar(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	require.NoError(t, os.WriteFile(f.layout.SessionConfigFile, []byte("AUTO_BACKUP=true\n"), 0o600))

	res, err := f.manager(5).Create()
	require.NoError(t, err)
	assert.Equal(t, []string{"session-config"}, res.Sidecars)

	got, err := os.ReadFile(filepath.Join(res.Path, "session-config"))
	require.NoError(t, err)
	assert.Equal(t, "AUTO_BACKUP=true\n", string(got))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(res.Path, "session-config"))
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())
	}
}

func TestCreate_PrunesOldest(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	var seeded []string
	for d := 1; d <= 6; d++ {
		seeded = append(seeded, fmt.Sprintf("backup-2024-01-%02dT00-00-00", d))
	}
	f.seedSnapshots(t, seeded...)

	res, err := f.manager(5).Create()
	require.NoError(t, err)

	assert.Equal(t, []string{"backup-2024-01-02T00-00-00", "backup-2024-01-01T00-00-00"}, res.Pruned)
	assert.Empty(t, res.PruneFailures)
	assert.Equal(t, append(seeded[2:], res.Name), f.snapshots(t))
	assert.Contains(t, f.out.String(), "Removed old backup: backup-2024-01-01T00-00-00")
}

func TestCreate_RetentionIgnoresUnrelatedEntries(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	f.seedSnapshots(t, "backup-2024-01-01T00-00-00", "backup-2024-01-02T00-00-00")
	require.NoError(t, os.MkdirAll(filepath.Join(f.layout.BackupRoot, "keep-me"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.layout.BackupRoot, "backup-notes.txt"), nil, 0o644))

	res, err := f.manager(1).Create()
	require.NoError(t, err)

	assert.Len(t, res.Pruned, 2)
	assert.DirExists(t, filepath.Join(f.layout.BackupRoot, "keep-me"))
	assert.FileExists(t, filepath.Join(f.layout.BackupRoot, "backup-notes.txt"))
	assert.Equal(t, []string{res.Name}, f.snapshots(t))
}

func TestCreate_KeepsCurrentWithZeroMax(t *testing.T) {
	for _, max := range []int{0, 1} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			f := newFixture(t)
			f.writeSession(t, "a.md", "a")
			f.seedSnapshots(t, "backup-2024-01-01T00-00-00")

			res, err := f.manager(max).Create()
			require.NoError(t, err)
			assert.DirExists(t, res.Path)
			assert.Equal(t, []string{res.Name}, f.snapshots(t))
		})
	}
}

func TestCreate_KeepsCurrentWhenFutureSnapshotExists(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	f.seedSnapshots(t, "backup-2030-01-01T00-00-00")

	res, err := f.manager(1).Create()
	require.NoError(t, err)
	assert.DirExists(t, res.Path)
	assert.Empty(t, res.Pruned)
}

func TestCreate_SameSecondGetsSuffix(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	m := f.manager(5)

	first, err := m.Create()
	require.NoError(t, err)
	second, err := m.Create()
	require.NoError(t, err)
	third, err := m.Create()
	require.NoError(t, err)

	assert.Equal(t, "backup-2024-01-07T12-30-45", first.Name)
	assert.Equal(t, "backup-2024-01-07T12-30-45-01", second.Name)
	assert.Equal(t, "backup-2024-01-07T12-30-45-02", third.Name)

	names := []string{third.Name, "backup-2024-01-07T12-30-46", first.Name, second.Name}
	sort.Strings(names)
	assert.Equal(t, []string{first.Name, second.Name, third.Name, "backup-2024-01-07T12-30-46"}, names)
}

func TestCreate_CopyFailureLeavesNoSnapshot(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	f.writeSession(t, "b.md", "b")
	broken := filepath.Join(f.layout.SessionsDir, "b.md")
	f.seedSnapshots(t, "backup-2024-01-01T00-00-00", "backup-2024-01-02T00-00-00")

	restore := backup.SetCopyFileForTest(func(src, dst string, _ io.Writer) error {
		if src == broken {
			return fmt.Errorf("open %s: %w", src, fs.ErrPermission)
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	})
	defer restore()

	res, err := f.manager(1).Create()
	require.Error(t, err)
	assert.Nil(t, res)

	var ioErr *backup.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "copy", ioErr.Op)
	assert.Equal(t, broken, ioErr.Path)
	assert.ErrorIs(t, err, fs.ErrPermission)

	// prior snapshots untouched and not pruned, staging removed
	assert.Equal(t, []string{"backup-2024-01-01T00-00-00", "backup-2024-01-02T00-00-00"}, f.snapshots(t))
	assert.Equal(t, []string{".lock", "backup-2024-01-01T00-00-00", "backup-2024-01-02T00-00-00"}, listFiles(t, f.layout.BackupRoot))
	assert.NotContains(t, f.out.String(), "Removed old backup")
}

func TestCreate_CopyFailureOnUnreadableFile(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("needs POSIX permissions enforced for the current user")
	}
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	locked := filepath.Join(f.layout.SessionsDir, "a.md")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	_, err := f.manager(5).Create()
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Empty(t, f.snapshots(t))
}

func TestCreate_BackupRootNotWritable(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	require.NoError(t, os.MkdirAll(filepath.Dir(f.layout.BackupRoot), 0o755))
	require.NoError(t, os.WriteFile(f.layout.BackupRoot, []byte("not a dir"), 0o644))

	_, err := f.manager(5).Create()
	var ioErr *backup.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "create backup root", ioErr.Op)
}

func TestCreate_PruneFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	f.seedSnapshots(t, "backup-2024-01-01T00-00-00", "backup-2024-01-02T00-00-00")
	stuck := filepath.Join(f.layout.BackupRoot, "backup-2024-01-01T00-00-00")

	restore := backup.SetRemoveAllForTest(func(path string) error {
		if path == stuck {
			return fmt.Errorf("unlinkat %s: %w", path, fs.ErrPermission)
		}
		return os.RemoveAll(path)
	})
	defer restore()

	res, err := f.manager(1).Create()
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, []string{"backup-2024-01-02T00-00-00"}, res.Pruned)
	require.Len(t, res.PruneFailures, 1)
	assert.Equal(t, "backup-2024-01-01T00-00-00", res.PruneFailures[0].Name)
	assert.ErrorIs(t, res.PruneFailures[0], fs.ErrPermission)
	assert.Contains(t, f.out.String(), "Failed to remove old backup backup-2024-01-01T00-00-00")
	assert.DirExists(t, res.Path)
	assert.DirExists(t, stuck)
}

func TestCreate_SweepsStaleStaging(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	stale := filepath.Join(f.layout.BackupRoot, ".staging-0000")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "a.md"), []byte("partial"), 0o644))

	res, err := f.manager(5).Create()
	require.NoError(t, err)
	assert.NoDirExists(t, stale)
	assert.Equal(t, []string{".lock", res.Name}, listFiles(t, f.layout.BackupRoot))
}

func TestCreate_LockedRootAborts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("flock semantics")
	}
	f := newFixture(t)
	f.writeSession(t, "a.md", "a")
	require.NoError(t, os.MkdirAll(f.layout.BackupRoot, 0o755))
	held, err := lock.Acquire(filepath.Join(f.layout.BackupRoot, backup.LockFileName))
	require.NoError(t, err)
	defer held.Release()

	res, err := f.manager(5).Create()
	assert.Nil(t, res)
	require.ErrorIs(t, err, lock.ErrLocked)
	assert.Empty(t, f.snapshots(t))
}

func TestCreate_WritesProgress(t *testing.T) {
	f := newFixture(t)
	f.writeSession(t, "a.md", "hello")
	var prog bytes.Buffer
	opts := backup.OptionsFromLayout(f.layout, 5)
	opts.Progress = &prog
	opts.Now = func() time.Time { return fixedNow }

	_, err := backup.NewManager(opts).Create()
	require.NoError(t, err)
	assert.Contains(t, prog.String(), "[a.md]")
}
