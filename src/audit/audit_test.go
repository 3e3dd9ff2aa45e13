package audit_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-backup/src/audit"
	"session-backup/src/layout"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestClassify(t *testing.T) {
	l := layout.FromHome("/home/dev")
	a, err := audit.New(l)
	require.NoError(t, err)

	cases := map[string]audit.Class{
		filepath.Join(l.SessionsDir, "2025-08-10-1438-review.md"):         audit.Protected,
		l.CurrentSessionsFile:                                             audit.Protected,
		filepath.Join(l.BackupRoot, "backup-2024-01-01T00-00-00", "a.md"): audit.Protected,
		filepath.Join(l.SessionsDir, "backups", "old", "a.md"):            audit.Protected,
		l.SessionConfigFile:                                               audit.Protected,
		filepath.Join(l.ClaudeDir, "CLAUDE.md"):                           audit.Protected,
		filepath.Join(l.HooksDir, "session-start.sh"):                     audit.Updatable,
		filepath.Join(l.CommandsDir, "continue.md"):                       audit.Updatable,
		filepath.Join(l.BinDir, "claude-sessions"):                        audit.Updatable,
		filepath.Join(l.HooksDir, "nested", "x.sh"):                       audit.Unknown,
		filepath.Join(l.SessionsDir, "notes.txt"):                         audit.Unknown,
		filepath.Join(l.ClaudeDir, "settings.json"):                       audit.Unknown,
	}
	for path, want := range cases {
		assert.Equal(t, want, a.Classify(path), path)
	}
}

func TestClassify_FollowsLayoutOverrides(t *testing.T) {
	l := layout.FromHome("/home/dev")
	l.BackupRoot = "/mnt/nas/[claude] backups"
	a, err := audit.New(l)
	require.NoError(t, err)

	assert.Equal(t, audit.Protected, a.Classify("/mnt/nas/[claude] backups/backup-x/a.md"))
	assert.Equal(t, audit.Unknown, a.Classify("/mnt/nas/c backups/backup-x/a.md"))
}

func TestRun_CountsFiles(t *testing.T) {
	l := layout.FromHome(t.TempDir())
	touch(t, filepath.Join(l.SessionsDir, "a.md"))
	touch(t, filepath.Join(l.SessionsDir, "b.md"))
	touch(t, l.CurrentSessionsFile)
	touch(t, filepath.Join(l.BackupRoot, "backup-2024-01-01T00-00-00", "a.md"))
	touch(t, filepath.Join(l.BackupRoot, "backup-2024-01-01T00-00-00", "checksums.txt"))
	touch(t, l.SessionConfigFile)
	touch(t, filepath.Join(l.HooksDir, "session-start.sh"))
	touch(t, filepath.Join(l.CommandsDir, "continue.md"))
	touch(t, filepath.Join(l.CommandsDir, "complete.md"))

	a, err := audit.New(l)
	require.NoError(t, err)
	rep, err := a.Run()
	require.NoError(t, err)

	counts := map[string]int{}
	for _, c := range append(rep.Protected, rep.Updatable...) {
		counts[c.Description] = c.Files
	}
	assert.Equal(t, 2, counts["session files"])
	assert.Equal(t, 1, counts["active sessions index"])
	assert.Equal(t, 2, counts["session backups"])
	assert.Equal(t, 0, counts["legacy session backups"])
	assert.Equal(t, 1, counts["session configuration"])
	assert.Equal(t, 0, counts["global CLAUDE.md"])
	assert.Equal(t, 1, counts["hook scripts"])
	assert.Equal(t, 2, counts["slash commands"])
	assert.Equal(t, 0, counts["CLI tools"])

	var out bytes.Buffer
	rep.Render(&out)
	assert.Contains(t, out.String(), filepath.ToSlash(filepath.Join(".claude", "sessions"))+"/*.md: 2 files (protected)")
	assert.Contains(t, out.String(), ".claude/commands/*.md: 2 files (will be updated)")
	assert.NotContains(t, out.String(), "CLAUDE.md")
}

func TestRun_MissingClaudeDir(t *testing.T) {
	a, err := audit.New(layout.FromHome(t.TempDir()))
	require.NoError(t, err)
	rep, err := a.Run()
	require.NoError(t, err)
	for _, c := range rep.Protected {
		assert.Zero(t, c.Files, c.Description)
	}
}

func TestRun_DoesNotModify(t *testing.T) {
	l := layout.FromHome(t.TempDir())
	touch(t, filepath.Join(l.SessionsDir, "a.md"))
	before, err := os.Stat(filepath.Join(l.SessionsDir, "a.md"))
	require.NoError(t, err)

	a, err := audit.New(l)
	require.NoError(t, err)
	_, err = a.Run()
	require.NoError(t, err)

	after, err := os.Stat(filepath.Join(l.SessionsDir, "a.md"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	entries, err := os.ReadDir(l.ClaudeDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
