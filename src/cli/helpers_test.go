package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	dir "session-backup/src/backend/directory"
	"session-backup/src/cli"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errBuf bytes.Buffer
	cmd := cli.NewRootCmd(&out, &errBuf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	_, err := cmd.ExecuteC()
	return out.String(), errBuf.String(), err
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir -p %s: %v", path, err)
	}
}

func mustWrite(t *testing.T, path, body string) {
	t.Helper()
	mustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// snapshotNames lists the snapshot directories under root, ignoring the lock
// file and anything else kept there.
func snapshotNames(t *testing.T, root string) []string {
	t.Helper()
	names, err := dir.SnapshotNames(root)
	if err != nil {
		t.Fatalf("list snapshots in %s: %v", root, err)
	}
	return names
}
