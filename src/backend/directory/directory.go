package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"session-backup/src/backend"
)

// ManifestName is the metadata file written into every snapshot.
const ManifestName = "manifest.json"

// Backend implements backend.SnapshotLister for a backup root on disk.
type Backend struct {
	Root string // absolute directory path
}

// New returns a backend for root. The root does not need to exist yet; a
// missing root simply lists as empty.
func New(root string) (*Backend, error) {
	if root == "" {
		return nil, errors.New("backup root must not be empty")
	}
	info, err := os.Stat(root)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if err == nil && !info.IsDir() {
		return nil, fmt.Errorf("backup root is not a directory: %s", root)
	}
	return &Backend{Root: root}, nil
}

func (b *Backend) List() ([]backend.Entry, error) {
	names, err := SnapshotNames(b.Root)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	entries := make([]backend.Entry, 0, len(names))
	for _, name := range names {
		full := filepath.Join(b.Root, name)
		e := backend.Entry{
			Name:      name,
			Timestamp: strings.TrimPrefix(name, backend.SnapshotPrefix),
			Path:      full,
			Files:     -1,
		}
		if n, ok := readManifestCount(full); ok {
			e.Files = n
			e.Complete = true
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// SnapshotNames returns the names of the snapshot directories directly under
// root, unsorted. Hidden entries, plain files and anything without the
// snapshot prefix are skipped. A missing root yields no names.
func SnapshotNames(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), backend.SnapshotPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func readManifestCount(dir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return 0, false
	}
	var mf struct {
		SessionCount int `json:"sessionCount"`
	}
	if err := json.Unmarshal(data, &mf); err != nil {
		return 0, false
	}
	return mf.SessionCount, true
}
