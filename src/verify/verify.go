package verify

import (
	"errors"
	"fmt"
	"io/fs"

	"session-backup/src/backend"
	"session-backup/src/util/checksum"
)

const (
	StatusOK       = "ok"
	StatusMismatch = "mismatch"
)

// Result is the verification outcome for one snapshot.
type Result struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	Path      string `json:"path"`
}

// All verifies every snapshot returned by lister.
func All(lister backend.SnapshotLister) ([]Result, error) {
	entries, err := lister.List()
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(entries))
	for _, e := range entries {
		out = append(out, Result{Name: e.Name, Timestamp: e.Timestamp, Status: Snapshot(e.Path), Path: e.Path})
	}
	return out, nil
}

// Snapshot checks dir against its checksums.txt and returns StatusOK,
// StatusMismatch or a description of why the checksums could not be read.
// Names that point outside dir are rejected, not hashed.
func Snapshot(dir string) string {
	entries, err := checksum.Read(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("missing %s: %v", checksum.FileName, err)
	}
	if err != nil {
		return fmt.Sprintf("invalid %s: %v", checksum.FileName, err)
	}
	for _, e := range entries {
		if ok, err := e.Check(dir); err != nil || !ok {
			return StatusMismatch
		}
	}
	return StatusOK
}
