package backup

import (
	"errors"
	"fmt"
	"time"

	"session-backup/src/retention"
)

// ErrSnapshotExists is returned when every candidate name for the current
// second is already taken in the backup root.
var ErrSnapshotExists = errors.New("snapshot already exists for this second")

// IOError reports a failed filesystem operation during a backup run.
type IOError struct {
	Op   string // e.g. "create snapshot", "copy"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Manifest captures metadata for a session snapshot.
type Manifest struct {
	Type         string    `json:"type"` // always "sessions"
	CreatedAt    time.Time `json:"createdAt"`
	Source       string    `json:"source"`
	SessionCount int       `json:"sessionCount"`
	Files        []string  `json:"files"`
	Sidecars     []string  `json:"sidecars,omitempty"`
}

// Result describes a completed backup run.
type Result struct {
	Name          string // backup-<timestamp>
	Path          string // absolute snapshot directory
	Sessions      int    // session files copied
	Sidecars      []string
	Pruned        []string
	PruneFailures []retention.Failure
}
