package backend

// SnapshotPrefix starts the name of every snapshot directory in a backup root.
const SnapshotPrefix = "backup-"

// Entry represents a single snapshot discovered under a backup root.
type Entry struct {
	Name      string `json:"name"`      // backup-2006-01-02T15-04-05
	Timestamp string `json:"timestamp"` // name without the prefix
	Path      string `json:"path"`      // absolute path to the snapshot directory
	Files     int    `json:"files"`     // session files recorded in the manifest, -1 if unknown
	Complete  bool   `json:"complete"`  // manifest.json present
}

// SnapshotLister lists snapshots. Implementations return entries sorted
// oldest first.
type SnapshotLister interface {
	List() ([]Entry, error)
}
