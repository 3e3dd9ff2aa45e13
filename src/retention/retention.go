package retention

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Failure records a snapshot that could not be removed.
type Failure struct {
	Name string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("remove %s: %v", f.Name, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Plan returns the snapshot names to delete so that at most keep remain.
// Names are sorted newest first and the tail past keep is returned, newest
// of the doomed first. protect is never returned, even when keep is zero.
func Plan(names []string, keep int, protect string) []string {
	if keep < 0 {
		keep = 0
	}
	sorted := append([]string(nil), names...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))
	if len(sorted) <= keep {
		return nil
	}
	var del []string
	for _, name := range sorted[keep:] {
		if name == protect {
			continue
		}
		del = append(del, name)
	}
	return del
}

// Remover deletes one snapshot directory.
type Remover func(path string) error

// Apply removes each named snapshot under root with remove, or os.RemoveAll
// when remove is nil. Every removal is attempted; failures are logged and
// returned without stopping the loop.
func Apply(root string, names []string, remove Remover, logger *slog.Logger) (removed []string, failures []Failure) {
	if remove == nil {
		remove = os.RemoveAll
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for _, name := range names {
		if err := remove(filepath.Join(root, name)); err != nil {
			logger.Warn("failed to remove old snapshot", "snapshot", name, "error", err)
			failures = append(failures, Failure{Name: name, Err: err})
			continue
		}
		logger.Debug("removed old snapshot", "snapshot", name)
		removed = append(removed, name)
	}
	return removed, failures
}
