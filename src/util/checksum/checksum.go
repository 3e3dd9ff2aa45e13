// Package checksum reads and writes checksums.txt files in sha256sum format
// ("<hex>  <name>").
package checksum

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the checksum list stored in every snapshot.
const FileName = "checksums.txt"

// ErrNotLocal is returned for a listed name that escapes the snapshot dir.
var ErrNotLocal = errors.New("path escapes snapshot directory")

// Entry is one line of a checksum list.
type Entry struct {
	Sum  string
	Name string
}

// SHA256File returns the hex sha256 of the file at path.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Write hashes each named file in dir and writes dir/checksums.txt.
func Write(dir string, names []string) error {
	out, err := os.Create(filepath.Join(dir, FileName))
	if err != nil {
		return err
	}
	defer out.Close()
	for _, name := range names {
		sum, err := SHA256File(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s  %s\n", sum, name); err != nil {
			return err
		}
	}
	return out.Sync()
}

// Read parses dir/checksums.txt. Blank lines are skipped; a malformed line or
// a name that is not local to dir is an error.
func Read(dir string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sum, name, ok := strings.Cut(line, "  ")
		if !ok || sum == "" || name == "" {
			return nil, fmt.Errorf("%s line %d: malformed entry", FileName, n)
		}
		if !filepath.IsLocal(name) {
			return nil, fmt.Errorf("%s line %d: %q: %w", FileName, n, name, ErrNotLocal)
		}
		entries = append(entries, Entry{Sum: sum, Name: name})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Check reports whether the file named by e under dir still hashes to e.Sum.
func (e Entry) Check(dir string) (bool, error) {
	sum, err := SHA256File(filepath.Join(dir, e.Name))
	if err != nil {
		return false, err
	}
	return strings.EqualFold(sum, e.Sum), nil
}
