package backup

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"session-backup/src/util/progress"
)

// copyFile copies src to dst with the source permission bits. dst must not
// exist. When progressOut is non-nil a progress line is written for the copy.
func copyFile(src, dst string, progressOut io.Writer) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	var r io.Reader = in
	if progressOut != nil {
		r = progress.NewReader(in, info.Size(), filepath.Base(src), progressOut)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
