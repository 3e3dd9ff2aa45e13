package backup

import "io"

// SetCopyFileForTest replaces the file copy function and returns a restore func.
func SetCopyFileForTest(fn func(src, dst string, progressOut io.Writer) error) func() {
	prev := copyFn
	copyFn = fn
	return func() { copyFn = prev }
}

// SetRemoveAllForTest replaces snapshot removal and returns a restore func.
func SetRemoveAllForTest(fn func(string) error) func() {
	prev := removeAll
	removeAll = fn
	return func() { removeAll = prev }
}
