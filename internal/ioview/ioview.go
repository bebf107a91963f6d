// Package ioview opens an input PE image as a read-only byte view,
// backed by an mmap on unix platforms and a plain read on Windows — the
// same platform split the teacher uses between filewatcher_unix.go and
// filewatcher_windows.go, applied here to avoid double-buffering a
// multi-hundred-megabyte image through both the page cache and a Go
// byte slice.
package ioview

// View is a read-only window over an input file's bytes.
type View struct {
	data   []byte
	closer func() error
}

// Bytes returns the file's contents. The slice is only valid until
// Close is called.
func (v *View) Bytes() []byte { return v.data }

// Close releases any OS-level resources backing the view.
func (v *View) Close() error {
	if v.closer == nil {
		return nil
	}
	return v.closer()
}
