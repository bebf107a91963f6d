//go:build !windows

package ioview

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/xyproto/rsym/internal/rsymerr"
)

// Open maps path into memory read-only. Zero-length files map to an
// empty view rather than going through Mmap, which rejects a zero
// length.
func Open(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rsymerr.Wrap(rsymerr.IO, err, "opening %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, rsymerr.Wrap(rsymerr.IO, err, "stat %s", path)
	}
	if info.Size() == 0 {
		return &View{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, rsymerr.Wrap(rsymerr.IO, err, "mmap %s", path)
	}
	return &View{data: data, closer: func() error { return unix.Munmap(data) }}, nil
}
