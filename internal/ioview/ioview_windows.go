//go:build windows

package ioview

import (
	"os"

	"github.com/xyproto/rsym/internal/rsymerr"
)

// Open reads path into memory. Windows file mapping semantics (and
// the sharing violations they trigger against a file a debugger may
// still have open) aren't worth chasing for a tool whose hot path is
// unix CI runners; a plain read is the honest implementation here.
func Open(path string) (*View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rsymerr.Wrap(rsymerr.IO, err, "reading %s", path)
	}
	return &View{data: data}, nil
}
