// Package safebuf wraps bytes.Buffer with an explicit commit step so a
// buffer that has already been handed off (serialized, written to an
// output file) can't be silently mutated or reset by code downstream.
package safebuf

import (
	"bytes"
	"fmt"
	"os"
)

// VerboseMode gates the diagnostic lines this package writes to
// stderr. Set by the caller (the rsym pipeline sets it from its own
// -v/RSYM_VERBOSE flag) before use; it does not default itself.
var VerboseMode bool

// SafeBuffer wraps bytes.Buffer with explicit lifecycle management. It
// tracks whether the buffer has been "committed" and prevents further
// writes once it has.
type SafeBuffer struct {
	buf       *bytes.Buffer
	committed bool   // True once Commit() is called
	name      string // For debugging
}

// NewSafeBuffer creates a new SafeBuffer with a name for debugging
func NewSafeBuffer(name string) *SafeBuffer {
	return &SafeBuffer{
		buf:  &bytes.Buffer{},
		name: name,
	}
}

// Write appends bytes to the buffer. Panics if buffer is committed.
func (sb *SafeBuffer) Write(p []byte) (n int, err error) {
	if sb.committed {
		panic(fmt.Sprintf("SafeBuffer(%s): Cannot write to committed buffer", sb.name))
	}
	return sb.buf.Write(p)
}

// Bytes returns the buffer contents. Safe to call after commit.
func (sb *SafeBuffer) Bytes() []byte {
	return sb.buf.Bytes()
}

// Len returns the buffer length
func (sb *SafeBuffer) Len() int {
	return sb.buf.Len()
}

// Commit marks the buffer as complete. After this, no more writes or resets allowed.
func (sb *SafeBuffer) Commit() {
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "SafeBuffer(%s): Committed with %d bytes\n", sb.name, sb.buf.Len())
	}
	sb.committed = true
}
