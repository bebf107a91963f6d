// Package rsymerr defines the small closed set of error kinds the rest of
// rsym reports. There is no recovery and no retry anywhere in the
// pipeline: a stage either succeeds or the orchestrator unwinds and the
// process exits with the kind's status code.
package rsymerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure the orchestrator can report. The set is
// closed: nothing downstream invents a new one.
type Kind int

const (
	// NotPE means the input lacks a valid MZ/PE header and is not ELF.
	NotPE Kind = iota
	// ELF means the input is an ELF object; the orchestrator exits 0.
	ELF
	// BadDebug means a stabs or COFF record was structurally invalid.
	BadDebug
	// OutOfMemory means an allocation failed.
	OutOfMemory
	// IO means a read or write to the filesystem failed.
	IO
	// UsageError means the argument sequence was malformed.
	UsageError
)

func (k Kind) String() string {
	switch k {
	case NotPE:
		return "not a PE image"
	case ELF:
		return "ELF input"
	case BadDebug:
		return "malformed debug information"
	case OutOfMemory:
		return "out of memory"
	case IO:
		return "I/O error"
	case UsageError:
		return "usage error"
	default:
		return "unknown error"
	}
}

// ExitCode returns the process exit status associated with the kind.
// Every kind exits 1 except ELF, which is a silent, successful no-op.
func (k Kind) ExitCode() int {
	if k == ELF {
		return 0
	}
	return 1
}

// ToolError is the concrete error type every stage returns on failure.
// Message is the single line that goes to stderr; the wrapped cause (if
// any) is only surfaced with %+v, e.g. under RSYM_VERBOSE.
type ToolError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *ToolError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

func (e *ToolError) Unwrap() error { return e.cause }

// Format supports %+v to print the wrapped cause chain via pkg/errors.
func (e *ToolError) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+') && e.cause != nil:
		fmt.Fprintf(s, "%s: %+v", e.Message, e.cause)
	default:
		fmt.Fprint(s, e.Error())
	}
}

// New builds a ToolError with no wrapped cause.
func New(kind Kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a ToolError that carries cause as its root, matching the
// errors.Wrap idiom used at the syncthing CLI's own error boundary.
func Wrap(kind Kind, cause error, format string, args ...any) *ToolError {
	msg := fmt.Sprintf(format, args...)
	return &ToolError{Kind: kind, Message: msg, cause: errors.Wrap(cause, msg)}
}

// KindOf extracts the Kind from err, defaulting to IO for errors that
// didn't originate in this package (e.g. a bare os.PathError).
func KindOf(err error) Kind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return IO
}
