// Package archive produces ZIP byte streams of server-side directories.
//
// A Producer starts one Process per archive. The default producer runs the
// external zip utility and reads the archive from its standard output; the
// builtin producer encodes the archive in-process with archive/zip. Both
// expose the same Process contract so callers can stream either one chunk by
// chunk without knowing the total size up front.
package archive

import (
	"context"
	"errors"
	"fmt"
)

// Kind selects a Producer implementation.
type Kind string

const (
	KindZip     Kind = "zip"
	KindBuiltin Kind = "builtin"
)

// ValidateKind checks that the given archiver kind is supported.
func ValidateKind(k Kind) error {
	if k != KindZip && k != KindBuiltin {
		return fmt.Errorf("archiver must be 'zip' or 'builtin', got %q", k)
	}
	return nil
}

// Producer starts archiving processes.
type Producer interface {
	Start(ctx context.Context, dir string) (Process, error)
}

// Process is a running archiver owned by a single caller.
type Process interface {
	// ReadChunk reads at most len(buf) bytes of archive output, blocking until
	// some bytes are available. It returns 0, io.EOF once the archive is
	// complete.
	ReadChunk(buf []byte) (int, error)

	// Alive reports whether the archiver has not yet exited.
	Alive() bool

	// Terminate stops the archiver if it is still running and releases its
	// output stream. It is safe to call more than once, concurrently, and after
	// the archiver exited on its own.
	Terminate() error

	// Wait blocks until the archiver exits and reports how it finished.
	Wait() error
}

// New creates the Producer for the given kind.
func New(k Kind) (Producer, error) {
	switch k {
	case KindZip:
		return NewCommandProducer(), nil
	case KindBuiltin:
		return &BuiltinProducer{}, nil
	default:
		return nil, fmt.Errorf("unsupported archiver: %s", k)
	}
}

// LaunchError reports that an archiver could not be started.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExitError reports that an archiver finished unsuccessfully. Stderr holds the
// tail of its diagnostic output, if any.
type ExitError struct {
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("archiver failed: %v", e.Err)
	}
	return fmt.Sprintf("archiver failed: %v: %s", e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// errTerminated is reported by Wait for processes stopped through Terminate.
var errTerminated = errors.New("archiver terminated")
