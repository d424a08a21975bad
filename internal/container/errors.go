package container

import (
	"errors"
	"fmt"
)

// ErrorKind classifies runtime adapter failures.
type ErrorKind int

const (
	// CommandFailed means the runtime process could not be invoked or
	// exited unsuccessfully.
	CommandFailed ErrorKind = iota + 1
	// UnexpectedOutput means the runtime ran but its output could not be
	// parsed, or a pulled image failed verification.
	UnexpectedOutput
)

func (k ErrorKind) String() string {
	switch k {
	case CommandFailed:
		return "command failed"
	case UnexpectedOutput:
		return "unexpected output"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is returned by every fallible Runtime operation.
type Error struct {
	Kind ErrorKind
	Op   string // "images", "pull", "rm"
	// Target is the image reference or container name the operation was about.
	Target string
	// Stderr holds the runtime's diagnostic output, if any.
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("runtime %s %s: %s", e.Op, e.Target, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " (" + e.Stderr + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err came from the runtime adapter. Runtime
// failures are plausibly transient (registry hiccups, host resource limits)
// and callers may retry them with backoff.
func IsRetryable(err error) bool {
	var rtErr *Error
	return errors.As(err, &rtErr)
}
