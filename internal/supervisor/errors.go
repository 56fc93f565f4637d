// internal/supervisor/errors.go
package supervisor

import (
	"errors"
	"fmt"
)

// Kind classifies a ProcessError.
type Kind int

const (
	SpawnFailed Kind = iota
	NotFound
	NotExecutable
	PermissionDenied
	TerminateFailed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case NotExecutable:
		return "not executable"
	case PermissionDenied:
		return "permission denied"
	case TerminateFailed:
		return "terminate failed"
	default:
		return "spawn failed"
	}
}

// ProcessError reports why a server process could not be started or stopped.
type ProcessError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("server %s: %s", e.Kind, e.Path)
	if e.Kind == NotExecutable {
		msg += fmt.Sprintf(" (try: chmod +x %s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

// IsKind reports whether err is a ProcessError of kind k.
func IsKind(err error, k Kind) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.Kind == k
}
