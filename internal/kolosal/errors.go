// internal/kolosal/errors.go
package kolosal

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDownloadFailed matches a DownloadFailedError.
	ErrDownloadFailed = errors.New("download failed")
	// ErrNotAcknowledged means a control request did not come back with success:true.
	ErrNotAcknowledged = errors.New("server did not acknowledge request")
	// ErrEmptyStream means a streaming completion produced neither text nor a completion marker.
	ErrEmptyStream = errors.New("stream produced no content")
	// ErrNoSupervisor is returned by lifecycle calls on a Client built without one.
	ErrNoSupervisor = errors.New("no process supervisor configured")
)

// ParseError wraps a response body that could not be decoded.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// TimeoutError is returned when a readiness wait or download monitor runs out of time.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("%s: timed out after %s", e.Op, e.After) }

// Timeout satisfies the net.Error style check.
func (e *TimeoutError) Timeout() bool { return true }

// DownloadFailedError carries the terminal state that ended a download.
type DownloadFailedError struct {
	ID    string
	State DownloadState
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download %s ended with status %s", e.ID, e.State)
}

func (e *DownloadFailedError) Is(target error) bool { return target == ErrDownloadFailed }
