package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for typed error checking.
var (
	ErrInvalidRequest   = errors.New("invalid run request")
	ErrCompilerNotFound = errors.New("compiler not found")
	ErrClosed           = errors.New("pipeline is shut down")
)

// PipelineError wraps errors with run context.
type PipelineError struct {
	RunID string
	Op    string // The stage or operation that failed
	Err   error
}

func (e *PipelineError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("run %s: %s: %s", e.RunID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsInvalidRequest returns true if the error is a request validation failure.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// sanitizeMessage strips workspace-identifying text from an error message so
// internal faults can be returned to callers without leaking scratch paths or
// the per-run token.
func sanitizeMessage(msg, root, token string) string {
	if root != "" {
		msg = strings.ReplaceAll(msg, root, "<scratch>")
	}
	if token != "" {
		msg = strings.ReplaceAll(msg, token, "<run>")
	}
	return msg
}
