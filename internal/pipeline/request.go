package pipeline

import (
	"fmt"
	"time"
)

// MaxSourceBytes is the hard ceiling on submitted source size.
const MaxSourceBytes = 1 << 20

// Request describes one compile-and-run invocation. Source is required;
// everything else falls back to configured defaults when zero.
type Request struct {
	Source         string        `json:"source"`
	Stdin          string        `json:"stdin,omitempty"`
	CompileTimeout time.Duration `json:"compile_timeout,omitempty"`
	RunTimeout     time.Duration `json:"run_timeout,omitempty"`
	Flags          []string      `json:"flags,omitempty"`
}

// Validate rejects requests that must never reach the pipeline stages.
// Timeout ceilings are checked separately against configuration.
func (r Request) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("%w: source is empty", ErrInvalidRequest)
	}
	if len(r.Source) > MaxSourceBytes {
		return fmt.Errorf("%w: source exceeds 1MB limit", ErrInvalidRequest)
	}
	if r.CompileTimeout < 0 {
		return fmt.Errorf("%w: compile timeout is negative", ErrInvalidRequest)
	}
	if r.RunTimeout < 0 {
		return fmt.Errorf("%w: run timeout is negative", ErrInvalidRequest)
	}
	return nil
}
