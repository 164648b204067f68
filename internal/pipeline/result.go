package pipeline

import (
	"fmt"
	"time"
)

// Status discriminates the possible pipeline results. Exactly one status is
// assigned per run.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusCompileError   Status = "compile_error"
	StatusCompileTimeout Status = "compile_timeout"
	StatusRuntimeError   Status = "runtime_error"
	StatusRuntimeTimeout Status = "runtime_timeout"
	StatusOutputTooLarge Status = "output_too_large"
	StatusInternalError  Status = "internal_error"
)

// CompileOutcome reports one compiler invocation. Duration covers the
// invocation only, not the source file write.
type CompileOutcome struct {
	OK          bool
	TimedOut    bool
	Diagnostics string
	Duration    time.Duration
}

// RunOutcome reports one execution of the compiled binary.
type RunOutcome struct {
	ExitCode  int
	Signal    string // non-empty if the process died to a signal it received
	TimedOut  bool
	Truncated bool // an output cap was hit and the process was killed
	Stdout    string
	Stderr    string
	Duration  time.Duration
}

// Result is the single value a pipeline run produces. It is self-contained:
// all text is copied out of the workspace before cleanup.
type Result struct {
	ID          string        `json:"id"`
	Status      Status        `json:"status"`
	Output      string        `json:"output,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
	Diagnostics string        `json:"diagnostics,omitempty"`
	Problems    []Diagnostic  `json:"problems,omitempty"`
	ExitCode    int           `json:"exit_code"`
	Message     string        `json:"message,omitempty"`
	CompileTime time.Duration `json:"compile_time"`
	RunTime     time.Duration `json:"run_time"`
}

// Success reports whether the run produced a working binary that exited zero.
func (r Result) Success() bool {
	return r.Status == StatusSuccess
}

// assemble maps stage outcomes onto the one result variant they imply.
// A nil run outcome means execution was never attempted (compile failed or
// timed out). Internal faults never reach here; they are converted by
// internalResult.
func assemble(id string, co CompileOutcome, ro *RunOutcome) Result {
	res := Result{ID: id, CompileTime: co.Duration}

	if co.TimedOut {
		res.Status = StatusCompileTimeout
		res.Message = "compilation exceeded time limit"
		return res
	}
	if !co.OK {
		res.Status = StatusCompileError
		res.Diagnostics = co.Diagnostics
		res.Problems = ParseDiagnostics(co.Diagnostics, maxParsedDiagnostics)
		return res
	}
	if ro == nil {
		// Compile succeeded but nothing ran. Callers only hit this through
		// a fault path that should have produced an internal error already.
		res.Status = StatusInternalError
		res.Message = "execution outcome missing"
		return res
	}

	res.RunTime = ro.Duration

	switch {
	case ro.Truncated:
		res.Status = StatusOutputTooLarge
		res.Message = "output exceeded size limit"
	case ro.TimedOut:
		res.Status = StatusRuntimeTimeout
		res.Message = "execution exceeded time limit"
	case ro.ExitCode != 0:
		res.Status = StatusRuntimeError
		res.ExitCode = ro.ExitCode
		res.Stderr = ro.Stderr
		if ro.Signal != "" {
			res.Message = fmt.Sprintf("terminated by signal %s", ro.Signal)
		} else {
			res.Message = fmt.Sprintf("exited with code %d", ro.ExitCode)
		}
	default:
		res.Status = StatusSuccess
		res.Output = ro.Stdout
		res.Stderr = ro.Stderr // informational; zero exit wins
	}
	return res
}

// internalResult builds the InternalError variant. The message must already
// be sanitized of workspace paths.
func internalResult(id, msg string) Result {
	return Result{
		ID:      id,
		Status:  StatusInternalError,
		Message: msg,
	}
}
