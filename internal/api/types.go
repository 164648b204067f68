package api

import (
	"time"

	"cpp-snippet-runner/internal/pipeline"
)

// RunRequest is the API-level request to compile and execute a C++ snippet.
type RunRequest struct {
	Source         string   `json:"source"`
	Stdin          string   `json:"stdin,omitempty"`
	Flags          []string `json:"flags,omitempty"`
	CompileTimeout Duration `json:"compile_timeout,omitempty"`
	RunTimeout     Duration `json:"run_timeout,omitempty"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "10s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// RunResponse is the API-level result of one pipeline run. Exactly one
// status is set; which of the optional fields carry text depends on it.
type RunResponse struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	Output      string               `json:"output,omitempty"`
	Stderr      string               `json:"stderr,omitempty"`
	Diagnostics string               `json:"diagnostics,omitempty"`
	Problems    []CompilerDiagnostic `json:"problems,omitempty"`
	ExitCode    int                  `json:"exit_code"`
	Message     string               `json:"message,omitempty"`
	CompileTime string               `json:"compile_time"`
	RunTime     string               `json:"run_time"`
}

// CompilerDiagnostic is one parsed compiler message.
type CompilerDiagnostic struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// ToRunResponse maps a pipeline result onto the wire shape.
func ToRunResponse(res pipeline.Result) RunResponse {
	resp := RunResponse{
		ID:          res.ID,
		Status:      string(res.Status),
		Output:      res.Output,
		Stderr:      res.Stderr,
		Diagnostics: res.Diagnostics,
		ExitCode:    res.ExitCode,
		Message:     res.Message,
		CompileTime: res.CompileTime.String(),
		RunTime:     res.RunTime.String(),
	}
	if len(res.Problems) > 0 {
		resp.Problems = make([]CompilerDiagnostic, 0, len(res.Problems))
		for _, p := range res.Problems {
			resp.Problems = append(resp.Problems, CompilerDiagnostic{
				Line:     p.Line,
				Column:   p.Column,
				Severity: p.Severity,
				Message:  p.Message,
			})
		}
	}
	return resp
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	Compiler   string `json:"compiler,omitempty"`
	ActiveRuns int64  `json:"active_runs"`
	Uptime     string `json:"uptime"`
}

// IndexResponse describes the service for a bare GET /.
type IndexResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}
