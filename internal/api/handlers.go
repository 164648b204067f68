package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"cpp-snippet-runner/internal/monitor"
	"cpp-snippet-runner/internal/pipeline"
)

// Executor is the slice of the pipeline the handlers need. Satisfied by
// *pipeline.Pipeline.
type Executor interface {
	Execute(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	ActiveCount() int64
	CompilerVersion() string
}

type Handlers struct {
	exec         Executor
	metrics      *monitor.Metrics
	allowedFlags []string
}

func NewHandlers(exec Executor, metrics *monitor.Metrics, allowedFlags []string) *Handlers {
	return &Handlers{
		exec:         exec,
		metrics:      metrics,
		allowedFlags: allowedFlags,
	}
}

// ValidateFlags rejects any flag not on the allow-list. Matching is exact,
// so forms that embed arguments or paths never reach the compiler argv.
func ValidateFlags(flags, allowed []string) error {
	if len(flags) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		set[f] = struct{}{}
	}
	for _, f := range flags {
		if _, ok := set[f]; !ok {
			return fmt.Errorf("flag %q is not allowed", f)
		}
	}
	return nil
}

func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed, r)
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge, r)
			return
		}
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if req.Source == "" {
		writeError(w, "source is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if err := ValidateFlags(req.Flags, h.allowedFlags); err != nil {
		writeError(w, err.Error(), "FLAG_NOT_ALLOWED", http.StatusBadRequest, r)
		return
	}

	if h.exec == nil {
		writeError(w, "pipeline unavailable", "RUNNER_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	result, err := h.exec.Execute(r.Context(), pipeline.Request{
		Source:         req.Source,
		Stdin:          req.Stdin,
		Flags:          req.Flags,
		CompileTimeout: req.CompileTimeout.Duration,
		RunTimeout:     req.RunTimeout.Duration,
	})
	if err != nil {
		switch {
		case pipeline.IsInvalidRequest(err):
			writeError(w, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest, r)
		case errors.Is(err, pipeline.ErrClosed):
			writeError(w, "service is shutting down", "SHUTTING_DOWN", http.StatusServiceUnavailable, r)
		default:
			log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution failed")
			writeError(w, "execution failed", "EXECUTION_FAILED", http.StatusInternalServerError, r)
		}
		return
	}

	// An internal fault still yields the full result shape so clients always
	// parse one schema; the 500 signals that a retry is reasonable.
	status := http.StatusOK
	if result.Status == pipeline.StatusInternalError {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ToRunResponse(result))
}

func (h *Handlers) HandleExamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed, r)
		return
	}
	writeJSON(w, http.StatusOK, Examples())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
