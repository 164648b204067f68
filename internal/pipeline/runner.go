package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// Default capture caps for the run stage, matching what interactive snippet
// output realistically needs. A program that crosses either cap is killed
// and the run is reported as output_too_large.
const (
	defaultStdoutCap = 1 << 20    // 1MB
	defaultStderrCap = 256 * 1024 // 256KB
)

// Runner executes a compiled workspace binary directly, no shell in between.
type Runner struct {
	stdoutCap int
	stderrCap int
	limits    ResourceLimits
	hardening bool
}

// Run executes the workspace binary, bounded by timeout. Stdin, when
// non-empty, is written to the workspace input file and fed to the process;
// otherwise the process sees an immediately-empty input stream so a program
// that unexpectedly reads blocks on nothing and fails fast. Timeouts,
// non-zero exits, signal deaths and output-cap kills are all reported in the
// outcome; the returned error covers internal faults only.
func (r *Runner) Run(ctx context.Context, ws *Workspace, stdin string, timeout time.Duration) (RunOutcome, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(rctx, ws.BinaryPath) // #nosec G204 -- binary produced by our own compile stage inside the workspace
	stdout := &cappedWriter{max: r.stdoutCap, onExceed: cancel}
	stderr := &cappedWriter{max: r.stderrCap, onExceed: cancel}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setupProcessGroup(cmd)

	if stdin != "" {
		if err := os.WriteFile(ws.InputPath, []byte(stdin), 0600); err != nil {
			return RunOutcome{}, fmt.Errorf("writing input file: %w", err)
		}
		in, err := os.Open(ws.InputPath)
		if err != nil {
			return RunOutcome{}, fmt.Errorf("opening input file: %w", err)
		}
		defer in.Close()
		cmd.Stdin = in
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RunOutcome{}, fmt.Errorf("starting program: %w", err)
	}
	if r.hardening {
		if err := applyResourceLimits(cmd.Process.Pid, r.limits); err != nil {
			log.Warn().Err(err).Int("pid", cmd.Process.Pid).Msg("failed to apply program resource limits")
		}
	}

	waitErr := cmd.Wait()
	out := RunOutcome{
		Stdout:   stdout.Text(),
		Stderr:   stderr.Text(),
		Duration: time.Since(start),
	}

	// An output-cap kill cancels rctx itself, so check the caps before
	// reading the context state.
	if stdout.Exceeded() || stderr.Exceeded() {
		out.Truncated = true
		return out, nil
	}
	if ctx.Err() != nil {
		return RunOutcome{}, fmt.Errorf("run canceled: %w", ctx.Err())
	}
	if rctx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		return out, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return RunOutcome{}, fmt.Errorf("waiting for program: %w", waitErr)
		}
		out.ExitCode = exitErr.ExitCode()
		out.Signal = signalName(waitErr)
	}
	return out, nil
}
