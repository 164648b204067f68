package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// defaultDiagnosticsCap bounds captured compiler stderr. Template-heavy
// errors can run to megabytes; past the cap the text is truncated with a
// marker, which is not a failure the way a run-stage overflow is.
const defaultDiagnosticsCap = 256 * 1024

// Compiler invokes the native toolchain against a workspace's source file.
// The binary path is resolved once at construction; flags arrive per request
// and are passed as discrete argv entries, never through a shell.
type Compiler struct {
	bin       string
	diagCap   int
	limits    ResourceLimits
	hardening bool
}

// resolveCompiler locates the toolchain binary. A bare name is searched on
// PATH; anything with a separator is checked directly.
func resolveCompiler(path string) (string, error) {
	if path == "" {
		path = "g++"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrCompilerNotFound, path, err)
	}
	return resolved, nil
}

// Version runs the toolchain's --version probe and returns its first line.
func (c *Compiler) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, c.bin, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("probing compiler version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Compile writes source verbatim to the workspace's source path and invokes
// the compiler against it, bounded by timeout. Compile failures and the
// compile timeout are reported in the outcome; the returned error covers
// internal faults only (write failure, spawn failure, caller cancellation).
func (c *Compiler) Compile(ctx context.Context, source string, ws *Workspace, flags []string, timeout time.Duration) (CompileOutcome, error) {
	if err := os.WriteFile(ws.SourcePath, []byte(source), 0600); err != nil {
		return CompileOutcome{}, fmt.Errorf("writing source file: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(flags)+3)
	args = append(args, ws.SourcePath, "-o", ws.BinaryPath)
	args = append(args, flags...)

	diag := &cappedWriter{max: c.diagCap}
	cmd := exec.CommandContext(cctx, c.bin, args...) // #nosec G204 -- argv built from resolved binary and workspace paths; flags pass through allow-list validation upstream
	cmd.Stdout = io.Discard
	cmd.Stderr = diag
	setupProcessGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return CompileOutcome{}, fmt.Errorf("starting compiler: %w", err)
	}
	c.applyHardening(cmd.Process.Pid)

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	if waitErr == nil {
		return CompileOutcome{OK: true, Duration: elapsed}, nil
	}

	if ctx.Err() != nil {
		// The caller gave up, not the stage deadline.
		return CompileOutcome{}, fmt.Errorf("compile canceled: %w", ctx.Err())
	}
	if cctx.Err() == context.DeadlineExceeded {
		return CompileOutcome{TimedOut: true, Duration: elapsed}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		text := diag.Text()
		if diag.Exceeded() {
			text += truncateMarker
		}
		return CompileOutcome{Diagnostics: text, Duration: elapsed}, nil
	}

	return CompileOutcome{}, fmt.Errorf("waiting for compiler: %w", waitErr)
}

func (c *Compiler) applyHardening(pid int) {
	if !c.hardening {
		return
	}
	if err := applyResourceLimits(pid, c.limits); err != nil {
		log.Warn().Err(err).Int("pid", pid).Msg("failed to apply compiler resource limits")
	}
}
