package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cpp-snippet-runner/internal/config"
	"cpp-snippet-runner/internal/monitor"
)

// Pipeline drives one snippet from source text to a terminal Result:
// workspace acquisition, compile, run, assembly, release. It is safe for
// concurrent use; every run works against its own workspace under a shared
// scratch root.
type Pipeline struct {
	cfg             config.PipelineConfig
	workspaces      *WorkspaceManager
	compiler        *Compiler
	runner          *Runner
	metrics         *monitor.Metrics
	tracer          *monitor.Tracer
	detector        *monitor.AbuseDetector
	compilerVersion string

	sem         chan struct{}
	active      atomic.Int64
	wg          sync.WaitGroup
	mu          sync.Mutex
	closed      bool
	cancelSweep context.CancelFunc
}

// New builds a Pipeline from configuration: resolves the compiler binary,
// prepares the scratch root, and starts the orphan sweeper. A nil metrics set
// gets a private registry.
func New(cfg config.PipelineConfig, metrics *monitor.Metrics) (*Pipeline, error) {
	bin, err := resolveCompiler(cfg.CompilerPath)
	if err != nil {
		return nil, err
	}

	workspaces, err := NewWorkspaceManager(cfg.ScratchDir)
	if err != nil {
		return nil, err
	}

	if metrics == nil {
		metrics = monitor.NewMetrics()
	}

	limits := DefaultResourceLimits()
	if cfg.Hardening.Enabled {
		limits = ResourceLimits{
			CPUSeconds: cfg.Hardening.CPUSeconds,
			MemoryMB:   cfg.Hardening.MemoryMB,
			FileSizeMB: cfg.Hardening.FileSizeMB,
			OpenFiles:  cfg.Hardening.OpenFiles,
			Processes:  cfg.Hardening.Processes,
		}
		if err := limits.Validate(); err != nil {
			return nil, fmt.Errorf("hardening limits: %w", err)
		}
	}

	stdoutCap := cfg.StdoutCapBytes
	if stdoutCap < 1 {
		stdoutCap = defaultStdoutCap
	}
	stderrCap := cfg.StderrCapBytes
	if stderrCap < 1 {
		stderrCap = defaultStderrCap
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 64
	}

	p := &Pipeline{
		cfg:        cfg,
		workspaces: workspaces,
		compiler: &Compiler{
			bin:       bin,
			diagCap:   stderrCap,
			limits:    limits,
			hardening: cfg.Hardening.Enabled,
		},
		runner: &Runner{
			stdoutCap: stdoutCap,
			stderrCap: stderrCap,
			limits:    limits,
			hardening: cfg.Hardening.Enabled,
		},
		metrics:  metrics,
		tracer:   monitor.NewTracer(),
		detector: monitor.NewAbuseDetector(),
		sem:      make(chan struct{}, maxConcurrent),
	}

	vctx, vcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer vcancel()
	if version, err := p.compiler.Version(vctx); err != nil {
		log.Warn().Err(err).Str("compiler", bin).Msg("compiler version probe failed")
	} else {
		p.compilerVersion = version
		log.Info().Str("compiler", bin).Str("version", version).Msg("compiler resolved")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancelSweep = cancel
	go p.sweepLoop(ctx)

	return p, nil
}

// sweepLoop periodically removes orphaned workspace files left behind by a
// previous process that died mid-run.
func (p *Pipeline) sweepLoop(ctx context.Context) {
	interval := p.cfg.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	maxAge := p.cfg.SweepMaxAge
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}

	// Run once on startup
	p.sweep(maxAge)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweep(maxAge)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) sweep(maxAge time.Duration) {
	n, err := p.workspaces.SweepOrphans(maxAge)
	if err != nil {
		log.Warn().Err(err).Msg("orphan sweep failed")
		return
	}
	if n > 0 {
		p.metrics.WorkspacesSwept.Add(float64(n))
	}
}

// Execute runs one snippet through the full pipeline. Every admitted request
// produces a Result carrying exactly one terminal status; the returned error
// is non-nil only when the request is rejected before a workspace exists
// (validation failure, shutdown, or caller cancellation while queued).
func (p *Pipeline) Execute(ctx context.Context, req Request) (res Result, err error) {
	runID := uuid.New().String()

	logger := log.With().
		Str("run_id", runID).
		Int("source_bytes", len(req.Source)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline panic recovered")
			p.metrics.RecordError("panic")
			p.metrics.RecordRun(string(StatusInternalError))
			res = internalResult(runID, "internal error")
			err = nil
		}
	}()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return Result{}, &PipelineError{RunID: runID, Op: "admit", Err: ErrClosed}
	}

	p.applyDefaults(&req)
	if verr := p.validateRequest(req); verr != nil {
		return Result{}, &PipelineError{RunID: runID, Op: "validate", Err: verr}
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return Result{}, &PipelineError{RunID: runID, Op: "acquire_slot", Err: ctx.Err()}
	}

	p.wg.Add(1)
	defer p.wg.Done()
	p.active.Add(1)
	defer p.active.Add(-1)
	p.metrics.ActiveRuns.Inc()
	defer p.metrics.ActiveRuns.Dec()
	p.metrics.SourceSizeBytes.Observe(float64(len(req.Source)))

	ctx, span := p.tracer.StartSpan(ctx, "execute",
		monitor.AttrRunID.String(runID),
		monitor.AttrSourceBytes.Int(len(req.Source)),
	)
	defer span.End()

	logger.Info().
		Dur("compile_timeout", req.CompileTimeout).
		Dur("run_timeout", req.RunTimeout).
		Msg("run admitted")

	p.reportFindings(logger, p.detector.ScanSource(req.Source))

	// Terminal bookkeeping for every admitted run. A panicked run has no
	// status yet; the recover handler above records it instead.
	defer func() {
		if res.Status == "" {
			return
		}
		p.metrics.RecordRun(string(res.Status))
		p.metrics.OutputSizeBytes.Observe(float64(len(res.Output) + len(res.Stderr)))
		span.SetAttributes(
			monitor.AttrStatus.String(string(res.Status)),
			monitor.AttrExitCode.Int(res.ExitCode),
			monitor.AttrDurationMS.Int64((res.CompileTime + res.RunTime).Milliseconds()),
		)
		logger.Info().
			Str("status", string(res.Status)).
			Int("exit_code", res.ExitCode).
			Dur("compile_time", res.CompileTime).
			Dur("run_time", res.RunTime).
			Msg("run completed")
	}()

	ws := p.workspaces.Acquire(runID)
	defer func() {
		if rerr := p.workspaces.Release(ws); rerr != nil {
			logger.Error().Err(rerr).Msg("workspace release failed")
			p.metrics.RecordError("workspace_release")
		}
	}()

	cctx, cspan := p.tracer.StartSpan(ctx, "compile")
	co, cerr := p.compiler.Compile(cctx, req.Source, ws, req.Flags, req.CompileTimeout)
	cspan.End()
	if cerr != nil {
		logger.Error().Err(cerr).Msg("compile stage failed")
		p.metrics.RecordError("compile")
		msg := sanitizeMessage("internal error during compilation: "+cerr.Error(), p.workspaces.Root(), runID)
		return internalResult(runID, msg), nil
	}
	p.metrics.RecordStage("compile", co.Duration.Seconds())
	if co.TimedOut {
		p.metrics.RecordTimeout("compile")
	}
	if !co.OK {
		return assemble(runID, co, nil), nil
	}

	rctx, rspan := p.tracer.StartSpan(ctx, "run")
	ro, rerr := p.runner.Run(rctx, ws, req.Stdin, req.RunTimeout)
	rspan.End()
	if rerr != nil {
		logger.Error().Err(rerr).Msg("run stage failed")
		p.metrics.RecordError("run")
		msg := sanitizeMessage("internal error during execution: "+rerr.Error(), p.workspaces.Root(), runID)
		return internalResult(runID, msg), nil
	}
	p.metrics.RecordStage("run", ro.Duration.Seconds())
	if ro.TimedOut {
		p.metrics.RecordTimeout("run")
	}
	p.reportFindings(logger, p.detector.ScanOutput(ro.Stdout+ro.Stderr))

	return assemble(runID, co, &ro), nil
}

// reportFindings logs abuse-detector findings and bumps the per-pattern
// counter. Findings never change the outcome of a run.
func (p *Pipeline) reportFindings(logger zerolog.Logger, findings []monitor.Finding) {
	for _, f := range findings {
		logger.Warn().
			Str("pattern", f.Pattern).
			Str("severity", f.Severity).
			Int("line", f.Line).
			Msg("suspicious snippet activity")
		p.metrics.RecordSuspicious(f.Pattern)
	}
}

func (p *Pipeline) applyDefaults(req *Request) {
	if req.CompileTimeout == 0 {
		req.CompileTimeout = p.cfg.CompileTimeout
	}
	if req.RunTimeout == 0 {
		req.RunTimeout = p.cfg.RunTimeout
	}
	if req.Flags == nil {
		req.Flags = p.cfg.DefaultFlags
	}
}

func (p *Pipeline) validateRequest(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if p.cfg.MaxCompileTimeout > 0 && req.CompileTimeout > p.cfg.MaxCompileTimeout {
		return fmt.Errorf("%w: compile timeout exceeds %s maximum", ErrInvalidRequest, p.cfg.MaxCompileTimeout)
	}
	if p.cfg.MaxRunTimeout > 0 && req.RunTimeout > p.cfg.MaxRunTimeout {
		return fmt.Errorf("%w: run timeout exceeds %s maximum", ErrInvalidRequest, p.cfg.MaxRunTimeout)
	}
	return nil
}

// ActiveCount returns the number of runs currently in flight.
func (p *Pipeline) ActiveCount() int64 {
	return p.active.Load()
}

// CompilerVersion returns the first line of the resolved compiler's
// --version output, or empty if the probe failed.
func (p *Pipeline) CompilerVersion() string {
	return p.compilerVersion
}

// Close stops the sweeper, rejects new runs, and waits up to 30s for active
// runs to drain. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.cancelSweep != nil {
		p.cancelSweep()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all runs drained")
	case <-time.After(30 * time.Second):
		log.Warn().Int64("active", p.active.Load()).Msg("timed out waiting for runs to drain")
	}
	return nil
}
