package pipeline

import (
	"bytes"
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// setupProcessGroup puts the child in its own process group and arranges for
// context cancellation to kill the whole group, so grandchildren spawned by
// the user program die with it. WaitDelay unblocks Wait even if a survivor
// holds the output pipes open.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
}

// signalName extracts the signal a child died to, if any, from a Wait error.
func signalName(err error) string {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return ""
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return unix.SignalName(unix.Signal(ws.Signal()))
}

// cappedWriter collects stream output up to max bytes. Overflow is discarded
// rather than erroring, so exec's pipe copier keeps draining and Wait is not
// poisoned with a write error; onExceed fires once at the moment the cap is
// crossed and is the hook that kills the producing process.
type cappedWriter struct {
	buf      bytes.Buffer
	max      int
	exceeded bool
	onExceed func()
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	if w.exceeded {
		return len(p), nil
	}
	if space := w.max - w.buf.Len(); len(p) > space {
		if space > 0 {
			w.buf.Write(p[:space])
		}
		w.exceeded = true
		if w.onExceed != nil {
			w.onExceed()
		}
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *cappedWriter) Text() string {
	return w.buf.String()
}

// Exceeded reports whether the cap was hit. Only valid after cmd.Wait has
// returned; exec's copier goroutine owns the writer until then.
func (w *cappedWriter) Exceeded() bool {
	return w.exceeded
}

// truncateMarker is appended to capped compiler diagnostics so callers can
// tell the text is incomplete.
const truncateMarker = "\n... [output truncated]"
