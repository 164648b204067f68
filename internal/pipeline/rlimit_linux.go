//go:build linux

package pipeline

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// applyResourceLimits installs rlimits on an already-started child via
// prlimit(2). This runs immediately after Start, so there is a brief window
// before the limits land; acceptable for a hardening layer, and the only
// option short of an intermediary re-exec since Go has no fork hook.
func applyResourceLimits(pid int, rl ResourceLimits) error {
	limits := []struct {
		resource int
		value    uint64
	}{
		{unix.RLIMIT_CPU, rl.CPUSeconds},
		{unix.RLIMIT_AS, rl.MemoryMB << 20},
		{unix.RLIMIT_FSIZE, rl.FileSizeMB << 20},
		{unix.RLIMIT_NOFILE, rl.OpenFiles},
		{unix.RLIMIT_NPROC, rl.Processes},
		{unix.RLIMIT_CORE, 0},
	}

	for _, l := range limits {
		lim := unix.Rlimit{Cur: l.value, Max: l.value}
		if err := unix.Prlimit(pid, l.resource, &lim, nil); err != nil {
			return fmt.Errorf("prlimit resource %d: %w", l.resource, err)
		}
	}
	return nil
}
