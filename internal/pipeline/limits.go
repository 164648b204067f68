package pipeline

import "fmt"

// ResourceLimits are per-process rlimits applied to compile and run
// subprocesses as a hardening layer on top of the wall-clock timeouts. They
// bound damage from runaway programs; they are not a full security boundary.
type ResourceLimits struct {
	CPUSeconds uint64 `json:"cpu_seconds"`   // CPU time before SIGKILL
	MemoryMB   uint64 `json:"memory_mb"`     // address space cap
	FileSizeMB uint64 `json:"file_size_mb"`  // largest file the process may write
	OpenFiles  uint64 `json:"open_files"`    // descriptor cap
	Processes  uint64 `json:"processes"`     // fork bomb protection
}

func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		CPUSeconds: 20,
		MemoryMB:   512,
		FileSizeMB: 32,
		OpenFiles:  64,
		Processes:  64,
	}
}

func (rl ResourceLimits) Validate() error {
	if rl.CPUSeconds < 1 || rl.CPUSeconds > 300 {
		return fmt.Errorf("%w: cpu_seconds must be 1-300, got %d", ErrInvalidRequest, rl.CPUSeconds)
	}
	if rl.MemoryMB < 16 || rl.MemoryMB > 8192 {
		return fmt.Errorf("%w: memory_mb must be 16-8192, got %d", ErrInvalidRequest, rl.MemoryMB)
	}
	if rl.FileSizeMB < 1 || rl.FileSizeMB > 1024 {
		return fmt.Errorf("%w: file_size_mb must be 1-1024, got %d", ErrInvalidRequest, rl.FileSizeMB)
	}
	if rl.OpenFiles < 8 || rl.OpenFiles > 1024 {
		return fmt.Errorf("%w: open_files must be 8-1024, got %d", ErrInvalidRequest, rl.OpenFiles)
	}
	if rl.Processes < 1 || rl.Processes > 512 {
		return fmt.Errorf("%w: processes must be 1-512, got %d", ErrInvalidRequest, rl.Processes)
	}
	return nil
}
