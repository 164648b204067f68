//go:build !linux

package pipeline

// applyResourceLimits is a no-op off Linux; prlimit(2) has no portable
// equivalent and the wall-clock timeouts still bound every run.
func applyResourceLimits(int, ResourceLimits) error {
	return nil
}
