//go:build linux || darwin

package outfile

import (
	"golang.org/x/sys/unix"
)

// DefaultMaxOpen derives a capacity from the soft RLIMIT_NOFILE, leaving
// most descriptors to the rest of the process. It never exceeds fallback.
func DefaultMaxOpen(fallback int) int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return fallback
	}
	limit := int(rl.Cur / 4)
	if limit < 1 {
		return 1
	}
	return min(limit, fallback)
}
