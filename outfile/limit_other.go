//go:build !linux && !darwin

package outfile

// DefaultMaxOpen returns fallback on platforms without RLIMIT_NOFILE.
func DefaultMaxOpen(fallback int) int {
	return fallback
}
