//go:build unix && !darwin

package local

import (
	"syscall"
	"time"
)

// extractBirthTime returns nil: syscall.Stat_t carries no birth time outside
// darwin, and statx is not used.
func extractBirthTime(*syscall.Stat_t) *time.Time {
	return nil
}
