//go:build darwin

package local

import (
	"syscall"
	"time"
)

func extractBirthTime(stat *syscall.Stat_t) *time.Time {
	t := time.Unix(stat.Birthtimespec.Sec, stat.Birthtimespec.Nsec)
	if t.IsZero() {
		return nil
	}
	return &t
}
