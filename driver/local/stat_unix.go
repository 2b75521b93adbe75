//go:build unix

package local

import (
	"os"
	"strconv"
	"syscall"
	"time"
)

// platformMetadata reports owner ids and, where the kernel exposes it, the
// birth time of the file.
func platformMetadata(info os.FileInfo) map[string]string {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}

	md := map[string]string{
		"uid": strconv.FormatUint(uint64(stat.Uid), 10),
		"gid": strconv.FormatUint(uint64(stat.Gid), 10),
	}
	if created := extractBirthTime(stat); created != nil {
		md["created"] = created.UTC().Format(time.RFC3339Nano)
	}
	return md
}
