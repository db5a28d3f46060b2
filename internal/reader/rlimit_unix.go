//go:build linux || darwin

package reader

import (
	"golang.org/x/sys/unix"

	"github.com/open-logtail/logtailcore/internal/logger"
)

// ClampToRlimit narrows a configured open-file budget to the process's
// actual RLIMIT_NOFILE soft limit, the same heuristic gcsfuse's
// ChooseTempDirLimitNumFiles uses before handing fuseutil a
// TempDirLimitNumFiles: ask the kernel what the real ceiling is rather
// than trusting a static config value that may have been copied from a
// different host. Returns configured unchanged if the rlimit query fails
// or configured already fits comfortably under it.
func ClampToRlimit(configured int) int {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlimit); err != nil {
		logger.Warnf("reader: querying RLIMIT_NOFILE failed, using configured max-open-files=%d: %v", configured, err)
		return configured
	}
	// Reserve a quarter of the limit for sockets, the checkpoint store's
	// bbolt file, stdio and everything else the process opens that isn't
	// a tailed log file.
	usable := int(rlimit.Cur/2 + rlimit.Cur/4)
	if configured <= 0 || configured > usable {
		return usable
	}
	return configured
}
