//go:build linux || darwin || freebsd

package spool

import "golang.org/x/sys/unix"

// availableDiskSpace reports the bytes an unprivileged writer may still use on
// the filesystem holding dir.
func availableDiskSpace(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
