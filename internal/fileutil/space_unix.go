//go:build unix

package fileutil

import "golang.org/x/sys/unix"

// FreeSpace returns the bytes available to unprivileged users on the
// filesystem holding path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// CheckWritable verifies the directory grants write and search access.
func CheckWritable(dir string) error {
	return unix.Access(dir, unix.W_OK|unix.X_OK)
}
