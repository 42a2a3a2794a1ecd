//go:build unix

package host

import "golang.org/x/sys/unix"

func platformAccess(path string, mode AccessMode) error {
	switch mode {
	case AccessRead:
		return unix.Access(path, unix.R_OK|unix.X_OK)
	case AccessWrite:
		return unix.Access(path, unix.W_OK|unix.X_OK)
	default:
		return unix.Access(path, unix.X_OK)
	}
}
