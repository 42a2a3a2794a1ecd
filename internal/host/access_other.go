//go:build !unix

package host

import (
	"fmt"
	"os"
)

// platformAccess falls back to permission bits where access(2) is unavailable.
func platformAccess(path string, mode AccessMode) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	perm := info.Mode().Perm()
	var ok bool
	switch mode {
	case AccessRead:
		ok = perm&0o444 != 0
	case AccessWrite:
		ok = perm&0o222 != 0
	default:
		ok = true
	}
	if !ok {
		return fmt.Errorf("access %s: permission denied", path)
	}
	return nil
}
