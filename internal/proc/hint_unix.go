//go:build !windows

package proc

import (
	"errors"
	"syscall"
)

func spawnHint(err error) string {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ""
	}
	switch errno {
	case syscall.ENOENT:
		return "path not found"
	case syscall.EACCES, syscall.EPERM:
		return "access denied (permissions or quarantine)"
	case syscall.ENOEXEC:
		return "not a valid executable for this platform (wrong arch?)"
	default:
		return ""
	}
}
