//go:build windows

package proc

import (
	"errors"
	"syscall"
)

// Common Windows spawn failures:
// 2 = file not found, 5 = access denied, 193 = bad exe format, 126 = missing DLL.
func spawnHint(err error) string {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ""
	}
	switch uintptr(errno) {
	case 2:
		return "path not found"
	case 5:
		return "access denied (AV/quarantine/permissions)"
	case 193:
		return "not a valid Windows executable (wrong arch?)"
	case 126:
		return "missing dependency/DLL (VC runtime?)"
	default:
		return ""
	}
}
