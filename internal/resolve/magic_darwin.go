//go:build darwin

package resolve

import (
	"bytes"
	"encoding/binary"
)

const (
	exeSuffix    = ""
	platformName = "macOS"
)

// Mach-O magic numbers: 64-bit, 32-bit, and universal (fat) binaries.
var machoMagics = []uint32{0xfeedfacf, 0xfeedface, 0xcafebabe, 0xbebafeca}

func hasExecMagic(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	le := binary.LittleEndian.Uint32(head[:4])
	be := binary.BigEndian.Uint32(head[:4])
	for _, m := range machoMagics {
		if le == m || be == m {
			return true
		}
	}
	return bytes.HasPrefix(head, []byte("#!"))
}
