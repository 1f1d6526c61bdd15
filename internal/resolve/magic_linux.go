//go:build linux

package resolve

import "bytes"

const (
	exeSuffix    = ""
	platformName = "Linux"
)

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

func hasExecMagic(head []byte) bool {
	if len(head) < 4 {
		return false
	}
	if bytes.HasPrefix(head, elfMagic) {
		return true
	}
	// Interpreter scripts are legitimate here (the tools dir may carry a
	// wrapper script on Linux distributions).
	return bytes.HasPrefix(head, []byte("#!"))
}
