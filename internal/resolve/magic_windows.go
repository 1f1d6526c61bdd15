//go:build windows

package resolve

const (
	exeSuffix    = ".exe"
	platformName = "Windows"
)

// PE executables start with the DOS "MZ" stub.
func hasExecMagic(head []byte) bool {
	return len(head) >= 2 && head[0] == 'M' && head[1] == 'Z'
}
