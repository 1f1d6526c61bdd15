package logger

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrepareServiceLog opens path for append, creating it if absent. If the file
// already exceeds maxSizeMB (floored at 1) it is first renamed to "<path>.1",
// replacing any previous backup. Exactly one backup generation is kept; this
// is a rolling window, not an archive.
//
// The returned file is handed to a spawned service as its combined
// stdout/stderr sink, so rotation only ever happens between runs.
func PrepareServiceLog(path string, maxSizeMB int) (*os.File, error) {
	if maxSizeMB < 1 {
		maxSizeMB = 1
	}
	maxBytes := int64(maxSizeMB) * 1024 * 1024
	if fi, err := os.Stat(path); err == nil && fi.Size() > maxBytes {
		rotated := path + ".1"
		_ = os.Remove(rotated)
		if err := os.Rename(path, rotated); err != nil {
			return nil, fmt.Errorf("rotate %s: %w", path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return f, nil
}
