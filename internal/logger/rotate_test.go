package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareServiceLogCreates(t *testing.T) {
	p := filepath.Join(t.TempDir(), "logs", "core.log")
	f, err := PrepareServiceLog(p, 1)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, err = f.WriteString("hello\n")
	require.NoError(t, err)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(b))
}

func TestPrepareServiceLogRotatesOverThreshold(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "core.log")
	big := strings.Repeat("x", 1024*1024+1)
	require.NoError(t, os.WriteFile(p, []byte(big), 0o640))

	f, err := PrepareServiceLog(p, 1)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rotated, err := os.ReadFile(p + ".1")
	require.NoError(t, err)
	assert.Equal(t, big, string(rotated), "backup holds the prior content")

	fi, err := os.Stat(p)
	require.NoError(t, err)
	assert.Zero(t, fi.Size(), "active log starts fresh")
}

func TestPrepareServiceLogKeepsSingleBackup(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "seaweed.log")

	for i := 0; i < 3; i++ {
		big := strings.Repeat(string(rune('a'+i)), 1024*1024+1)
		require.NoError(t, os.WriteFile(p, []byte(big), 0o640))
		f, err := PrepareServiceLog(p, 1)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"seaweed.log", "seaweed.log.1"}, names)

	b, err := os.ReadFile(p + ".1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "c"), "backup is the most recent generation")
}

func TestPrepareServiceLogUnderThresholdAppends(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "core.log")
	require.NoError(t, os.WriteFile(p, []byte("first\n"), 0o640))

	f, err := PrepareServiceLog(p, 1)
	require.NoError(t, err)
	_, err = f.WriteString("second\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(b))
	_, err = os.Stat(p + ".1")
	assert.True(t, os.IsNotExist(err), "no backup when under threshold")
}
