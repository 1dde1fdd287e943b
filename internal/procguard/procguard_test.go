package procguard

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseCleanPath(t *testing.T) {
	path, err := Acquire()
	require.NoError(t, err)
	defer Release(path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	Release(path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireRejectsLiveMatchingProcess(t *testing.T) {
	origAlive, origName := processAlive, processName
	defer func() { processAlive, processName = origAlive, origName }()

	processAlive = func(pid int) bool { return true }
	processName = func(pid int) string { return "climp" }

	path := Path()
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))
	defer os.Remove(path)

	_, err := Acquire()
	assert.Error(t, err)
}

func TestAcquireIgnoresStaleDeadPid(t *testing.T) {
	origAlive := processAlive
	defer func() { processAlive = origAlive }()
	processAlive = func(pid int) bool { return false }

	path := Path()
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))
	defer os.Remove(path)

	gotPath, err := Acquire()
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
}
