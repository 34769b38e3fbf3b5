package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesAndLocksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	l, err := Acquire(path)
	require.NoError(t, err)
	defer l.Close()

	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestAcquireReusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	l, err := Acquire(path)
	require.NoError(t, err)
	l.Close()
}

func TestCloseReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	l, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l2, err := Acquire(path)
	require.NoError(t, err, "second Acquire after Close")
	l2.Close()
}
