package hmacbind

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dtutils/state/internal/keystore"
)

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.key"), []byte("k"), 0o600))
	ks := keystore.NewFileKeystore(dir)

	_, err := New("rot13", "state", ks)
	require.Error(t, err, "expected error for unknown algorithm")
}

func TestSumIsDeterministicAndKeyed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.key"), []byte("k1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.key"), []byte("k2"), 0o600))
	ks := keystore.NewFileKeystore(dir)

	d1, err := New("sha256", "state", ks)
	require.NoError(t, err)
	d2, err := New("sha256", "other", ks)
	require.NoError(t, err)

	data := []byte("payload")
	s1a := d1.Sum(data)
	s1b := d1.Sum(data)
	require.Equal(t, s1a, s1b, "Sum should be deterministic")
	require.NotEqual(t, s1a, d2.Sum(data), "different keys should produce different macs")
	require.Equal(t, 32, d1.Length())
}
