// Package keystore resolves a named secret for HMAC-protected state
// instances. The interface is the external collaborator the CLI wires a
// concrete implementation into; FileKeystore is the one this repo ships.
package keystore

import (
	"os"
	"path/filepath"

	"github.com/dtutils/state/internal/dterr"
)

// Keystore resolves a secret by name, e.g. the state instance's own name.
type Keystore interface {
	GetSecret(name string) ([]byte, error)
}

// FileKeystore resolves name to <Dir>/<name>.key and returns the file's raw
// bytes as the secret, a flat-file stand-in for a blob-backed keystore.
type FileKeystore struct {
	Dir string
}

// NewFileKeystore returns a FileKeystore rooted at dir.
func NewFileKeystore(dir string) *FileKeystore {
	return &FileKeystore{Dir: dir}
}

// GetSecret reads <Dir>/<name>.key. name must not escape Dir via path
// separators.
func (k *FileKeystore) GetSecret(name string) ([]byte, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, dterr.New(dterr.InvalidArgument, "invalid keystore secret name %q", name)
	}
	path := filepath.Join(k.Dir, name+".key")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, dterr.Wrap(dterr.NotFound, err, "reading secret %q", name)
	}
	return b, nil
}
