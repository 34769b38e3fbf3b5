// Package hmacbind maps a state schema's "algo" property to a keyed digest
// implementing rawbackend.Digest, the same name->constructor registry
// digest_alloc(algo) provides upstream.
package hmacbind

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/dtutils/state/internal/dterr"
	"github.com/dtutils/state/internal/keystore"
)

// Algorithms maps an "algo" property value to the matching hash constructor.
var Algorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"md5":    md5.New,
}

// HMAC is a rawbackend.Digest backed by crypto/hmac keyed with a secret
// resolved from a Keystore.
type HMAC struct {
	key []byte
	new func() hash.Hash
}

// New resolves algo against Algorithms and name's secret against ks,
// returning a Digest ready for rawbackend.Configure.
func New(algo, name string, ks keystore.Keystore) (*HMAC, error) {
	newHash, ok := Algorithms[algo]
	if !ok {
		return nil, dterr.New(dterr.BackendUnavailable, "unsupported hmac algorithm %q", algo)
	}
	key, err := ks.GetSecret(name)
	if err != nil {
		return nil, dterr.Wrap(dterr.BackendUnavailable, err, "resolving hmac key for %q", name)
	}
	return &HMAC{key: key, new: newHash}, nil
}

// Length returns the digest's output size in bytes.
func (h *HMAC) Length() int {
	return hmac.New(h.new, h.key).Size()
}

// Sum computes the keyed MAC over data.
func (h *HMAC) Sum(data []byte) []byte {
	mac := hmac.New(h.new, h.key)
	mac.Write(data)
	return mac.Sum(nil)
}
