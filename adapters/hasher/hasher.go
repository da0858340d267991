// Package hasher provides content fingerprints for the build cache.
package hasher

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/irusland/pyroto/ports"
	"golang.org/x/crypto/blake2b"
)

// Blake2b fingerprints with BLAKE2b-256.
type Blake2b struct{}

// Sum digests parts. Every part is prefixed with its length so that
// boundaries contribute to the digest.
func (Blake2b) Sum(parts ...[]byte) string {
	h, _ := blake2b.New256(nil) // only fails for keys longer than 64 bytes

	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

var _ ports.Fingerprinter = Blake2b{}
