package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// FileStore keeps downloaded attachment bodies addressed by their content hash,
// so the same attachment saved twice occupies one file.
type FileStore interface {
	// Save is idempotent: content already stored under hash is left untouched.
	Save(r io.Reader, hash string) error
	Get(hash string) (io.ReadCloser, error)
	// Path is where the content for hash lives once saved.
	Path(hash string) string
}

// Hash names content in a FileStore.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
