package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

const fingerprintChunkSize = 32 * 1024

// Fingerprint computes the hex SHA-256 of the full stream in bounded
// chunks and seeks the stream back to its start, so the caller can re-read
// the exact same bytes for storage. Read errors propagate; there is no
// fallback hash.
func Fingerprint(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind stream before hashing: %w", err)
	}

	h := sha256.New()
	buf := make([]byte, fingerprintChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind stream after hashing: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
