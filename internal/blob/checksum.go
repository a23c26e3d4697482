package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ComputeChecksumReader computes the SHA-256 checksum of everything read from r.
func ComputeChecksumReader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// Checksum returns the hex SHA-256 of a blob file.
func Checksum(path string) (string, error) {
	//nolint:gosec // G304: File path comes from the build staging directory
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open blob file: %w", ErrStorage, err)
	}
	defer func() {
		_ = file.Close() // Best effort close
	}()

	sum, err := ComputeChecksumReader(file)
	if err != nil {
		return "", fmt.Errorf("%w: failed to hash blob file: %w", ErrStorage, err)
	}
	return hex.EncodeToString(sum[:]), nil
}
