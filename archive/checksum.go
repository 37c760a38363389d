package archive

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// IDPrefixLen is the number of leading bytes hashed into the cross-system
// archive ID. It must match the server's own ID computation byte for byte,
// or deduplication breaks silently.
const IDPrefixLen = 512000

// checksumChunkSize is the streaming chunk size for full-file checksums.
const checksumChunkSize = 8192

// emptyDigest is sha1 of zero bytes. A cross-system ID equal to this value
// means the source was empty or unreadable and is never a valid identity.
const emptyDigest = "da39a3ee5e6b4b0d3255bfef95601890afd80709"

// ErrInvalidIdentity is returned when the computed archive ID is the digest
// of empty input.
var ErrInvalidIdentity = errors.New("archive id computed over empty input")

// Checksum streams r through sha1 in fixed-size chunks and returns the hex
// digest. The whole stream is consumed; nothing is buffered beyond one chunk.
func Checksum(r io.Reader) (string, error) {
	h := sha1.New()
	buf := make([]byte, checksumChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("checksum read: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumFile computes the transport checksum of the file at path.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Checksum(f)
}

// ComputeID computes the cross-system archive ID: sha1 over at most the
// first IDPrefixLen bytes of the file. Returns ErrInvalidIdentity when the
// digest equals the empty-input digest.
func ComputeID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, io.LimitReader(f, IDPrefixLen)); err != nil {
		return "", fmt.Errorf("archive id read: %w", err)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if digest == emptyDigest {
		return "", fmt.Errorf("%s: %w", path, ErrInvalidIdentity)
	}
	return digest, nil
}
