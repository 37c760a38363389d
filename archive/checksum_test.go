package archive

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestChecksum_MatchesReferenceDigest(t *testing.T) {
	data := bytes.Repeat([]byte("catapult"), 4096) // spans multiple chunks

	got, err := Checksum(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}

	sum := sha1.Sum(data)
	if want := hex.EncodeToString(sum[:]); got != want {
		t.Errorf("Checksum = %s, want %s", got, want)
	}
}

func TestChecksumFile_DeterministicAcrossPaths(t *testing.T) {
	dir := t.TempDir()
	data := []byte("identical content, different names")
	a := writeFile(t, dir, "a.zip", data)
	b := writeFile(t, dir, "b.cbz", data)

	sumA, err := ChecksumFile(a)
	if err != nil {
		t.Fatalf("ChecksumFile(a): %v", err)
	}
	sumB, err := ChecksumFile(b)
	if err != nil {
		t.Fatalf("ChecksumFile(b): %v", err)
	}

	if sumA != sumB {
		t.Errorf("digests differ for identical content: %s vs %s", sumA, sumB)
	}
}

func TestComputeID_DeterministicAndPrefixBound(t *testing.T) {
	dir := t.TempDir()

	// Two files sharing the first IDPrefixLen bytes but diverging after
	// must produce the same cross-system ID.
	prefix := bytes.Repeat([]byte{0xAB}, IDPrefixLen)
	a := writeFile(t, dir, "a.zip", append(append([]byte{}, prefix...), []byte("tail-one")...))
	b := writeFile(t, dir, "b.zip", append(append([]byte{}, prefix...), []byte("completely different tail")...))

	idA, err := ComputeID(a)
	if err != nil {
		t.Fatalf("ComputeID(a): %v", err)
	}
	idB, err := ComputeID(b)
	if err != nil {
		t.Fatalf("ComputeID(b): %v", err)
	}

	if idA != idB {
		t.Errorf("IDs differ despite identical prefix: %s vs %s", idA, idB)
	}

	sum := sha1.Sum(prefix)
	if want := hex.EncodeToString(sum[:]); idA != want {
		t.Errorf("ComputeID = %s, want sha1 of first %d bytes %s", idA, IDPrefixLen, want)
	}
}

func TestComputeID_EmptyInputRejected(t *testing.T) {
	dir := t.TempDir()
	empty := writeFile(t, dir, "empty.zip", nil)

	_, err := ComputeID(empty)
	if !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("ComputeID on empty file: err = %v, want ErrInvalidIdentity", err)
	}
}

func TestComputeID_MissingFile(t *testing.T) {
	if _, err := ComputeID(filepath.Join(t.TempDir(), "nope.zip")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestChecksum_LargeStreamNotBuffered(t *testing.T) {
	// 1 MiB through a reader that yields tiny reads; exercises the chunk loop.
	src := strings.NewReader(strings.Repeat("x", 1<<20))
	if _, err := Checksum(src); err != nil {
		t.Fatalf("Checksum: %v", err)
	}
}
