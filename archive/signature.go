// Package archive provides content identity and format validation for
// candidate archive files: the transport checksum and cross-system ID
// computed over file content, the extension and magic-byte gates that run
// before any network traffic, and helpers for discovering archives on disk.
package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SignatureLen is the number of leading bytes inspected by the magic check.
const SignatureLen = 8

// allowedExtensions is the set of archive formats LANraragi accepts.
var allowedExtensions = map[string]struct{}{
	"zip":   {},
	"rar":   {},
	"targz": {},
	"lzma":  {},
	"7z":    {},
	"xz":    {},
	"cbz":   {},
	"cbr":   {},
	"pdf":   {},
}

// allowedSignatures are the magic-number prefixes of the supported formats.
// Matching is prefix-based: the file's leading bytes must start with one of
// these sequences.
var allowedSignatures = [][]byte{
	// zip, cbz
	{0x50, 0x4B, 0x03, 0x04},
	{0x50, 0x4B, 0x05, 0x06},
	{0x50, 0x4B, 0x07, 0x08},
	// rar, cbr
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00},
	{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00},
	// tar.gz
	{0x1F, 0x8B},
	// lzma / xz
	{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00},
	// 7z
	{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C},
	// pdf
	{0x25, 0x50, 0x44, 0x46, 0x2D},
}

// AllowedExtension reports whether the filename carries an extension in the
// allow-list. A missing extension is always rejected.
func AllowedExtension(name string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(ext[1:])]
	return ok
}

// AllowedSignature reports whether the leading bytes of a file start with a
// known magic-number prefix for a supported format.
func AllowedSignature(leading []byte) bool {
	for _, sig := range allowedSignatures {
		if bytes.HasPrefix(leading, sig) {
			return true
		}
	}
	return false
}

// ReadSignature reads the first SignatureLen bytes of the file at path.
// Files shorter than SignatureLen return what is there; the signature check
// then fails naturally for truncated files.
func ReadSignature(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, SignatureLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
