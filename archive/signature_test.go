package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllowedExtension(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"sample.zip", true},
		{"sample.cbz", true},
		{"sample.CBR", true},
		{"sample.pdf", true},
		{"sample.7z", true},
		{"sample.xz", true},
		{"sample.targz", true},
		{"sample.lzma", true},
		{"archive", false}, // no extension is always rejected
		{"sample.txt", false},
		{"sample.tar", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := AllowedExtension(tc.name); got != tc.want {
			t.Errorf("AllowedExtension(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAllowedSignature(t *testing.T) {
	cases := []struct {
		name    string
		leading []byte
		want    bool
	}{
		{"zip local header", []byte{0x50, 0x4B, 0x03, 0x04, 0x14, 0x00, 0x00, 0x00}, true},
		{"zip empty archive", []byte{0x50, 0x4B, 0x05, 0x06, 0x00, 0x00, 0x00, 0x00}, true},
		{"rar4", []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x00, 0x00}, true},
		{"rar5", []byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07, 0x01, 0x00}, true},
		{"gzip", []byte{0x1F, 0x8B, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00}, true},
		{"xz", []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00, 0x00, 0x00}, true},
		{"7z", []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C, 0x00, 0x04}, true},
		{"pdf", []byte{0x25, 0x50, 0x44, 0x46, 0x2D, 0x31, 0x2E, 0x37}, true},
		{"plain text", []byte("not a zip"), false},
		{"truncated zip magic", []byte{0x50, 0x4B}, false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		if got := AllowedSignature(tc.leading); got != tc.want {
			t.Errorf("%s: AllowedSignature = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestReadSignature_ShortFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.zip")
	if err := os.WriteFile(path, []byte{0x50, 0x4B}, 0o644); err != nil {
		t.Fatal(err)
	}

	leading, err := ReadSignature(path)
	if err != nil {
		t.Fatalf("ReadSignature: %v", err)
	}
	if len(leading) != 2 {
		t.Errorf("len(leading) = %d, want 2", len(leading))
	}
	if AllowedSignature(leading) {
		t.Error("truncated magic must not pass the signature gate")
	}
}

func TestFind_CollectsOnlyAllowedExtensions(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"one.zip", "two.txt", "three"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(sub, "four.cbz"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := Find(dir)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("Find returned %d paths, want 2: %v", len(paths), paths)
	}
}
