package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	// registered decoders for the integrity probe
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// imageExtensions are the archive members the integrity probe decodes.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
}

// ContainsCorruptedImage reports whether any image member of a zip archive
// fails to decode. Only zip-family archives are probed; other formats return
// false without error since there is nothing cheap to inspect.
func ContainsCorruptedImage(path string) (bool, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return false, nil
		}
		return false, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	for _, member := range r.File {
		ext := strings.ToLower(filepath.Ext(member.Name))
		if _, ok := imageExtensions[ext]; !ok {
			continue
		}
		corrupted, err := memberIsCorrupted(member)
		if err != nil {
			return false, err
		}
		if corrupted {
			return true, nil
		}
	}
	return false, nil
}

func memberIsCorrupted(member *zip.File) (bool, error) {
	rc, err := member.Open()
	if err != nil {
		return false, fmt.Errorf("open member %s: %w", member.Name, err)
	}
	defer rc.Close()

	// Full decode, not just the header: truncated image data is the common
	// corruption mode and only shows up when pixels are read.
	if _, _, err := image.Decode(rc); err != nil {
		return true, nil
	}
	return false, nil
}
