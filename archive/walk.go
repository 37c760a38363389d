package archive

import (
	"io/fs"
	"path/filepath"
)

// Find walks root recursively and collects every file whose extension is in
// the allow-list. The signature gate is deliberately not applied here; it
// requires opening each file and belongs to the per-file pipeline.
func Find(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if AllowedExtension(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
