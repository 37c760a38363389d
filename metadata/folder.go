package metadata

import (
	"context"

	"github.com/okdomo/catapult/types"
)

// Folder is the provider for plain directories of archives: no database,
// no metadata. The server falls back to filename-based titles.
type Folder struct{}

// Identifier returns the filename itself; a folder has no upstream IDs.
func (Folder) Identifier(filename string) (string, error) {
	return filename, nil
}

// Metadata always resolves to the zero value.
func (Folder) Metadata(ctx context.Context, id string) (types.ArchiveMetadata, error) {
	return types.ArchiveMetadata{}, nil
}
