// Package metadata resolves archive metadata from downloader databases.
//
// Each supported downloader names files after an upstream identifier and
// keeps a local database describing what it fetched. A Provider knows how
// to recover the identifier from a filename and how to look the metadata
// up. Metadata is best-effort: a file whose metadata cannot be resolved is
// still uploaded, just without it.
package metadata

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/okdomo/catapult/log"
	"github.com/okdomo/catapult/types"
)

// ErrNoIdentifier means the filename does not carry an upstream identifier.
var ErrNoIdentifier = errors.New("no identifier in filename")

// ErrNotFound means the identifier is absent from the provider's database.
var ErrNotFound = errors.New("metadata not found")

// Provider resolves metadata for archives produced by one downloader.
type Provider interface {
	// Identifier extracts the upstream identifier from an archive filename
	// (base name, extension included). Returns ErrNoIdentifier when the
	// filename carries none.
	Identifier(filename string) (string, error)
	// Metadata looks the identifier up. Returns ErrNotFound when the
	// database has no row for it.
	Metadata(ctx context.Context, id string) (types.ArchiveMetadata, error)
}

// BuildRequests pairs every path with whatever metadata the provider can
// resolve. Resolution failures are logged and leave the metadata empty; the
// file still gets uploaded.
func BuildRequests(ctx context.Context, p Provider, paths []string, logger *log.Logger) []types.UploadRequest {
	if logger == nil {
		logger = log.Nop()
	}

	requests := make([]types.UploadRequest, 0, len(paths))
	for _, path := range paths {
		req := types.UploadRequest{Path: path}
		if p != nil {
			req.Metadata = resolve(ctx, p, path, logger)
		}
		requests = append(requests, req)
	}
	return requests
}

func resolve(ctx context.Context, p Provider, path string, logger *log.Logger) types.ArchiveMetadata {
	id, err := p.Identifier(baseName(path))
	if err != nil {
		logger.Warn("no identifier for archive", zap.String("path", path), zap.Error(err))
		return types.ArchiveMetadata{}
	}
	meta, err := p.Metadata(ctx, id)
	if err != nil {
		logger.Warn("metadata lookup failed",
			zap.String("path", path), zap.String("id", id), zap.Error(err))
		return types.ArchiveMetadata{}
	}
	return meta
}

func baseName(path string) string {
	return filepath.Base(path)
}
