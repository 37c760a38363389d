// Package uploader implements the per-file upload pipeline and the
// concurrency-bounded batch coordinator on top of it.
//
// The pipeline is a fixed-order state machine; every state is a possible
// terminal exit. Cheap local checks run first (stat, extension, cache),
// then the file is opened (signature), then the network is touched
// (remote duplicate check, transmission). The cache is only written after
// the server has durably accepted the file, so the stores can never
// disagree in the dangerous direction.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/okdomo/catapult/archive"
	"github.com/okdomo/catapult/cache"
	"github.com/okdomo/catapult/log"
	"github.com/okdomo/catapult/lrr"
	"github.com/okdomo/catapult/metrics"
	"github.com/okdomo/catapult/types"
)

// Server is the slice of the LANraragi client the pipeline depends on.
// *lrr.Client satisfies it; tests substitute an instrumented fake.
type Server interface {
	Info(ctx context.Context) error
	ArchiveIDs(ctx context.Context) (map[string]struct{}, error)
	ArchiveExists(ctx context.Context, id string) (bool, error)
	UploadArchive(ctx context.Context, file lrr.UploadFile) (*lrr.UploadResponse, error)
}

// IntegrityChecker classifies an archive before upload. Implementations are
// external capabilities; archive.ContainsCorruptedImage backs the default one.
type IntegrityChecker interface {
	// Check returns a classification string ("clean", "corrupted", ...)
	// recorded in the cache entry alongside the upload.
	Check(path string) (string, error)
}

// Integrity classifications recorded in the cache.
const (
	IntegrityClean     = "clean"
	IntegrityCorrupted = "corrupted"
)

const (
	// DefaultWorkers is the batch concurrency bound.
	DefaultWorkers = 8
	// DefaultMaxRetries is the connection retry ceiling. RetryForever (-1)
	// retries without bound.
	DefaultMaxRetries = 3
	// RetryForever disables the connection retry ceiling.
	RetryForever = -1
	// checksumMaxRetries bounds retransmissions on a checksum-mismatch
	// response. This is the one case where blindly retrying the same
	// attempt is right: a mismatch usually means corruption in transit.
	checksumMaxRetries = 3
	// defaultBackoffBase is the first connection-error backoff; doubles
	// per attempt.
	defaultBackoffBase = time.Second
)

// Config carries pipeline and batch tuning. The zero value is unusable;
// call Normalize or fill every field.
type Config struct {
	// Workers bounds concurrent pipelines in a batch.
	Workers int
	// MaxRetries is the connection retry ceiling; RetryForever means no bound.
	MaxRetries int
	// UseCache enables the local duplicate cache (step 3 and step 7).
	UseCache bool
	// RemoveDuplicates enables the upfront remote ID sweep before a batch.
	RemoveDuplicates bool
	// BackoffBase is the initial connection-error backoff. Tests shrink it.
	BackoffBase time.Duration
}

// Normalize fills unset fields with defaults.
func (c Config) Normalize() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	return c
}

// Pipeline validates, deduplicates and transmits single archives.
type Pipeline struct {
	server    Server
	store     *cache.Store
	integrity IntegrityChecker
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector
}

// NewPipeline builds a pipeline. store and integrity may be nil; collector
// and logger may be nil (metrics are nil-safe, logging falls back to a nop).
func NewPipeline(server Server, store *cache.Store, cfg Config, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		server: server,
		store:  store,
		cfg:    cfg.Normalize(),
		logger: log.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PipelineOption configures optional pipeline collaborators.
type PipelineOption func(*Pipeline)

// WithLogger wires a logger.
func WithLogger(l *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCollector wires a metrics collector.
func WithCollector(c *metrics.Collector) PipelineOption {
	return func(p *Pipeline) { p.collector = c }
}

// WithIntegrityChecker wires the optional integrity checker.
func WithIntegrityChecker(ic IntegrityChecker) PipelineOption {
	return func(p *Pipeline) { p.integrity = ic }
}

// Process runs the full pipeline for one request and always returns a
// definitive terminal response.
func (p *Pipeline) Process(ctx context.Context, req types.UploadRequest) types.UploadResponse {
	name := req.Name
	if name == "" {
		name = filepath.Base(req.Path)
	}

	// 1. The path must exist and be a regular file.
	info, err := os.Stat(req.Path)
	if err != nil {
		return respond(req.Path, types.StatusFileNotExist, "file does not exist")
	}
	if !info.Mode().IsRegular() {
		return respond(req.Path, types.StatusNotAFile, "not a regular file")
	}

	// 2. Extension gate: no extension or one outside the allow-list.
	if !archive.AllowedExtension(name) {
		return respond(req.Path, types.StatusInvalidExtension, "missing or unsupported extension")
	}

	// 3. Local duplicate check, gated on mtime: a file edited since its
	// cached upload is treated as new and falls through.
	key := cache.Key(req.Path)
	if p.cacheEnabled() {
		entry, err := p.store.Get(ctx, key)
		if err == nil && entry.MtimeNS == info.ModTime().UnixNano() {
			p.collector.IncCacheHit()
			return duplicate(req.Path, types.DuplicateSourceCache, "already uploaded (cache)")
		}
		if err != nil && !errors.Is(err, cache.ErrNotFound) {
			p.logger.Warn("cache lookup failed", zap.String("path", req.Path), zap.Error(err))
		}
	}

	// 4. Signature gate: first real read of the file.
	leading, err := archive.ReadSignature(req.Path)
	if err != nil {
		return respond(req.Path, types.StatusFailure, fmt.Sprintf("read signature: %v", err))
	}
	if !archive.AllowedSignature(leading) {
		return respond(req.Path, types.StatusInvalidMimeType, "failed the MIME signature test")
	}

	// Optional integrity classification, before any network traffic.
	classification := ""
	if p.integrity != nil {
		classification, err = p.integrity.Check(req.Path)
		if err != nil {
			p.logger.Warn("integrity check failed", zap.String("path", req.Path), zap.Error(err))
			classification = ""
		} else if classification == IntegrityCorrupted {
			return respond(req.Path, types.StatusUnprocessable, "archive contains corrupted image")
		}
	}

	// 5. Remote duplicate check by cross-system ID.
	id, err := archive.ComputeID(req.Path)
	if err != nil {
		return respond(req.Path, types.StatusFailure, fmt.Sprintf("compute archive id: %v", err))
	}

	var exists bool
	err = p.retryConnection(ctx, "archive exists", func() error {
		var innerErr error
		exists, innerErr = p.server.ArchiveExists(ctx, id)
		return innerErr
	})
	if err != nil {
		return p.connectionFailure(req.Path, "remote duplicate check", err)
	}
	if exists {
		p.collector.IncServerHit()
		// Backfill the cache so the next run short-circuits locally.
		p.cacheUpsert(ctx, key, id, classification, info.ModTime())
		return duplicate(req.Path, types.DuplicateSourceServer, "already uploaded (server)")
	}

	// 6. Transmission, with bounded retransmission on checksum mismatch.
	checksum, err := archive.ChecksumFile(req.Path)
	if err != nil {
		return respond(req.Path, types.StatusFailure, fmt.Sprintf("compute checksum: %v", err))
	}

	checksumRetries := 0
	for {
		resp, err := p.transmit(ctx, req, name, checksum)
		if err != nil {
			return p.connectionFailure(req.Path, "upload", err)
		}

		if resp.StatusCode == lrr.StatusChecksumMismatch && checksumRetries < checksumMaxRetries {
			checksumRetries++
			p.collector.IncChecksumRetry()
			p.logger.Warn("checksum mismatch, retransmitting",
				zap.String("path", req.Path),
				zap.Int("attempt", checksumRetries))
			continue
		}

		status, message := mapUploadStatus(resp)

		switch status {
		case types.StatusSuccess:
			// 7. Cache update: only after the server durably accepted
			// the file. A crash between transmit and upsert is
			// self-healing via the remote check on the next run.
			archiveID := resp.ArchiveID
			if archiveID == "" {
				archiveID = id
			}
			p.cacheUpsert(ctx, key, archiveID, classification, info.ModTime())
			p.collector.AddBytesUploaded(info.Size())
			p.logger.Info("uploaded archive",
				zap.String("path", req.Path),
				zap.String("archive_id", archiveID))
			return respond(req.Path, types.StatusSuccess, "success")
		case types.StatusDuplicate:
			p.collector.IncServerHit()
			p.cacheUpsert(ctx, key, id, classification, info.ModTime())
			return duplicate(req.Path, types.DuplicateSourceServer, message)
		default:
			return respond(req.Path, status, message)
		}
	}
}

// transmit performs one upload attempt, retrying only connection-level
// failures with backoff. Protocol responses are returned to the caller.
func (p *Pipeline) transmit(ctx context.Context, req types.UploadRequest, name, checksum string) (*lrr.UploadResponse, error) {
	var resp *lrr.UploadResponse
	err := p.retryConnection(ctx, "upload archive", func() error {
		f, err := os.Open(req.Path)
		if err != nil {
			return err
		}
		defer f.Close()

		var innerErr error
		resp, innerErr = p.server.UploadArchive(ctx, lrr.UploadFile{
			Content:    f,
			Filename:   name,
			Checksum:   checksum,
			Title:      req.Metadata.Title,
			Tags:       req.Metadata.Tags,
			Summary:    req.Metadata.Summary,
			CategoryID: req.Metadata.CategoryID,
		})
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// retryConnection runs op, retrying connection-level errors with doubling
// backoff up to the configured ceiling (RetryForever = no ceiling).
// Non-connection errors are returned immediately.
func (p *Pipeline) retryConnection(ctx context.Context, opName string, op func() error) error {
	delay := p.cfg.BackoffBase
	retries := 0

	for {
		err := op()
		if err == nil {
			return nil
		}
		if !lrr.IsConnectionError(err) {
			return err
		}
		if p.cfg.MaxRetries != RetryForever && retries >= p.cfg.MaxRetries {
			return fmt.Errorf("%s: persistent connection error: %w", opName, err)
		}

		p.collector.IncConnectionRetry()
		p.logger.Warn("connection error, backing off",
			zap.String("op", opName),
			zap.Duration("sleep", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		retries++
	}
}

func (p *Pipeline) connectionFailure(path, phase string, err error) types.UploadResponse {
	if errors.Is(err, lrr.ErrUnauthorized) {
		return respond(path, types.StatusAuthFailure, "invalid credentials")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return respond(path, types.StatusFailure, fmt.Sprintf("%s: canceled", phase))
	}
	return respond(path, types.StatusNetworkError, fmt.Sprintf("%s: %v", phase, err))
}

func (p *Pipeline) cacheEnabled() bool {
	return p.cfg.UseCache && p.store != nil
}

// cacheUpsert writes the entry, logging rather than failing the upload when
// the store is unavailable; the remote side already holds the archive.
func (p *Pipeline) cacheUpsert(ctx context.Context, key, archiveID, classification string, mtime time.Time) {
	if !p.cacheEnabled() {
		return
	}
	err := p.store.Upsert(ctx, &cache.Entry{
		Key:       key,
		ArchiveID: archiveID,
		Integrity: classification,
		MtimeNS:   mtime.UnixNano(),
	})
	if err != nil {
		p.logger.Error("cache upsert failed", zap.String("key", key), zap.Error(err))
	}
}

func respond(path string, status types.UploadStatus, message string) types.UploadResponse {
	return types.UploadResponse{Path: path, Status: status, Message: message}
}

func duplicate(path string, source types.DuplicateSource, message string) types.UploadResponse {
	return types.UploadResponse{
		Path:      path,
		Status:    types.StatusDuplicate,
		DupSource: source,
		Message:   message,
	}
}
