package uploader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okdomo/catapult/archive"
	"github.com/okdomo/catapult/log"
	"github.com/okdomo/catapult/metrics"
	"github.com/okdomo/catapult/types"
)

// ProgressEvent is emitted once per completed file, from worker goroutines.
// Handlers must be safe for concurrent use.
type ProgressEvent struct {
	// Done is the number of completed files including this one.
	Done  int
	Total int
	// Response is the terminal outcome for the completed file.
	Response types.UploadResponse
}

// Reporter persists per-file outcomes and the batch summary. The report
// package provides the msgpack-backed implementation.
type Reporter interface {
	Record(resp types.UploadResponse) error
	Summary(result *types.BatchResult) error
}

// Coordinator fans requests out over a bounded worker pool, one pipeline
// run per file. Batches are isolated: one file's failure never aborts the
// others. The single exception is an authentication failure, which is a
// batch-level fact and aborts everything not yet launched.
type Coordinator struct {
	pipeline  *Pipeline
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector
	reporter  Reporter
	progress  func(ProgressEvent)
}

// NewCoordinator builds a coordinator over an existing pipeline.
func NewCoordinator(pipeline *Pipeline, cfg Config, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		pipeline: pipeline,
		cfg:      cfg.Normalize(),
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CoordinatorOption configures optional coordinator collaborators.
type CoordinatorOption func(*Coordinator)

// WithBatchLogger wires a logger.
func WithBatchLogger(l *log.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBatchCollector wires a metrics collector.
func WithBatchCollector(col *metrics.Collector) CoordinatorOption {
	return func(c *Coordinator) { c.collector = col }
}

// WithReporter wires a batch report writer.
func WithReporter(r Reporter) CoordinatorOption {
	return func(c *Coordinator) { c.reporter = r }
}

// WithProgress wires a per-file completion callback.
func WithProgress(fn func(ProgressEvent)) CoordinatorOption {
	return func(c *Coordinator) { c.progress = fn }
}

// UploadAll processes every request and returns one response per request,
// in input order. It returns an error only when the batch could not start
// at all (unreachable server, bad credentials on the connectivity probe).
func (c *Coordinator) UploadAll(ctx context.Context, requests []types.UploadRequest) (*types.BatchResult, error) {
	batchID := uuid.NewString()
	started := time.Now()

	c.logger.Info("starting batch",
		zap.String("batch_id", batchID),
		zap.Int("files", len(requests)),
		zap.Int("workers", c.cfg.Workers))

	// Fail the whole batch up front if the server is unreachable or the
	// credentials are bad; per-file 401 handling still exists as a backstop.
	if err := c.pipeline.retryConnection(ctx, "connectivity probe", func() error {
		return c.pipeline.server.Info(ctx)
	}); err != nil {
		return nil, fmt.Errorf("server connectivity: %w", err)
	}

	responses := make([]types.UploadResponse, len(requests))
	pending := make([]int, 0, len(requests))

	if c.cfg.RemoveDuplicates {
		var err error
		pending, err = c.sweep(ctx, requests, responses)
		if err != nil {
			return nil, err
		}
	} else {
		for i := range requests {
			pending = append(pending, i)
		}
	}

	var (
		wg         sync.WaitGroup
		sem        = make(chan struct{}, c.cfg.Workers)
		done       atomic.Int64
		authFailed atomic.Bool
	)

	// Pre-swept duplicates still count toward progress and outcomes.
	for i := range responses {
		if responses[i].Status != "" {
			c.complete(int(done.Add(1)), len(requests), responses[i])
		}
	}

	for _, i := range pending {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			var resp types.UploadResponse
			switch {
			case authFailed.Load():
				resp = respond(requests[i].Path, types.StatusFailure, "batch aborted: authentication failure")
			case ctx.Err() != nil:
				resp = respond(requests[i].Path, types.StatusFailure, "batch canceled")
			default:
				resp = c.pipeline.Process(ctx, requests[i])
				if resp.Status == types.StatusAuthFailure {
					authFailed.Store(true)
				}
			}
			responses[i] = resp
			c.complete(int(done.Add(1)), len(requests), resp)
		}(i)
	}
	wg.Wait()

	result := &types.BatchResult{
		BatchID:   batchID,
		Responses: responses,
		Counts:    make(map[types.UploadStatus]int64, 8),
		Elapsed:   time.Since(started),
	}
	for _, resp := range responses {
		result.Counts[resp.Status]++
	}

	if c.reporter != nil {
		if err := c.reporter.Summary(result); err != nil {
			c.logger.Error("writing batch summary failed", zap.Error(err))
		}
	}

	c.logger.Info("batch finished",
		zap.String("batch_id", batchID),
		zap.Int64("succeeded", result.Succeeded()),
		zap.Int64("duplicates", result.Duplicates()),
		zap.Int64("failed", result.Failed()),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

// complete records one terminal outcome everywhere it needs to go.
func (c *Coordinator) complete(done, total int, resp types.UploadResponse) {
	c.collector.RecordOutcome(resp.Status)
	if c.reporter != nil {
		if err := c.reporter.Record(resp); err != nil {
			c.logger.Error("writing report record failed",
				zap.String("path", resp.Path), zap.Error(err))
		}
	}
	if c.progress != nil {
		c.progress(ProgressEvent{Done: done, Total: total, Response: resp})
	}
}

// sweep fetches the full remote ID set once and marks requests whose
// cross-system ID is already present, so their pipelines never launch.
// Returns the indexes still pending. ID computation is fanned out over the
// same worker bound as uploads.
func (c *Coordinator) sweep(ctx context.Context, requests []types.UploadRequest, responses []types.UploadResponse) ([]int, error) {
	var ids map[string]struct{}
	err := c.pipeline.retryConnection(ctx, "fetch archive ids", func() error {
		var innerErr error
		ids, innerErr = c.pipeline.server.ArchiveIDs(ctx)
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch archive ids: %w", err)
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, c.cfg.Workers)
		mu  sync.Mutex
	)
	dup := make(map[int]bool, len(requests))

	for i := range requests {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			id, err := archive.ComputeID(requests[i].Path)
			if err != nil {
				// Let the pipeline produce the precise terminal status.
				return
			}
			if _, ok := ids[id]; ok {
				mu.Lock()
				dup[i] = true
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	pending := make([]int, 0, len(requests))
	for i := range requests {
		if dup[i] {
			c.collector.IncServerHit()
			responses[i] = duplicate(requests[i].Path, types.DuplicateSourceServer, "already uploaded (server)")
			continue
		}
		pending = append(pending, i)
	}

	c.logger.Info("duplicate sweep finished",
		zap.Int("known_remote", len(ids)),
		zap.Int("skipped", len(requests)-len(pending)))

	return pending, nil
}
