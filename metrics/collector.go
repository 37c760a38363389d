// Package metrics provides per-batch metrics collection.
//
// The Collector accumulates counters during a single batch upload. It is a
// leaf package with no internal dependencies. All methods are nil-receiver
// safe so callers that did not wire metrics pay nothing.
package metrics

import (
	"sync"

	"github.com/okdomo/catapult/types"
)

// Snapshot is an immutable point-in-time view of batch metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Per-status outcome counts.
	Outcomes map[types.UploadStatus]int64

	// Upload traffic
	BytesUploaded int64
	FilesUploaded int64

	// Retry pressure
	ConnectionRetries int64
	ChecksumRetries   int64
	CacheBusyRetries  int64

	// Dedup effectiveness
	CacheHits  int64
	ServerHits int64

	// Dimensions (informational, set at construction)
	BatchID string
	Host    string
}

// Collector accumulates metrics during a single batch.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	outcomes map[types.UploadStatus]int64

	bytesUploaded int64
	filesUploaded int64

	connectionRetries int64
	checksumRetries   int64
	cacheBusyRetries  int64

	cacheHits  int64
	serverHits int64

	batchID string
	host    string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(batchID, host string) *Collector {
	return &Collector{
		outcomes: make(map[types.UploadStatus]int64),
		batchID:  batchID,
		host:     host,
	}
}

// RecordOutcome counts one terminal pipeline outcome.
func (c *Collector) RecordOutcome(status types.UploadStatus) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.outcomes[status]++
	c.mu.Unlock()
}

// AddBytesUploaded records the size of one successfully transmitted archive.
func (c *Collector) AddBytesUploaded(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bytesUploaded += n
	c.filesUploaded++
	c.mu.Unlock()
}

// IncConnectionRetry records one backoff retry after a connection error.
func (c *Collector) IncConnectionRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.connectionRetries++
	c.mu.Unlock()
}

// IncChecksumRetry records one retransmission after a checksum mismatch.
func (c *Collector) IncChecksumRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.checksumRetries++
	c.mu.Unlock()
}

// IncCacheBusyRetry records one backoff retry on a locked cache store.
func (c *Collector) IncCacheBusyRetry() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheBusyRetries++
	c.mu.Unlock()
}

// IncCacheHit records a duplicate short-circuited by the local cache.
func (c *Collector) IncCacheHit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheHits++
	c.mu.Unlock()
}

// IncServerHit records a duplicate detected by the remote existence check.
func (c *Collector) IncServerHit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.serverHits++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all counters.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	outcomes := make(map[types.UploadStatus]int64, len(c.outcomes))
	for k, v := range c.outcomes {
		outcomes[k] = v
	}

	return Snapshot{
		Outcomes:          outcomes,
		BytesUploaded:     c.bytesUploaded,
		FilesUploaded:     c.filesUploaded,
		ConnectionRetries: c.connectionRetries,
		ChecksumRetries:   c.checksumRetries,
		CacheBusyRetries:  c.cacheBusyRetries,
		CacheHits:         c.cacheHits,
		ServerHits:        c.serverHits,
		BatchID:           c.batchID,
		Host:              c.host,
	}
}
