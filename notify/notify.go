// Package notify defines the notifier boundary for batch completion events.
//
// Notifiers publish a summary of a finished batch to downstream systems
// (webhooks, Redis pub/sub). Notification is best-effort: a failed publish
// is logged, never fails the batch.
package notify

import (
	"context"
	"time"

	"github.com/okdomo/catapult/types"
)

// BatchCompletedEvent is the payload published when a batch finishes.
type BatchCompletedEvent struct {
	EventType  string           `json:"event_type"` // always "batch_completed"
	BatchID    string           `json:"batch_id"`
	Host       string           `json:"host"`
	Total      int              `json:"total"`
	Succeeded  int64            `json:"succeeded"`
	Duplicates int64            `json:"duplicates"`
	Failed     int64            `json:"failed"`
	Counts     map[string]int64 `json:"counts"`
	Timestamp  string           `json:"timestamp"` // ISO 8601
	DurationMs int64            `json:"duration_ms"`
}

// EventType value for BatchCompletedEvent.
const BatchCompletedType = "batch_completed"

// NewBatchCompletedEvent builds the event payload from a batch result.
func NewBatchCompletedEvent(result *types.BatchResult, host string) *BatchCompletedEvent {
	counts := make(map[string]int64, len(result.Counts))
	for status, n := range result.Counts {
		counts[string(status)] = n
	}
	return &BatchCompletedEvent{
		EventType:  BatchCompletedType,
		BatchID:    result.BatchID,
		Host:       host,
		Total:      len(result.Responses),
		Succeeded:  result.Succeeded(),
		Duplicates: result.Duplicates(),
		Failed:     result.Failed(),
		Counts:     counts,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		DurationMs: result.Elapsed.Milliseconds(),
	}
}

// Notifier publishes batch completion events to a downstream system.
type Notifier interface {
	// Publish sends a batch completion event. Must respect context
	// cancellation and deadlines.
	Publish(ctx context.Context, event *BatchCompletedEvent) error

	// Close releases notifier resources.
	Close() error
}
