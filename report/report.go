// Package report persists batch outcomes as a stream of length-prefixed
// msgpack records. A report file is append-only: interrupted batches leave
// a readable prefix, and several batches can share one file.
package report

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/okdomo/catapult/types"
)

const (
	// MaxRecordSize bounds a single encoded record (1 MiB), length prefix
	// included. Anything larger is corruption, not data.
	MaxRecordSize = 1 << 20
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4
	// MaxPayloadSize is MaxRecordSize minus the prefix.
	MaxPayloadSize = MaxRecordSize - LengthPrefixSize
)

// Record kind discriminants.
const (
	UploadRecordKind  = "upload"
	SummaryRecordKind = "summary"
)

// UploadRecord is one terminal per-file outcome.
type UploadRecord struct {
	Kind      string    `msgpack:"kind"`
	Timestamp time.Time `msgpack:"timestamp"`
	Path      string    `msgpack:"path"`
	Status    string    `msgpack:"status"`
	DupSource string    `msgpack:"dup_source,omitempty"`
	Message   string    `msgpack:"message,omitempty"`
}

// SummaryRecord closes out a batch.
type SummaryRecord struct {
	Kind      string           `msgpack:"kind"`
	Timestamp time.Time        `msgpack:"timestamp"`
	BatchID   string           `msgpack:"batch_id"`
	Counts    map[string]int64 `msgpack:"counts"`
	ElapsedMS int64            `msgpack:"elapsed_ms"`
}

// RecordErrorKind classifies record decoding errors.
type RecordErrorKind int

const (
	// RecordErrorPartial indicates a truncated record.
	RecordErrorPartial RecordErrorKind = iota
	// RecordErrorTooLarge indicates a record exceeding MaxRecordSize.
	RecordErrorTooLarge
	// RecordErrorDecode indicates a msgpack decoding error.
	RecordErrorDecode
)

// RecordError represents a record decoding error.
type RecordError struct {
	Kind RecordErrorKind
	Msg  string
	Err  error
}

func (e *RecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Writer appends records to a report stream. Safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
}

// Create opens (appending) the report file at path.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report %s: %w", path, err)
	}
	return &Writer{out: f, closer: f}, nil
}

// NewWriter wraps an arbitrary stream. Used by tests.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Close closes the underlying file, if any.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// Record appends one per-file outcome.
func (w *Writer) Record(resp types.UploadResponse) error {
	return w.write(UploadRecord{
		Kind:      UploadRecordKind,
		Timestamp: time.Now().UTC(),
		Path:      resp.Path,
		Status:    string(resp.Status),
		DupSource: string(resp.DupSource),
		Message:   resp.Message,
	})
}

// Summary appends the batch summary.
func (w *Writer) Summary(result *types.BatchResult) error {
	counts := make(map[string]int64, len(result.Counts))
	for status, n := range result.Counts {
		counts[string(status)] = n
	}
	return w.write(SummaryRecord{
		Kind:      SummaryRecordKind,
		Timestamp: time.Now().UTC(),
		BatchID:   result.BatchID,
		Counts:    counts,
		ElapsedMS: result.Elapsed.Milliseconds(),
	})
}

func (w *Writer) write(record any) error {
	payload, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode report record: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return &RecordError{
			Kind: RecordErrorTooLarge,
			Msg:  fmt.Sprintf("record size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(prefix[:]); err != nil {
		return fmt.Errorf("write report record: %w", err)
	}
	if _, err := w.out.Write(payload); err != nil {
		return fmt.Errorf("write report record: %w", err)
	}
	return nil
}

// Reader iterates the records of a report stream.
type Reader struct {
	in     io.Reader
	closer io.Closer
}

// Open opens the report file at path for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report %s: %w", path, err)
	}
	return &Reader{in: f, closer: f}, nil
}

// NewReader wraps an arbitrary stream. Used by tests.
func NewReader(r io.Reader) *Reader {
	return &Reader{in: r}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Next reads one record. Returns *UploadRecord or *SummaryRecord, io.EOF at
// clean end of stream, or *RecordError on a damaged stream.
func (r *Reader) Next() (any, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r.in, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &RecordError{Kind: RecordErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxPayloadSize {
		return nil, &RecordError{
			Kind: RecordErrorTooLarge,
			Msg:  fmt.Sprintf("record size %d exceeds maximum %d", size, MaxPayloadSize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.in, payload); err != nil {
		return nil, &RecordError{Kind: RecordErrorPartial, Msg: "failed to read record payload", Err: err}
	}

	return decodeRecord(payload)
}

// recordKindProbe peeks at the kind field without a full decode.
type recordKindProbe struct {
	Kind string `msgpack:"kind"`
}

func decodeRecord(payload []byte) (any, error) {
	var probe recordKindProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &RecordError{Kind: RecordErrorDecode, Msg: "failed to decode record kind", Err: err}
	}

	switch probe.Kind {
	case UploadRecordKind:
		var rec UploadRecord
		if err := msgpack.Unmarshal(payload, &rec); err != nil {
			return nil, &RecordError{Kind: RecordErrorDecode, Msg: "failed to decode upload record", Err: err}
		}
		return &rec, nil
	case SummaryRecordKind:
		var rec SummaryRecord
		if err := msgpack.Unmarshal(payload, &rec); err != nil {
			return nil, &RecordError{Kind: RecordErrorDecode, Msg: "failed to decode summary record", Err: err}
		}
		return &rec, nil
	default:
		return nil, &RecordError{Kind: RecordErrorDecode, Msg: fmt.Sprintf("unknown record kind %q", probe.Kind)}
	}
}
