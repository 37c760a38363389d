// Package types defines the shared value types of the catapult upload client.
package types

import "time"

// UploadStatus is the terminal outcome of a single file's upload pipeline.
type UploadStatus string

const (
	// StatusSuccess means the server durably accepted the archive.
	StatusSuccess UploadStatus = "success"
	// StatusDuplicate means the archive already exists (locally cached or on the server).
	StatusDuplicate UploadStatus = "is_duplicate"
	// StatusFileNotExist means the source path does not exist.
	StatusFileNotExist UploadStatus = "file_not_exist"
	// StatusNotAFile means the source path exists but is not a regular file.
	StatusNotAFile UploadStatus = "not_a_file"
	// StatusInvalidExtension means the filename has no extension or one outside the allow-list.
	StatusInvalidExtension UploadStatus = "invalid_extension"
	// StatusInvalidMimeType means the file's magic bytes failed the signature check.
	StatusInvalidMimeType UploadStatus = "invalid_mime_type"
	// StatusChecksumMismatch means the server rejected the transport checksum after all retries.
	StatusChecksumMismatch UploadStatus = "checksum_mismatch"
	// StatusUnsupportedFile means the server rejected the file type (HTTP 415).
	StatusUnsupportedFile UploadStatus = "unsupported_file"
	// StatusUnprocessable means the server could not process the upload (HTTP 422).
	StatusUnprocessable UploadStatus = "unprocessable"
	// StatusLocked means the server-side resource is locked (HTTP 423).
	StatusLocked UploadStatus = "locked"
	// StatusServerError means the server reported an internal error (HTTP 500); never retried.
	StatusServerError UploadStatus = "server_error"
	// StatusAuthFailure means the credentials were rejected (HTTP 401); fatal for the batch.
	StatusAuthFailure UploadStatus = "auth_failure"
	// StatusNetworkError means the connection failed past the retry ceiling.
	StatusNetworkError UploadStatus = "network_error"
	// StatusFailure is any unexpected outcome, carrying the raw server response.
	StatusFailure UploadStatus = "failure"
)

// DuplicateSource distinguishes where a duplicate was detected.
type DuplicateSource string

const (
	// DuplicateSourceCache means the local cache short-circuited the upload.
	DuplicateSourceCache DuplicateSource = "cache"
	// DuplicateSourceServer means the server already holds the archive ID.
	DuplicateSourceServer DuplicateSource = "server"
)

// ArchiveMetadata carries optional archive metadata attached to an upload.
// Empty fields are omitted from the upload form, not sent as nulls.
type ArchiveMetadata struct {
	Title      string
	Tags       string
	Summary    string
	CategoryID string
}

// IsZero reports whether no metadata field is set.
func (m ArchiveMetadata) IsZero() bool {
	return m.Title == "" && m.Tags == "" && m.Summary == "" && m.CategoryID == ""
}

// UploadRequest is one candidate archive for upload. Immutable; consumed
// exactly once by a pipeline run.
type UploadRequest struct {
	// Path is the local filesystem path of the archive.
	Path string
	// Name is the display filename sent to the server. Defaults to the
	// basename of Path when empty.
	Name string
	// Metadata is the optional metadata attached to the upload.
	Metadata ArchiveMetadata
}

// UploadResponse is the terminal outcome of one UploadRequest. Every code
// path sets a definitive Status before returning.
type UploadResponse struct {
	Path      string          `json:"path"`
	Status    UploadStatus    `json:"status"`
	DupSource DuplicateSource `json:"dup_source,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// BatchResult aggregates the outcomes of one batch invocation.
// Responses are ordered by input position, not completion time.
type BatchResult struct {
	BatchID   string                 `json:"batch_id"`
	Responses []UploadResponse       `json:"responses"`
	Counts    map[UploadStatus]int64 `json:"counts"`
	Elapsed   time.Duration          `json:"elapsed"`
}

// Succeeded returns the number of successful uploads.
func (r *BatchResult) Succeeded() int64 {
	return r.Counts[StatusSuccess]
}

// Duplicates returns the number of duplicate outcomes.
func (r *BatchResult) Duplicates() int64 {
	return r.Counts[StatusDuplicate]
}

// Failed returns the number of outcomes that are neither success nor duplicate.
func (r *BatchResult) Failed() int64 {
	var n int64
	for status, count := range r.Counts {
		if status != StatusSuccess && status != StatusDuplicate {
			n += count
		}
	}
	return n
}
