package lrr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Upload status codes the server is documented to return.
// The pipeline maps each to a terminal outcome; see the uploader package.
const (
	StatusSuccess          = http.StatusOK                   // 200
	StatusNoFile           = http.StatusBadRequest           // 400
	StatusBadCredentials   = http.StatusUnauthorized         // 401
	StatusDuplicate        = http.StatusConflict             // 409
	StatusUnsupportedFile  = http.StatusUnsupportedMediaType // 415
	StatusChecksumMismatch = http.StatusExpectationFailed    // 417
	StatusUnprocessable    = http.StatusUnprocessableEntity  // 422
	StatusLocked           = http.StatusLocked               // 423
	StatusServerError      = http.StatusInternalServerError  // 500
)

// UploadResponse is the decoded body of an upload attempt, kept together
// with the raw status code so the caller can apply the protocol mapping.
type UploadResponse struct {
	StatusCode int
	// ArchiveID is the server-assigned ID on success or duplicate.
	ArchiveID string `json:"id"`
	// Operation and Error come from the server's JSON envelope.
	Operation string `json:"operation"`
	Error     string `json:"error"`
	// RawBody holds the body verbatim when it was not JSON, so unexpected
	// responses surface with full context instead of being swallowed.
	RawBody string `json:"-"`
}

// ShinobuInfo is the state of the server's Shinobu background worker.
type ShinobuInfo struct {
	IsAlive   int    `json:"is_alive"`
	Operation string `json:"operation"`
	PID       int    `json:"pid"`
}

// Running reports whether the worker process is alive.
func (s *ShinobuInfo) Running() bool {
	return s != nil && s.IsAlive != 0
}

// StatusError is a non-200 response from a non-upload endpoint. The upload
// endpoint never returns it: its status codes are protocol vocabulary and
// arrive inside UploadResponse instead.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
}

// ErrUnauthorized matches any StatusError carrying a 401.
var ErrUnauthorized = errors.New("401 unauthorized")

// Is lets errors.Is(err, ErrUnauthorized) match 401 StatusErrors.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.Code == http.StatusUnauthorized
}

func newStatusError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: string(body)}
}

func decodeUploadResponse(resp *http.Response) (*UploadResponse, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}

	out := &UploadResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(raw, out); err != nil {
		out.RawBody = string(raw)
	}
	return out, nil
}

// IsConnectionError reports whether err is a transport-level failure
// (refused, reset, timeout, DNS) as opposed to a decoded server response.
// These are the only errors the pipeline retries with backoff.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
