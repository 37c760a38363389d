package uploader

import (
	"fmt"
	"net/http"

	"github.com/okdomo/catapult/lrr"
	"github.com/okdomo/catapult/types"
)

// mapUploadStatus translates an upload response into the terminal outcome
// vocabulary. Checksum mismatches reach this function only after the
// retransmission budget is exhausted.
func mapUploadStatus(resp *lrr.UploadResponse) (types.UploadStatus, string) {
	switch resp.StatusCode {
	case lrr.StatusSuccess:
		return types.StatusSuccess, "success"
	case lrr.StatusNoFile:
		return types.StatusFileNotExist, serverMessage(resp, "no file attached")
	case lrr.StatusBadCredentials:
		return types.StatusAuthFailure, "invalid credentials"
	case lrr.StatusDuplicate:
		return types.StatusDuplicate, serverMessage(resp, "already uploaded (server)")
	case lrr.StatusUnsupportedFile:
		return types.StatusUnsupportedFile, serverMessage(resp, "unsupported file type")
	case lrr.StatusChecksumMismatch:
		return types.StatusChecksumMismatch, "checksum mismatch after retransmissions"
	case lrr.StatusUnprocessable:
		return types.StatusUnprocessable, serverMessage(resp, "server could not process archive")
	case lrr.StatusLocked:
		return types.StatusLocked, serverMessage(resp, "resource locked")
	case lrr.StatusServerError:
		return types.StatusServerError, serverMessage(resp, "internal server error")
	default:
		return types.StatusFailure, unexpectedStatusMessage(resp)
	}
}

// serverMessage prefers the server's own error text over the fallback.
func serverMessage(resp *lrr.UploadResponse, fallback string) string {
	if resp.Error != "" {
		return resp.Error
	}
	return fallback
}

func unexpectedStatusMessage(resp *lrr.UploadResponse) string {
	body := resp.Error
	if body == "" {
		body = resp.RawBody
	}
	if len(body) > 256 {
		body = body[:256]
	}
	if body == "" {
		return fmt.Sprintf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, body)
}
