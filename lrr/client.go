// Package lrr is a thin client for the LANraragi HTTP API.
//
// The client performs no retries: network errors and non-200 statuses are
// returned to the caller raw, and the upload pipeline decides what is
// transient and what is terminal.
//
// API documentation: https://sugoi.gitbook.io/lanraragi/api-documentation/getting-started
package lrr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single HTTP exchange, uploads included.
const DefaultTimeout = 5 * time.Minute

// Client issues requests against one LANraragi server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the server at baseURL. An empty apiKey sends no
// Authorization header.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// NewWithHTTPClient creates a client with a caller-supplied http.Client.
// Used by tests to point at an httptest server with instrumentation.
func NewWithHTTPClient(baseURL, apiKey string, hc *http.Client) *Client {
	c := New(baseURL, apiKey)
	if hc != nil {
		c.http = hc
	}
	return c
}

// AuthHeader builds the Authorization header value for an API key:
// "Bearer " + base64(key). Matches the server's expectation exactly.
func AuthHeader(apiKey string) string {
	return "Bearer " + base64.StdEncoding.EncodeToString([]byte(apiKey))
}

func (c *Client) addAuth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", AuthHeader(c.apiKey))
	}
}

// Info probes GET /api/info. A nil error means the server answered 200.
func (c *Client) Info(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/info", nil)
	if err != nil {
		return err
	}
	c.addAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newStatusError("info", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ArchiveIDs enumerates every archive ID on the server via GET /api/archives.
// Expensive on large libraries; only the opt-in upfront sweep calls it.
func (c *Client) ArchiveIDs(ctx context.Context) (map[string]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/archives", nil)
	if err != nil {
		return nil, err
	}
	c.addAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("list archives", resp)
	}

	var items []struct {
		ArcID string `json:"arcid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode archive list: %w", err)
	}

	ids := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ArcID != "" {
			ids[item.ArcID] = struct{}{}
		}
	}
	return ids, nil
}

// ArchiveExists probes GET /api/archives/:id/metadata. Existence is signaled
// by an ID-bearing field in the response body, not by status code alone.
func (c *Client) ArchiveExists(ctx context.Context, id string) (bool, error) {
	url := fmt.Sprintf("%s/api/archives/%s/metadata", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	c.addAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return false, newStatusError("archive metadata", resp)
	}

	var body struct {
		ArcID string `json:"arcid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// Non-JSON body (e.g. 404 page) means no archive.
		return false, nil
	}
	return body.ArcID != "", nil
}

// DeleteArchive removes an archive via DELETE /api/archives/:id.
func (c *Client) DeleteArchive(ctx context.Context, id string) error {
	url := fmt.Sprintf("%s/api/archives/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.addAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newStatusError("delete archive", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ShinobuStatus reports the Shinobu background worker state via GET /api/shinobu.
func (c *Client) ShinobuStatus(ctx context.Context) (*ShinobuInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/shinobu", nil)
	if err != nil {
		return nil, err
	}
	c.addAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("shinobu status", resp)
	}

	var info ShinobuInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode shinobu status: %w", err)
	}
	return &info, nil
}

// DatabaseBackup fetches a JSON backup of the server database via
// GET /api/database/backup.
func (c *Client) DatabaseBackup(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/database/backup", nil)
	if err != nil {
		return nil, err
	}
	c.addAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("database backup", resp)
	}
	return io.ReadAll(resp.Body)
}

// UploadFile describes one archive upload.
type UploadFile struct {
	// Content is the archive byte stream; consumed once.
	Content io.Reader
	// Filename is the display name sent to the server.
	Filename string
	// Checksum is the full-file transport checksum (hex sha1). The server
	// verifies the received bytes against it.
	Checksum string
	// Title, Tags, Summary, CategoryID are optional; empty fields are
	// omitted from the form entirely.
	Title      string
	Tags       string
	Summary    string
	CategoryID string
}

// UploadArchive sends a multipart PUT /api/archives/upload and returns the
// decoded response, whatever the status. Callers interpret the status code;
// see UploadResponse.
func (c *Client) UploadArchive(ctx context.Context, file UploadFile) (*UploadResponse, error) {
	// The form is streamed through a pipe so archives never sit in memory
	// as a full extra copy.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, file)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/archives/upload", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.addAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeUploadResponse(resp)
}

func writeUploadForm(mw *multipart.Writer, file UploadFile) error {
	part, err := mw.CreateFormFile("file", file.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return err
	}

	fields := []struct{ name, value string }{
		{"file_checksum", file.Checksum},
		{"title", file.Title},
		{"tags", file.Tags},
		{"summary", file.Summary},
		{"category_id", file.CategoryID},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}
