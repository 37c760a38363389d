package uploader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okdomo/catapult/archive"
	"github.com/okdomo/catapult/cache"
	"github.com/okdomo/catapult/lrr"
	"github.com/okdomo/catapult/types"
)

// fakeServer implements Server with scripted responses and call accounting.
type fakeServer struct {
	mu          sync.Mutex
	ids         map[string]struct{}
	infoErr     error
	existsErr   error
	upload      func(calls int, file lrr.UploadFile) (*lrr.UploadResponse, error)
	uploadDelay time.Duration

	infoCalls   int
	existsCalls int
	uploadCalls int
	inFlight    int
	maxInFlight int
}

func (f *fakeServer) Info(ctx context.Context) error {
	f.mu.Lock()
	f.infoCalls++
	f.mu.Unlock()
	return f.infoErr
}

func (f *fakeServer) ArchiveIDs(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(f.ids))
	for id := range f.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *fakeServer) ArchiveExists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	f.existsCalls++
	f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.ids[id]
	return ok, nil
}

func (f *fakeServer) UploadArchive(ctx context.Context, file lrr.UploadFile) (*lrr.UploadResponse, error) {
	f.mu.Lock()
	f.uploadCalls++
	calls := f.uploadCalls
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.uploadDelay > 0 {
		time.Sleep(f.uploadDelay)
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.upload != nil {
		return f.upload(calls, file)
	}
	return &lrr.UploadResponse{StatusCode: http.StatusOK, ArchiveID: "fake-id"}, nil
}

func (f *fakeServer) calls() (info, exists, upload int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls, f.existsCalls, f.uploadCalls
}

func connRefused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

// writeZip creates a file that passes the extension and signature gates.
func writeZip(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := append([]byte("PK\x03\x04"), []byte(name+" payload")...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig() Config {
	return Config{
		Workers:     1,
		MaxRetries:  1,
		UseCache:    true,
		BackoffBase: time.Millisecond,
	}
}

func openStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPipeline_LocalValidation(t *testing.T) {
	dir := t.TempDir()
	srv := &fakeServer{}
	p := NewPipeline(srv, nil, testConfig())
	ctx := context.Background()

	badSig := filepath.Join(dir, "notzip.zip")
	if err := os.WriteFile(badSig, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	badExt := filepath.Join(dir, "readme.txt")
	if err := os.WriteFile(badExt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		path string
		want types.UploadStatus
	}{
		{"missing file", filepath.Join(dir, "gone.zip"), types.StatusFileNotExist},
		{"directory", dir, types.StatusNotAFile},
		{"bad extension", badExt, types.StatusInvalidExtension},
		{"bad signature", badSig, types.StatusInvalidMimeType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := p.Process(ctx, types.UploadRequest{Path: tc.path})
			if resp.Status != tc.want {
				t.Errorf("status = %s, want %s (%s)", resp.Status, tc.want, resp.Message)
			}
		})
	}

	if _, exists, upload := srv.calls(); exists != 0 || upload != 0 {
		t.Errorf("local rejections touched the network: exists=%d upload=%d", exists, upload)
	}
}

func TestPipeline_UploadSuccessThenCacheShortCircuit(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, "first.zip")
	srv := &fakeServer{}
	store := openStore(t)
	p := NewPipeline(srv, store, testConfig())
	ctx := context.Background()

	resp := p.Process(ctx, types.UploadRequest{Path: path})
	if resp.Status != types.StatusSuccess {
		t.Fatalf("status = %s (%s), want success", resp.Status, resp.Message)
	}

	entry, err := store.Get(ctx, cache.Key(path))
	if err != nil {
		t.Fatalf("cache entry missing after success: %v", err)
	}
	if entry.ArchiveID != "fake-id" {
		t.Errorf("cached ArchiveID = %q", entry.ArchiveID)
	}

	_, existsBefore, uploadBefore := srv.calls()

	resp = p.Process(ctx, types.UploadRequest{Path: path})
	if resp.Status != types.StatusDuplicate || resp.DupSource != types.DuplicateSourceCache {
		t.Fatalf("second run = %s/%s, want cache duplicate", resp.Status, resp.DupSource)
	}

	_, existsAfter, uploadAfter := srv.calls()
	if existsAfter != existsBefore || uploadAfter != uploadBefore {
		t.Errorf("cache hit touched the network: exists %d->%d, upload %d->%d",
			existsBefore, existsAfter, uploadBefore, uploadAfter)
	}
}

func TestPipeline_ModifiedFileBypassesCache(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, "edited.zip")
	srv := &fakeServer{}
	store := openStore(t)
	p := NewPipeline(srv, store, testConfig())
	ctx := context.Background()

	if resp := p.Process(ctx, types.UploadRequest{Path: path}); resp.Status != types.StatusSuccess {
		t.Fatalf("initial upload: %s (%s)", resp.Status, resp.Message)
	}

	if err := os.WriteFile(path, append([]byte("PK\x03\x04"), []byte("new content")...), 0o644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	resp := p.Process(ctx, types.UploadRequest{Path: path})
	if resp.Status != types.StatusSuccess {
		t.Fatalf("re-upload after edit: %s (%s)", resp.Status, resp.Message)
	}
	if _, _, uploads := srv.calls(); uploads != 2 {
		t.Errorf("uploadCalls = %d, want 2", uploads)
	}
}

func TestPipeline_ServerDuplicateBackfillsCache(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, "known.zip")
	id, err := archive.ComputeID(path)
	if err != nil {
		t.Fatal(err)
	}

	srv := &fakeServer{ids: map[string]struct{}{id: {}}}
	store := openStore(t)
	p := NewPipeline(srv, store, testConfig())
	ctx := context.Background()

	resp := p.Process(ctx, types.UploadRequest{Path: path})
	if resp.Status != types.StatusDuplicate || resp.DupSource != types.DuplicateSourceServer {
		t.Fatalf("status = %s/%s, want server duplicate", resp.Status, resp.DupSource)
	}
	if _, _, uploads := srv.calls(); uploads != 0 {
		t.Errorf("duplicate was uploaded anyway: uploadCalls = %d", uploads)
	}

	// The backfilled entry turns the next run into a local hit.
	_, existsBefore, _ := srv.calls()
	resp = p.Process(ctx, types.UploadRequest{Path: path})
	if resp.DupSource != types.DuplicateSourceCache {
		t.Errorf("second run source = %s, want cache", resp.DupSource)
	}
	if _, existsAfter, _ := srv.calls(); existsAfter != existsBefore {
		t.Error("cache backfill did not prevent a second remote check")
	}
}

func TestPipeline_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers within budget", func(t *testing.T) {
		dir := t.TempDir()
		path := writeZip(t, dir, "flaky.zip")
		srv := &fakeServer{
			upload: func(calls int, file lrr.UploadFile) (*lrr.UploadResponse, error) {
				if calls <= 2 {
					return &lrr.UploadResponse{StatusCode: lrr.StatusChecksumMismatch}, nil
				}
				return &lrr.UploadResponse{StatusCode: http.StatusOK, ArchiveID: "ok"}, nil
			},
		}
		p := NewPipeline(srv, nil, testConfig())

		resp := p.Process(ctx, types.UploadRequest{Path: path})
		if resp.Status != types.StatusSuccess {
			t.Fatalf("status = %s (%s)", resp.Status, resp.Message)
		}
		if _, _, uploads := srv.calls(); uploads != 3 {
			t.Errorf("uploadCalls = %d, want 3", uploads)
		}
	})

	t.Run("exhausts budget", func(t *testing.T) {
		dir := t.TempDir()
		path := writeZip(t, dir, "corrupt-transit.zip")
		srv := &fakeServer{
			upload: func(calls int, file lrr.UploadFile) (*lrr.UploadResponse, error) {
				return &lrr.UploadResponse{StatusCode: lrr.StatusChecksumMismatch}, nil
			},
		}
		p := NewPipeline(srv, nil, testConfig())

		resp := p.Process(ctx, types.UploadRequest{Path: path})
		if resp.Status != types.StatusChecksumMismatch {
			t.Fatalf("status = %s, want checksum mismatch", resp.Status)
		}
		// One initial attempt plus three retransmissions.
		if _, _, uploads := srv.calls(); uploads != 4 {
			t.Errorf("uploadCalls = %d, want 4", uploads)
		}
	})
}

func TestPipeline_ConnectionRetryCeiling(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, "unreachable.zip")
	srv := &fakeServer{
		upload: func(calls int, file lrr.UploadFile) (*lrr.UploadResponse, error) {
			return nil, connRefused()
		},
	}
	cfg := testConfig()
	cfg.MaxRetries = 2
	p := NewPipeline(srv, nil, cfg)

	resp := p.Process(context.Background(), types.UploadRequest{Path: path})
	if resp.Status != types.StatusNetworkError {
		t.Fatalf("status = %s, want network error", resp.Status)
	}
	if _, _, uploads := srv.calls(); uploads != 3 {
		t.Errorf("uploadCalls = %d, want 1 + 2 retries", uploads)
	}
}

func TestPipeline_AuthFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, "locked-out.zip")
	srv := &fakeServer{
		existsErr: &lrr.StatusError{Op: "archive metadata", Code: http.StatusUnauthorized},
	}
	p := NewPipeline(srv, nil, testConfig())

	resp := p.Process(context.Background(), types.UploadRequest{Path: path})
	if resp.Status != types.StatusAuthFailure {
		t.Fatalf("status = %s, want auth failure", resp.Status)
	}
}

func TestCoordinator_InputOrderAndCounts(t *testing.T) {
	dir := t.TempDir()
	good := writeZip(t, dir, "good.zip")
	missing := filepath.Join(dir, "missing.zip")
	badExt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(badExt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := &fakeServer{}
	coord := NewCoordinator(NewPipeline(srv, nil, testConfig()), testConfig())

	result, err := coord.UploadAll(context.Background(), []types.UploadRequest{
		{Path: good}, {Path: missing}, {Path: badExt},
	})
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}

	wantStatuses := []types.UploadStatus{
		types.StatusSuccess, types.StatusFileNotExist, types.StatusInvalidExtension,
	}
	for i, want := range wantStatuses {
		if result.Responses[i].Status != want {
			t.Errorf("responses[%d] = %s, want %s", i, result.Responses[i].Status, want)
		}
	}
	if result.Succeeded() != 1 || result.Failed() != 2 {
		t.Errorf("succeeded=%d failed=%d, want 1/2", result.Succeeded(), result.Failed())
	}
	if result.BatchID == "" {
		t.Error("BatchID not assigned")
	}
}

func TestCoordinator_ConcurrencyBound(t *testing.T) {
	dir := t.TempDir()
	requests := make([]types.UploadRequest, 20)
	for i := range requests {
		requests[i] = types.UploadRequest{Path: writeZip(t, dir, fmt.Sprintf("file%02d.zip", i))}
	}

	srv := &fakeServer{uploadDelay: 10 * time.Millisecond}
	cfg := testConfig()
	cfg.Workers = 4
	coord := NewCoordinator(NewPipeline(srv, nil, cfg), cfg)

	result, err := coord.UploadAll(context.Background(), requests)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if got := result.Succeeded(); got != 20 {
		t.Fatalf("succeeded = %d, want 20", got)
	}
	if srv.maxInFlight > 4 {
		t.Errorf("maxInFlight = %d, exceeds worker bound 4", srv.maxInFlight)
	}
}

func TestCoordinator_AuthFailureAbortsRemainder(t *testing.T) {
	dir := t.TempDir()
	requests := []types.UploadRequest{
		{Path: writeZip(t, dir, "one.zip")},
		{Path: writeZip(t, dir, "two.zip")},
		{Path: writeZip(t, dir, "three.zip")},
	}

	srv := &fakeServer{
		upload: func(calls int, file lrr.UploadFile) (*lrr.UploadResponse, error) {
			return &lrr.UploadResponse{StatusCode: http.StatusUnauthorized}, nil
		},
	}
	coord := NewCoordinator(NewPipeline(srv, nil, testConfig()), testConfig())

	result, err := coord.UploadAll(context.Background(), requests)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}

	if result.Responses[0].Status != types.StatusAuthFailure {
		t.Errorf("responses[0] = %s, want auth failure", result.Responses[0].Status)
	}
	for i := 1; i < 3; i++ {
		if result.Responses[i].Status != types.StatusFailure {
			t.Errorf("responses[%d] = %s, want aborted failure", i, result.Responses[i].Status)
		}
	}
	// The abort must prevent further upload attempts.
	if _, _, uploads := srv.calls(); uploads != 1 {
		t.Errorf("uploadCalls = %d, want 1", uploads)
	}
}

func TestCoordinator_SweepSkipsKnownArchives(t *testing.T) {
	dir := t.TempDir()
	known := writeZip(t, dir, "known.zip")
	fresh := writeZip(t, dir, "fresh.zip")
	knownID, err := archive.ComputeID(known)
	if err != nil {
		t.Fatal(err)
	}

	srv := &fakeServer{ids: map[string]struct{}{knownID: {}}}
	cfg := testConfig()
	cfg.RemoveDuplicates = true
	coord := NewCoordinator(NewPipeline(srv, nil, cfg), cfg)

	result, err := coord.UploadAll(context.Background(), []types.UploadRequest{
		{Path: known}, {Path: fresh},
	})
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}

	if result.Responses[0].Status != types.StatusDuplicate ||
		result.Responses[0].DupSource != types.DuplicateSourceServer {
		t.Errorf("swept file = %s/%s, want server duplicate",
			result.Responses[0].Status, result.Responses[0].DupSource)
	}
	if result.Responses[1].Status != types.StatusSuccess {
		t.Errorf("fresh file = %s (%s)", result.Responses[1].Status, result.Responses[1].Message)
	}
	if _, _, uploads := srv.calls(); uploads != 1 {
		t.Errorf("uploadCalls = %d, want only the fresh file", uploads)
	}
}

func TestCoordinator_UnreachableServerFailsBatch(t *testing.T) {
	srv := &fakeServer{infoErr: connRefused()}
	coord := NewCoordinator(NewPipeline(srv, nil, testConfig()), testConfig())

	_, err := coord.UploadAll(context.Background(), []types.UploadRequest{{Path: "whatever.zip"}})
	if err == nil {
		t.Fatal("expected batch start failure against unreachable server")
	}
}

func TestCoordinator_ProgressEvents(t *testing.T) {
	dir := t.TempDir()
	requests := []types.UploadRequest{
		{Path: writeZip(t, dir, "p1.zip")},
		{Path: writeZip(t, dir, "p2.zip")},
	}

	var mu sync.Mutex
	var events []ProgressEvent
	srv := &fakeServer{}
	coord := NewCoordinator(NewPipeline(srv, nil, testConfig()), testConfig(),
		WithProgress(func(ev ProgressEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}))

	if _, err := coord.UploadAll(context.Background(), requests); err != nil {
		t.Fatalf("UploadAll: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d progress events, want 2", len(events))
	}
	for _, ev := range events {
		if ev.Total != 2 {
			t.Errorf("Total = %d, want 2", ev.Total)
		}
	}
}
