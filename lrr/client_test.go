package lrr

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthHeader(t *testing.T) {
	key := "s3cret-key"
	want := "Bearer " + base64.StdEncoding.EncodeToString([]byte(key))
	if got := AuthHeader(key); got != want {
		t.Errorf("AuthHeader = %q, want %q", got, want)
	}
}

func TestInfo_SendsAuthAndAcceptsOK(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/info" {
			t.Errorf("path = %s, want /api/info", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"name":"LANraragi"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	if err := c.Info(context.Background()); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if gotAuth != AuthHeader("key") {
		t.Errorf("Authorization = %q, want bearer of base64 key", gotAuth)
	}
}

func TestInfo_NoKeyOmitsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("Authorization header sent without an API key")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := New(srv.URL, "").Info(context.Background()); err != nil {
		t.Fatalf("Info: %v", err)
	}
}

func TestInfo_UnauthorizedSurfacesSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "wrong").Info(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized match", err)
	}
}

func TestArchiveIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/archives" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`[{"arcid":"aaa","title":"one"},{"arcid":"bbb"},{"title":"no id"}]`))
	}))
	defer srv.Close()

	ids, err := New(srv.URL, "").ArchiveIDs(context.Background())
	if err != nil {
		t.Fatalf("ArchiveIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}
	for _, want := range []string{"aaa", "bbb"} {
		if _, ok := ids[want]; !ok {
			t.Errorf("missing id %s", want)
		}
	}
}

func TestArchiveExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/archives/present/metadata":
			w.Write([]byte(`{"arcid":"present","title":"t"}`))
		case "/api/archives/absent/metadata":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`not found`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	ctx := context.Background()

	exists, err := c.ArchiveExists(ctx, "present")
	if err != nil {
		t.Fatalf("ArchiveExists(present): %v", err)
	}
	if !exists {
		t.Error("present archive reported absent")
	}

	exists, err = c.ArchiveExists(ctx, "absent")
	if err != nil {
		t.Fatalf("ArchiveExists(absent): %v", err)
	}
	if exists {
		t.Error("absent archive reported present")
	}
}

func TestUploadArchive_MultipartForm(t *testing.T) {
	var (
		gotChecksum string
		gotTitle    string
		gotSummary  []string
		gotFile     []byte
		gotFilename string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotChecksum = r.FormValue("file_checksum")
		gotTitle = r.FormValue("title")
		gotSummary = r.MultipartForm.Value["summary"]

		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		gotFilename = hdr.Filename
		gotFile, _ = io.ReadAll(f)

		w.Write([]byte(`{"id":"deadbeef","operation":"upload"}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "").UploadArchive(context.Background(), UploadFile{
		Content:  strings.NewReader("PK\x03\x04archive-bytes"),
		Filename: "sample.cbz",
		Checksum: "cafe1234",
		Title:    "Sample",
		// Summary deliberately empty: must be omitted, not sent blank.
	})
	if err != nil {
		t.Fatalf("UploadArchive: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if resp.ArchiveID != "deadbeef" {
		t.Errorf("ArchiveID = %q", resp.ArchiveID)
	}
	if gotChecksum != "cafe1234" {
		t.Errorf("file_checksum = %q", gotChecksum)
	}
	if gotTitle != "Sample" {
		t.Errorf("title = %q", gotTitle)
	}
	if len(gotSummary) != 0 {
		t.Errorf("summary sent despite being empty: %v", gotSummary)
	}
	if gotFilename != "sample.cbz" {
		t.Errorf("filename = %q", gotFilename)
	}
	if string(gotFile) != "PK\x03\x04archive-bytes" {
		t.Errorf("file bytes = %q", gotFile)
	}
}

func TestUploadArchive_NonJSONBodyKeptRaw(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "").UploadArchive(context.Background(), UploadFile{
		Content:  strings.NewReader("x"),
		Filename: "a.zip",
	})
	if err != nil {
		t.Fatalf("UploadArchive: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.RawBody, "gateway error") {
		t.Errorf("RawBody = %q, want raw body preserved", resp.RawBody)
	}
}

func TestDeleteArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		if r.URL.Path != "/api/archives/deadbeef" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"operation":"delete_archive","success":1}`))
	}))
	defer srv.Close()

	if err := New(srv.URL, "k").DeleteArchive(context.Background(), "deadbeef"); err != nil {
		t.Fatalf("DeleteArchive: %v", err)
	}

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv2.Close()

	err := New(srv2.URL, "").DeleteArchive(context.Background(), "deadbeef")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized match", err)
	}
}

func TestDatabaseBackup(t *testing.T) {
	body := `{"archives":[{"arcid":"aaa"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/database/backup" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	got, err := New(srv.URL, "k").DatabaseBackup(context.Background())
	if err != nil {
		t.Fatalf("DatabaseBackup: %v", err)
	}
	if string(got) != body {
		t.Errorf("backup = %q, want raw body", got)
	}
}

func TestIsConnectionError(t *testing.T) {
	// A server that closes immediately produces a transport-level error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := New(srv.URL, "").Info(context.Background())
	if err == nil {
		t.Fatal("expected connection error against closed server")
	}
	if !IsConnectionError(err) {
		t.Errorf("IsConnectionError(%v) = false, want true", err)
	}

	if IsConnectionError(&StatusError{Op: "info", Code: 500}) {
		t.Error("StatusError must not be classified as a connection error")
	}
}
