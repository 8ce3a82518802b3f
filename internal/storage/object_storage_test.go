package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type capturedUpload struct {
	Method        string
	Path          string
	ContentType   string
	Authorization string
	ContentSHA    string
	Body          []byte
}

func newCaptureServer(t *testing.T) (*httptest.Server, *[]capturedUpload) {
	t.Helper()
	var mu sync.Mutex
	captured := make([]capturedUpload, 0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read upload body: %v", err)
		}
		mu.Lock()
		captured = append(captured, capturedUpload{
			Method:        r.Method,
			Path:          r.URL.Path,
			ContentType:   r.Header.Get("Content-Type"),
			Authorization: r.Header.Get("Authorization"),
			ContentSHA:    r.Header.Get("x-amz-content-sha256"),
			Body:          body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func TestS3UploaderPutsObjectAndSigns(t *testing.T) {
	server, captured := newCaptureServer(t)

	uploader, err := NewObjectUploader(ObjectStorageConfig{
		Endpoint:  server.URL,
		Bucket:    "slides",
		Prefix:    "decks",
		AccessKey: "AKIAEXAMPLE",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("NewObjectUploader returned error: %v", err)
	}

	url, err := uploader.Upload(context.Background(), "session-1/page-1.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if !strings.HasSuffix(url, "/slides/decks/session-1/page-1.png") {
		t.Fatalf("unexpected object url %q", url)
	}

	if len(*captured) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if req.Method != http.MethodPut {
		t.Fatalf("expected PUT, got %s", req.Method)
	}
	if req.Path != "/slides/decks/session-1/page-1.png" {
		t.Fatalf("unexpected path %q", req.Path)
	}
	if req.ContentType != "image/png" {
		t.Fatalf("unexpected content type %q", req.ContentType)
	}
	if !strings.HasPrefix(req.Authorization, "AWS4-HMAC-SHA256 Credential=AKIAEXAMPLE/") {
		t.Fatalf("expected signed request, got authorization %q", req.Authorization)
	}
	if req.ContentSHA == "" {
		t.Fatal("expected payload hash header")
	}
	if string(req.Body) != "png-bytes" {
		t.Fatalf("unexpected body %q", req.Body)
	}
}

func TestS3UploaderPublicEndpoint(t *testing.T) {
	server, _ := newCaptureServer(t)

	uploader, err := NewObjectUploader(ObjectStorageConfig{
		Endpoint:       server.URL,
		Bucket:         "slides",
		PublicEndpoint: "https://cdn.example.com/",
	})
	if err != nil {
		t.Fatalf("NewObjectUploader returned error: %v", err)
	}

	url, err := uploader.Upload(context.Background(), "page-1.png", "image/png", []byte("data"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if url != "https://cdn.example.com/page-1.png" {
		t.Fatalf("expected public url, got %q", url)
	}
}

func TestNewObjectUploaderRequiresBucket(t *testing.T) {
	if _, err := NewObjectUploader(ObjectStorageConfig{Endpoint: "minio:9000"}); err == nil {
		t.Fatal("expected error for missing bucket")
	}
	if _, err := NewObjectUploader(ObjectStorageConfig{Bucket: "slides"}); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}

func TestLocalUploaderWritesFile(t *testing.T) {
	dir := t.TempDir()
	uploader := LocalUploader{Dir: dir, BaseURL: "http://localhost:8080/static"}

	url, err := uploader.Upload(context.Background(), "session-1/page-1.png", "image/png", []byte("data"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if url != "http://localhost:8080/static/session-1/page-1.png" {
		t.Fatalf("unexpected url %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "session-1", "page-1.png"))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(data) != "data" {
		t.Fatalf("unexpected file contents %q", data)
	}

	if _, err := uploader.Upload(context.Background(), "../escape.png", "image/png", []byte("data")); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
}
