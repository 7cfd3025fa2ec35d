package retriever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/models"
)

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()
	r, err := New(Config{
		TempDir:     t.TempDir(),
		Attempts:    3,
		BaseBackoff: time.Millisecond,
	}, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestFetchLocalFile(t *testing.T) {
	r := newTestRetriever(t)
	src := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(src, []byte("video bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{src, "local:" + src} {
		path, cleanup, err := r.Fetch(context.Background(), ref)
		if err != nil {
			t.Fatalf("Fetch(%q): %v", ref, err)
		}
		if path != src {
			t.Errorf("local fetch should return the original path, got %q", path)
		}
		cleanup()
		if _, err := os.Stat(src); err != nil {
			t.Error("cleanup of a local reference must not remove the file")
		}
	}
}

func TestFetchLocalMissing(t *testing.T) {
	r := newTestRetriever(t)
	_, _, err := r.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := models.KindOf(err); kind != models.KindRetrieval {
		t.Errorf("expected %s, got %s", models.KindRetrieval, kind)
	}
}

func TestFetchURLDownloadsAndCleansUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("mp4 payload"))
	}))
	defer server.Close()

	r := newTestRetriever(t)
	path, cleanup, err := r.Fetch(context.Background(), server.URL+"/videos/a.mp4?sig=abc")
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "mp4 payload" {
		t.Errorf("downloaded %q", data)
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("cleanup must remove the downloaded temp file")
	}
}

func TestFetchURLRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("eventually"))
	}))
	defer server.Close()

	r := newTestRetriever(t)
	path, cleanup, err := r.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if data, _ := os.ReadFile(path); string(data) != "eventually" {
		t.Errorf("downloaded %q", data)
	}
}

func TestFetchURLPermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	r := newTestRetriever(t)
	_, _, err := r.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error for expired signed URL")
	}
	if kind := models.KindOf(err); kind != models.KindRetrieval {
		t.Errorf("expected %s, got %s", models.KindRetrieval, kind)
	}
	if models.IsRetryable(err) {
		t.Error("4xx must be permanent")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("permanent failure must not be retried, got %d attempts", got)
	}
}

func TestFetchURLExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	r := newTestRetriever(t)
	_, _, err := r.Fetch(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := newTestRetriever(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Fetch(ctx, server.URL)
	if err == nil {
		t.Fatal("expected error with cancelled context")
	}
}

func TestFetchUnsupportedScheme(t *testing.T) {
	r := newTestRetriever(t)
	_, _, err := r.Fetch(context.Background(), "ftp://host/video.mp4")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := models.KindOf(err); kind != models.KindRetrieval {
		t.Errorf("expected %s, got %s", models.KindRetrieval, kind)
	}
}

func TestFetchObjectWithoutClient(t *testing.T) {
	r := newTestRetriever(t)
	_, _, err := r.Fetch(context.Background(), "s3://videos/attempt.mp4")
	if err == nil {
		t.Fatal("expected error when object storage is not configured")
	}
	if models.IsRetryable(err) {
		t.Error("missing configuration is permanent")
	}
}

func TestSplitObjectRef(t *testing.T) {
	tests := []struct {
		ref     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://videos/attempt.mp4", "videos", "attempt.mp4", false},
		{"s3://videos/sessions/2026/a.mp4", "videos", "sessions/2026/a.mp4", false},
		{"s3://videos", "", "", true},
		{"s3://", "", "", true},
		{"s3:///key-only", "", "", true},
	}

	for _, tt := range tests {
		bucket, key, err := splitObjectRef(tt.ref)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitObjectRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("splitObjectRef(%q) = %q/%q, want %q/%q", tt.ref, bucket, key, tt.bucket, tt.key)
		}
	}
}
