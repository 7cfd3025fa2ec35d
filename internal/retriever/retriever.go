package retriever

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/metrics"
	"github.com/routelens/routelens/internal/models"
)

// Reference kinds accepted by Fetch:
//
//	local:/path/to/file.mp4   already-local file, returned as-is
//	https://host/signed-url   short-lived signed URL, downloaded to a temp file
//	s3://bucket/key           object storage, fetched with the minio client
//
// A bare path with no scheme is treated as local.

type Config struct {
	TempDir     string
	Attempts    int
	BaseBackoff time.Duration
	HTTPTimeout time.Duration
}

type Retriever struct {
	httpClient  *http.Client
	s3          *minio.Client
	tempDir     string
	attempts    int
	baseBackoff time.Duration
	logger      *zap.Logger
}

// New creates a Retriever. s3 may be nil; s3:// references then fail with a
// permanent RetrievalError.
func New(cfg Config, s3 *minio.Client, logger *zap.Logger) (*Retriever, error) {
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "routelens-videos")
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}

	return &Retriever{
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		s3:          s3,
		tempDir:     cfg.TempDir,
		attempts:    cfg.Attempts,
		baseBackoff: cfg.BaseBackoff,
		logger:      logger,
	}, nil
}

// Fetch resolves ref into a local seekable file and returns its path together
// with a cleanup func. The cleanup func must be called on every exit path;
// for already-local references it is a no-op, for downloads it removes the
// temporary file.
func (r *Retriever) Fetch(ctx context.Context, ref string) (string, func(), error) {
	switch {
	case strings.HasPrefix(ref, "local:"):
		return r.fetchLocal(strings.TrimPrefix(ref, "local:"))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return r.fetchURL(ctx, ref)
	case strings.HasPrefix(ref, "s3://"):
		return r.fetchObject(ctx, ref)
	case strings.Contains(ref, "://"):
		return "", nil, &models.PipelineError{Kind: models.KindRetrieval, Message: fmt.Sprintf("unsupported reference scheme: %q", ref)}
	default:
		return r.fetchLocal(ref)
	}
}

func (r *Retriever) fetchLocal(path string) (string, func(), error) {
	if _, err := os.Stat(path); err != nil {
		return "", nil, &models.PipelineError{Kind: models.KindRetrieval, Message: "local video not accessible", Err: err}
	}
	return path, func() {}, nil
}

func (r *Retriever) fetchURL(ctx context.Context, url string) (string, func(), error) {
	dest := r.tempPath()
	err := r.withRetry(ctx, func() error {
		return r.downloadOnce(ctx, url, dest)
	})
	if err != nil {
		os.Remove(dest)
		return "", nil, err
	}
	return dest, func() { os.Remove(dest) }, nil
}

func (r *Retriever) downloadOnce(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &models.PipelineError{Kind: models.KindRetrieval, Message: "build request", Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &models.PipelineError{Kind: models.KindRetrieval, Message: "fetch video", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 500:
		return &models.PipelineError{Kind: models.KindRetrieval, Message: fmt.Sprintf("storage returned %d", resp.StatusCode), Retryable: true}
	default:
		// Expired or invalid reference: retrying cannot help.
		return &models.PipelineError{Kind: models.KindRetrieval, Message: fmt.Sprintf("storage returned %d", resp.StatusCode)}
	}

	out, err := os.Create(dest)
	if err != nil {
		return &models.PipelineError{Kind: models.KindRetrieval, Message: "create temp file", Err: err}
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(dest)
		return &models.PipelineError{Kind: models.KindRetrieval, Message: "write video payload", Retryable: true, Err: err}
	}
	return nil
}

func (r *Retriever) fetchObject(ctx context.Context, ref string) (string, func(), error) {
	if r.s3 == nil {
		return "", nil, &models.PipelineError{Kind: models.KindRetrieval, Message: "object storage not configured"}
	}

	bucket, key, err := splitObjectRef(ref)
	if err != nil {
		return "", nil, err
	}

	dest := r.tempPath()
	err = r.withRetry(ctx, func() error {
		if err := r.s3.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
			code := minio.ToErrorResponse(err).StatusCode
			retryable := code == 0 || code >= 500
			return &models.PipelineError{Kind: models.KindRetrieval, Message: fmt.Sprintf("get object %s/%s", bucket, key), Retryable: retryable, Err: err}
		}
		return nil
	})
	if err != nil {
		os.Remove(dest)
		return "", nil, err
	}
	return dest, func() { os.Remove(dest) }, nil
}

func splitObjectRef(ref string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(ref, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &models.PipelineError{Kind: models.KindRetrieval, Message: fmt.Sprintf("malformed object reference: %q", ref)}
	}
	return parts[0], parts[1], nil
}

func (r *Retriever) tempPath() string {
	return filepath.Join(r.tempDir, uuid.New().String()+".mp4")
}

// withRetry runs fn up to r.attempts times with exponential backoff, stopping
// early on permanent errors and context cancellation.
func (r *Retriever) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			metrics.RetryTotal.WithLabelValues("retriever").Inc()
			delay := r.baseBackoff << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &models.PipelineError{Kind: models.KindTimeout, Message: "retrieval cancelled", Err: ctx.Err()}
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !models.IsRetryable(lastErr) {
			return lastErr
		}
		r.logger.Warn("retrieval attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.attempts),
			zap.Error(lastErr),
		)
	}
	return lastErr
}
