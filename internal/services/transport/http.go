package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/harvestarr/internal/models"
)

// Transporter moves the bytes of one media URL to local storage
type Transporter interface {
	// Fetch opens a byte stream for url. The size is -1 when unknown.
	// Caller is responsible for closing the reader.
	Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error)

	// WriteFile streams r into path, creating parent directories.
	WriteFile(path string, r io.Reader) (int64, error)
}

// HTTPTransporter implements Transporter over net/http and the local filesystem
type HTTPTransporter struct {
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHTTPTransporter creates a new HTTP transporter. Per-call deadlines come
// from the context, so the client itself has no timeout.
func NewHTTPTransporter(logger *logrus.Logger) *HTTPTransporter {
	return &HTTPTransporter{
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Fetch issues a GET for url
func (t *HTTPTransporter) Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	const op = "fetch"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, models.NewError(models.KindTransport, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", "harvestarr/1.0")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, 0, classify(ctx, op, 0, fmt.Errorf("request failed: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, models.NewStatusError(models.KindTransport, op, resp.StatusCode,
			fmt.Errorf("download failed with status %d", resp.StatusCode))
	}

	t.logger.WithFields(logrus.Fields{
		"url":            url,
		"content_length": resp.ContentLength,
		"content_type":   resp.Header.Get("Content-Type"),
	}).Debug("Fetching media")

	return &contextReader{ctx: ctx, body: resp.Body}, resp.ContentLength, nil
}

// WriteFile streams r into path through a temporary file, renamed on success
// so a failed transfer leaves nothing at path.
func (t *HTTPTransporter) WriteFile(path string, r io.Reader) (int64, error) {
	const op = "write"

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, models.NewError(models.KindTransport, op, fmt.Errorf("failed to create directory: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".part-*")
	if err != nil {
		return 0, models.NewError(models.KindTransport, op, fmt.Errorf("failed to create file: %w", err))
	}
	tmpName := tmp.Name()

	written, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tmpName)
		var e *models.Error
		if errors.As(copyErr, &e) {
			return written, copyErr
		}
		return written, models.NewError(models.KindTransport, op, fmt.Errorf("failed to write %s: %w", path, copyErr))
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return written, models.NewError(models.KindTransport, op, fmt.Errorf("failed to finalize %s: %w", path, err))
	}

	return written, nil
}

// contextReader classifies read failures caused by the request context
type contextReader struct {
	ctx  context.Context
	body io.ReadCloser
}

func (r *contextReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if err != nil && err != io.EOF {
		return n, classify(r.ctx, "read", 0, err)
	}
	return n, err
}

func (r *contextReader) Close() error {
	return r.body.Close()
}

func classify(ctx context.Context, op string, status int, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewError(models.KindTimeout, op, err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return models.NewError(models.KindCancelled, op, err)
	}
	return models.NewStatusError(models.KindTransport, op, status, err)
}
