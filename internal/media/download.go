package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/glizzus/needsmorejpeg/internal/datalayer"
	"github.com/glizzus/needsmorejpeg/internal/generator"
)

// UserAgent is sent with downloads; some hosts refuse clients without a
// browser agent.
const UserAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:76.0) Gecko/20100101 Firefox/76.0"

var ErrTooLarge = errors.New("file too large")

// DownloadError is a failed fetch.
type DownloadError struct {
	URL string
	// Status is the HTTP status, or 0 when the request never got a response.
	Status int
	Err    error
}

var _ error = (*DownloadError)(nil)

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

// Message is the reply shown to the user who asked for the download.
func (e *DownloadError) Message() string {
	switch {
	case errors.Is(e.Err, ErrTooLarge):
		return "Could not download file. (too large)"
	case e.Status != 0:
		return fmt.Sprintf("Could not download file. (code %d)", e.Status)
	default:
		return "Could not download file. (invalid url)"
	}
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Downloader fetches audio over HTTP into blob storage.
type Downloader struct {
	client   *http.Client
	storage  datalayer.BlobStorage
	keys     generator.Generator[string]
	maxBytes int64
}

func NewDownloader(client *http.Client, storage datalayer.BlobStorage, keys generator.Generator[string], maxBytes int64) *Downloader {
	return &Downloader{
		client:   client,
		storage:  storage,
		keys:     keys,
		maxBytes: maxBytes,
	}
}

// Fetch downloads rawURL and stores it under a fresh key, which it returns.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &DownloadError{URL: rawURL, Err: fmt.Errorf("unsupported url %q", rawURL)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &DownloadError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", &DownloadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &DownloadError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if resp.ContentLength > d.maxBytes {
		return "", &DownloadError{URL: rawURL, Status: resp.StatusCode, Err: ErrTooLarge}
	}

	id, err := d.keys.Next()
	if err != nil {
		return "", fmt.Errorf("failed to generate blob key: %w", err)
	}
	key := "uploads/" + id + path.Ext(u.Path)

	body := &limitedReader{r: resp.Body, remaining: d.maxBytes}
	err = d.storage.Put(ctx, key, body, datalayer.PutOptions{
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	})
	if errors.Is(err, ErrTooLarge) {
		// Part of the object may have been written.
		_ = d.storage.Remove(context.WithoutCancel(ctx), key)
		return "", &DownloadError{URL: rawURL, Status: resp.StatusCode, Err: ErrTooLarge}
	}
	if err != nil {
		return "", fmt.Errorf("failed to store download: %w", err)
	}
	return key, nil
}

// limitedReader fails with ErrTooLarge instead of silently truncating.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
