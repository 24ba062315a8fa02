package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/bytebufferpool"
)

// StatusError is returned when a remote feed answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

// Fetcher downloads feed documents from http(s) or file:// locations.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch returns the full, decompressed body found at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "file://") {
		return f.fetchLocal(strings.TrimPrefix(rawURL, "file://"))
	}
	return f.fetchRemote(ctx, rawURL)
}

func (f *Fetcher) fetchLocal(localPath string) ([]byte, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("error opening local file: %w", err)
	}
	defer file.Close()

	return readAll(file)
}

func (f *Fetcher) fetchRemote(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return readAll(resp.Body)
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// zstdDecoder is shared; DecodeAll is safe for concurrent use.
var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
})

// readAll drains r through a pooled buffer and inflates gzip or zstd
// payloads (e.g. epg.xml.gz), recognised by their magic bytes.
func readAll(r io.Reader) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("error reading content: %w", err)
	}

	data := buf.Bytes()
	switch {
	case len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b:
		return gunzip(data)
	case bytes.HasPrefix(data, zstdMagic):
		decoder, err := zstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("error creating zstd decoder: %w", err)
		}
		out, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("error inflating content: %w", err)
		}
		return out, nil
	}
	return bytes.Clone(data), nil
}

func gunzip(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error opening gzip stream: %w", err)
	}
	defer gz.Close()

	inflated := bytebufferpool.Get()
	defer bytebufferpool.Put(inflated)

	if _, err := inflated.ReadFrom(gz); err != nil {
		return nil, fmt.Errorf("error inflating content: %w", err)
	}

	return bytes.Clone(inflated.Bytes()), nil
}
