package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
)

// Fetcher resolves an outbound media reference into raw bytes
type Fetcher interface {
	Fetch(ctx context.Context, mediaURL string, maxSize int64) ([]byte, error)
}

type fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher backed by the given HTTP client
func NewFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &fetcher{client: client}
}

var windowsDrivePrefix = regexp.MustCompile(`^[A-Za-z]:`)

// Fetch reads a local file path or downloads an http(s) URL, rejecting
// payloads over maxSize. Other URL schemes are unsupported.
func (f *fetcher) Fetch(ctx context.Context, mediaURL string, maxSize int64) ([]byte, error) {
	switch {
	case strings.HasPrefix(mediaURL, "file://"):
		return f.readLocal(strings.TrimPrefix(mediaURL, "file://"), maxSize)
	case strings.HasPrefix(mediaURL, "/"), windowsDrivePrefix.MatchString(mediaURL):
		return f.readLocal(mediaURL, maxSize)
	case strings.HasPrefix(mediaURL, "http://"), strings.HasPrefix(mediaURL, "https://"):
		return f.download(ctx, mediaURL, maxSize)
	default:
		return nil, fmt.Errorf("unsupported media URL format: %s", mediaURL)
	}
}

func (f *fetcher) readLocal(path string, maxSize int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat media file: %w", err)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("media file %s exceeds size limit of %d bytes", path, maxSize)
	}

	data, err := os.ReadFile(path) // #nosec G304 - Path originates from the reply payload, validated by size limit
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	return data, nil
}

func (f *fetcher) download(ctx context.Context, mediaURL string, maxSize int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create media request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if maxSize > 0 {
		reader = io.LimitReader(resp.Body, maxSize+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read media body: %w", err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("media at %s exceeds size limit of %d bytes", mediaURL, maxSize)
	}

	return data, nil
}
