// Package fetch implements the web-fetching port: URL reachability probes
// and main-content extraction with bounded timeouts and redirect counts.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

const (
	// slowThreshold marks a reachable URL as degraded when the probe takes
	// longer than this.
	slowThreshold = 5 * time.Second

	// maxBodyBytes caps how much of a page we read before extraction.
	maxBodyBytes = 2 << 20 // 2 MiB

	userAgent = "verdictd-oracle/1.0 (+https://github.com/verdictd/verdictd)"
)

// Config holds fetcher limits.
type Config struct {
	Timeout          time.Duration
	MaxRedirects     int
	MaxContentLength int
}

// Fetcher implements domain.PageFetcher over net/http.
type Fetcher struct {
	client           *http.Client
	maxContentLength int
	logger           *slog.Logger
}

// New creates a Fetcher with the given limits.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 5
	}
	maxLen := cfg.MaxContentLength
	if maxLen <= 0 {
		maxLen = 8000
	}

	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("fetch: stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Fetcher{
		client:           client,
		maxContentLength: maxLen,
		logger:           logger.With(slog.String("component", "fetch")),
	}
}

// Check probes rawURL with a HEAD request (falling back to GET when HEAD is
// rejected) and classifies the result. Check never returns an error: an
// unreachable URL is data, not a failure.
func (f *Fetcher) Check(ctx context.Context, rawURL string) domain.URLCheck {
	start := time.Now()

	status, err := f.probe(ctx, http.MethodHead, rawURL)
	if err != nil || status == http.StatusMethodNotAllowed {
		// Some servers reject HEAD outright; retry with GET before giving up.
		status, err = f.probe(ctx, http.MethodGet, rawURL)
	}
	latency := time.Since(start)

	check := domain.URLCheck{
		StatusCode: status,
		Latency:    latency,
	}

	switch {
	case err != nil:
		f.logger.Debug("url probe failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		check.Score = 0
	case status >= 200 && status < 300:
		check.Reachable = true
		check.Score = 100
		if latency > slowThreshold {
			check.Score = 50
		}
	case status >= 400 && status < 500:
		check.Reachable = true
		check.Score = 50
	default:
		check.Score = 0
	}

	return check
}

// probe issues a single request and discards the body.
func (f *Fetcher) probe(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch: %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}

// Extract fetches rawURL and returns its main-content text plus page
// metadata. The extracted text is capped at the configured length to bound
// downstream prompt size.
func (f *Fetcher) Extract(ctx context.Context, rawURL string) (domain.SourceContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.SourceContent{}, fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.SourceContent{}, fmt.Errorf("fetch: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.SourceContent{}, fmt.Errorf("fetch: get %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.SourceContent{}, fmt.Errorf("fetch: read %s: %w", rawURL, err)
	}

	content, err := ExtractContent(body, f.maxContentLength)
	if err != nil {
		return domain.SourceContent{}, fmt.Errorf("fetch: extract %s: %w", rawURL, err)
	}
	content.URL = rawURL
	content.Reachable = true
	content.URLScore = 100

	return content, nil
}

// Compile-time interface check.
var _ domain.PageFetcher = (*Fetcher)(nil)
