package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxPageBytes = 10 << 20

// Fetcher downloads pages for the CLI, which has no live DOM to read from.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "Mozilla/5.0 (compatible; luma/1.0)",
	}
}

// Fetch returns the body of pageURL as a string.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	slog.Info("Fetching page", "url", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read page body: %w", err)
	}

	slog.Info("Page fetched", "url", pageURL, "size", len(body))
	return string(body), nil
}
