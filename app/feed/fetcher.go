package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxBodySize bounds how much of a response is read for a single feed or page.
const maxBodySize = 16 << 20

// Fetcher downloads and parses feeds. It never returns an error: every failure
// is reported through the FetchOutcome.
type Fetcher struct {
	httpClient       *http.Client
	parser           *Parser
	contentExtractor *ContentExtractor
	filterer         *Filterer
	userAgent        string
	now              func() time.Time
}

func NewFetcher(httpClient *http.Client, parser *Parser, contentExtractor *ContentExtractor, userAgent string) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient:       httpClient,
		parser:           parser,
		contentExtractor: contentExtractor,
		filterer:         NewFilterer(),
		userAgent:        userAgent,
		now:              time.Now,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, source Source) FetchOutcome {
	started := f.now()
	outcome := FetchOutcome{
		SourceName: source.Name,
		Category:   source.Category,
		URL:        source.URL,
	}

	items, err := f.fetchItems(ctx, source)
	outcome.Duration = f.now().Sub(started)
	if err != nil {
		outcome.ErrorDetail = err.Error()
		return outcome
	}

	outcome.Succeeded = true
	outcome.Items = items
	return outcome
}

func (f *Fetcher) fetchItems(ctx context.Context, source Source) (items []Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("panic while processing feed: %v", r)
		}
	}()

	data, err := f.get(ctx, source.URL, source.Timeout, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	metadata, items, err := f.parser.Run(data, source, f.now())
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Parsed feed", "title", metadata.Title, "items", len(items))

	items, rejected := f.filterer.Run(items, source.Filters)
	for link, reason := range rejected {
		slog.DebugContext(ctx, "Item filtered", "url", link, "reason", reason)
	}

	if source.ExtractContent && f.contentExtractor != nil {
		items = f.extractMissingDescriptions(ctx, source, items)
	}

	return items, nil
}

// extractMissingDescriptions fills empty descriptions from the linked page for
// at most source.MaxExtractions items. Failures leave the item untouched.
func (f *Fetcher) extractMissingDescriptions(ctx context.Context, source Source, items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)

	attempts := 0
	for i, item := range out {
		if item.Description != "" {
			continue
		}
		if attempts >= source.MaxExtractions {
			break
		}
		attempts++

		data, err := f.get(ctx, item.Link, source.Timeout, "text/html")
		if err != nil {
			slog.DebugContext(ctx, "Failed to fetch article", "url", item.Link, "error", err)
			continue
		}

		text, err := f.contentExtractor.Run(data, item.Link)
		if err != nil {
			slog.DebugContext(ctx, "Failed to extract article", "url", item.Link, "error", err)
			continue
		}

		item.Description = text
		out[i] = item
	}

	return out
}

func (f *Fetcher) get(ctx context.Context, url string, timeout time.Duration, wantType string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	if wantType != "" {
		contentType := resp.Header.Get("Content-Type")
		if !strings.Contains(strings.ToLower(contentType), wantType) {
			return nil, fmt.Errorf("unexpected content type: %s", contentType)
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
