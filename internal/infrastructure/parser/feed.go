package parser

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmcdole/gofeed"

	"linkrelay/internal/domain"
	"linkrelay/internal/scanner"
)

// FeedScanner polls an RSS/Atom feed. The entry GUID is the identifier,
// falling back to the entry link when the feed omits GUIDs.
type FeedScanner struct {
	parser *gofeed.Parser
	log    *slog.Logger
}

var _ scanner.Adapter = (*FeedScanner)(nil)

// NewFeedScanner builds a feed adapter with a fresh gofeed parser.
func NewFeedScanner(log *slog.Logger) *FeedScanner {
	if log == nil {
		log = slog.Default()
	}
	return &FeedScanner{parser: gofeed.NewParser(), log: log}
}

// Name identifies the strategy inside the registry.
func (f *FeedScanner) Name() string { return domain.SourceFeed }

// Poll fetches and parses the feed, returning entries in feed order.
func (f *FeedScanner) Poll(ctx context.Context, src scanner.Source) ([]domain.Item, error) {
	parsed, err := f.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == 429 {
			return nil, &scanner.RateLimitedError{RetryAfter: fallbackRetryAfter}
		}
		f.log.Warn("feed fetch failed, skipping cycle", "source", src.Name, "error", err)
		return nil, nil
	}

	items := make([]domain.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		id := entry.GUID
		if id == "" {
			id = entry.Link
		}
		if id == "" {
			continue
		}
		item := domain.Item{
			Source:     src.Name,
			ExternalID: id,
			URL:        entry.Link,
			Title:      entry.Title,
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = *entry.PublishedParsed
		}
		items = append(items, item)
	}
	return items, nil
}
