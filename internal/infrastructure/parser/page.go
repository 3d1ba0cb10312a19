package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"linkrelay/internal/domain"
	"linkrelay/internal/scanner"
)

const defaultAnchorSelector = "a[href]"

// PageScanner fetches a web page and treats every selected anchor's resolved
// absolute URL as both identifier and location of a candidate item.
type PageScanner struct {
	client *http.Client
	log    *slog.Logger
}

var _ scanner.Adapter = (*PageScanner)(nil)

// NewPageScanner wires an HTTP client; nil defaults to a 20s timeout.
func NewPageScanner(client *http.Client, log *slog.Logger) *PageScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &PageScanner{client: client, log: log}
}

// Name identifies the strategy inside the registry.
func (p *PageScanner) Name() string { return domain.SourcePageScrape }

// Poll fetches the configured page and extracts candidate links in document
// order. Relative hrefs are resolved against the page URL.
func (p *PageScanner) Poll(ctx context.Context, src scanner.Source) ([]domain.Item, error) {
	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url for %s: %w", src.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "linkrelay/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page for %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		ra := parseRetryAfter(resp.Header)
		if ra <= 0 {
			ra = fallbackRetryAfter
		}
		return nil, &scanner.RateLimitedError{RetryAfter: ra}
	case resp.StatusCode == http.StatusNotFound:
		p.log.Warn("page returned 404", "source", src.Name)
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		p.log.Warn("unexpected page status", "source", src.Name, "status", resp.Status)
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		p.log.Warn("page body is not parseable HTML, skipping cycle", "source", src.Name, "error", err)
		return nil, nil
	}

	selector := src.Selector
	if selector == "" {
		selector = defaultAnchorSelector
	}

	var items []domain.Item
	seen := map[string]struct{}{}
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		link := abs.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		items = append(items, domain.Item{
			Source:     src.Name,
			ExternalID: link,
			URL:        link,
			Title:      strings.TrimSpace(sel.Text()),
		})
	})

	return items, nil
}
