package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"linkrelay/internal/domain"
	"linkrelay/internal/scanner"
)

const (
	defaultPageSize     = 10
	fallbackRetryAfter  = 15 * time.Minute
	maxTimelineBody     = 4 << 20
	permalinkHostPrefix = "https://x.com/"
)

// rubyTime is the classic provider timestamp layout still seen in legacy
// payloads.
const rubyTime = "Mon Jan 02 15:04:05 -0700 2006"

// TimelineScanner polls a listing endpoint for one account and normalizes the
// response through the tolerant extraction chain. The same implementation
// serves user-timeline sources (strict author filtering, guards against
// retweets and replies leaking into the response) and api-stream sources
// (no ownership filter).
type TimelineScanner struct {
	name         string
	baseURL      string
	apiKey       string
	pageSize     int
	filterAuthor bool

	client *http.Client
	debug  scanner.DebugSink
	log    *slog.Logger
}

var _ scanner.Adapter = (*TimelineScanner)(nil)

// NewUserTimelineScanner builds the author-filtered variant.
func NewUserTimelineScanner(baseURL, apiKey string, pageSize int, client *http.Client, log *slog.Logger) *TimelineScanner {
	return newTimelineScanner(domain.SourceUserTimeline, baseURL, apiKey, pageSize, true, client, log)
}

// NewStreamScanner builds the unfiltered variant for generic API listings.
func NewStreamScanner(baseURL, apiKey string, pageSize int, client *http.Client, log *slog.Logger) *TimelineScanner {
	return newTimelineScanner(domain.SourceAPIStream, baseURL, apiKey, pageSize, false, client, log)
}

func newTimelineScanner(name, baseURL, apiKey string, pageSize int, filterAuthor bool, client *http.Client, log *slog.Logger) *TimelineScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &TimelineScanner{
		name:         name,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		pageSize:     pageSize,
		filterAuthor: filterAuthor,
		client:       client,
		log:          log,
	}
}

// Name identifies the strategy inside the registry.
func (t *TimelineScanner) Name() string { return t.name }

// SetDebugSink installs an optional raw-payload sink.
func (t *TimelineScanner) SetDebugSink(sink scanner.DebugSink) { t.debug = sink }

// Poll fetches one page of recent entries for the source and returns the
// candidates that survived identification and ownership filtering, in
// provider order.
func (t *TimelineScanner) Poll(ctx context.Context, src scanner.Source) ([]domain.Item, error) {
	endpoint, err := t.buildEndpoint(src)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", t.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request timeline for %s: %w", src.Name, err)
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
		t.log.Warn("timeline endpoint returned 404", "source", src.Name)
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		t.log.Warn("unexpected timeline status", "source", src.Name, "status", resp.Status)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimelineBody))
	if err != nil {
		t.log.Warn("read timeline body", "source", src.Name, "error", err)
		return nil, nil
	}
	if t.debug != nil {
		t.debug.Dump(src.Name, body)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		t.log.Warn("timeline body is not valid JSON, skipping cycle", "source", src.Name, "error", err)
		return nil, nil
	}

	return t.normalize(src, extractRecords(payload)), nil
}

func (t *TimelineScanner) buildEndpoint(src scanner.Source) (string, error) {
	base := src.URL
	if base == "" {
		base = t.baseURL + "/user/last_tweets"
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint for %s: %w", src.Name, err)
	}
	q := u.Query()
	if src.Handle != "" {
		q.Set("userName", src.Handle)
	}
	q.Set("pageSize", strconv.Itoa(t.pageSize))
	q.Set("includeReplies", "false")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *TimelineScanner) normalize(src scanner.Source, records []map[string]any) []domain.Item {
	items := make([]domain.Item, 0, len(records))
	for _, rec := range records {
		id := recordID(rec)
		if id == "" {
			// Unidentifiable entries (ads, meta rows) can never be
			// deduplicated, so they never reach admission.
			t.log.Debug("dropping record without id", "source", src.Name)
			continue
		}

		if t.filterAuthor {
			author := recordAuthor(rec)
			if author == "" {
				t.log.Warn("record has no resolvable author, dropping", "source", src.Name, "id", id)
				continue
			}
			if !strings.EqualFold(author, src.Handle) {
				t.log.Debug("dropping record from foreign author", "source", src.Name, "id", id, "author", author)
				continue
			}
		}

		link := recordURL(rec)
		if link == "" && src.Handle != "" {
			link = permalinkHostPrefix + src.Handle + "/status/" + id
		}

		items = append(items, domain.Item{
			Source:      src.Name,
			ExternalID:  id,
			URL:         link,
			Title:       recordText(rec),
			PublishedAt: recordTime(rec),
		})
	}
	return items
}

func recordTime(rec map[string]any) time.Time {
	raw := stringField(rec, "createdAt", "created_at")
	if raw == "" {
		if legacy, ok := rec["legacy"].(map[string]any); ok {
			raw = stringField(legacy, "created_at")
		}
	}
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, rubyTime} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// parseRetryAfter reads a Retry-After header given either as seconds or as an
// HTTP date.
func parseRetryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if ts, err := http.ParseTime(v); err == nil {
		if d := time.Until(ts); d > 0 {
			return d
		}
	}
	return 0
}
