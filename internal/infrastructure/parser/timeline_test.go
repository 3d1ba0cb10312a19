package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linkrelay/internal/scanner"
)

func timelineSource(serverURL string) scanner.Source {
	return scanner.Source{
		Name:   "x:acme",
		Type:   "user-timeline",
		Handle: "acme",
		URL:    serverURL,
	}
}

func TestTimelinePollFiltersForeignAuthors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "secret-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		_, _ = w.Write([]byte(`{
			"tweets": [
				{"id": "1", "text": "ours", "author": {"userName": "Acme"}},
				{"id": "2", "text": "theirs", "author": {"userName": "rival"}},
				{"id": "3", "text": "orphan"}
			]
		}`))
	}))
	defer server.Close()

	sc := NewUserTimelineScanner(server.URL, "secret-key", 10, server.Client(), nil)
	items, err := sc.Poll(context.Background(), timelineSource(server.URL))
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].ExternalID != "1" {
		t.Fatalf("unexpected id: %s", items[0].ExternalID)
	}
	if items[0].Source != "x:acme" {
		t.Fatalf("unexpected source: %s", items[0].Source)
	}
}

func TestTimelinePollStreamKeepsAllAuthors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "1", "text": "a", "author": {"userName": "anyone"}},
				{"id": "2", "text": "b"}
			]
		}`))
	}))
	defer server.Close()

	sc := NewStreamScanner(server.URL, "k", 10, server.Client(), nil)
	src := scanner.Source{Name: "stream", Type: "api-stream", URL: server.URL}

	items, err := sc.Poll(context.Background(), src)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestTimelinePollPermalinkFallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tweets": [{"id": "42", "text": "hi", "author": {"userName": "acme"}}]}`))
	}))
	defer server.Close()

	sc := NewUserTimelineScanner(server.URL, "k", 10, server.Client(), nil)
	items, err := sc.Poll(context.Background(), timelineSource(server.URL))
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	want := "https://x.com/acme/status/42"
	if items[0].URL != want {
		t.Fatalf("url = %s, want %s", items[0].URL, want)
	}
}

func TestTimelinePollPreservesLargeNumericIDs(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"tweets": [
				{"id": 1519000000000000001, "text": "a", "author": {"userName": "acme"}},
				{"id": 1519000000000000002, "text": "b", "author": {"userName": "acme"}}
			]
		}`))
	}))
	defer server.Close()

	sc := NewUserTimelineScanner(server.URL, "k", 10, server.Client(), nil)
	items, err := sc.Poll(context.Background(), timelineSource(server.URL))
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ExternalID != "1519000000000000001" || items[1].ExternalID != "1519000000000000002" {
		t.Fatalf("adjacent ids mangled: %s, %s", items[0].ExternalID, items[1].ExternalID)
	}
	if items[0].ExternalID == items[1].ExternalID {
		t.Fatalf("distinct entries collapsed to one id")
	}
}

func TestTimelinePollRateLimited(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sc := NewUserTimelineScanner(server.URL, "k", 10, server.Client(), nil)
	_, err := sc.Poll(context.Background(), timelineSource(server.URL))

	var limited *scanner.RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfter != 2*time.Minute {
		t.Fatalf("retry after = %v, want 2m", limited.RetryAfter)
	}
}

func TestTimelinePollRateLimitedWithoutHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sc := NewUserTimelineScanner(server.URL, "k", 10, server.Client(), nil)
	_, err := sc.Poll(context.Background(), timelineSource(server.URL))

	var limited *scanner.RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.RetryAfter != fallbackRetryAfter {
		t.Fatalf("retry after = %v, want fallback %v", limited.RetryAfter, fallbackRetryAfter)
	}
}

func TestTimelinePollMalformedJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tweets": [truncated`))
	}))
	defer server.Close()

	sc := NewUserTimelineScanner(server.URL, "k", 10, server.Client(), nil)
	items, err := sc.Poll(context.Background(), timelineSource(server.URL))
	if err != nil {
		t.Fatalf("malformed body must not error the cycle: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestTimelinePollNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sc := NewUserTimelineScanner(server.URL, "k", 10, server.Client(), nil)
	items, err := sc.Poll(context.Background(), timelineSource(server.URL))
	if err != nil {
		t.Fatalf("404 must not error the cycle: %v", err)
	}
	if items != nil {
		t.Fatalf("expected nil items, got %v", items)
	}
}

func TestTimelineBuildEndpointParams(t *testing.T) {
	t.Parallel()

	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"tweets": []}`))
	}))
	defer server.Close()

	sc := NewUserTimelineScanner(server.URL, "k", 25, server.Client(), nil)
	src := scanner.Source{Name: "x:acme", Type: "user-timeline", Handle: "acme"}
	if _, err := sc.Poll(context.Background(), src); err != nil {
		t.Fatalf("Poll error: %v", err)
	}

	if got := gotQuery["userName"]; len(got) != 1 || got[0] != "acme" {
		t.Fatalf("userName = %v", got)
	}
	if got := gotQuery["pageSize"]; len(got) != 1 || got[0] != "25" {
		t.Fatalf("pageSize = %v", got)
	}
	if got := gotQuery["includeReplies"]; len(got) != 1 || got[0] != "false" {
		t.Fatalf("includeReplies = %v", got)
	}
}

func TestParseRetryAfterFormats(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("Retry-After", "30")
	if got := parseRetryAfter(h); got != 30*time.Second {
		t.Fatalf("seconds form = %v", got)
	}

	h.Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(http.TimeFormat))
	got := parseRetryAfter(h)
	if got < 80*time.Second || got > 91*time.Second {
		t.Fatalf("http date form = %v", got)
	}

	h.Set("Retry-After", "garbage")
	if got := parseRetryAfter(h); got != 0 {
		t.Fatalf("garbage form = %v", got)
	}
}

func TestTimelineRecordTimeLayouts(t *testing.T) {
	t.Parallel()

	rec := map[string]any{"createdAt": "2026-03-04T05:06:07Z"}
	if got := recordTime(rec); got.IsZero() {
		t.Fatalf("RFC3339 timestamp not parsed")
	}

	rec = map[string]any{"legacy": map[string]any{"created_at": "Wed Mar 04 05:06:07 +0000 2026"}}
	got := recordTime(rec)
	if got.IsZero() {
		t.Fatalf("legacy timestamp not parsed")
	}
	if got.Year() != 2026 || got.Month() != time.March {
		t.Fatalf("unexpected parsed time: %v", got)
	}
}
