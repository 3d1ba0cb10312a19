package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"linkrelay/internal/domain"
)

type staticIssuer struct{ token string }

func (s staticIssuer) Mint(string) (string, error) { return s.token, nil }

func TestPublishSendsSignedRequest(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "posted"})
	}))
	defer server.Close()

	client := NewClient(server.URL, staticIssuer{token: "tok-123"}, server.Client())
	item := domain.Item{
		Source:      "x:acme",
		ExternalID:  "9",
		URL:         "https://x.com/acme/status/9",
		Title:       "hello",
		PublishedAt: time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := client.Publish(context.Background(), item); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if gotAuth != "Bearer tok-123" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody["source"] != "x:acme" || gotBody["url"] != "https://x.com/acme/status/9" {
		t.Fatalf("unexpected body: %v", gotBody)
	}
	if gotBody["published_at"] != "2026-05-01T12:00:00Z" {
		t.Fatalf("published_at = %q", gotBody["published_at"])
	}
}

func TestPublishReportsRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "invalid token"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, staticIssuer{token: "stale"}, server.Client())
	err := client.Publish(context.Background(), domain.Item{Source: "x:acme", ExternalID: "9"})
	if err == nil {
		t.Fatalf("expected error on 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("error lacks status detail: %v", err)
	}
}
