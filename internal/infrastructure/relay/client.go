// Package relay implements the watcher-side client for the ingress endpoint.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"linkrelay/internal/domain"
	"linkrelay/internal/ports"
)

// Client posts admitted items to the publisher's ingress endpoint, minting a
// fresh credential per call.
type Client struct {
	endpoint   string
	issuer     ports.TokenIssuer
	httpClient *http.Client
}

var _ ports.ItemSink = (*Client)(nil)

// NewClient builds a relay client for the given ingress URL.
func NewClient(endpoint string, issuer ports.TokenIssuer, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{endpoint: endpoint, issuer: issuer, httpClient: httpClient}
}

type outgoingItem struct {
	Source      string `json:"source"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Publish sends one item across the trust boundary. Any non-2xx response is
// an error; the caller decides whether the loss is acceptable.
func (c *Client) Publish(ctx context.Context, item domain.Item) error {
	credential, err := c.issuer.Mint(item.Source)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	payload := outgoingItem{
		Source: item.Source,
		URL:    item.URL,
		Title:  item.Title,
	}
	if !item.PublishedAt.IsZero() {
		payload.PublishedAt = item.PublishedAt.UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post item: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ingress rejected item %s: %s: %s",
			item.ExternalID, resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}
