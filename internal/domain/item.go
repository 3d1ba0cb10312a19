package domain

import "time"

// Item is one piece of content observed at a source, canonicalized by an
// adapter. ExternalID is the adapter's best-effort stable identifier; items
// without one are dropped before admission because they can never be
// deduplicated.
type Item struct {
	Source      string
	ExternalID  string
	URL         string
	Title       string
	PublishedAt time.Time
}

// SeenRecord is the durable trace of an admitted item. The pair
// (Source, ExternalID) is unique and is the sole deduplication key.
// Records are created once and never updated or deleted.
type SeenRecord struct {
	Source     string
	ExternalID string
	URL        string
	SeenAt     time.Time
}

// RelayMessage is the in-flight payload between admission at the ingress
// gateway and final delivery. It exists only inside the delivery queue.
type RelayMessage struct {
	Source string
	URL    string
	Title  string
}

// Source types understood by the adapter registry.
const (
	SourceAPIStream    = "api-stream"
	SourceUserTimeline = "user-timeline"
	SourcePageScrape   = "page-scrape"
	SourceFeed         = "feed"
)
