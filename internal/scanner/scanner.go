package scanner

import (
	"context"
	"fmt"
	"time"

	"linkrelay/internal/domain"
)

// Source is the immutable descriptor an adapter polls. It mirrors the
// configured source set, which is read once at startup.
type Source struct {
	Name     string
	Type     string
	Handle   string
	URL      string
	Selector string
}

// Adapter produces one bounded batch of candidate items per invocation.
// A rate-limited upstream aborts the batch with *RateLimitedError; transient
// upstream garbage (404, malformed bodies) degrades to an empty batch.
type Adapter interface {
	Name() string
	Poll(ctx context.Context, src Source) ([]domain.Item, error)
}

// RateLimitedError signals an upstream 429. RetryAfter is the provider's
// requested cool-down, or the adapter's fallback when the provider gave none.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("upstream rate limited, retry after %s", e.RetryAfter)
}

// DebugSink receives raw provider payloads for offline inspection. Nil
// disables dumping; adapters must never fail because of a sink.
type DebugSink interface {
	Dump(source string, payload []byte)
}

// Registry keeps a mapping from source types to adapter implementations.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds or replaces an adapter implementation.
func (r *Registry) Register(adapters ...Adapter) {
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
}

// Resolve returns an adapter by source type or an error if it is absent.
func (r *Registry) Resolve(name string) (Adapter, error) {
	if a, ok := r.adapters[name]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("adapter %s is not registered", name)
}
