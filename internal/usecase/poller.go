package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"linkrelay/internal/ports"
	"linkrelay/internal/scanner"
)

// PollerDeps wires the detection side together.
type PollerDeps struct {
	Registry *scanner.Registry
	Sources  []scanner.Source
	Ledger   ports.SeenLedger
	Sink     ports.ItemSink
	Interval time.Duration
	Stagger  time.Duration
	Logger   *slog.Logger
}

// Poller drives every configured source on a shared cadence with an
// inter-source stagger, applying per-source backoff when an upstream reports
// rate limiting. One cycle attempts every source once; the next cycle starts
// after max(0, interval − elapsed), so slow cycles never compound.
type Poller struct {
	registry *scanner.Registry
	sources  []scanner.Source
	ledger   ports.SeenLedger
	sink     ports.ItemSink
	interval time.Duration
	stagger  time.Duration
	log      *slog.Logger

	// backoffUntil is only touched by the run loop.
	backoffUntil map[string]time.Time
}

// NewPoller constructs the poll scheduler.
func NewPoller(deps PollerDeps) *Poller {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		registry:     deps.Registry,
		sources:      deps.Sources,
		ledger:       deps.Ledger,
		sink:         deps.Sink,
		interval:     deps.Interval,
		stagger:      deps.Stagger,
		log:          log,
		backoffUntil: map[string]time.Time{},
	}
}

// Run executes poll cycles until the context is cancelled. No per-source
// failure terminates the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started", "sources", len(p.sources), "interval", p.interval, "stagger", p.stagger)

	for {
		start := time.Now()

		for i, src := range p.sources {
			if i > 0 {
				if !sleepCtx(ctx, p.stagger) {
					return ctx.Err()
				}
			}
			if until, ok := p.backoffUntil[src.Name]; ok && time.Now().Before(until) {
				p.log.Debug("source in backoff, skipping", "source", src.Name, "until", until)
				continue
			}
			p.pollSource(ctx, src)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		wait := p.interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		p.log.Info("cycle finished", "next_in", wait.Truncate(time.Second))
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

// pollSource runs one fetch for one source and admits its items in adapter
// order. Admission happens synchronously before hand-off: a crash between the
// two loses at most one notification and can never cause a re-delivery from
// this side.
func (p *Poller) pollSource(ctx context.Context, src scanner.Source) {
	adapter, err := p.registry.Resolve(src.Type)
	if err != nil {
		p.log.Error("no adapter for source", "source", src.Name, "type", src.Type, "error", err)
		return
	}

	items, err := adapter.Poll(ctx, src)
	if err != nil {
		var limited *scanner.RateLimitedError
		if errors.As(err, &limited) {
			// Backoff suspends this source only; the rest of the
			// cycle continues on schedule.
			p.backoffUntil[src.Name] = time.Now().Add(limited.RetryAfter)
			p.log.Warn("source rate limited", "source", src.Name, "retry_after", limited.RetryAfter)
			return
		}
		p.log.Error("poll failed", "source", src.Name, "error", err)
		return
	}

	fresh := 0
	for _, item := range items {
		if item.ExternalID == "" {
			continue
		}
		admitted, err := p.ledger.AdmitSeen(ctx, item.Source, item.ExternalID, item.URL)
		if err != nil {
			p.log.Error("admission failed", "source", src.Name, "id", item.ExternalID, "error", err)
			continue
		}
		if !admitted {
			p.log.Debug("already seen", "source", src.Name, "id", item.ExternalID)
			continue
		}

		fresh++
		p.log.Info("new item detected", "source", src.Name, "id", item.ExternalID)
		if err := p.sink.Publish(ctx, item); err != nil {
			// The item is marked seen, so this notification is lost
			// rather than retried; at-least-once holds at the boundary.
			p.log.Error("item admitted but not relayed", "source", src.Name, "id", item.ExternalID, "error", err)
		}
	}

	if fresh == 0 {
		p.log.Debug("no new items", "source", src.Name, "candidates", len(items))
	}
}

// sleepCtx sleeps for d or until the context is cancelled, reporting whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
