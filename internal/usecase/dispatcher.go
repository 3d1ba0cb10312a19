package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"linkrelay/internal/domain"
	"linkrelay/internal/ports"
)

const (
	// Telegram tolerates roughly one message per second per chat.
	defaultSendRate = rate.Limit(1)

	defaultRetryAfter = 5 * time.Second
	depthWarnLevel    = 100
)

// DispatcherDeps wires the delivery side together.
type DispatcherDeps struct {
	Queue             *Queue
	Client            ports.ChannelClient
	ChannelID         string
	DefaultRetryAfter time.Duration
	SendRate          rate.Limit
	Logger            *slog.Logger
}

// Dispatcher drains the delivery queue one message at a time. A rate-limited
// send is retried in place after the advertised cool-down, so ordering is
// preserved and no message overtakes another. Any other send failure drops the
// message with an error log.
type Dispatcher struct {
	queue             *Queue
	client            ports.ChannelClient
	channelID         string
	handle            ports.ChannelHandle
	limiter           *rate.Limiter
	defaultRetryAfter time.Duration
	log               *slog.Logger
}

// NewDispatcher constructs the queue consumer.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	retryAfter := deps.DefaultRetryAfter
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	sendRate := deps.SendRate
	if sendRate <= 0 {
		sendRate = defaultSendRate
	}
	return &Dispatcher{
		queue:             deps.Queue,
		client:            deps.Client,
		channelID:         deps.ChannelID,
		limiter:           rate.NewLimiter(sendRate, 1),
		defaultRetryAfter: retryAfter,
		log:               log,
	}
}

// Run consumes the queue until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started", "channel", d.channelID)
	for {
		msg, err := d.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if depth := d.queue.Len(); depth >= depthWarnLevel {
			d.log.Warn("delivery queue is deep", "depth", depth)
		}
		if err := d.deliver(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Error("message dropped", "source", msg.Source, "url", msg.URL, "error", err)
		}
	}
}

// deliver sends one message, retrying indefinitely on rate limiting and
// failing on anything else.
func (d *Dispatcher) deliver(ctx context.Context, msg domain.RelayMessage) error {
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		handle, err := d.resolveHandle(ctx)
		if err != nil {
			return fmt.Errorf("resolve channel: %w", err)
		}

		err = d.client.Send(ctx, handle, formatMessage(msg))
		if err == nil {
			d.log.Info("message delivered", "source", msg.Source, "url", msg.URL)
			return nil
		}

		var limited *ports.RateLimitedError
		if !errors.As(err, &limited) {
			return err
		}
		wait := limited.RetryAfter
		if wait <= 0 {
			wait = d.defaultRetryAfter
		}
		d.log.Warn("send rate limited, retrying", "source", msg.Source, "retry_after", wait)
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

// resolveHandle caches the channel lookup after the first success.
func (d *Dispatcher) resolveHandle(ctx context.Context) (ports.ChannelHandle, error) {
	if d.handle != nil {
		return d.handle, nil
	}
	handle, err := d.client.Resolve(ctx, d.channelID)
	if err != nil {
		return nil, err
	}
	d.handle = handle
	return handle, nil
}

func formatMessage(msg domain.RelayMessage) string {
	title := msg.Title
	if title == "" {
		title = msg.URL
	}
	return fmt.Sprintf("🔔 New link from %s\n%s\n%s", msg.Source, title, msg.URL)
}
