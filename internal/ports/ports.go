package ports

import (
	"context"
	"fmt"
	"time"

	"linkrelay/internal/domain"
)

// SeenLedger records items the watcher has admitted. Admit is an atomic
// insert-if-absent keyed on (source, externalID); false means "already seen",
// which is a normal outcome, not an error.
type SeenLedger interface {
	AdmitSeen(ctx context.Context, source, externalID, url string) (bool, error)
}

// PostedLedger is the gateway-side counterpart, keyed on (source, url) since
// the ingress boundary has no other stable identifier.
type PostedLedger interface {
	AdmitPosted(ctx context.Context, source, url, title string) (bool, error)
}

// ItemSink hands a newly admitted item across the trust boundary.
type ItemSink interface {
	Publish(ctx context.Context, item domain.Item) error
}

// TokenIssuer mints a fresh short-lived credential for one outbound call.
type TokenIssuer interface {
	Mint(source string) (string, error)
}

// TokenClaims is the verified content of a credential.
type TokenClaims struct {
	Issuer string
	Source string
}

// TokenVerifier checks a raw credential and returns its claims, or an error
// for anything missing, malformed, expired, or signed with the wrong key.
type TokenVerifier interface {
	Verify(raw string) (TokenClaims, error)
}

// ChannelHandle is an opaque resolved destination (a provider chat object).
type ChannelHandle any

// ChannelClient is the destination notification provider. Send returns nil on
// success, *RateLimitedError on throttling, and any other error for permanent
// failures (permissions, malformed request, transport faults).
type ChannelClient interface {
	Resolve(ctx context.Context, channelID string) (ChannelHandle, error)
	Send(ctx context.Context, handle ChannelHandle, text string) error
}

// RateLimitedError reports destination throttling with the provider-supplied
// cool-down. RetryAfter may be zero when the provider gave no hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("destination rate limited, retry after %s", e.RetryAfter)
}
