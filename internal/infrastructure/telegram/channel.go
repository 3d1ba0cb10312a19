// Package telegram adapts the Telegram Bot API to the destination channel
// contract.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"linkrelay/internal/ports"
)

// Channel sends relay messages to a Telegram chat. Flood responses surface as
// ports.RateLimitedError so the dispatcher can honor the provider cool-down.
type Channel struct {
	bot *tele.Bot
	log *slog.Logger
}

var _ ports.ChannelClient = (*Channel)(nil)

// New creates the channel client. The underlying bot performs a getMe call at
// construction, so a bad token fails at startup rather than at first send.
func New(botToken string, log *slog.Logger) (*Channel, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	if log == nil {
		log = slog.Default()
	}
	bot, err := tele.NewBot(tele.Settings{Token: strings.TrimSpace(botToken)})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Channel{bot: bot, log: log}, nil
}

// Resolve looks up the destination chat by its numeric identifier.
func (c *Channel) Resolve(ctx context.Context, channelID string) (ports.ChannelHandle, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(channelID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("channel id %q is not numeric: %w", channelID, err)
	}
	chat, err := c.bot.ChatByID(id)
	if err != nil {
		return nil, fmt.Errorf("resolve chat %d: %w", id, err)
	}
	return chat, nil
}

// Send posts text to the resolved chat, mapping flood control to a typed
// rate-limit error.
func (c *Channel) Send(ctx context.Context, handle ports.ChannelHandle, text string) error {
	chat, ok := handle.(*tele.Chat)
	if !ok {
		return fmt.Errorf("unexpected channel handle %T", handle)
	}
	_, err := c.bot.Send(chat, text)
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &ports.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second}
	}
	return err
}
