package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/bot"
	"github.com/couchcryptid/taluka-alert-service/internal/domain"
)

// MessageHandler consumes one inbound message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg bot.Message) error
}

const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Poller long-polls getUpdates and feeds text messages to a handler one at a
// time, in arrival order.
type Poller struct {
	client  *Client
	handler MessageHandler
	timeout time.Duration
	logger  *slog.Logger
	ready   atomic.Bool
	offset  int64
}

// NewPoller creates a poller. timeout is the server-side long-poll wait and
// must be shorter than the client's HTTP timeout.
func NewPoller(c *Client, h MessageHandler, timeout time.Duration, logger *slog.Logger) *Poller {
	return &Poller{client: c, handler: h, timeout: timeout, logger: logger}
}

// CheckReadiness returns nil once getUpdates has succeeded at least once.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("telegram poller has not reached the API yet")
	}
	return nil
}

// Run polls until ctx is cancelled. API failures back off exponentially
// from 200ms up to 5s.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("telegram poller started", "timeout", p.timeout)
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("telegram poller stopping", "reason", ctx.Err())
			return nil
		}

		n, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Error("get updates failed", "error", err, "backoff", backoff)
			if !sleepWithContext(ctx, backoff) {
				continue
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff
		if n > 0 {
			p.logger.Debug("updates handled", "count", n)
		}
	}
}

// poll fetches one batch and handles it. The offset advances past every
// update, including ones that fail, so a poison message is not redelivered.
func (p *Poller) poll(ctx context.Context) (int, error) {
	var updates []update
	req := getUpdates{
		Offset:         p.offset,
		Timeout:        int(p.timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}
	if err := p.client.call(ctx, "getUpdates", req, &updates); err != nil {
		return 0, err
	}
	p.ready.Store(true)

	for _, u := range updates {
		p.offset = max(p.offset, u.UpdateID+1)
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		msg := bot.Message{
			From: domain.SubscriberID(strconv.FormatInt(u.Message.Chat.ID, 10)),
			Text: u.Message.Text,
		}
		if err := p.handler.HandleMessage(ctx, msg); err != nil {
			p.logger.Warn("handle message failed", "chat_id", msg.From, "update_id", u.UpdateID, "error", err)
		}
	}
	return len(updates), nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
