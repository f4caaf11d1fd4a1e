// Package telegram talks to the Telegram Bot HTTP API: outbound messages with
// optional reply keyboards, and long-polled inbound updates.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/onboarding"
)

// Client sends messages through one bot token. It implements
// delivery.Transport and bot.Responder.
type Client struct {
	httpClient *http.Client
	endpoint   string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a client. ratePerSec caps outbound calls across all
// goroutines; Telegram allows roughly 30 messages per second per bot.
func NewClient(apiURL, token string, ratePerSec float64, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimRight(apiURL, "/") + "/bot" + token,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), max(1, int(ratePerSec))),
		logger:     logger,
	}
}

// Send delivers plain text to a chat.
func (c *Client) Send(ctx context.Context, to domain.SubscriberID, text string) error {
	return c.call(ctx, "sendMessage", sendMessage{ChatID: string(to), Text: text}, nil)
}

// Reply sends an onboarding reply, attaching or removing a keyboard.
func (c *Client) Reply(ctx context.Context, to domain.SubscriberID, r onboarding.Reply) error {
	msg := sendMessage{ChatID: string(to), Text: r.Text}
	switch {
	case len(r.Keyboard) > 0:
		kb := replyKeyboard{OneTime: true, Resize: true}
		for _, row := range r.Keyboard {
			buttons := make([]keyboardButton, len(row))
			for i, label := range row {
				buttons[i] = keyboardButton{Text: label}
			}
			kb.Keyboard = append(kb.Keyboard, buttons)
		}
		msg.ReplyMarkup = kb
	case r.RemoveKeyboard:
		msg.ReplyMarkup = removeKeyboard{Remove: true}
	}
	return c.call(ctx, "sendMessage", msg, nil)
}

// call posts payload to method and decodes the result into out when non-nil.
func (c *Client) call(ctx context.Context, method string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var r apiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("decode %s response: status %d: %w", method, resp.StatusCode, err)
	}
	if !r.OK {
		return classify(method, resp.StatusCode, r)
	}
	if out != nil {
		if err := json.Unmarshal(r.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// classify maps Bot API failures onto the domain sentinels.
func classify(method string, status int, r apiResponse) error {
	code := r.ErrorCode
	if code == 0 {
		code = status
	}
	desc := strings.ToLower(r.Description)
	switch {
	case code == http.StatusForbidden,
		code == http.StatusBadRequest && (strings.Contains(desc, "chat not found") || strings.Contains(desc, "user not found")):
		return fmt.Errorf("%s: %w: %s", method, domain.ErrRecipientNotFound, r.Description)
	case code == http.StatusTooManyRequests:
		retry := 0
		if r.Parameters != nil {
			retry = r.Parameters.RetryAfter
		}
		return fmt.Errorf("%s: %w: retry after %ds", method, domain.ErrRateLimited, retry)
	default:
		return fmt.Errorf("telegram API error: %s: %d: %s", method, code, r.Description)
	}
}

// Bot API wire types.

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sendMessage struct {
	ChatID      string `json:"chat_id"`
	Text        string `json:"text"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

type replyKeyboard struct {
	Keyboard [][]keyboardButton `json:"keyboard"`
	OneTime  bool               `json:"one_time_keyboard"`
	Resize   bool               `json:"resize_keyboard"`
}

type removeKeyboard struct {
	Remove bool `json:"remove_keyboard"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message"`
}

type message struct {
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

type getUpdates struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}
