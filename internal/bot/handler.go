// Package bot routes inbound chat messages to commands and the onboarding
// dialog.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
	"github.com/couchcryptid/taluka-alert-service/internal/onboarding"
	"github.com/jonboulle/clockwork"
)

// Message is one inbound chat message.
type Message struct {
	From domain.SubscriberID
	Text string
}

// Responder sends a reply back to the chat a message came from.
type Responder interface {
	Reply(ctx context.Context, to domain.SubscriberID, r onboarding.Reply) error
}

// Dialog is the onboarding state machine.
type Dialog interface {
	Start(id domain.SubscriberID) onboarding.Reply
	Handle(ctx context.Context, id domain.SubscriberID, text string) onboarding.Reply
	Cancel(id domain.SubscriberID) bool
}

// Subscriptions is the part of the subscription store the commands use.
type Subscriptions interface {
	SubscriptionOf(id domain.SubscriberID) (domain.Area, bool)
	Unsubscribe(ctx context.Context, id domain.SubscriberID) (bool, error)
}

// Locator resolves an area to coordinates.
type Locator interface {
	Coordinates(a domain.Area) (domain.Geo, bool)
}

// FireHistory answers /fire and /mystatus.
type FireHistory interface {
	Recent(area domain.Area, since time.Time, minConfidence float64) []domain.Hotspot
}

// Sweeper is poked after every inbound message.
type Sweeper interface {
	Trigger()
}

const (
	fireLookback      = 7 * 24 * time.Hour
	fireMinConfidence = 70
	fireListLimit     = 10
)

const helpText = `🆘 Help - Gujarat Weather Alert Bot

Commands:
/start - Start the bot
/subscribe - Subscribe to weather alerts
/unsubscribe - Unsubscribe from alerts
/mystatus - Check subscription status
/weather - Get current weather for your area
/fire - Check recent fire alerts in your area
/cancel - Abandon a subscription in progress
/help - Show this help

How to subscribe:
1. Send /subscribe
2. Choose your district
3. Choose your taluka
4. Confirm subscription

You'll get real-time weather alerts for your selected area!`

const welcomeText = `🌡️ Welcome to Gujarat Weather Alert Bot!

I provide real-time weather and fire alerts for your area in Gujarat.

Available commands:
/start - Show this welcome message
/subscribe - Subscribe to alerts for your taluka
/weather - Get current weather for your area
/unsubscribe - Unsubscribe from alerts
/mystatus - Check your subscription
/fire - Check recent fire alerts in your area
/help - Get help

👆 Use /subscribe to get started!`

const notSubscribedText = "You are not subscribed to any areas. Use /subscribe first!"

// Handler dispatches messages. It is meant to be called for one message at a
// time.
type Handler struct {
	dialog  Dialog
	subs    Subscriptions
	catalog Locator
	weather domain.WeatherProvider
	fires   FireHistory
	sweeper Sweeper
	out     Responder
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Deps groups the collaborators of a Handler.
type Deps struct {
	Dialog  Dialog
	Subs    Subscriptions
	Catalog Locator
	Weather domain.WeatherProvider
	Fires   FireHistory
	Sweeper Sweeper
	Out     Responder
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		dialog:  d.Dialog,
		subs:    d.Subs,
		catalog: d.Catalog,
		weather: d.Weather,
		fires:   d.Fires,
		sweeper: d.Sweeper,
		out:     d.Out,
		clock:   d.Clock,
		logger:  d.Logger,
		metrics: d.Metrics,
	}
}

// HandleMessage answers msg and requests a delivery sweep. Only transport
// failures are returned.
func (h *Handler) HandleMessage(ctx context.Context, msg Message) error {
	if h.sweeper != nil {
		defer h.sweeper.Trigger()
	}
	cmd, ok := command(msg.Text)
	label := cmd
	if !ok {
		label = "text"
	}
	h.metrics.BotMessages.WithLabelValues(label).Inc()

	var r onboarding.Reply
	switch {
	case !ok:
		r = h.dialog.Handle(ctx, msg.From, msg.Text)
	case cmd == "subscribe":
		r = h.dialog.Start(msg.From)
	default:
		// Any other command abandons a dialog in progress.
		cancelled := h.dialog.Cancel(msg.From)
		r = h.runCommand(ctx, cmd, msg.From, cancelled)
	}

	if err := h.out.Reply(ctx, msg.From, r); err != nil {
		return fmt.Errorf("reply to %s: %w", msg.From, err)
	}
	return nil
}

// command extracts the command name from "/name@botname args".
func command(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, _, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), true
}

func (h *Handler) runCommand(ctx context.Context, cmd string, from domain.SubscriberID, cancelled bool) onboarding.Reply {
	switch cmd {
	case "start":
		return onboarding.Reply{Text: welcomeText, RemoveKeyboard: cancelled}
	case "help":
		return onboarding.Reply{Text: helpText, RemoveKeyboard: cancelled}
	case "cancel":
		if cancelled {
			return onboarding.Reply{Text: "❌ Subscription cancelled.", RemoveKeyboard: true}
		}
		return onboarding.Reply{Text: "Nothing to cancel."}
	case "unsubscribe":
		return h.unsubscribe(ctx, from)
	case "mystatus":
		return h.status(from)
	case "weather":
		return h.currentWeather(ctx, from)
	case "fire":
		return h.recentFires(from)
	}
	return onboarding.Reply{Text: "Unknown command. Send /help to see what I can do."}
}

func (h *Handler) unsubscribe(ctx context.Context, from domain.SubscriberID) onboarding.Reply {
	removed, err := h.subs.Unsubscribe(ctx, from)
	switch {
	case err != nil:
		h.logger.Error("unsubscribe failed", "subscriber", from, "error", err)
		return onboarding.Reply{Text: "❌ Sorry, something went wrong. Please try again later."}
	case removed:
		h.logger.Info("subscriber unsubscribed", "subscriber", from)
		return onboarding.Reply{Text: "✅ Successfully unsubscribed from all alerts!", RemoveKeyboard: true}
	}
	return onboarding.Reply{Text: "You are not subscribed to any alerts."}
}

func (h *Handler) status(from domain.SubscriberID) onboarding.Reply {
	area, ok := h.subs.SubscriptionOf(from)
	if !ok {
		return onboarding.Reply{Text: "📊 You are not subscribed to any alerts.\n\nUse /subscribe to get started!"}
	}
	text := "📊 Your Subscription Status:\n\n📍 " + area.String()
	if n := len(h.recent(area)); n > 0 {
		text += fmt.Sprintf("\n   🔥 %d recent fire incident(s)", n)
	}
	return onboarding.Reply{Text: text}
}

func (h *Handler) currentWeather(ctx context.Context, from domain.SubscriberID) onboarding.Reply {
	area, ok := h.subs.SubscriptionOf(from)
	if !ok {
		return onboarding.Reply{Text: notSubscribedText}
	}
	geo, ok := h.catalog.Coordinates(area)
	if !ok {
		return onboarding.Reply{Text: "❌ Weather data not available for your subscribed areas."}
	}
	s, err := h.weather.Fetch(ctx, geo)
	if err != nil {
		h.logger.Warn("weather lookup failed", "area", area.String(), "error", err)
		return onboarding.Reply{Text: "❌ Error fetching weather data. Please try again later."}
	}
	return onboarding.Reply{Text: fmt.Sprintf(
		"🌤️ Current Weather:\n\n🌡️ %s:\n   Temperature: %.1f°C\n   Max/Min: %.1f°C / %.1f°C\n   Humidity: %.0f%%\n   Condition: %s\n",
		area, s.CurrentTemp, s.MaxTemp, s.MinTemp, s.Humidity, s.Condition)}
}

func (h *Handler) recentFires(from domain.SubscriberID) onboarding.Reply {
	area, ok := h.subs.SubscriptionOf(from)
	if !ok {
		return onboarding.Reply{Text: notSubscribedText}
	}
	fires := h.recent(area)
	if len(fires) == 0 {
		return onboarding.Reply{Text: "✅ No recent fire alerts in your subscribed areas!\n\n🛰️ Data from NASA MODIS satellites"}
	}

	var b strings.Builder
	b.WriteString("🔥 Recent Fire Alerts (Last 7 Days):\n\n")
	for i, f := range fires[:min(len(fires), fireListLimit)] {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "🔥 %s: %s in %s → %s (%.0f%%)", f.Date(), f.DetectedType, area.District, area.Taluka, f.Confidence)
	}
	if extra := len(fires) - fireListLimit; extra > 0 {
		fmt.Fprintf(&b, "\n\n... and %d more incidents", extra)
	}
	b.WriteString("\n\n⚠️ Data from NASA MODIS satellites")
	return onboarding.Reply{Text: b.String()}
}

func (h *Handler) recent(area domain.Area) []domain.Hotspot {
	return h.fires.Recent(area, h.clock.Now().Add(-fireLookback), fireMinConfidence)
}
