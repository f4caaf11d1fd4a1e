// Package onboarding drives a subscriber through the district, taluka and
// confirmation dialog that ends in a subscription.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
)

// Button labels and page sizes shown to the subscriber.
const (
	MoreDistricts = "Show More Districts"
	MoreTalukas   = "Show More Talukas"
	Affirm        = "✅ Yes, Subscribe"
	Decline       = "❌ Cancel"

	DistrictPageSize = 10
	TalukaPageSize   = 15
)

// Reply texts.
const (
	msgUnavailable     = "❌ Sorry, location data is not available. Please try again later."
	msgNotInFlow       = "Please use /subscribe to start."
	msgInvalidDistrict = "Please select a valid district from the options."
	msgInvalidTaluka   = "Please select a valid taluka from the options."
	msgConfirmChoice   = "Please choose \"" + Affirm + "\" or \"" + Decline + "\"."
	msgCancelled       = "❌ Subscription cancelled."
	msgSaveFailed      = "❌ Sorry, your subscription could not be saved. Please try again."
)

// State is the step a session is waiting on.
type State string

const (
	AwaitingDistrict State = "awaiting_district"
	AwaitingTaluka   State = "awaiting_taluka"
	AwaitingConfirm  State = "awaiting_confirm"
)

// Catalog is the read side of the reference dataset.
type Catalog interface {
	Available() bool
	Districts() []string
	Talukas(district string) []string
	HasDistrict(district string) bool
}

// Subscriber commits a finished dialog.
type Subscriber interface {
	Subscribe(ctx context.Context, id domain.SubscriberID, area domain.Area) error
}

// Reply is what the transport should send back. A nil Keyboard with
// RemoveKeyboard false leaves any current keyboard in place.
type Reply struct {
	Text           string
	Keyboard       [][]string
	RemoveKeyboard bool
}

// Session is the volatile per-subscriber dialog state.
type Session struct {
	State    State
	District string
	Talukas  []string
	Taluka   string
	Page     int
}

// Machine holds the sessions of every subscriber currently in the dialog.
type Machine struct {
	catalog Catalog
	subs    Subscriber
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[domain.SubscriberID]*Session
}

// New creates a Machine.
func New(catalog Catalog, subs Subscriber, logger *slog.Logger) *Machine {
	return &Machine{
		catalog:  catalog,
		subs:     subs,
		logger:   logger,
		sessions: make(map[domain.SubscriberID]*Session),
	}
}

// Start begins (or restarts) the dialog for id.
func (m *Machine) Start(id domain.SubscriberID) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.catalog.Available() || len(m.catalog.Districts()) == 0 {
		delete(m.sessions, id)
		return Reply{Text: msgUnavailable}
	}
	s := &Session{State: AwaitingDistrict}
	m.sessions[id] = s
	return m.districtPrompt(s, "📍 Please select your district:")
}

// Handle advances id's session with text. Input that does not fit the
// current step re-prompts and keeps the session.
func (m *Machine) Handle(ctx context.Context, id domain.SubscriberID, text string) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Reply{Text: msgNotInFlow}
	}
	text = strings.TrimSpace(text)

	switch s.State {
	case AwaitingDistrict:
		return m.handleDistrict(s, text)
	case AwaitingTaluka:
		return m.handleTaluka(s, text)
	case AwaitingConfirm:
		return m.handleConfirm(ctx, id, s, text)
	}
	delete(m.sessions, id)
	return Reply{Text: msgNotInFlow}
}

// Cancel drops id's session and reports whether one existed.
func (m *Machine) Cancel(id domain.SubscriberID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Active reports whether id is in the dialog.
func (m *Machine) Active(id domain.SubscriberID) bool {
	_, ok := m.Session(id)
	return ok
}

// Session returns a copy of id's session.
func (m *Machine) Session(id domain.SubscriberID) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	cp := *s
	cp.Talukas = slices.Clone(s.Talukas)
	return cp, true
}

func (m *Machine) handleDistrict(s *Session, text string) Reply {
	if text == MoreDistricts {
		s.Page = nextPage(s.Page, len(m.catalog.Districts()), DistrictPageSize)
		return m.districtPrompt(s, "📍 Select your district:")
	}
	if !m.catalog.HasDistrict(text) {
		return m.districtPrompt(s, msgInvalidDistrict)
	}
	s.State = AwaitingTaluka
	s.District = text
	s.Talukas = m.catalog.Talukas(text)
	s.Page = 0
	return talukaPrompt(s, fmt.Sprintf("✅ Selected: %s\n📍 Now select your taluka:", text))
}

func (m *Machine) handleTaluka(s *Session, text string) Reply {
	if text == MoreTalukas {
		s.Page = nextPage(s.Page, len(s.Talukas), TalukaPageSize)
		return talukaPrompt(s, "📍 Select your taluka:")
	}
	if !slices.Contains(s.Talukas, text) {
		return talukaPrompt(s, msgInvalidTaluka)
	}
	s.State = AwaitingConfirm
	s.Taluka = text
	return confirmPrompt(s)
}

func (m *Machine) handleConfirm(ctx context.Context, id domain.SubscriberID, s *Session, text string) Reply {
	switch {
	case isAffirm(text):
		area := domain.Area{District: s.District, Taluka: s.Taluka}
		if err := m.subs.Subscribe(ctx, id, area); err != nil {
			m.logger.Error("subscription commit failed", "subscriber", id, "area", area.String(), "error", err)
			if errors.Is(err, domain.ErrCatalogUnavailable) {
				delete(m.sessions, id)
				return Reply{Text: msgUnavailable, RemoveKeyboard: true}
			}
			return Reply{Text: msgSaveFailed, Keyboard: confirmKeyboard()}
		}
		delete(m.sessions, id)
		m.logger.Info("subscriber subscribed", "subscriber", id, "area", area.String())
		return Reply{
			Text: fmt.Sprintf("🎉 Successfully subscribed!\n\n📍 You'll receive weather alerts for:\n   %s\n\n"+
				"Commands:\n/mystatus - Check subscription\n/unsubscribe - Unsubscribe", area),
			RemoveKeyboard: true,
		}
	case isDecline(text):
		delete(m.sessions, id)
		return Reply{Text: msgCancelled, RemoveKeyboard: true}
	}
	return Reply{Text: msgConfirmChoice, Keyboard: confirmKeyboard()}
}

func (m *Machine) districtPrompt(s *Session, text string) Reply {
	districts := m.catalog.Districts()
	return Reply{Text: text, Keyboard: pageKeyboard(districts, s.Page, DistrictPageSize, MoreDistricts)}
}

func talukaPrompt(s *Session, text string) Reply {
	return Reply{Text: text, Keyboard: pageKeyboard(s.Talukas, s.Page, TalukaPageSize, MoreTalukas)}
}

func confirmPrompt(s *Session) Reply {
	return Reply{
		Text: fmt.Sprintf("📋 Confirm subscription:\n\n📍 District: %s\n📍 Taluka: %s\n\nYou'll receive weather alerts for this location.",
			s.District, s.Taluka),
		Keyboard: confirmKeyboard(),
	}
}

func confirmKeyboard() [][]string {
	return [][]string{{Affirm}, {Decline}}
}

// pageKeyboard lays out one option per row, with a "more" row when items do
// not fit on a single page.
func pageKeyboard(items []string, page, size int, more string) [][]string {
	start := page * size
	if start >= len(items) {
		start = 0
	}
	end := min(start+size, len(items))
	rows := make([][]string, 0, end-start+1)
	for _, it := range items[start:end] {
		rows = append(rows, []string{it})
	}
	if len(items) > size {
		rows = append(rows, []string{more})
	}
	return rows
}

// nextPage advances page, wrapping to the first page after the last.
func nextPage(page, total, size int) int {
	if total <= size {
		return 0
	}
	page++
	if page*size >= total {
		return 0
	}
	return page
}

func isAffirm(text string) bool {
	return text == Affirm || strings.EqualFold(text, "yes")
}

func isDecline(text string) bool {
	return text == Decline || strings.EqualFold(text, "cancel") || strings.EqualFold(text, "no")
}
