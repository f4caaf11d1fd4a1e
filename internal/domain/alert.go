package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category identifies which producer created an alert.
type Category string

const (
	CategoryWeather Category = "weather"
	CategoryFire    Category = "fire"
	CategoryDemo    Category = "demo"
	CategoryManual  Category = "manual"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryWeather, CategoryFire, CategoryDemo, CategoryManual:
		return true
	}
	return false
}

// Status is the delivery state of an alert.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
)

// Outcome records why an alert left the pending state.
type Outcome string

const (
	OutcomeDelivered    Outcome = "delivered"
	OutcomeNoRecipients Outcome = "no_recipients"
	OutcomeAbandoned    Outcome = "abandoned"
)

// Severity grades weather and fire alerts.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Draft is the producer-supplied part of an alert.
type Draft struct {
	Area     Area
	Message  string
	Category Category
	Severity Severity
}

// Alert is a single notification targeted at one Area.
type Alert struct {
	ID        string     `json:"id"`
	Area      Area       `json:"area"`
	Message   string     `json:"message"`
	Category  Category   `json:"category"`
	Severity  Severity   `json:"severity,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Status    Status     `json:"status"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Outcome   Outcome    `json:"outcome,omitempty"`
	Attempts  int        `json:"attempts,omitempty"`
}

// Pending reports whether the alert still awaits delivery.
func (a Alert) Pending() bool { return a.Status == StatusPending }

// AlertEvent summarizes a finished alert for downstream consumers.
type AlertEvent struct {
	Alert      Alert     `json:"alert"`
	Recipients int       `json:"recipients"`
	Delivered  int       `json:"delivered"`
	Failed     int       `json:"failed"`
	Pruned     int       `json:"pruned"`
	FinishedAt time.Time `json:"finished_at"`
}

// FormatAlert renders the chat text sent to each subscriber.
func FormatAlert(a Alert) string {
	title := strings.ToUpper(string(a.Category))
	if a.Category == CategoryManual || a.Category == "" {
		title = "WEATHER"
	}
	return fmt.Sprintf("⚠️ %s ALERT\n\n%s\n\n📍 Location: %s\n🕐 %s",
		title, a.Message, a.Area, a.CreatedAt.In(IST).Format("2006-01-02 15:04:05"))
}
