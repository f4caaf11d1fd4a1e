// Package dashboard is the operator-facing API behind the web dashboard. Every
// call returns a Result; failures are reported in the envelope, never as
// panics or bare errors.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/couchcryptid/taluka-alert-service/internal/domain"
	"github.com/couchcryptid/taluka-alert-service/internal/observability"
	"github.com/couchcryptid/taluka-alert-service/internal/store"
)

// Error codes carried in Result.Code.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeUnknownArea        = "unknown_area"
	CodeCatalogUnavailable = "catalog_unavailable"
	CodeStoreUnavailable   = "store_unavailable"
	CodeInternal           = "internal"
)

// DefaultDemoMessage is sent when a demo alert is requested without text.
const DefaultDemoMessage = `🌡️ HIGH TEMPERATURE ALERT

Temperature: 43°C expected today!

⚠️ SAFETY MEASURES:
• Stay indoors during 11 AM - 4 PM
• Drink plenty of water
• Wear light colored clothes
• Avoid outdoor activities

🏥 Emergency: Call 108 if feeling unwell

This is a DEMO alert to test the system.`

// Result is the envelope returned by every Service call.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any) Result { return Result{Success: true, Data: data} }

func fail(code, msg string) Result { return Result{Code: code, Error: msg} }

// AlertRequest is an operator-composed alert.
type AlertRequest struct {
	District string `json:"district" validate:"required,max=100"`
	Taluka   string `json:"taluka" validate:"required,max=100"`
	Message  string `json:"message" validate:"required,max=2000"`
	Severity string `json:"severity,omitempty" validate:"omitempty,oneof=low medium high"`
}

// DemoRequest targets a demo alert; Message is optional.
type DemoRequest struct {
	District string `json:"district" validate:"required,max=100"`
	Taluka   string `json:"taluka" validate:"required,max=100"`
	Message  string `json:"message,omitempty" validate:"max=2000"`
}

// Status is the data of a QueueStatus result.
type Status struct {
	store.QueueStatus
	Subscribers      int  `json:"subscribers"`
	CatalogAvailable bool `json:"catalog_available"`
}

// Catalog is the read side of the reference dataset.
type Catalog interface {
	Available() bool
	Districts() []string
	Talukas(district string) []string
	HasDistrict(district string) bool
	Contains(a domain.Area) bool
}

// Queue accepts alerts and reports on them.
type Queue interface {
	Enqueue(ctx context.Context, d domain.Draft) (domain.Alert, error)
	Status() store.QueueStatus
}

// Counter reports the subscriber count.
type Counter interface {
	Count() int
}

// Sweeper is poked after an alert is enqueued so it goes out promptly.
type Sweeper interface {
	Trigger()
}

// Service implements the dashboard operations.
type Service struct {
	catalog Catalog
	queue   Queue
	subs    Counter
	sweeper Sweeper
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService creates a Service. sweeper may be nil.
func NewService(catalog Catalog, queue Queue, subs Counter, sweeper Sweeper, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{catalog: catalog, queue: queue, subs: subs, sweeper: sweeper, logger: logger, metrics: metrics}
}

// ListDistricts returns every district, sorted.
func (s *Service) ListDistricts() Result {
	if !s.catalog.Available() {
		return fail(CodeCatalogUnavailable, "location data is not available")
	}
	return ok(s.catalog.Districts())
}

// ListTalukas returns the talukas of district, sorted.
func (s *Service) ListTalukas(district string) Result {
	if !s.catalog.Available() {
		return fail(CodeCatalogUnavailable, "location data is not available")
	}
	district = strings.TrimSpace(district)
	if district == "" {
		return fail(CodeInvalidRequest, "district is required")
	}
	if !s.catalog.HasDistrict(district) {
		return fail(CodeUnknownArea, "unknown district: "+district)
	}
	return ok(s.catalog.Talukas(district))
}

// EnqueueManualAlert queues an operator alert for one area.
func (s *Service) EnqueueManualAlert(ctx context.Context, req AlertRequest) Result {
	if err := checkStruct(req); err != nil {
		return fail(CodeInvalidRequest, err.Error())
	}
	return s.enqueue(ctx, domain.Draft{
		Area:     domain.Area{District: strings.TrimSpace(req.District), Taluka: strings.TrimSpace(req.Taluka)},
		Message:  req.Message,
		Category: domain.CategoryManual,
		Severity: domain.Severity(req.Severity),
	})
}

// EnqueueDemoAlert queues a demo alert, using DefaultDemoMessage when no
// message is given.
func (s *Service) EnqueueDemoAlert(ctx context.Context, req DemoRequest) Result {
	if err := checkStruct(req); err != nil {
		return fail(CodeInvalidRequest, err.Error())
	}
	msg := req.Message
	if strings.TrimSpace(msg) == "" {
		msg = DefaultDemoMessage
	}
	return s.enqueue(ctx, domain.Draft{
		Area:     domain.Area{District: strings.TrimSpace(req.District), Taluka: strings.TrimSpace(req.Taluka)},
		Message:  msg,
		Category: domain.CategoryDemo,
	})
}

// QueueStatus summarizes the alert queue.
func (s *Service) QueueStatus() Result {
	return ok(Status{
		QueueStatus:      s.queue.Status(),
		Subscribers:      s.subs.Count(),
		CatalogAvailable: s.catalog.Available(),
	})
}

func (s *Service) enqueue(ctx context.Context, d domain.Draft) Result {
	if !s.catalog.Available() {
		return fail(CodeCatalogUnavailable, "location data is not available")
	}
	if !s.catalog.Contains(d.Area) {
		return fail(CodeUnknownArea, "unknown area: "+d.Area.String())
	}
	a, err := s.queue.Enqueue(ctx, d)
	switch {
	case errors.Is(err, store.ErrInvalidDraft):
		return fail(CodeInvalidRequest, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.logger.Error("dashboard enqueue failed", "area", d.Area.String(), "error", err)
		return fail(CodeStoreUnavailable, "alert could not be saved")
	case err != nil:
		s.logger.Error("dashboard enqueue failed", "area", d.Area.String(), "error", err)
		return fail(CodeInternal, "alert could not be queued")
	}
	s.metrics.AlertsEnqueued.WithLabelValues(string(d.Category)).Inc()
	s.logger.Info("dashboard alert enqueued", "alert_id", a.ID, "area", d.Area.String(), "category", d.Category)
	if s.sweeper != nil {
		s.sweeper.Trigger()
	}
	return ok(a)
}
