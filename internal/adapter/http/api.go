package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/taluka-alert-service/internal/dashboard"
)

const maxBodyBytes = 64 << 10

// Dashboard is the operator-facing service behind /api/v1.
type Dashboard interface {
	ListDistricts() dashboard.Result
	ListTalukas(district string) dashboard.Result
	EnqueueManualAlert(ctx context.Context, req dashboard.AlertRequest) dashboard.Result
	EnqueueDemoAlert(ctx context.Context, req dashboard.DemoRequest) dashboard.Result
	QueueStatus() dashboard.Result
}

type apiHandler struct {
	api    Dashboard
	logger *slog.Logger
}

func (h *apiHandler) listDistricts(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, h.api.ListDistricts())
}

func (h *apiHandler) listTalukas(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.api.ListTalukas(chi.URLParam(r, "district")))
}

func (h *apiHandler) status(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, h.api.QueueStatus())
}

func (h *apiHandler) enqueueAlert(w http.ResponseWriter, r *http.Request) {
	var req dashboard.AlertRequest
	if !h.decode(w, r, &req) {
		return
	}
	respond(w, http.StatusAccepted, h.api.EnqueueManualAlert(r.Context(), req))
}

func (h *apiHandler) enqueueDemo(w http.ResponseWriter, r *http.Request) {
	var req dashboard.DemoRequest
	if !h.decode(w, r, &req) {
		return
	}
	respond(w, http.StatusAccepted, h.api.EnqueueDemoAlert(r.Context(), req))
}

func (h *apiHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		h.logger.Debug("rejecting request body", "path", r.URL.Path, "error", err)
		respond(w, http.StatusOK, dashboard.Result{Code: dashboard.CodeInvalidRequest, Error: msg})
		return false
	}
	return true
}

// respond writes res with okStatus on success, or the status its code maps to.
func respond(w http.ResponseWriter, okStatus int, res dashboard.Result) {
	status := okStatus
	if !res.Success {
		status = statusFor(res.Code)
	}
	writeJSON(w, status, res)
}

func statusFor(code string) int {
	switch code {
	case dashboard.CodeInvalidRequest:
		return http.StatusBadRequest
	case dashboard.CodeUnknownArea:
		return http.StatusNotFound
	case dashboard.CodeCatalogUnavailable, dashboard.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}
