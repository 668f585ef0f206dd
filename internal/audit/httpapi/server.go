/*
Copyright 2025 Hodei Audit Trail Contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httpapi is the ingestion façade's HTTP surface: PublishEvent,
// PublishBatch and HealthCheck, routed with chi rather than a bare
// http.ServeMux.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rubentxu/hodei-audit-trail/internal/audit/auditerr"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/ingest"
	"github.com/rubentxu/hodei-audit-trail/internal/audit/model"
)

// HealthChecker reports whether the service is able to accept new work, and
// lets HealthCheck reflect graceful-shutdown draining.
type HealthChecker interface {
	Healthy() bool
}

// Server is the Control service's HTTP surface.
type Server struct {
	facade *ingest.Facade
	health HealthChecker
	logger *zap.Logger
}

// NewServer constructs a Server. health may be nil, in which case
// HealthCheck always reports healthy.
func NewServer(facade *ingest.Facade, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{facade: facade, health: health, logger: logger}
}

// Router builds the chi router for this server's routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthCheck)
	r.Route("/v1/tenants/{tenantID}/events", func(r chi.Router) {
		r.Post("/", s.handlePublishEvent)
		r.Post("/batch", s.handlePublishBatch)
	})
	return r
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("control service listening", zap.String("addr", addr))
	return httpServer.ListenAndServe()
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	healthy := s.health == nil || s.health.Healthy()
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "draining"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type publishEventRequest struct {
	Event model.Event `json:"event"`
}

type publishEventResponse struct {
	ReceiptID   string    `json:"receipt_id"`
	ReceiptTime time.Time `json:"receipt_time"`
}

func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, auditerr.Wrap(auditerr.InvalidArgument, "malformed request body", err))
		return
	}

	receipt, err := s.facade.PublishEvent(r.Context(), tenantID, req.Event, ingest.Options{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, publishEventResponse{ReceiptID: receipt.ReceiptID, ReceiptTime: receipt.ReceiptTime})
}

type publishBatchRequest struct {
	Events []model.Event `json:"events"`
}

type eventResultJSON struct {
	Index       int       `json:"index"`
	ReceiptID   string    `json:"receipt_id,omitempty"`
	ReceiptTime time.Time `json:"receipt_time,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type publishBatchResponse struct {
	Results  []eventResultJSON `json:"results"`
	Accepted int               `json:"accepted"`
	Failed   int               `json:"failed"`
}

func (s *Server) handlePublishBatch(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req publishBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, auditerr.Wrap(auditerr.InvalidArgument, "malformed request body", err))
		return
	}

	result, err := s.facade.PublishBatch(r.Context(), tenantID, req.Events, ingest.Options{})
	if err != nil {
		writeError(w, err)
		return
	}

	out := publishBatchResponse{Accepted: result.Accepted, Failed: result.Failed}
	for _, res := range result.Results {
		item := eventResultJSON{Index: res.Index, ReceiptID: res.ReceiptID, ReceiptTime: res.ReceiptTime}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		out.Results = append(out.Results, item)
	}
	writeJSON(w, http.StatusAccepted, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy's Kind onto an HTTP status code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch auditerr.KindOf(err) {
	case auditerr.InvalidArgument:
		status = http.StatusBadRequest
	case auditerr.NotFound:
		status = http.StatusNotFound
	case auditerr.Validation:
		status = http.StatusUnprocessableEntity
	case auditerr.Unavailable:
		status = http.StatusServiceUnavailable
	case auditerr.ResourceExhausted:
		status = http.StatusTooManyRequests
	case auditerr.Cancelled:
		status = 499 // client closed request, nginx convention
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
