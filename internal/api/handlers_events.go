// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package api

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/hydra/internal/logging"
	"github.com/tomtom215/hydra/internal/models"
	"github.com/tomtom215/hydra/internal/storage"
)

// ListEvents handles GET /api/v1/events.
//
// Query: producer_id, subject, severity, origin, since, until (RFC 3339), limit.
// Results are newest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	q := r.URL.Query()

	f := storage.EventFilter{
		ProducerID: q.Get("producer_id"),
		Subject:    q.Get("subject"),
		Origin:     models.Origin(q.Get("origin")),
	}
	if v := q.Get("severity"); v != "" {
		sev, err := models.ParseSeverity(v)
		if err != nil {
			respondParamError(w, &paramError{name: "severity", err: err})
			return
		}
		f.Severity = sev
	}
	var perr *paramError
	if f.Since, perr = getTimeParam(r, "since"); perr != nil {
		respondParamError(w, perr)
		return
	}
	if f.Until, perr = getTimeParam(r, "until"); perr != nil {
		respondParamError(w, perr)
		return
	}
	if f.Limit, perr = getLimit(r); perr != nil {
		respondParamError(w, perr)
		return
	}

	events, err := h.deps.Store.Query(r.Context(), f)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	respondData(w, http.StatusOK, events, len(events), started)
}

// GetEvent handles GET /api/v1/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	event, err := h.deps.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, event, 1, started)
}

// SubmitEvent handles POST /api/v1/events. The body is a raw event; it goes
// through the same gateway as producer output. A resubmission of an already
// stored event returns the stored copy.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, CodeInvalidBody, "request body too large", nil, nil)
		return
	}
	var raw models.RawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		respondError(w, http.StatusBadRequest, CodeInvalidBody, "request body is not a valid event: "+err.Error(), nil, nil)
		return
	}
	raw.Origin = models.OriginAPI

	event, err := h.deps.Gateway.Submit(r.Context(), raw)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Str("producer_id", sanitizeLogValue(raw.ProducerID)).Msg("Event submission rejected")
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusAccepted, event, 1, started)
}
