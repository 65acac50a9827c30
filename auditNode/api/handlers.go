package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/store"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Healthy(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleEvent handles GET /api/v1/events/{request_id}
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["request_id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "request_id must be an unsigned integer"})
		return
	}

	ev, err := s.events.GetByRequestID(r.Context(), id)
	switch {
	case errors.Is(err, eventstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("no audit event for request %d", id)})
		return
	case err != nil:
		s.logger.Error().Err(err).Uint64("request_id", id).Msg("failed to read event")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read event"})
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{Data: ev})
}

// handleEvents handles GET /api/v1/events?status=<code>&limit=<n>
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []store.AuditEvent
		err    error
	)

	if code := r.URL.Query().Get("status"); code != "" {
		status := store.Status(code)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("unknown status %q", code)})
			return
		}
		events, err = s.events.QueryByStatus(r.Context(), status)
	} else {
		limit := defaultRecentLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 || limit > maxRecentLimit {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("limit must be between 1 and %d", maxRecentLimit)})
				return
			}
		}
		events, err = s.events.Recent(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list events")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list events"})
		return
	}

	if events == nil {
		events = []store.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: events, Count: len(events)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
