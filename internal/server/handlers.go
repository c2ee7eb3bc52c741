package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ivkov/inboxtriage/internal/triage"
)

// maxRecordsLimit caps the records page size.
const maxRecordsLimit = 500

// ProcessBatchHandler triggers one triage cycle. Only one cycle runs at a
// time; concurrent requests get 409.
func (s *Server) ProcessBatchHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if !s.cycleRunning.CompareAndSwap(false, true) {
			writeError(w, http.StatusConflict, "a cycle is already running")
			return
		}
		defer s.cycleRunning.Store(false)

		result, err := s.runner.RunCycle(r.Context())
		if err != nil {
			s.logger.Error("cycle failed", "cycle_id", result.CycleID, "error", err)
			writeError(w, http.StatusInternalServerError, "cycle failed: "+err.Error())
			return
		}

		writeJSON(w, http.StatusOK, result)
	})
}

// recordsResponse is the JSON body of GET /api/v1/emails/records.
type recordsResponse struct {
	Records any `json:"records"`
	Count   int `json:"count"`
}

// RecordsHandler lists recent delivery records, newest first. Supports
// optional category and limit query parameters.
func (s *Server) RecordsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		category := r.URL.Query().Get("category")
		if category != "" {
			if _, ok := triage.ParseCategory(category); !ok {
				writeError(w, http.StatusBadRequest, "unknown category: "+category)
				return
			}
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxRecordsLimit)
		}

		records, err := s.records.ListRecent(r.Context(), category, limit)
		if err != nil {
			s.logger.Error("failed to list records", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list records")
			return
		}

		writeJSON(w, http.StatusOK, recordsResponse{Records: records, Count: len(records)})
	})
}

// StatsHandler reports aggregate counts per category over a window. The
// window query parameter takes a Go duration, default 24h.
func (s *Server) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		window := defaultStatsWindow
		if raw := r.URL.Query().Get("window"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				writeError(w, http.StatusBadRequest, "window must be a positive duration")
				return
			}
			window = d
		}

		stats, err := s.records.Stats(r.Context(), time.Now().Add(-window))
		if err != nil {
			s.logger.Error("failed to compute stats", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to compute stats")
			return
		}

		writeJSON(w, http.StatusOK, stats)
	})
}
