package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/reaper/internal/engine"
	"github.com/seantiz/reaper/internal/model"
	"github.com/seantiz/reaper/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// listReapsResponse wraps the paginated list response.
type listReapsResponse struct {
	Reaps  []*model.Reap `json:"reaps"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// handleSubmitReap accepts a job document, the same one the CLI reads from
// disk, and starts enforcing it.
func (s *Server) handleSubmitReap(w http.ResponseWriter, r *http.Request) {
	var job model.Job
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if job.SchemaVersion == "" {
		job.SchemaVersion = model.JobSchemaVersion
	}
	if job.SchemaVersion != model.JobSchemaVersion {
		s.writeError(w, http.StatusBadRequest, "unsupported schema_version "+strconv.Quote(job.SchemaVersion))
		return
	}

	reap, err := s.engine.Submit(r.Context(), &job)
	if errors.Is(err, engine.ErrInvalidJob) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("submit reap", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit reap")
		return
	}

	s.writeJSON(w, http.StatusAccepted, reap)
}

func (s *Server) handleGetReap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	reap, err := s.store.GetReap(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "reap not found")
		return
	}
	if err != nil {
		s.logger.Error("get reap", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get reap")
		return
	}

	s.writeJSON(w, http.StatusOK, reap)
}

func (s *Server) handleListReaps(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	reaps, total, err := s.store.ListReaps(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list reaps", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list reaps")
		return
	}

	if reaps == nil {
		reaps = []*model.Reap{}
	}

	s.writeJSON(w, http.StatusOK, listReapsResponse{
		Reaps:  reaps,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleMarkDone records that the workload exited on its own. Enforcement
// notices on its next poll, so the response is 202 rather than the final
// reap.
func (s *Server) handleMarkDone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.engine.MarkDone(id) {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "done_requested"})
		return
	}

	reap, err := s.store.GetReap(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "reap not found")
		return
	}
	if err != nil {
		s.logger.Error("get reap for done", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get reap")
		return
	}

	s.writeError(w, http.StatusConflict, "reap is not active (status "+reap.Status+")")
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
