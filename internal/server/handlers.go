package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ytget/yt-audio/internal/jobs"
	"github.com/ytget/yt-audio/internal/model"
	"github.com/ytget/yt-audio/internal/store"
)

type downloadRequest struct {
	URL    string       `json:"url"`
	Format model.Format `json:"format"`
}

type batchRequest struct {
	URLs       []string     `json:"urls"`
	Format     model.Format `json:"format"`
	MaxWorkers *int         `json:"max_workers"`
}

type playlistRequest struct {
	URL        string       `json:"url"`
	Format     model.Format `json:"format"`
	MaxWorkers *int         `json:"max_workers"`
}

type listResponse struct {
	Downloads []model.Job `json:"downloads"`
	Total     int         `json:"total"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": HealthMessage,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	job, err := s.svc.Create(req.URL, req.Format)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	maxWorkers, ok := s.maxWorkers(w, req.MaxWorkers)
	if !ok {
		return
	}

	batch, err := s.svc.CreateBatch(req.URLs, req.Format, maxWorkers)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if !decodeBody(w, r, &req) {
		return
	}

	maxWorkers, ok := s.maxWorkers(w, req.MaxWorkers)
	if !ok {
		return
	}

	batch, err := s.svc.CreatePlaylistBatch(r.Context(), req.URL, req.Format, maxWorkers)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	all := s.svc.List()

	status := model.JobStatus(r.URL.Query().Get("status"))
	if status == "" {
		writeJSON(w, http.StatusOK, listResponse{Downloads: all, Total: len(all)})
		return
	}
	if !status.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid status %q", status))
		return
	}

	filtered := make([]model.Job, 0, len(all))
	for _, job := range all {
		if job.Status == status {
			filtered = append(filtered, job)
		}
	}
	writeJSON(w, http.StatusOK, listResponse{Downloads: filtered, Total: len(filtered)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := s.svc.Get(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// maxWorkers resolves the optional max_workers field
func (s *Server) maxWorkers(w http.ResponseWriter, requested *int) (int, bool) {
	if requested == nil {
		return s.batchWorkers, true
	}
	if *requested < 1 {
		writeError(w, http.StatusUnprocessableEntity, "max_workers must be at least 1")
		return 0, false
	}
	return *requested, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidURL),
		errors.Is(err, jobs.ErrUnsupportedFormat),
		errors.Is(err, jobs.ErrEmptyBatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "download not found")
	case errors.Is(err, jobs.ErrPlaylistUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, jobs.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody reads a JSON request body, answering 400 when it is malformed
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
