package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/scryshot/internal/runs"
)

type APIHandler struct {
	runs   *runs.Manager
	logger *zap.Logger
}

func NewAPIHandler(rm *runs.Manager, logger *zap.Logger) *APIHandler {
	return &APIHandler{runs: rm, logger: logger}
}

type SubmitRunResponse struct {
	RunID  string      `json:"run_id"`
	Status runs.Status `json:"status"`
}

func (h *APIHandler) HandleSubmitRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req runs.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	run, err := h.runs.Submit(req)
	switch {
	case errors.Is(err, runs.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "%s", err.Error())
		return
	case errors.Is(err, runs.ErrShuttingDown):
		respondError(w, http.StatusServiceUnavailable, "%s", err.Error())
		return
	case err != nil:
		h.logger.Error("submitting run", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to submit run")
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID.String())
	respondJSON(w, http.StatusAccepted, SubmitRunResponse{RunID: run.ID.String(), Status: run.Status})
}

func (h *APIHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	run, err := h.runs.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// HandleGetArtifact serves a screenshot, failure snapshot or report from a
// run's artifact directory.
func (h *APIHandler) HandleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := runID(w, r)
	if !ok {
		return
	}
	path, err := h.runs.ArtifactPath(id, chi.URLParam(r, "*"))
	if err != nil {
		respondError(w, http.StatusNotFound, "%s", err.Error())
		return
	}
	http.ServeFile(w, r, path)
}

func runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run ID format: %v", err)
		return uuid.Nil, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to marshal JSON response")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	response, err := json.Marshal(map[string]string{"error": fmt.Sprintf(format, args...)})
	if err != nil {
		response = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(response)
}
