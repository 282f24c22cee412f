package api

import (
	"encoding/json"
	"net/http"

	service "github.com/okian/surfwatch/internal/app"
	"github.com/okian/surfwatch/pkg/logger"
)

const maxJSONBody = 1 << 20

// SpotsHandler serves surf spot reads and score writes.
type SpotsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewSpotsHandler creates a new spots handler.
func NewSpotsHandler(deps Dependencies, log logger.Logger) *SpotsHandler {
	return &SpotsHandler{deps: deps, logger: log}
}

// HandleList handles GET /surf-spots.
func (h *SpotsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	spots, err := h.deps.ListSpots(r.Context())
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap("surf-spots.list", err))
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Count: len(spots), Data: spots})
}

// HandleGet handles GET /surf-spots/{id}.
func (h *SpotsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	spot, err := h.deps.GetSpot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap("surf-spots.get", err))
		return
	}
	writeData(w, http.StatusOK, spot)
}

// HandleRiskScore handles PUT /surf-spots/{id}/risk-score.
func (h *SpotsHandler) HandleRiskScore(w http.ResponseWriter, r *http.Request) {
	const op = "surf-spots.risk-score"

	var in service.ScoreUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(r.Context(), h.logger, w, WrapKind(op, ErrBadRequest, err))
		return
	}
	spot, err := h.deps.ApplyScore(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(r.Context(), h.logger, w, Wrap(op, err))
		return
	}
	writeData(w, http.StatusOK, spot)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	return dec.Decode(v)
}
