package handlers

import (
	"net/http"
	"time"

	"github.com/kozaktomas/cornea/internal/modelstore"
)

// ModelHandler reports the active model and stored artifacts.
type ModelHandler struct {
	model Model
	store *modelstore.Store
}

// NewModelHandler creates a model handler.
func NewModelHandler(model Model, store *modelstore.Store) *ModelHandler {
	return &ModelHandler{model: model, store: store}
}

// ArtifactResponse describes one stored model artifact.
type ArtifactResponse struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// Get handles GET /api/v1/model.
func (h *ModelHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.model.Info())
}

// List handles GET /api/v1/models.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.store.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list models")
		return
	}

	active := h.model.Info().Path
	out := make([]ArtifactResponse, 0, len(artifacts))
	for i := len(artifacts) - 1; i >= 0; i-- {
		a := artifacts[i]
		out = append(out, ArtifactResponse{
			ID:        a.ID.String(),
			Path:      a.Path,
			CreatedAt: a.CreatedAt,
			Active:    a.Path == active,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"dir":    h.store.Dir(),
		"models": out,
	})
}
