package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/n3tuk/redis-console/internal/metrics"
	"github.com/n3tuk/redis-console/internal/model"
)

// ProfileCatalog is the set of saved connection operations served under
// /api/connections.
type ProfileCatalog interface {
	Profiles(ctx context.Context) ([]model.ConnectionConfig, error)
	CreateProfile(ctx context.Context, cfg model.ConnectionConfig) (model.ConnectionConfig, error)
	UpdateProfile(ctx context.Context, id string, cfg model.ConnectionConfig) (model.ConnectionConfig, error)
	DeleteProfile(ctx context.Context, id string) error
}

// ProfileHandlers provides HTTP handlers for saved connection profiles.
type ProfileHandlers struct {
	responder
	catalog ProfileCatalog
}

// NewProfileHandlers creates a new ProfileHandlers instance.
func NewProfileHandlers(catalog ProfileCatalog, logger *zap.Logger, metrics *metrics.Metrics) *ProfileHandlers {
	return &ProfileHandlers{
		responder: responder{logger: logger, metrics: metrics},
		catalog:   catalog,
	}
}

// HandleList handles GET /api/connections.
// Environment connections come first; user profiles pointing at the same
// endpoint as one of them are left out.
func (h *ProfileHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.Profiles(r.Context())
	if err != nil {
		h.fail(w, "list_profiles", err, "Failed to list connections")
		return
	}
	if list == nil {
		list = []model.ConnectionConfig{}
	}

	h.respondJSON(w, http.StatusOK, list)
}

// HandleCreate handles POST /api/connections.
// Returns:
//   - 201 Created: the saved profile, with its generated id
//   - 400 Bad Request: invalid configuration or duplicate id
func (h *ProfileHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var cfg model.ConnectionConfig
	if !h.decode(w, r, "create_profile", &cfg) {
		return
	}

	created, err := h.catalog.CreateProfile(r.Context(), cfg)
	if err != nil {
		h.fail(w, "create_profile", err, "Failed to save connection")
		return
	}

	h.logger.Info("Saved connection profile",
		zap.String("connection_id", created.ID),
		zap.String("name", created.DisplayName()),
	)
	h.respondJSON(w, http.StatusCreated, created)
}

// HandleUpdate handles PUT /api/connections/{id}.
func (h *ProfileHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cfg model.ConnectionConfig
	if !h.decode(w, r, "update_profile", &cfg) {
		return
	}

	updated, err := h.catalog.UpdateProfile(r.Context(), id, cfg)
	if err != nil {
		h.fail(w, "update_profile", err, "Failed to update connection")
		return
	}

	h.respondJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /api/connections/{id}.
func (h *ProfileHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.catalog.DeleteProfile(r.Context(), id); err != nil {
		h.fail(w, "delete_profile", err, "Failed to delete connection")
		return
	}

	h.respondSuccess(w)
}
