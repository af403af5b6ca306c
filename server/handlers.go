package server

import (
	"encoding/json"
	"net/http"

	"mixfm/config"
	"mixfm/core/engine"
	"mixfm/core/feedback"
	"mixfm/core/library"
	"mixfm/core/player"
	"mixfm/logger"
	"mixfm/repository"
	"mixfm/storage"
)

// APIHandler carries the wired components behind the HTTP surface.
type APIHandler struct {
	cfg      *config.Config
	userRepo repository.UserRepository
	engine   *engine.Engine
	feedback *feedback.Service
	syncer   *library.Syncer
	hub      *player.Hub
	artwork  *storage.ArtworkStore
}

// NewAPIHandler creates the API handler. The artwork store may be nil when
// object storage is not configured; cover routes then return 404.
func NewAPIHandler(
	cfg *config.Config,
	userRepo repository.UserRepository,
	eng *engine.Engine,
	fb *feedback.Service,
	syncer *library.Syncer,
	hub *player.Hub,
	artwork *storage.ArtworkStore,
) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		userRepo: userRepo,
		engine:   eng,
		feedback: fb,
		syncer:   syncer,
		hub:      hub,
		artwork:  artwork,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}
