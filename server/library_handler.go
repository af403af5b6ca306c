package server

import (
	"context"
	"net/http"
	"strconv"

	"mixfm/core/player"
	"mixfm/logger"
	"mixfm/model"
)

// SyncLibraryHandler kicks off a background library sync for the listener.
// A sync already running is reported as a conflict; its status endpoint
// shows the progress.
func (h *APIHandler) SyncLibraryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.syncer.Status(r.Context(), userID)
	if err != nil {
		logger.Error("failed to read sync status", logger.ErrorField(err))
		http.Error(w, "Failed to read sync status", http.StatusInternalServerError)
		return
	}
	if status.State == model.SyncRunning {
		http.Error(w, "Sync already in progress", http.StatusConflict)
		return
	}

	// The request context dies with the response; the sync keeps its own.
	go func() {
		if err := h.syncer.Sync(context.Background(), userID); err != nil {
			logger.Error("library sync failed",
				logger.Int64("listenerId", userID), logger.ErrorField(err))
		}
		h.hub.Notify(userID, player.EventSyncStatus, nil)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(model.SyncRunning)})
}

// SyncStatusHandler reports the listener's sync progress.
func (h *APIHandler) SyncStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.syncer.Status(r.Context(), userID)
	if err != nil {
		logger.Error("failed to read sync status", logger.ErrorField(err))
		http.Error(w, "Failed to read sync status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// LibrarySongsHandler pages through the listener's synced library.
func (h *APIHandler) LibrarySongsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, offset := 50, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	songs, err := h.feedback.AllForListener(userID, limit, offset)
	if err != nil {
		logger.Error("failed to list library", logger.ErrorField(err))
		http.Error(w, "Failed to load library", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"songs":  songs,
		"limit":  limit,
		"offset": offset,
	})
}

// LibraryStatsHandler summarizes the listener's library.
func (h *APIHandler) LibraryStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.feedback.Stats(userID)
	if err != nil {
		logger.Error("failed to load library stats", logger.ErrorField(err))
		http.Error(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}

	total := 0
	for _, n := range stats {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    total,
		"liked":    stats["liked"],
		"disliked": stats["disliked"],
		"neutral":  stats["neutral"],
	})
}
