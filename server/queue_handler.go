package server

import (
	"net/http"
	"strconv"

	"mixfm/core/feedback"
	"mixfm/core/player"
	"mixfm/logger"
)

const (
	maxBatchSize = 100

	// queueHistorySize is how many played tracks the queue response carries.
	queueHistorySize = 5
)

// QueueHandler returns the listener's queue: the current track, what comes
// next and recent history. A queue below the low-water mark is topped up
// before responding, so a fresh listener sees music immediately.
func (h *APIHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	ctx := r.Context()

	alg := h.cfg.Algorithm()
	upcoming, err := h.engine.CurrentQueue(ctx, userID, 0)
	if err != nil {
		logger.Error("failed to load queue", logger.Int64("listenerId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to load queue", http.StatusInternalServerError)
		return
	}

	if len(upcoming) < alg.QueueLowWater {
		if _, err := h.engine.GenerateBatch(ctx, userID, alg.QueuePrefetchSize); err != nil {
			logger.Error("failed to generate queue", logger.Int64("listenerId", userID), logger.ErrorField(err))
			http.Error(w, "Failed to generate queue", http.StatusInternalServerError)
			return
		}
		upcoming, err = h.engine.CurrentQueue(ctx, userID, 0)
		if err != nil {
			logger.Error("failed to reload queue", logger.Int64("listenerId", userID), logger.ErrorField(err))
			http.Error(w, "Failed to load queue", http.StatusInternalServerError)
			return
		}
	}

	history, err := h.engine.History(ctx, userID, queueHistorySize)
	if err != nil {
		logger.Error("failed to load history", logger.Int64("listenerId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"current":  nil,
		"upcoming": upcoming,
		"history":  history,
	}
	if len(upcoming) > 0 {
		response["current"] = upcoming[0]
		response["upcoming"] = upcoming[1:]
	}
	writeJSON(w, http.StatusOK, response)
}

// NextHandler advances playback to the next track: the head of the queue
// is consumed as a full play and connected devices are told.
func (h *APIHandler) NextHandler(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, feedback.EventPlayed)
}

// SkipHandler advances like NextHandler but records the consumed track as
// skipped, drifting its score down.
func (h *APIHandler) SkipHandler(w http.ResponseWriter, r *http.Request) {
	h.advance(w, r, feedback.EventSkipped)
}

func (h *APIHandler) advance(w http.ResponseWriter, r *http.Request, scoreEvent string) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	track, ok, err := h.engine.Advance(r.Context(), userID)
	if err != nil {
		logger.Error("failed to advance queue", logger.Int64("listenerId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to advance queue", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Queue is empty", http.StatusNotFound)
		return
	}

	if track != nil {
		if err := h.feedback.ScoreEvent(userID, track.ID, scoreEvent); err != nil {
			logger.Warn("failed to apply score drift",
				logger.Int64("trackId", track.ID), logger.ErrorField(err))
		}
		h.hub.Notify(userID, player.EventTrackAdvanced, track)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"track": track})
}

// RegenerateHandler throws away the unplayed queue and builds a fresh one.
func (h *APIHandler) RegenerateHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count := h.cfg.Algorithm().QueuePrefetchSize
	if raw := r.URL.Query().Get("count"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			count = parsed
		}
	}
	count = clampBatchSize(count)

	tracks, err := h.engine.GenerateBatch(r.Context(), userID, count)
	if err != nil {
		logger.Error("failed to regenerate queue", logger.Int64("listenerId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to regenerate queue", http.StatusInternalServerError)
		return
	}

	h.hub.Notify(userID, player.EventQueueUpdated, map[string]int{"size": len(tracks)})
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks})
}

// ClearQueueHandler removes the listener's queue entirely.
func (h *APIHandler) ClearQueueHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.engine.Clear(r.Context(), userID); err != nil {
		logger.Error("failed to clear queue", logger.Int64("listenerId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to clear queue", http.StatusInternalServerError)
		return
	}

	h.hub.Notify(userID, player.EventQueueUpdated, map[string]int{"size": 0})
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

// GenerateHandler builds a batch of recommendations without touching the
// stored queue response shape: it returns the freshly persisted batch.
func (h *APIHandler) GenerateHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count := h.cfg.Algorithm().QueuePrefetchSize
	if raw := r.URL.Query().Get("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid count parameter", http.StatusBadRequest)
			return
		}
		count = parsed
	}
	count = clampBatchSize(count)

	tracks, err := h.engine.GenerateBatch(r.Context(), userID, count)
	if err != nil {
		logger.Error("failed to generate batch", logger.Int64("listenerId", userID), logger.ErrorField(err))
		http.Error(w, "Failed to generate batch", http.StatusInternalServerError)
		return
	}

	h.hub.Notify(userID, player.EventQueueUpdated, map[string]int{"size": len(tracks)})
	writeJSON(w, http.StatusOK, map[string]interface{}{"tracks": tracks, "count": len(tracks)})
}

func clampBatchSize(count int) int {
	if count < 1 {
		return 1
	}
	if count > maxBatchSize {
		return maxBatchSize
	}
	return count
}
