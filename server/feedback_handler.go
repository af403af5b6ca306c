package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mixfm/core/feedback"
	"mixfm/logger"
)

// FeedbackRequest represents the feedback request body
type FeedbackRequest struct {
	TrackID  int64  `json:"trackId"`
	Feedback string `json:"feedback"` // like or dislike
}

// FeedbackHandler records like or dislike on a track. A disliked track
// drops out of the candidate pool from the next generation on.
func (h *APIHandler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TrackID <= 0 {
		http.Error(w, "trackId is required", http.StatusBadRequest)
		return
	}

	a, err := h.feedback.RecordFeedback(userID, req.TrackID, req.Feedback)
	if err != nil {
		switch {
		case errors.Is(err, feedback.ErrInvalidFeedback):
			http.Error(w, "Feedback must be like or dislike", http.StatusBadRequest)
		case errors.Is(err, feedback.ErrTrackNotFound):
			http.Error(w, "Track not found", http.StatusNotFound)
		default:
			logger.Error("failed to record feedback", logger.ErrorField(err))
			http.Error(w, "Failed to record feedback", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// RemoveFeedbackHandler clears feedback from a track.
func (h *APIHandler) RemoveFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	trackID, err := trackIDFromPath(r)
	if err != nil {
		http.Error(w, "Invalid track id", http.StatusBadRequest)
		return
	}

	a, err := h.feedback.RemoveFeedback(userID, trackID)
	if err != nil {
		if errors.Is(err, feedback.ErrNoFeedback) {
			http.Error(w, "No feedback to remove", http.StatusNotFound)
			return
		}
		logger.Error("failed to remove feedback", logger.ErrorField(err))
		http.Error(w, "Failed to remove feedback", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetFeedbackHandler returns the affinity record for one track.
func (h *APIHandler) GetFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	trackID, err := trackIDFromPath(r)
	if err != nil {
		http.Error(w, "Invalid track id", http.StatusBadRequest)
		return
	}

	a, err := h.feedback.GetFeedback(userID, trackID)
	if err != nil {
		logger.Error("failed to load feedback", logger.ErrorField(err))
		http.Error(w, "Failed to load feedback", http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.Error(w, "No affinity recorded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// PlaybackEventHandler applies play/skip score drift for playback that
// happened client-side (for example offline playback reported later).
func (h *APIHandler) PlaybackEventHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		TrackID int64  `json:"trackId"`
		Event   string `json:"event"` // played or skipped
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TrackID <= 0 {
		http.Error(w, "trackId is required", http.StatusBadRequest)
		return
	}

	if err := h.feedback.ScoreEvent(userID, req.TrackID, req.Event); err != nil {
		http.Error(w, "Invalid playback event", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": true})
}

// LikedTracksHandler returns the listener's liked tracks.
func (h *APIHandler) LikedTracksHandler(w http.ResponseWriter, r *http.Request) {
	h.listByFeedback(w, r, "like")
}

// DislikedTracksHandler returns the listener's disliked tracks.
func (h *APIHandler) DislikedTracksHandler(w http.ResponseWriter, r *http.Request) {
	h.listByFeedback(w, r, "dislike")
}

func (h *APIHandler) listByFeedback(w http.ResponseWriter, r *http.Request, fb string) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	var list interface{}
	if fb == "like" {
		list, err = h.feedback.LikedTracks(userID, limit)
	} else {
		list, err = h.feedback.DislikedTracks(userID, limit)
	}
	if err != nil {
		logger.Error("failed to list feedback tracks", logger.ErrorField(err))
		http.Error(w, "Failed to load tracks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// FeedbackStatsHandler returns liked/disliked/neutral counts.
func (h *APIHandler) FeedbackStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	stats, err := h.feedback.Stats(userID)
	if err != nil {
		logger.Error("failed to load feedback stats", logger.ErrorField(err))
		http.Error(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func trackIDFromPath(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["trackId"], 10, 64)
}
