package server

import (
	"io"
	"net/http"
	"path"

	"github.com/gorilla/mux"

	"mixfm/logger"
)

// CoverHandler streams mirrored cover art from object storage.
func (h *APIHandler) CoverHandler(w http.ResponseWriter, r *http.Request) {
	if h.artwork == nil {
		http.Error(w, "Artwork storage not configured", http.StatusNotFound)
		return
	}

	name := mux.Vars(r)["name"]
	if name == "" || name != path.Base(name) {
		http.Error(w, "Invalid cover name", http.StatusBadRequest)
		return
	}

	object, err := h.artwork.GetCover(r.Context(), path.Join("covers", name))
	if err != nil {
		logger.Warn("cover not found", logger.String("name", name), logger.ErrorField(err))
		http.Error(w, "Cover not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("failed to stream cover", logger.String("name", name), logger.ErrorField(err))
	}
}
