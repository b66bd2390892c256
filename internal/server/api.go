package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jaehoon-kim/lectern/internal/media"
)

const videoInfoTimeout = 60 * time.Second

type urlRequest struct {
	URL string `json:"url"`
}

func registerAPIRoutes(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("POST /api/validate", func(w http.ResponseWriter, r *http.Request) {
		var req urlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		videoID := media.ExtractVideoID(req.URL)
		if videoID == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"valid": false,
				"error": "not a recognized video url",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"valid":     true,
			"video_id":  videoID,
			"embed_url": "https://www.youtube.com/embed/" + videoID,
		})
	})

	mux.HandleFunc("POST /api/video-info", func(w http.ResponseWriter, r *http.Request) {
		var req urlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.URL == "" {
			writeJSONError(w, http.StatusBadRequest, "url is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), videoInfoTimeout)
		defer cancel()

		info, err := deps.Resolver.Info(ctx, req.URL)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"info":    info,
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
