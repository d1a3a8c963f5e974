package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stream-service/internal/streaming"
)

// StreamHandler handles HTTP requests for the streaming session lifecycle.
type StreamHandler struct {
	service *streaming.Service
	logger  *zap.Logger
}

func NewStreamHandler(service *streaming.Service, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the stream and progress routes. All of them
// require an authenticated principal.
func (h *StreamHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/streams", h.CreateSession)
		r.Put("/streams", h.Heartbeat)
		r.Delete("/streams", h.EndSession)
		r.Get("/progress/{lessonID}", h.GetProgress)
	})
}

// CreateSession handles POST /api/v1/streams
func (h *StreamHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req streaming.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Device.IPAddress == "" {
		req.Device.IPAddress = r.RemoteAddr
	}
	if req.Device.UserAgent == "" {
		req.Device.UserAgent = r.UserAgent()
	}

	manifest, err := h.service.CreateSession(r.Context(), userID, &req)
	if err != nil {
		h.logger.Warn("Failed to create streaming session",
			zap.String("user_id", userID),
			zap.String("video_id", req.VideoID),
			zap.Error(err))
		respondWithError(w, getStatusCode(err), err, "Failed to create streaming session")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(manifest, "Streaming session created"))
}

// Heartbeat handles PUT /api/v1/streams
func (h *StreamHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req streaming.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	record, err := h.service.Heartbeat(r.Context(), userID, &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to update streaming session")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(record, "Streaming session updated"))
}

// EndSession handles DELETE /api/v1/streams?session_id=
func (h *StreamHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("session_id query parameter is required"), "session_id is required")
		return
	}

	metrics, err := h.service.EndSession(r.Context(), userID, sessionID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to end streaming session")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(metrics, "Streaming session ended"))
}

// GetProgress handles GET /api/v1/progress/{lessonID}
func (h *StreamHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	lessonID := chi.URLParam(r, "lessonID")

	progress, err := h.service.GetProgress(r.Context(), userID, lessonID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get progress")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(progress, "Progress retrieved"))
}
