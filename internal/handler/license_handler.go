package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stream-service/internal/models"
	"stream-service/internal/streaming"
)

// LicenseHandler handles HTTP requests for license validation and
// activation.
type LicenseHandler struct {
	service *streaming.LicenseService
	logger  *zap.Logger
}

func NewLicenseHandler(service *streaming.LicenseService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger,
	}
}

func (h *LicenseHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/licenses/activate", h.Activate)
		r.Get("/licenses/{licenseKey}/validate", h.Validate)
	})
}

type activateRequest struct {
	LicenseKey string `json:"license_key"`
}

type validateResponse struct {
	Status string `json:"status"`
	Valid  bool   `json:"valid"`
}

// Activate handles POST /api/v1/licenses/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	license, err := h.service.Activate(r.Context(), userID, req.LicenseKey)
	if err != nil {
		h.logger.Warn("License activation failed",
			zap.String("user_id", userID),
			zap.Error(err))
		respondWithError(w, getStatusCode(err), err, "Failed to activate license")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(license, "License activated"))
}

// Validate handles GET /api/v1/licenses/{licenseKey}/validate
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	licenseKey := chi.URLParam(r, "licenseKey")

	license, err := h.service.Validate(r.Context(), licenseKey)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to validate license")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(validateResponse{
		Status: license.Status,
		Valid:  license.Status == models.LicenseStatusActive,
	}, "License validated"))
}
