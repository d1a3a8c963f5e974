package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"stream-service/internal/entitlement"
	"stream-service/internal/repository/scylla"
	"stream-service/internal/session"
	"stream-service/internal/streaming"
	"stream-service/internal/util"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	if statusCode == http.StatusInternalServerError {
		// Internal failures are logged with full context above but stay
		// opaque to the client.
		err = errors.New("internal error")
	}
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

func getStatusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, streaming.ErrVideoNotFound),
		errors.Is(err, entitlement.ErrLicenseNotFound),
		errors.Is(err, scylla.ErrCourseNotFound),
		errors.Is(err, scylla.ErrLessonNotFound),
		errors.Is(err, scylla.ErrProgressNotFound):
		return http.StatusNotFound
	case errors.Is(err, streaming.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, streaming.ErrAccessDenied),
		errors.Is(err, session.ErrNotSessionOwner),
		errors.Is(err, entitlement.ErrLicenseForbidden):
		return http.StatusForbidden
	case errors.Is(err, entitlement.ErrActivationsExhausted),
		errors.Is(err, entitlement.ErrLicenseNotActive),
		errors.Is(err, entitlement.ErrActivationConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
