package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"chat-backend/internal/models"
	"chat-backend/internal/services"
)

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *services.ValidationError
		notFoundErr     *services.NotFoundError
		unauthorizedErr *services.UnauthorizedError
		completionErr   *services.CompletionError
		storageErr      *services.StorageError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationErr.Fields, r))
	case errors.As(err, &unauthorizedErr):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorizedErr.Message, r))
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFoundErr.Message, r))
	case errors.As(err, &completionErr) && completionErr.RateLimited:
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", "The AI is busy right now. Please try again shortly.", r))
	case errors.As(err, &completionErr):
		writeJSON(w, http.StatusBadGateway, errorResp("AI_ERROR", "Failed to get AI response: "+completionErr.Message, r))
	case errors.As(err, &storageErr):
		log.Printf("storage error (request %s): %v", r.Header.Get("X-Request-ID"), err)
		writeJSON(w, http.StatusInternalServerError, errorResp("STORAGE_ERROR", "Could not "+storageErr.Op+" the conversation", r))
	default:
		log.Printf("unexpected error (request %s): %v", r.Header.Get("X-Request-ID"), err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
