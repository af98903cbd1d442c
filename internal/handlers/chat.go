package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"chat-backend/internal/middleware"
	"chat-backend/internal/models"
)

type conversationService interface {
	Converse(ctx context.Context, userID uuid.UUID, rawMessage string) ([]models.Turn, error)
	GetTranscript(ctx context.Context, userID uuid.UUID) ([]models.Turn, error)
	ResetTranscript(ctx context.Context, userID uuid.UUID) error
}

type ChatHandler struct {
	conversations conversationService
}

func NewChatHandler(conversations conversationService) *ChatHandler {
	return &ChatHandler{conversations: conversations}
}

// SendMessage runs one completion cycle and returns the updated transcript.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ConverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("PAYLOAD_TOO_LARGE", "Message is too large", r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	transcript, err := h.conversations.Converse(r.Context(), userID, req.Message)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.TranscriptResponse{Status: "OK", Transcript: transcript})
}

func (h *ChatHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	transcript, err := h.conversations.GetTranscript(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.TranscriptResponse{Status: "OK", Transcript: transcript})
}

func (h *ChatHandler) ResetTranscript(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.conversations.ResetTranscript(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{Status: "OK"})
}
