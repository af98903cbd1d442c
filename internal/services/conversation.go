package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"chat-backend/internal/models"
)

// TranscriptStore persists one transcript per user. Append must apply all of
// the given turns or none of them, and appends for the same user must not
// interleave.
type TranscriptStore interface {
	Load(ctx context.Context, userID uuid.UUID) (*models.Transcript, error)
	Append(ctx context.Context, userID uuid.UUID, turns []models.Turn) (*models.Transcript, error)
	Clear(ctx context.Context, userID uuid.UUID) (*models.Transcript, error)
}

type OwnerDirectory interface {
	GetOwner(ctx context.Context, userID uuid.UUID) (*models.Owner, error)
}

// TranscriptNotifier is told about every persisted change. Failures are
// logged and never fail the request.
type TranscriptNotifier interface {
	TranscriptChanged(ctx context.Context, userID uuid.UUID, eventType string, t *models.Transcript) error
}

type ConversationService struct {
	owners          OwnerDirectory
	store           TranscriptStore
	completer       Completer
	notifier        TranscriptNotifier
	maxPromptTokens int
}

func NewConversationService(owners OwnerDirectory, store TranscriptStore, completer Completer, notifier TranscriptNotifier, maxPromptTokens int) *ConversationService {
	return &ConversationService{
		owners:          owners,
		store:           store,
		completer:       completer,
		notifier:        notifier,
		maxPromptTokens: maxPromptTokens,
	}
}

// Converse runs one completion cycle for userID. The user message and the
// reply are persisted together in a single append, and only after the
// provider answered; on any failure the stored transcript is unchanged.
func (s *ConversationService) Converse(ctx context.Context, userID uuid.UUID, rawMessage string) ([]models.Turn, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return nil, err
	}

	if strings.TrimSpace(rawMessage) == "" {
		return nil, &ValidationError{Fields: map[string]string{"message": "Message is required"}}
	}

	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	prompt := AssemblePrompt(current.Turns, rawMessage)
	tokens := CountPromptTokens(prompt)
	log.Printf("conversation: user %s prompt assembled (turns=%d, tokens=%d)", userID, len(current.Turns), tokens)

	if s.maxPromptTokens > 0 && tokens > s.maxPromptTokens {
		return nil, &ValidationError{Fields: map[string]string{
			"message": "Conversation is too long; reset the transcript to continue",
		}}
	}

	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		var ce *CompletionError
		if !errors.As(err, &ce) {
			ce = &CompletionError{Message: "AI provider error", Err: err}
		}
		log.Printf("conversation: user %s completion failed (rate_limited=%v): %v", userID, ce.RateLimited, ce)
		return nil, ce
	}

	updated, err := s.store.Append(ctx, userID, []models.Turn{
		{Role: models.RoleUser, Content: rawMessage},
		{Role: models.RoleAssistant, Content: reply},
	})
	if err != nil {
		log.Printf("conversation: user %s append failed: %v", userID, err)
		return nil, &StorageError{Op: "append", Err: err}
	}
	if err := checkOwnership(updated, userID); err != nil {
		return nil, err
	}

	s.notify(ctx, userID, models.EventTranscriptUpdated, updated)
	return turnsOf(updated), nil
}

func (s *ConversationService) GetTranscript(ctx context.Context, userID uuid.UUID) ([]models.Turn, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return nil, err
	}

	t, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return turnsOf(t), nil
}

func (s *ConversationService) ResetTranscript(ctx context.Context, userID uuid.UUID) error {
	if err := s.authorize(ctx, userID); err != nil {
		return err
	}

	cleared, err := s.store.Clear(ctx, userID)
	if err != nil {
		log.Printf("conversation: user %s clear failed: %v", userID, err)
		return &StorageError{Op: "clear", Err: err}
	}
	if err := checkOwnership(cleared, userID); err != nil {
		return err
	}

	s.notify(ctx, userID, models.EventTranscriptCleared, cleared)
	return nil
}

// authorize checks that the caller resolves to a registered owner and that
// the owner record is the caller's own.
func (s *ConversationService) authorize(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return &UnauthorizedError{Message: "Missing caller identity"}
	}

	owner, err := s.owners.GetOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrOwnerNotFound) {
			return &NotFoundError{Message: "User not registered"}
		}
		return &StorageError{Op: "load", Err: fmt.Errorf("owner lookup: %w", err)}
	}
	if owner.ID != userID {
		return &UnauthorizedError{Message: "Permissions didn't match"}
	}
	return nil
}

func (s *ConversationService) load(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	t, err := s.store.Load(ctx, userID)
	if err != nil {
		log.Printf("conversation: user %s load failed: %v", userID, err)
		return nil, &StorageError{Op: "load", Err: err}
	}
	if err := checkOwnership(t, userID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ConversationService) notify(ctx context.Context, userID uuid.UUID, eventType string, t *models.Transcript) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.TranscriptChanged(ctx, userID, eventType, t); err != nil {
		log.Printf("conversation: user %s %s notification failed: %v", userID, eventType, err)
	}
}

// checkOwnership rejects a transcript that belongs to someone else. A zero
// UserID means the store has never written one for this caller.
func checkOwnership(t *models.Transcript, userID uuid.UUID) error {
	if t == nil {
		return &StorageError{Op: "load", Err: errors.New("store returned no transcript")}
	}
	if t.UserID != uuid.Nil && t.UserID != userID {
		return &UnauthorizedError{Message: "Permissions didn't match"}
	}
	return nil
}

func turnsOf(t *models.Transcript) []models.Turn {
	if t.Turns == nil {
		return []models.Turn{}
	}
	return t.Turns
}
