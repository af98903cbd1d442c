package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chat-backend/internal/models"
)

// TranscriptChannel is the Redis pub/sub channel carrying a user's
// transcript events.
func TranscriptChannel(userID uuid.UUID) string {
	return "transcript_updates:" + userID.String()
}

// TranscriptPublisher fans transcript changes out through Redis pub/sub so
// every open WebSocket of the user can refresh.
type TranscriptPublisher struct {
	redis *redis.Client
}

func NewTranscriptPublisher(redisClient *redis.Client) *TranscriptPublisher {
	return &TranscriptPublisher{redis: redisClient}
}

func (p *TranscriptPublisher) TranscriptChanged(ctx context.Context, userID uuid.UUID, eventType string, t *models.Transcript) error {
	data, err := json.Marshal(models.WSMessage{
		Type: eventType,
		Payload: models.TranscriptEvent{
			Version:   t.Version,
			TurnCount: len(t.Turns),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode transcript event: %w", err)
	}
	return p.redis.Publish(ctx, TranscriptChannel(userID), string(data)).Err()
}
