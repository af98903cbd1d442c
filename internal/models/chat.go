package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn represents a single message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is the persisted conversation of one user. Version is 0 until
// the first write and grows by one on every append or clear.
type Transcript struct {
	UserID    uuid.UUID `json:"user_id"`
	Turns     []Turn    `json:"turns"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmptyTranscript returns the transcript of a user who never wrote anything.
func EmptyTranscript(userID uuid.UUID) *Transcript {
	return &Transcript{UserID: userID, Turns: []Turn{}}
}

// ConverseRequest is the payload sent to the conversation endpoint.
type ConverseRequest struct {
	Message string `json:"message"`
}

// TranscriptResponse carries the full transcript back to the caller.
type TranscriptResponse struct {
	Status     string `json:"status"`
	Transcript []Turn `json:"transcript"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
