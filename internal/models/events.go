package models

// WebSocket message types
const (
	EventTranscriptUpdated = "transcript_updated"
	EventTranscriptCleared = "transcript_cleared"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type TranscriptEvent struct {
	Version   int64 `json:"version"`
	TurnCount int   `json:"turn_count"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
