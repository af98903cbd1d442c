package repository

import (
	"fmt"

	"chat-backend/internal/models"
)

func validateTurns(turns []models.Turn) error {
	if len(turns) == 0 {
		return fmt.Errorf("no turns to append")
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("turn %d has invalid role %q", i, t.Role)
		}
	}
	return nil
}

func cloneTranscript(t *models.Transcript) *models.Transcript {
	out := *t
	out.Turns = make([]models.Turn, len(t.Turns))
	copy(out.Turns, t.Turns)
	return &out
}
