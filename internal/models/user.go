package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Owner is the registered user a transcript belongs to. Registration itself
// lives in another service; only the id is needed here.
type Owner struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrOwnerNotFound is returned when an identity has no owner record.
var ErrOwnerNotFound = errors.New("owner not found")
