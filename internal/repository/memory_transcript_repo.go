package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-backend/internal/models"
)

// MemoryTranscriptRepo keeps transcripts in process memory. Each user has
// its own lock, so writers for different users never wait on each other.
type MemoryTranscriptRepo struct {
	mu          sync.Mutex
	transcripts map[uuid.UUID]*memoryTranscript
	now         func() time.Time
}

type memoryTranscript struct {
	mu sync.Mutex
	t  *models.Transcript
}

func NewMemoryTranscriptRepo() *MemoryTranscriptRepo {
	return &MemoryTranscriptRepo{
		transcripts: make(map[uuid.UUID]*memoryTranscript),
		now:         time.Now,
	}
}

func (r *MemoryTranscriptRepo) entry(userID uuid.UUID) *memoryTranscript {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.transcripts[userID]
	if !ok {
		e = &memoryTranscript{t: models.EmptyTranscript(userID)}
		r.transcripts[userID] = e
	}
	return e
}

func (r *MemoryTranscriptRepo) Load(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	e := r.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneTranscript(e.t), nil
}

func (r *MemoryTranscriptRepo) Append(ctx context.Context, userID uuid.UUID, turns []models.Turn) (*models.Transcript, error) {
	if err := validateTurns(turns); err != nil {
		return nil, err
	}

	e := r.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next := cloneTranscript(e.t)
	next.Turns = append(next.Turns, turns...)
	next.Version++
	next.UpdatedAt = r.now()
	e.t = next
	return cloneTranscript(next), nil
}

func (r *MemoryTranscriptRepo) Clear(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	e := r.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.t = &models.Transcript{
		UserID:    userID,
		Turns:     []models.Turn{},
		Version:   e.t.Version + 1,
		UpdatedAt: r.now(),
	}
	return cloneTranscript(e.t), nil
}
