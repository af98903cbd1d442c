package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"chat-backend/internal/models"
)

// DBTX is the part of *pgxpool.Pool the repositories need.
type DBTX interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TranscriptRepo struct {
	db DBTX
}

func NewTranscriptRepo(db DBTX) *TranscriptRepo {
	return &TranscriptRepo{db: db}
}

func (r *TranscriptRepo) Load(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	query := `SELECT turns, version, updated_at FROM transcripts WHERE user_id = $1`

	t, err := scanTranscript(userID, r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.EmptyTranscript(userID), nil
	}
	return t, err
}

// Append concatenates the new turns in a single upsert; the row lock taken by
// ON CONFLICT serializes concurrent appends for the same user.
func (r *TranscriptRepo) Append(ctx context.Context, userID uuid.UUID, turns []models.Turn) (*models.Transcript, error) {
	if err := validateTurns(turns); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode turns: %w", err)
	}

	query := `
		INSERT INTO transcripts (user_id, turns, version, updated_at)
		VALUES ($1, $2::jsonb, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET turns = transcripts.turns || EXCLUDED.turns,
			version = transcripts.version + 1,
			updated_at = NOW()
		RETURNING turns, version, updated_at`

	return scanTranscript(userID, r.db.QueryRow(ctx, query, userID, string(payload)))
}

func (r *TranscriptRepo) Clear(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	query := `
		INSERT INTO transcripts (user_id, turns, version, updated_at)
		VALUES ($1, '[]'::jsonb, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET turns = '[]'::jsonb,
			version = transcripts.version + 1,
			updated_at = NOW()
		RETURNING turns, version, updated_at`

	return scanTranscript(userID, r.db.QueryRow(ctx, query, userID))
}

func scanTranscript(userID uuid.UUID, row pgx.Row) (*models.Transcript, error) {
	var (
		raw       []byte
		version   int64
		updatedAt time.Time
	)
	if err := row.Scan(&raw, &version, &updatedAt); err != nil {
		return nil, err
	}

	t := &models.Transcript{
		UserID:    userID,
		Turns:     []models.Turn{},
		Version:   version,
		UpdatedAt: updatedAt,
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &t.Turns); err != nil {
			return nil, fmt.Errorf("failed to decode transcript: %w", err)
		}
	}
	return t, nil
}
