package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"chat-backend/internal/models"
)

const transcriptsBucket = "transcripts"

// BoltTranscriptRepo stores each transcript as one JSON value keyed by user
// id. bbolt runs one write transaction at a time, which also covers the
// per-user append ordering.
type BoltTranscriptRepo struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBoltTranscriptRepo(path string) (*BoltTranscriptRepo, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bolt directory %s: %w", dir, err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(transcriptsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", transcriptsBucket, err)
	}

	return &BoltTranscriptRepo{db: db, now: time.Now}, nil
}

func (r *BoltTranscriptRepo) Close() error {
	return r.db.Close()
}

func (r *BoltTranscriptRepo) Load(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	var t *models.Transcript
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		t, err = getTranscript(tx.Bucket([]byte(transcriptsBucket)), userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *BoltTranscriptRepo) Append(ctx context.Context, userID uuid.UUID, turns []models.Turn) (*models.Transcript, error) {
	if err := validateTurns(turns); err != nil {
		return nil, err
	}

	return r.update(ctx, userID, func(t *models.Transcript) {
		t.Turns = append(t.Turns, turns...)
	})
}

func (r *BoltTranscriptRepo) Clear(ctx context.Context, userID uuid.UUID) (*models.Transcript, error) {
	return r.update(ctx, userID, func(t *models.Transcript) {
		t.Turns = []models.Turn{}
	})
}

func (r *BoltTranscriptRepo) update(ctx context.Context, userID uuid.UUID, mutate func(t *models.Transcript)) (*models.Transcript, error) {
	var out *models.Transcript
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		bucket := tx.Bucket([]byte(transcriptsBucket))
		t, err := getTranscript(bucket, userID)
		if err != nil {
			return err
		}

		mutate(t)
		t.Version++
		t.UpdatedAt = r.now()

		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode transcript: %w", err)
		}
		if err := bucket.Put([]byte(userID.String()), data); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getTranscript(bucket *bbolt.Bucket, userID uuid.UUID) (*models.Transcript, error) {
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s missing", transcriptsBucket)
	}

	value := bucket.Get([]byte(userID.String()))
	if value == nil {
		return models.EmptyTranscript(userID), nil
	}

	// value is only valid inside the transaction; Unmarshal copies it out.
	t := &models.Transcript{}
	if err := json.Unmarshal(value, t); err != nil {
		return nil, fmt.Errorf("failed to decode transcript for %s: %w", userID, err)
	}
	if t.Turns == nil {
		t.Turns = []models.Turn{}
	}
	return t, nil
}
