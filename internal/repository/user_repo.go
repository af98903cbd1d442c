package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"chat-backend/internal/models"
)

// UserRepo reads the users table owned by the registration service.
type UserRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	owner := &models.Owner{}
	query := `SELECT id, email, created_at FROM users WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(&owner.ID, &owner.Email, &owner.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrOwnerNotFound
		}
		return nil, err
	}
	return owner, nil
}

// ClaimsOwnerDirectory is used when there is no users table to consult: the
// verified token identity is taken as its own owner.
type ClaimsOwnerDirectory struct{}

func (ClaimsOwnerDirectory) GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	if id == uuid.Nil {
		return nil, models.ErrOwnerNotFound
	}
	return &models.Owner{ID: id}, nil
}
