package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/model"
)

// UserStore is the persistence surface the auth services depend on.
// *repository.UserRepository implements it; tests substitute an in-memory
// fake so the state machines run without a database.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	FindByVerificationTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error

	// UpdateWithLock runs fn against the user row under per-user
	// serialization (row lock or equivalent) and persists the mutated
	// aggregate. Concurrent calls for the same user never interleave.
	UpdateWithLock(ctx context.Context, id uuid.UUID, fn func(*model.User) error) (*model.User, error)
}
