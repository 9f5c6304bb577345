package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/model"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository persists the credential aggregate. Reads by ID go through
// the cache; every write invalidates it before returning.
type UserRepository struct {
	db    *gorm.DB
	cache *UserCache
}

func NewUserRepository(db *gorm.DB, cache *UserCache) *UserRepository {
	return &UserRepository{db: db, cache: cache}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "GetByID")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if user, found := r.cache.Get(ctx, id); found {
		logger.DebugWithContext(ctx, "User cache hit").
			String("user_id", id.String()).
			Log()
		return user, nil
	}

	start := time.Now()
	var user model.User
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to get user by ID").
			String("user_id", id.String()).
			Duration(time.Since(start)).
			Err(result.Error).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, result.Error)
	}

	r.cache.Set(ctx, &user)
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "GetByEmail")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	result := r.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to get user by email").
			Err(result.Error).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, result.Error)
	}

	return &user, nil
}

func (r *UserRepository) FindByVerificationTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	return r.findByColumn(ctx, "FindByVerificationTokenHash", "email_verification_token_hash", tokenHash)
}

func (r *UserRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	return r.findByColumn(ctx, "FindByResetTokenHash", "password_reset_token_hash", tokenHash)
}

func (r *UserRepository) findByColumn(ctx context.Context, fn, column, value string) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", fn)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if value == "" {
		return nil, apperrors.ErrUserNotFound
	}

	var user model.User
	result := r.db.WithContext(ctx).Where(column+" = ?", value).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to find user by token hash").
			Err(result.Error).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, result.Error)
	}

	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "Create")

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.ErrEmailExists
		}
		logger.ErrorWithContext(ctx, "Failed to create user").
			String("email", user.Email).
			Duration(time.Since(start)).
			Err(err).
			Log()
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.DebugWithContext(ctx, "User created").
		String("user_id", user.ID.String()).
		Duration(time.Since(start)).
		Log()
	return nil
}

// UpdateWithLock loads the row FOR UPDATE inside a transaction, applies fn
// and saves the mutated aggregate. The row lock serializes every mutation
// for a given user, so concurrent rotations, failed logins and resets never
// interleave.
func (r *UserRepository) UpdateWithLock(ctx context.Context, id uuid.UUID, fn func(*model.User) error) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "UpdateWithLock")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *model.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrUserNotFound
			}
			return apperrors.WrapError(apperrors.ErrInternal, err)
		}

		if err := fn(&user); err != nil {
			return err
		}

		if err := tx.Save(&user).Error; err != nil {
			return apperrors.WrapError(apperrors.ErrInternal, err)
		}
		out = &user
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.cache.Invalidate(ctx, id)
	return out, nil
}

// GetAll returns a filtered page of users plus the total match count
func (r *UserRepository) GetAll(ctx context.Context, limit, offset int, search, role string) ([]model.User, int64, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "GetAll")

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).Model(&model.User{})

	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where(
			"first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR phone ILIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}
	if role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		logger.ErrorWithContext(ctx, "Failed to count users").
			Err(err).
			Log()
		return nil, 0, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	var users []model.User
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		logger.ErrorWithContext(ctx, "Failed to fetch users").
			Int("limit", limit).
			Int("offset", offset).
			Err(err).
			Log()
		return nil, 0, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return users, total, nil
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "Delete")

	if err := ctx.Err(); err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to delete user").
			String("user_id", id.String()).
			Err(result.Error).
			Log()
		return apperrors.WrapError(apperrors.ErrInternal, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}

	r.cache.Invalidate(ctx, id)

	logger.InfoWithContext(ctx, "User deleted").
		String("user_id", id.String()).
		Log()
	return nil
}
