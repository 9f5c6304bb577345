package service

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/dto"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/model"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
)

// UserAdminStore extends the auth store with the listing and deletion the
// management endpoints need
type UserAdminStore interface {
	UserStore
	GetAll(ctx context.Context, limit, offset int, search, role string) ([]model.User, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserService backs the staff-facing user management endpoints. Every
// operation takes the acting user so the role hierarchy is enforced at the
// service boundary, not just in middleware.
type UserService struct {
	store   UserAdminStore
	lockout *LockoutService
}

func NewUserService(store UserAdminStore, lockout *LockoutService) *UserService {
	return &UserService{store: store, lockout: lockout}
}

func (s *UserService) GetByID(ctx context.Context, actor *model.User, id uuid.UUID) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "GetByID")

	target, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageUser(target) {
		return nil, apperrors.NewForbiddenError(string(model.RoleManager))
	}

	resp := dto.NewUserResponse(target)
	return &resp, nil
}

func (s *UserService) GetAll(ctx context.Context, actor *model.User, limit, offset int, search, role string) ([]dto.UserResponse, int64, int, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "GetAll")

	if !actor.HasRole(model.RoleAdmin) && !actor.HasRole(model.RoleManager) {
		return nil, 0, 0, apperrors.NewForbiddenError(string(model.RoleManager))
	}

	users, total, err := s.store.GetAll(ctx, limit, offset, search, role)
	if err != nil {
		return nil, 0, 0, err
	}

	res := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		// Managers only see the accounts they can act on.
		if !actor.CanManageUser(&users[i]) {
			continue
		}
		res = append(res, dto.NewUserResponse(&users[i]))
	}

	pageTotal := 0
	if limit > 0 {
		pageTotal = int(math.Ceil(float64(total) / float64(limit)))
	}
	return res, total, pageTotal, nil
}

// Update edits profile fields on a managed account
func (s *UserService) Update(ctx context.Context, actor *model.User, id uuid.UUID, req *dto.UpdateUserRequest) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Update")

	target, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageUser(target) {
		return nil, apperrors.NewForbiddenError(string(model.RoleManager))
	}

	updated, err := s.store.UpdateWithLock(ctx, id, func(u *model.User) error {
		if req.FirstName != "" {
			u.FirstName = strings.TrimSpace(req.FirstName)
		}
		if req.LastName != "" {
			u.LastName = strings.TrimSpace(req.LastName)
		}
		if req.Phone != "" {
			u.Phone = strings.TrimSpace(req.Phone)
		}
		return u.Validate()
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithContext(ctx, "User updated").
		String("user_id", id.String()).
		String("actor_id", actor.ID.String()).
		Log()

	resp := dto.NewUserResponse(updated)
	return &resp, nil
}

// UpdateRole changes the target's role within the actor's assignment rights
func (s *UserService) UpdateRole(ctx context.Context, actor *model.User, id uuid.UUID, req *dto.UpdateUserRoleRequest) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "UpdateRole")

	newRole, err := model.ParseRole(req.Role)
	if err != nil {
		return nil, apperrors.ErrInvalidInput
	}

	target, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// The actor must be able to manage the account as it is now and to
	// assign the role it is getting.
	if !actor.CanManageUser(target) || actor.ID == target.ID || !actor.Role.CanAssign(newRole) {
		return nil, apperrors.NewForbiddenError(string(model.RoleAdmin))
	}

	updated, err := s.store.UpdateWithLock(ctx, id, func(u *model.User) error {
		u.Role = newRole
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithContext(ctx, "User role changed").
		String("user_id", id.String()).
		String("actor_id", actor.ID.String()).
		String("new_role", string(newRole)).
		Log()

	resp := dto.NewUserResponse(updated)
	return &resp, nil
}

// SetActive activates or deactivates a managed account. Deactivation also
// revokes every live session.
func (s *UserService) SetActive(ctx context.Context, actor *model.User, id uuid.UUID, active bool) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "SetActive")

	target, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageUser(target) || actor.ID == target.ID {
		return nil, apperrors.NewForbiddenError(string(model.RoleManager))
	}

	updated, err := s.store.UpdateWithLock(ctx, id, func(u *model.User) error {
		u.IsActive = active
		if !active {
			u.ClearRefreshTokens()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithContext(ctx, "User active flag changed").
		String("user_id", id.String()).
		String("actor_id", actor.ID.String()).
		Bool("active", active).
		Log()

	resp := dto.NewUserResponse(updated)
	return &resp, nil
}

// Unlock clears a lockout on a managed account
func (s *UserService) Unlock(ctx context.Context, actor *model.User, id uuid.UUID) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Unlock")

	target, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManageUser(target) {
		return nil, apperrors.NewForbiddenError(string(model.RoleManager))
	}

	unlocked, err := s.lockout.Unlock(ctx, id)
	if err != nil {
		return nil, err
	}

	resp := dto.NewUserResponse(unlocked)
	return &resp, nil
}

// Delete removes an account. Self-deletion is always rejected, even for
// admins.
func (s *UserService) Delete(ctx context.Context, actor *model.User, id uuid.UUID) error {
	ctx = ctxutil.WithOperation(ctx, "service", "Delete")

	if actor.ID == id {
		return apperrors.ErrSelfDeletion
	}

	target, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManageUser(target) {
		return apperrors.NewForbiddenError(string(model.RoleManager))
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	logger.InfoWithContext(ctx, "User account deleted").
		String("user_id", id.String()).
		String("actor_id", actor.ID.String()).
		Log()
	return nil
}
