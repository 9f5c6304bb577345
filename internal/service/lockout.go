package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/config"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/events"
	"github.com/washpoint/carwash/internal/model"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
	"go.uber.org/zap"
)

// LockoutService drives the per-user lockout state machine. All mutations
// happen inside UpdateWithLock so two rapid failed logins against the same
// user cannot lose an increment.
type LockoutService struct {
	store UserStore
	cfg   config.AuthConfig
	bus   events.Publisher
}

func NewLockoutService(store UserStore, cfg config.AuthConfig, bus events.Publisher) *LockoutService {
	return &LockoutService{
		store: store,
		cfg:   cfg,
		bus:   bus,
	}
}

// BackoffFor computes the lockout window for the nth lockout:
// min(initial * multiplier^n, max). Non-decreasing in n and capped.
func (s *LockoutService) BackoffFor(lockoutCount int) time.Duration {
	window := s.cfg.InitialLockout
	for i := 0; i < lockoutCount; i++ {
		window *= time.Duration(s.cfg.LockoutMultiplier)
		if window >= s.cfg.MaxLockout {
			return s.cfg.MaxLockout
		}
	}
	if window > s.cfg.MaxLockout {
		return s.cfg.MaxLockout
	}
	return window
}

// RegisterFailure records one failed password verification and locks the
// account once the threshold is reached.
func (s *LockoutService) RegisterFailure(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "RegisterFailure")

	if !s.cfg.AccountLockoutEnabled {
		return s.store.GetByID(ctx, userID)
	}

	var lockedEvent *events.UserAccountLocked

	user, err := s.store.UpdateWithLock(ctx, userID, func(u *model.User) error {
		now := time.Now()
		u.RegisterFailedLogin(now)

		if u.FailedLoginAttempts >= s.cfg.MaxLoginAttempts {
			until := now.Add(s.BackoffFor(u.LockoutCount))
			u.Lock(until)
			u.FailedLoginAttempts = 0
			lockedEvent = &events.UserAccountLocked{
				UserID:       u.ID,
				Email:        u.Email,
				LockedUntil:  until,
				LockoutCount: u.LockoutCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if lockedEvent != nil {
		logger.LogAuth(user.ID.String(), "account_locked", false,
			zap.Time("locked_until", lockedEvent.LockedUntil))
		logger.WarnWithContext(ctx, "Account locked after repeated failed logins").
			String("user_id", user.ID.String()).
			Time("locked_until", lockedEvent.LockedUntil).
			Int("lockout_count", lockedEvent.LockoutCount).
			Log()
		s.bus.Publish(ctx, *lockedEvent)
	} else {
		logger.WarnWithContext(ctx, "Failed login attempt recorded").
			String("user_id", user.ID.String()).
			Int("failed_attempts", user.FailedLoginAttempts).
			Int("remaining_attempts", s.RemainingAttempts(user)).
			Log()
	}

	return user, nil
}

// RegisterSuccess resets the failure counter after a successful login.
// The lockout count survives so later lockouts keep backing off further.
func (s *LockoutService) RegisterSuccess(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "RegisterSuccess")

	return s.store.UpdateWithLock(ctx, userID, func(u *model.User) error {
		u.RecordSuccessfulLogin(time.Now())
		return nil
	})
}

// CheckNotLocked short-circuits login while a lock window is active. No
// counters are mutated on a locked attempt.
func (s *LockoutService) CheckNotLocked(user *model.User) error {
	if !s.cfg.AccountLockoutEnabled {
		return nil
	}
	if user.IsLocked(time.Now()) {
		return apperrors.NewAccountLockedError(*user.LockedUntil)
	}
	return nil
}

// RemainingAttempts reports how many attempts are left before lockout
func (s *LockoutService) RemainingAttempts(user *model.User) int {
	remaining := s.cfg.MaxLoginAttempts - user.FailedLoginAttempts
	if remaining < 0 || user.IsLocked(time.Now()) {
		return 0
	}
	return remaining
}

// Unlock is the admin action: clears counters, lock window and history
func (s *LockoutService) Unlock(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Unlock")

	user, err := s.store.UpdateWithLock(ctx, userID, func(u *model.User) error {
		u.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithContext(ctx, "Account manually unlocked").
		String("user_id", user.ID.String()).
		Log()

	return user, nil
}
