package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/config"
	"github.com/washpoint/carwash/internal/dto"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/events"
	"github.com/washpoint/carwash/internal/model"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
)

// AuthService orchestrates registration, login, token refresh and logout
// on top of the focused lockout, rotation and verification services.
type AuthService struct {
	store        UserStore
	hasher       PasswordHasher
	jwt          *JWTService
	lockout      *LockoutService
	rotation     *RotationService
	verification *VerificationService
	cfg          config.AuthConfig
	bus          events.Publisher
}

func NewAuthService(
	store UserStore,
	hasher PasswordHasher,
	jwtService *JWTService,
	lockout *LockoutService,
	rotation *RotationService,
	verification *VerificationService,
	cfg config.AuthConfig,
	bus events.Publisher,
) *AuthService {
	return &AuthService{
		store:        store,
		hasher:       hasher,
		jwt:          jwtService,
		lockout:      lockout,
		rotation:     rotation,
		verification: verification,
		cfg:          cfg,
		bus:          bus,
	}
}

// Register creates a new account. A nil actor is public self-registration
// and always lands on the client role; privileged roles require an actor
// allowed to assign them.
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest, actor *model.User) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Register")

	role := model.RoleClient
	if req.Role != "" {
		parsed, err := model.ParseRole(req.Role)
		if err != nil {
			return nil, apperrors.ErrInvalidInput
		}
		role = parsed
	}
	if role != model.RoleClient {
		if actor == nil || !actor.Role.CanAssign(role) {
			logger.WarnWithContext(ctx, "Privileged role assignment rejected").
				String("requested_role", string(role)).
				Log()
			return nil, apperrors.NewForbiddenError(string(model.RoleAdmin))
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		logger.WarnWithContext(ctx, "Registration with existing email").
			String("email", email).
			Log()
		return nil, apperrors.ErrEmailExists
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	user := &model.User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hashed,
		Role:         role,
		IsActive:     true,
	}
	if err := user.Validate(); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, err)
	}

	if err := s.store.Create(ctx, user); err != nil {
		logger.ErrorWithContext(ctx, "Failed to create user").
			String("email", email).
			Err(err).
			Log()
		return nil, err
	}

	logger.InfoWithContext(ctx, "User registered").
		String("user_id", user.ID.String()).
		String("email", user.Email).
		String("role", string(user.Role)).
		Log()

	s.bus.Publish(ctx, events.UserRegistered{UserID: user.ID, Email: user.Email, Role: user.Role})

	if s.cfg.EmailVerificationEnabled {
		if err := s.verification.RequestEmailVerification(ctx, user.Email); err != nil {
			// Registration already succeeded; the user can ask for a
			// resend.
			logger.ErrorWithContext(ctx, "Failed to issue verification token").
				String("user_id", user.ID.String()).
				Err(err).
				Log()
		}
	}

	resp := dto.NewUserResponse(user)
	return &resp, nil
}

// Login verifies credentials and issues a token pair. Every failure path an
// attacker controls collapses into ErrInvalidCredentials; only a locked
// account answers differently, and only after the lock already existed.
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Login")

	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		// Burn comparable time so unknown emails don't answer faster
		// than wrong passwords.
		s.hasher.Verify(req.Password, dummyBcryptHash)
		logger.WarnWithContext(ctx, "Login with unknown email").Log()
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.lockout.CheckNotLocked(user); err != nil {
		logger.WarnWithContext(ctx, "Login attempt on locked account").
			String("user_id", user.ID.String()).
			Log()
		return nil, err
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		logger.LogAuth(user.ID.String(), "login", false)
		updated, ferr := s.lockout.RegisterFailure(ctx, user.ID)
		if ferr == nil && updated.IsLocked(time.Now()) {
			return nil, apperrors.NewAccountLockedError(*updated.LockedUntil)
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsActive {
		logger.WarnWithContext(ctx, "Login on deactivated account").
			String("user_id", user.ID.String()).
			Log()
		return nil, apperrors.ErrAccountInactive
	}
	if s.cfg.EmailVerificationEnabled && !user.EmailVerified {
		return nil, apperrors.ErrEmailNotVerified
	}

	user, err = s.lockout.RegisterSuccess(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.jwt.CreateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refreshToken, _, err := s.jwt.CreateRefreshToken(user.ID, "")
	if err != nil {
		return nil, err
	}

	if s.cfg.TokenRotationEnabled {
		if err := s.rotation.Store(ctx, user.ID, refreshToken); err != nil {
			return nil, err
		}
	}

	logger.LogAuth(user.ID.String(), "login", true)
	logger.InfoWithContext(ctx, "User logged in").
		String("user_id", user.ID.String()).
		String("email", user.Email).
		Log()

	s.bus.Publish(ctx, events.UserLoggedIn{UserID: user.ID, Email: user.Email})

	return &dto.LoginResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.jwt.AccessTTL().Seconds()),
		User:         dto.NewUserResponse(user),
	}, nil
}

// dummyBcryptHash is a valid hash of a random throwaway password, used to
// equalize timing on the unknown-email path.
const dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Refresh exchanges a refresh token for a new pair. With rotation enabled
// the presented token is consumed; otherwise a new access token is minted
// and the refresh token stays valid until it expires.
func (s *AuthService) Refresh(ctx context.Context, req *dto.RefreshTokenRequest) (*dto.RefreshTokenResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Refresh")

	if s.cfg.TokenRotationEnabled {
		pair, err := s.rotation.Rotate(ctx, req.RefreshToken)
		if err != nil {
			return nil, err
		}
		return &dto.RefreshTokenResponse{
			Token:        pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresIn:    pair.ExpiresIn,
		}, nil
	}

	claims, err := s.jwt.VerifyTokenOfType(req.RefreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, err := claims.SubjectID()
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidRefreshToken, err)
	}

	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInvalidRefreshToken
	}
	if !user.IsActive {
		return nil, apperrors.ErrAccountInactive
	}

	accessToken, err := s.jwt.CreateAccessToken(user)
	if err != nil {
		return nil, err
	}

	return &dto.RefreshTokenResponse{
		Token:        accessToken,
		RefreshToken: req.RefreshToken,
		ExpiresIn:    int(s.jwt.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes the presented session, or every session when AllDevices
// is set. Missing or already revoked tokens still log out cleanly.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, req *dto.LogoutRequest) error {
	ctx = ctxutil.WithOperation(ctx, "service", "Logout")

	if s.cfg.TokenRotationEnabled {
		var err error
		if req.AllDevices || req.RefreshToken == "" {
			err = s.rotation.RevokeAll(ctx, userID)
		} else {
			err = s.rotation.Revoke(ctx, userID, req.RefreshToken)
		}
		if err != nil {
			return err
		}
	}

	logger.InfoWithContext(ctx, "User logged out").
		String("user_id", userID.String()).
		Bool("all_devices", req.AllDevices).
		Log()

	s.bus.Publish(ctx, events.UserLoggedOut{UserID: userID, AllDevices: req.AllDevices})
	return nil
}

// CurrentUser resolves the authenticated subject to its public shape
func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "CurrentUser")

	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewUserResponse(user)
	return &resp, nil
}

// ChangePassword verifies the current password before installing the new
// one. The active sessions survive; only a reset flow revokes them.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, req *dto.ChangePasswordRequest) error {
	ctx = ctxutil.WithOperation(ctx, "service", "ChangePassword")

	if req.NewPassword != req.ConfirmPassword {
		return apperrors.ErrPasswordMismatch
	}

	newHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	var wrongPassword bool
	_, err = s.store.UpdateWithLock(ctx, userID, func(u *model.User) error {
		if !s.hasher.Verify(req.CurrentPassword, u.PasswordHash) {
			wrongPassword = true
			return nil
		}
		u.ChangePassword(newHash, time.Now())
		return nil
	})
	if err != nil {
		return err
	}
	if wrongPassword {
		logger.WarnWithContext(ctx, "Password change with wrong current password").
			String("user_id", userID.String()).
			Log()
		return apperrors.ErrIncorrectPassword
	}

	logger.InfoWithContext(ctx, "Password changed").
		String("user_id", userID.String()).
		Log()
	return nil
}
