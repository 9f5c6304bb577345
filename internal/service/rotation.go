package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/config"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/events"
	"github.com/washpoint/carwash/internal/model"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
)

// TokenPair is the result of a login or rotation
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // access token lifetime in seconds
}

// RotationService manages refresh-token families: rotate on use, detect
// reuse, revoke whole families. A stolen refresh token is usable at most
// once before either the legitimate client's next rotation fails loudly or
// the attacker's use burns the family, forcing a fresh login for everyone.
type RotationService struct {
	store UserStore
	jwt   *JWTService
	cfg   config.AuthConfig
	bus   events.Publisher
}

func NewRotationService(store UserStore, jwtService *JWTService, cfg config.AuthConfig, bus events.Publisher) *RotationService {
	return &RotationService{
		store: store,
		jwt:   jwtService,
		cfg:   cfg,
		bus:   bus,
	}
}

// HashToken derives the storage key for a refresh token. Raw tokens are
// never persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Store records a freshly issued refresh token on the user row. Expired
// records are pruned and the oldest record is evicted once the list holds
// the configured maximum.
func (s *RotationService) Store(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "Store")

	claims, err := s.jwt.VerifyTokenOfType(refreshToken, TokenTypeRefresh)
	if err != nil {
		return err
	}

	_, err = s.store.UpdateWithLock(ctx, userID, func(u *model.User) error {
		now := time.Now()
		u.AddRefreshToken(model.RefreshTokenRecord{
			TokenHash: HashToken(refreshToken),
			FamilyID:  claims.FamilyID,
			CreatedAt: now,
			ExpiresAt: claims.ExpiresAt.Time,
			LastUsed:  now,
		}, s.cfg.MaxRefreshTokensPerUser, now)
		return nil
	})
	return err
}

// Rotate exchanges a valid refresh token for a new access+refresh pair in
// the same family. A token that verifies but has no live record is a reuse
// signal: the whole family is revoked and the call fails. Running inside
// UpdateWithLock guarantees that of two concurrent rotations of the same
// token exactly one succeeds.
func (s *RotationService) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Rotate")

	claims, err := s.jwt.VerifyTokenOfType(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	userID, err := claims.SubjectID()
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidRefreshToken, err)
	}

	tokenHash := HashToken(refreshToken)

	var (
		pair        *TokenPair
		reuseEvent  *events.RefreshTokenReuseDetected
		rotationErr error
	)

	_, err = s.store.UpdateWithLock(ctx, userID, func(u *model.User) error {
		now := time.Now()

		if _, found := u.FindRefreshToken(tokenHash, claims.FamilyID, now); !found {
			// Token not in store, already used, or family mismatch:
			// treat as theft and burn the family.
			revoked := u.RevokeTokenFamily(claims.FamilyID)
			reuseEvent = &events.RefreshTokenReuseDetected{
				UserID:        u.ID,
				FamilyID:      claims.FamilyID,
				TokensRevoked: revoked,
			}
			rotationErr = apperrors.WrapError(apperrors.ErrInvalidRefreshToken, apperrors.ErrTokenReuseDetected)
			return nil
		}

		// Single use: the presented token is consumed before the
		// replacement is issued.
		u.RemoveRefreshToken(tokenHash)

		accessToken, err := s.jwt.CreateAccessToken(u)
		if err != nil {
			return err
		}

		newRefresh, newClaims, err := s.jwt.CreateRefreshToken(u.ID, claims.FamilyID)
		if err != nil {
			return err
		}

		u.AddRefreshToken(model.RefreshTokenRecord{
			TokenHash: HashToken(newRefresh),
			FamilyID:  newClaims.FamilyID,
			CreatedAt: now,
			ExpiresAt: newClaims.ExpiresAt.Time,
			LastUsed:  now,
		}, s.cfg.MaxRefreshTokensPerUser, now)

		pair = &TokenPair{
			AccessToken:  accessToken,
			RefreshToken: newRefresh,
			ExpiresIn:    int(s.jwt.AccessTTL().Seconds()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reuseEvent != nil {
		logger.WarnWithContext(ctx, "Refresh token reuse detected, family revoked").
			String("user_id", userID.String()).
			String("family_id", reuseEvent.FamilyID).
			Int("tokens_revoked", reuseEvent.TokensRevoked).
			Log()
		s.bus.Publish(ctx, *reuseEvent)
		return nil, rotationErr
	}

	logger.DebugWithContext(ctx, "Refresh token rotated").
		String("user_id", userID.String()).
		String("family_id", claims.FamilyID).
		Log()

	return pair, nil
}

// Revoke removes the single record matching the presented token
func (s *RotationService) Revoke(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "Revoke")

	tokenHash := HashToken(refreshToken)
	_, err := s.store.UpdateWithLock(ctx, userID, func(u *model.User) error {
		u.RemoveRefreshToken(tokenHash)
		return nil
	})
	return err
}

// RevokeAll clears the user's entire refresh-token list (logout everywhere)
func (s *RotationService) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	ctx = ctxutil.WithOperation(ctx, "service", "RevokeAll")

	_, err := s.store.UpdateWithLock(ctx, userID, func(u *model.User) error {
		u.ClearRefreshTokens()
		return nil
	})
	return err
}
