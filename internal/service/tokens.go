package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/washpoint/carwash/config"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/events"
	"github.com/washpoint/carwash/internal/model"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
)

const secureTokenBytes = 32

// GenerateSecureToken returns a URL-safe random token with 256 bits of
// entropy. The raw value goes into the email; only its hash is stored.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, secureTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerificationService issues and redeems the email-verification and
// password-reset tokens. Request operations against unknown emails succeed
// silently so the endpoints cannot be used to probe which addresses exist.
type VerificationService struct {
	store  UserStore
	hasher PasswordHasher
	cfg    config.AuthConfig
	bus    events.Publisher
}

func NewVerificationService(store UserStore, hasher PasswordHasher, cfg config.AuthConfig, bus events.Publisher) *VerificationService {
	return &VerificationService{
		store:  store,
		hasher: hasher,
		cfg:    cfg,
		bus:    bus,
	}
}

// RequestEmailVerification issues a fresh verification token for the user,
// replacing any previous one. Re-issuing within the resend interval is
// rejected to keep the endpoint from becoming a mail cannon.
func (s *VerificationService) RequestEmailVerification(ctx context.Context, email string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "RequestEmailVerification")

	if !s.cfg.EmailVerificationEnabled {
		return nil
	}

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		// Uniform response: an unknown address looks exactly like a
		// successful request.
		logger.InfoWithContext(ctx, "Verification requested for unknown email").Log()
		return nil
	}

	if user.EmailVerified {
		return nil
	}

	token, err := GenerateSecureToken()
	if err != nil {
		return err
	}

	var throttled bool
	var expires time.Time

	_, err = s.store.UpdateWithLock(ctx, user.ID, func(u *model.User) error {
		now := time.Now()
		if issuedAt, ok := s.verificationIssuedAt(u); ok && now.Sub(issuedAt) < s.cfg.VerificationResendInterval {
			throttled = true
			return nil
		}
		expires = now.Add(s.cfg.EmailVerificationTTL)
		u.StartEmailVerification(HashToken(token), expires)
		return nil
	})
	if err != nil {
		return err
	}
	if throttled {
		return apperrors.ErrRateLimited
	}

	logger.InfoWithContext(ctx, "Email verification token issued").
		String("user_id", user.ID.String()).
		Time("expires_at", expires).
		Log()

	s.bus.Publish(ctx, events.EmailVerificationRequested{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		Token:     token,
		ExpiresAt: expires,
	})
	return nil
}

// verificationIssuedAt recovers the issue time from the stored expiry
func (s *VerificationService) verificationIssuedAt(u *model.User) (time.Time, bool) {
	if u.EmailVerificationTokenHash == "" || u.EmailVerificationExpires == nil {
		return time.Time{}, false
	}
	return u.EmailVerificationExpires.Add(-s.cfg.EmailVerificationTTL), true
}

// ConfirmEmail redeems a verification token. Tokens are single use: the
// stored hash is cleared on success.
func (s *VerificationService) ConfirmEmail(ctx context.Context, token string) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "ConfirmEmail")

	tokenHash := HashToken(token)
	user, err := s.store.FindByVerificationTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	var stale, expired bool
	user, err = s.store.UpdateWithLock(ctx, user.ID, func(u *model.User) error {
		now := time.Now()
		// The lookup ran outside the lock; a concurrent re-request may
		// have replaced the stored hash since, superseding this token.
		if u.EmailVerificationTokenHash != tokenHash {
			stale = true
			return nil
		}
		if u.EmailVerificationExpires == nil || now.After(*u.EmailVerificationExpires) {
			expired = true
			return nil
		}
		u.ConfirmEmailVerification(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, apperrors.ErrInvalidToken
	}
	if expired {
		return nil, apperrors.ErrTokenExpired
	}

	logger.InfoWithContext(ctx, "Email verified").
		String("user_id", user.ID.String()).
		Log()

	s.bus.Publish(ctx, events.EmailVerified{UserID: user.ID, Email: user.Email})
	return user, nil
}

// RequestPasswordReset issues a reset token for the account behind the
// email. Unknown addresses and throttled requests return nil just like a
// successful issue.
func (s *VerificationService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "RequestPasswordReset")

	if !s.cfg.PasswordResetEnabled {
		return nil
	}

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		logger.InfoWithContext(ctx, "Password reset requested for unknown email").Log()
		return nil
	}

	token, err := GenerateSecureToken()
	if err != nil {
		return err
	}

	var throttled bool
	var expires time.Time

	_, err = s.store.UpdateWithLock(ctx, user.ID, func(u *model.User) error {
		now := time.Now()
		if u.PasswordResetRequestedAt != nil && now.Sub(*u.PasswordResetRequestedAt) < s.cfg.ResetRequestInterval {
			throttled = true
			return nil
		}
		expires = now.Add(s.cfg.PasswordResetTTL)
		u.StartPasswordReset(HashToken(token), expires, now)
		return nil
	})
	if err != nil {
		return err
	}
	if throttled {
		// Still indistinguishable from success on the wire; the caller
		// maps this to the same generic response.
		logger.WarnWithContext(ctx, "Password reset request throttled").
			String("user_id", user.ID.String()).
			Log()
		return nil
	}

	logger.InfoWithContext(ctx, "Password reset token issued").
		String("user_id", user.ID.String()).
		Time("expires_at", expires).
		Log()

	s.bus.Publish(ctx, events.PasswordResetRequested{
		UserID:    user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		Token:     token,
		ExpiresAt: expires,
	})
	return nil
}

// ResetPassword redeems a reset token and installs the new password. Every
// refresh token is revoked so stolen sessions die with the old credential.
func (s *VerificationService) ResetPassword(ctx context.Context, token, newPassword string) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "ResetPassword")

	tokenHash := HashToken(token)
	user, err := s.store.FindByResetTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	var stale, expired bool
	user, err = s.store.UpdateWithLock(ctx, user.ID, func(u *model.User) error {
		now := time.Now()
		// Same staleness guard as ConfirmEmail: only the hash currently
		// on the row may redeem.
		if u.PasswordResetTokenHash != tokenHash {
			stale = true
			return nil
		}
		if u.PasswordResetExpires == nil || now.After(*u.PasswordResetExpires) {
			expired = true
			return nil
		}
		u.CompletePasswordReset(newHash, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, apperrors.ErrInvalidToken
	}
	if expired {
		return nil, apperrors.ErrTokenExpired
	}

	logger.InfoWithContext(ctx, "Password reset completed, sessions revoked").
		String("user_id", user.ID.String()).
		Log()

	s.bus.Publish(ctx, events.PasswordResetCompleted{UserID: user.ID, Email: user.Email})
	return user, nil
}
