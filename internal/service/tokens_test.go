package service

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/events"
	"github.com/washpoint/carwash/internal/model"
)

func newVerificationFixture(t *testing.T, users ...*model.User) (*VerificationService, *fakeUserStore, *capturingPublisher) {
	t.Helper()
	store := newFakeUserStore(users...)
	bus := &capturingPublisher{}
	return NewVerificationService(store, NewBcryptHasher(), testAuthConfig(), bus), store, bus
}

func TestGenerateSecureToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		token, err := GenerateSecureToken()
		if err != nil {
			t.Fatalf("GenerateSecureToken returned error: %v", err)
		}
		if len(token) != 43 { // 32 bytes, base64url without padding
			t.Errorf("Expected 43-char token, got %d chars", len(token))
		}
		if seen[token] {
			t.Fatal("Expected unique tokens, got a duplicate")
		}
		seen[token] = true
	}
}

func TestRequestEmailVerification(t *testing.T) {
	user := activeUser("verify@example.com")
	user.EmailVerified = false
	svc, store, bus := newVerificationFixture(t, user)

	if err := svc.RequestEmailVerification(context.Background(), user.Email); err != nil {
		t.Fatalf("RequestEmailVerification returned error: %v", err)
	}

	issued := bus.byName(events.EventEmailVerificationRequested)
	if len(issued) != 1 {
		t.Fatalf("Expected 1 verification event, got %d", len(issued))
	}
	ev := issued[0].(events.EmailVerificationRequested)
	if ev.Token == "" {
		t.Fatal("Expected raw token in event")
	}

	stored := store.get(user.ID)
	if stored.EmailVerificationTokenHash == ev.Token {
		t.Error("Expected hashed token at rest, found raw token")
	}
	if stored.EmailVerificationTokenHash != HashToken(ev.Token) {
		t.Error("Expected stored hash to match SHA-256 of the token")
	}

	wantExpiry := time.Now().Add(24 * time.Hour)
	if stored.EmailVerificationExpires == nil ||
		stored.EmailVerificationExpires.Before(wantExpiry.Add(-time.Minute)) ||
		stored.EmailVerificationExpires.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("Expected 24h expiry, got %v", stored.EmailVerificationExpires)
	}
}

func TestRequestEmailVerificationUnknownEmailSilent(t *testing.T) {
	svc, _, bus := newVerificationFixture(t)

	if err := svc.RequestEmailVerification(context.Background(), "ghost@example.com"); err != nil {
		t.Errorf("Expected uniform success for unknown email, got %v", err)
	}
	if len(bus.byName(events.EventEmailVerificationRequested)) != 0 {
		t.Error("Expected no event for unknown email")
	}
}

func TestRequestEmailVerificationAlreadyVerified(t *testing.T) {
	user := activeUser("done@example.com")
	svc, _, bus := newVerificationFixture(t, user)

	if err := svc.RequestEmailVerification(context.Background(), user.Email); err != nil {
		t.Errorf("Expected no-op for verified account, got %v", err)
	}
	if len(bus.byName(events.EventEmailVerificationRequested)) != 0 {
		t.Error("Expected no event for verified account")
	}
}

func TestRequestEmailVerificationThrottled(t *testing.T) {
	user := activeUser("resend@example.com")
	user.EmailVerified = false
	svc, _, _ := newVerificationFixture(t, user)
	ctx := context.Background()

	if err := svc.RequestEmailVerification(ctx, user.Email); err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if err := svc.RequestEmailVerification(ctx, user.Email); !errors.Is(err, apperrors.ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited inside resend interval, got %v", err)
	}
}

func TestConfirmEmail(t *testing.T) {
	user := activeUser("confirm@example.com")
	user.EmailVerified = false
	svc, store, bus := newVerificationFixture(t, user)
	ctx := context.Background()

	if err := svc.RequestEmailVerification(ctx, user.Email); err != nil {
		t.Fatalf("RequestEmailVerification returned error: %v", err)
	}
	token := bus.byName(events.EventEmailVerificationRequested)[0].(events.EmailVerificationRequested).Token

	confirmed, err := svc.ConfirmEmail(ctx, token)
	if err != nil {
		t.Fatalf("ConfirmEmail returned error: %v", err)
	}
	if !confirmed.EmailVerified || confirmed.EmailVerifiedAt == nil {
		t.Error("Expected email marked verified with timestamp")
	}
	if store.get(user.ID).EmailVerificationTokenHash != "" {
		t.Error("Expected token hash cleared after use")
	}
	if len(bus.byName(events.EventEmailVerified)) != 1 {
		t.Error("Expected email-verified event")
	}

	// Single use: the same token cannot be redeemed twice.
	if _, err := svc.ConfirmEmail(ctx, token); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken on second redemption, got %v", err)
	}
}

func TestConfirmEmailBadTokens(t *testing.T) {
	user := activeUser("expired@example.com")
	user.EmailVerified = false
	past := time.Now().Add(-time.Hour)
	user.EmailVerificationTokenHash = HashToken("stale-token")
	user.EmailVerificationExpires = &past

	svc, _, _ := newVerificationFixture(t, user)
	ctx := context.Background()

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"unknown token", "no-such-token", apperrors.ErrInvalidToken},
		{"expired token", "stale-token", apperrors.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ConfirmEmail(ctx, tt.token); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRequestPasswordReset(t *testing.T) {
	user := activeUser("forgot@example.com")
	svc, store, bus := newVerificationFixture(t, user)

	if err := svc.RequestPasswordReset(context.Background(), user.Email); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}

	issued := bus.byName(events.EventPasswordResetRequested)
	if len(issued) != 1 {
		t.Fatalf("Expected 1 reset event, got %d", len(issued))
	}
	ev := issued[0].(events.PasswordResetRequested)

	stored := store.get(user.ID)
	if stored.PasswordResetTokenHash != HashToken(ev.Token) {
		t.Error("Expected stored hash to match SHA-256 of the token")
	}
	if stored.PasswordResetRequestedAt == nil {
		t.Error("Expected request timestamp recorded")
	}

	wantExpiry := time.Now().Add(2 * time.Hour)
	if stored.PasswordResetExpires == nil ||
		stored.PasswordResetExpires.Before(wantExpiry.Add(-time.Minute)) ||
		stored.PasswordResetExpires.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("Expected 2h expiry, got %v", stored.PasswordResetExpires)
	}
}

func TestRequestPasswordResetUniformResponses(t *testing.T) {
	user := activeUser("quiet@example.com")
	recent := time.Now().Add(-time.Minute)
	user.PasswordResetRequestedAt = &recent

	svc, _, bus := newVerificationFixture(t, user)
	ctx := context.Background()

	// Unknown email and throttled request both look like success.
	if err := svc.RequestPasswordReset(ctx, "ghost@example.com"); err != nil {
		t.Errorf("Expected uniform success for unknown email, got %v", err)
	}
	if err := svc.RequestPasswordReset(ctx, user.Email); err != nil {
		t.Errorf("Expected uniform success when throttled, got %v", err)
	}
	if len(bus.byName(events.EventPasswordResetRequested)) != 0 {
		t.Error("Expected no reset events issued")
	}
}

func TestResetPassword(t *testing.T) {
	user := activeUser("reset@example.com")
	hasher := NewBcryptHasher()
	oldHash, err := hasher.Hash("old-password-1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	user.PasswordHash = oldHash

	svc, store, bus := newVerificationFixture(t, user)
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, user.Email); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}
	token := bus.byName(events.EventPasswordResetRequested)[0].(events.PasswordResetRequested).Token

	// Seed a live session to prove reset revokes it.
	stored := store.get(user.ID)
	stored.AddRefreshToken(model.RefreshTokenRecord{
		TokenHash: HashToken("session"),
		FamilyID:  "family-1",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}, 5, time.Now())

	updated, err := svc.ResetPassword(ctx, token, "new-password-1")
	if err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}
	if !hasher.Verify("new-password-1", updated.PasswordHash) {
		t.Error("Expected new password installed")
	}
	if hasher.Verify("old-password-1", updated.PasswordHash) {
		t.Error("Expected old password rejected")
	}
	if len(updated.TokenList()) != 0 {
		t.Error("Expected all refresh tokens revoked on reset")
	}
	if updated.PasswordResetTokenHash != "" {
		t.Error("Expected reset token cleared after use")
	}
	if len(bus.byName(events.EventPasswordResetCompleted)) != 1 {
		t.Error("Expected reset-completed event")
	}

	// Single use.
	if _, err := svc.ResetPassword(ctx, token, "another-password"); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken on second redemption, got %v", err)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	user := activeUser("late@example.com")
	past := time.Now().Add(-time.Minute)
	requested := time.Now().Add(-3 * time.Hour)
	user.PasswordResetTokenHash = HashToken("stale-reset")
	user.PasswordResetExpires = &past
	user.PasswordResetRequestedAt = &requested

	svc, _, _ := newVerificationFixture(t, user)

	if _, err := svc.ResetPassword(context.Background(), "stale-reset", "new-password-1"); !errors.Is(err, apperrors.ErrTokenExpired) {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

// supersedingStore swaps the stored token hash right after a lookup,
// modelling a second issue request landing between the lookup and the
// row lock.
type supersedingStore struct {
	*fakeUserStore
	replacementHash string
}

func (s *supersedingStore) FindByVerificationTokenHash(ctx context.Context, hash string) (*model.User, error) {
	u, err := s.fakeUserStore.FindByVerificationTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.get(u.ID).EmailVerificationTokenHash = s.replacementHash
	return u, nil
}

func (s *supersedingStore) FindByResetTokenHash(ctx context.Context, hash string) (*model.User, error) {
	u, err := s.fakeUserStore.FindByResetTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.get(u.ID).PasswordResetTokenHash = s.replacementHash
	return u, nil
}

func TestConfirmEmailSupersededTokenRejected(t *testing.T) {
	user := activeUser("superseded-verify@example.com")
	user.EmailVerified = false
	store := &supersedingStore{
		fakeUserStore:   newFakeUserStore(user),
		replacementHash: HashToken("replacement-token"),
	}
	bus := &capturingPublisher{}
	svc := NewVerificationService(store, NewBcryptHasher(), testAuthConfig(), bus)
	ctx := context.Background()

	if err := svc.RequestEmailVerification(ctx, user.Email); err != nil {
		t.Fatalf("RequestEmailVerification returned error: %v", err)
	}
	token := bus.byName(events.EventEmailVerificationRequested)[0].(events.EmailVerificationRequested).Token

	if _, err := svc.ConfirmEmail(ctx, token); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for superseded token, got %v", err)
	}
	if store.get(user.ID).EmailVerified {
		t.Error("Expected email to stay unverified after superseded redemption")
	}
	if len(bus.byName(events.EventEmailVerified)) != 0 {
		t.Error("Expected no verified event for superseded token")
	}
}

func TestResetPasswordSupersededTokenRejected(t *testing.T) {
	user := activeUser("superseded-reset@example.com")
	originalHash := user.PasswordHash
	store := &supersedingStore{
		fakeUserStore:   newFakeUserStore(user),
		replacementHash: HashToken("replacement-token"),
	}
	bus := &capturingPublisher{}
	svc := NewVerificationService(store, NewBcryptHasher(), testAuthConfig(), bus)
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, user.Email); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}
	token := bus.byName(events.EventPasswordResetRequested)[0].(events.PasswordResetRequested).Token

	if _, err := svc.ResetPassword(ctx, token, "new-password-1"); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for superseded token, got %v", err)
	}
	if store.get(user.ID).PasswordHash != originalHash {
		t.Error("Expected password hash unchanged after superseded redemption")
	}
	if len(bus.byName(events.EventPasswordResetCompleted)) != 0 {
		t.Error("Expected no reset-completed event for superseded token")
	}
}
