package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(testSecret, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Failed to create JWT service: %v", err)
	}
	return svc
}

func TestNewJWTService_SecretPolicy(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{name: "Valid secret", secret: testSecret},
		{name: "Too short", secret: "short", wantErr: true},
		{name: "Exactly 31 bytes", secret: strings.Repeat("a", 31), wantErr: true},
		{name: "Exactly 32 bytes", secret: strings.Repeat("a", 32)},
		{name: "Known weak default", secret: "default_secret_key_change_in_production", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJWTService(tt.secret, time.Minute, time.Hour)
			if tt.wantErr && err == nil {
				t.Error("Expected secret to be rejected")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestJWTService_AccessTokenRoundTrip(t *testing.T) {
	svc := newTestJWTService(t)
	user := &model.User{
		ID:    uuid.New(),
		Email: "alice@test.com",
		Role:  model.RoleManager,
	}

	token, err := svc.CreateAccessToken(user)
	if err != nil {
		t.Fatalf("Failed to create access token: %v", err)
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}

	if claims.Subject != user.ID.String() {
		t.Errorf("Expected sub %s, got %s", user.ID, claims.Subject)
	}
	if claims.Email != user.Email {
		t.Errorf("Expected email %s, got %s", user.Email, claims.Email)
	}
	if claims.Role != model.RoleManager {
		t.Errorf("Expected role manager, got %s", claims.Role)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("Expected type access, got %s", claims.TokenType)
	}
}

func TestJWTService_RefreshTokenFamily(t *testing.T) {
	svc := newTestJWTService(t)
	userID := uuid.New()

	// No family id: a fresh one is generated
	token1, claims1, err := svc.CreateRefreshToken(userID, "")
	if err != nil {
		t.Fatalf("Failed to create refresh token: %v", err)
	}
	if claims1.FamilyID == "" {
		t.Fatal("Expected a generated family id")
	}

	// Rotation reuses the family id
	_, claims2, err := svc.CreateRefreshToken(userID, claims1.FamilyID)
	if err != nil {
		t.Fatalf("Failed to create rotated refresh token: %v", err)
	}
	if claims2.FamilyID != claims1.FamilyID {
		t.Errorf("Expected family id preserved, got %s vs %s", claims2.FamilyID, claims1.FamilyID)
	}

	verified, err := svc.VerifyTokenOfType(token1, TokenTypeRefresh)
	if err != nil {
		t.Fatalf("Failed to verify refresh token: %v", err)
	}
	if verified.TokenType != TokenTypeRefresh {
		t.Errorf("Expected type refresh, got %s", verified.TokenType)
	}
}

func TestJWTService_RejectsWrongSecret(t *testing.T) {
	svc := newTestJWTService(t)
	other, err := NewJWTService(strings.Repeat("z", 40), time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create second service: %v", err)
	}

	token, err := svc.CreateAccessToken(&model.User{ID: uuid.New(), Email: "a@b.c", Role: model.RoleClient})
	if err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}

	if _, err := other.VerifyToken(token); err == nil {
		t.Error("Expected verification with a different secret to fail")
	}
}

func TestJWTService_RejectsExpiredToken(t *testing.T) {
	svc, err := NewJWTService(testSecret, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	token, err := svc.CreateAccessToken(&model.User{ID: uuid.New(), Email: "a@b.c", Role: model.RoleClient})
	if err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}

	if _, err := svc.VerifyToken(token); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestJWTService_RejectsWrongType(t *testing.T) {
	svc := newTestJWTService(t)
	refresh, _, err := svc.CreateRefreshToken(uuid.New(), "")
	if err != nil {
		t.Fatalf("Failed to create refresh token: %v", err)
	}

	if _, err := svc.VerifyTokenOfType(refresh, TokenTypeAccess); !errors.Is(err, apperrors.ErrWrongTokenType) {
		t.Errorf("Expected ErrWrongTokenType, got %v", err)
	}
}

func TestJWTService_RejectsMalformedToken(t *testing.T) {
	svc := newTestJWTService(t)
	for _, tok := range []string{"", "garbage", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.e30."} {
		if _, err := svc.VerifyToken(tok); err == nil {
			t.Errorf("Expected malformed token %q to be rejected", tok)
		}
	}
}
