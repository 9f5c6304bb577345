package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/model"
)

// Event is a domain event emitted by the auth core. Subscribers (mailers,
// audit sinks) react to events so the core stays decoupled from side effects.
type Event interface {
	Name() string
}

// Event names
const (
	EventUserRegistered             = "user.registered"
	EventUserLoggedIn               = "user.logged_in"
	EventUserLoggedOut              = "user.logged_out"
	EventUserAccountLocked          = "user.account_locked"
	EventEmailVerificationRequested = "user.email_verification_requested"
	EventEmailVerified              = "user.email_verified"
	EventPasswordResetRequested     = "user.password_reset_requested"
	EventPasswordResetCompleted     = "user.password_reset_completed"
	EventRefreshTokenReuseDetected  = "user.refresh_token_reuse_detected"
)

type UserRegistered struct {
	UserID uuid.UUID
	Email  string
	Role   model.Role
}

func (UserRegistered) Name() string { return EventUserRegistered }

type UserLoggedIn struct {
	UserID uuid.UUID
	Email  string
}

func (UserLoggedIn) Name() string { return EventUserLoggedIn }

type UserLoggedOut struct {
	UserID     uuid.UUID
	AllDevices bool
}

func (UserLoggedOut) Name() string { return EventUserLoggedOut }

type UserAccountLocked struct {
	UserID       uuid.UUID
	Email        string
	LockedUntil  time.Time
	LockoutCount int
}

func (UserAccountLocked) Name() string { return EventUserAccountLocked }

// EmailVerificationRequested carries the raw token so the mail subscriber can
// put it in the message body. Only the hash is ever persisted.
type EmailVerificationRequested struct {
	UserID    uuid.UUID
	Email     string
	FirstName string
	Token     string
	ExpiresAt time.Time
}

func (EmailVerificationRequested) Name() string { return EventEmailVerificationRequested }

type EmailVerified struct {
	UserID uuid.UUID
	Email  string
}

func (EmailVerified) Name() string { return EventEmailVerified }

type PasswordResetRequested struct {
	UserID    uuid.UUID
	Email     string
	FirstName string
	Token     string
	ExpiresAt time.Time
}

func (PasswordResetRequested) Name() string { return EventPasswordResetRequested }

type PasswordResetCompleted struct {
	UserID uuid.UUID
	Email  string
}

func (PasswordResetCompleted) Name() string { return EventPasswordResetCompleted }

type RefreshTokenReuseDetected struct {
	UserID        uuid.UUID
	FamilyID      string
	TokensRevoked int
}

func (RefreshTokenReuseDetected) Name() string { return EventRefreshTokenReuseDetected }
