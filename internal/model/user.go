package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/constants"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	emailRegex = regexp.MustCompile(constants.EmailPattern)
	phoneRegex = regexp.MustCompile(constants.PhonePattern)
)

// RefreshTokenRecord is the stored metadata of one live refresh token. It is
// owned exclusively by its User and never holds the raw token, only its hash.
type RefreshTokenRecord struct {
	TokenHash string    `json:"token_hash"`
	FamilyID  string    `json:"family_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	LastUsed  time.Time `json:"last_used"`
}

// User is the credential aggregate. All auth state transitions (lockout,
// verification, reset, refresh-token bookkeeping) are methods on this struct
// so the state machine is testable without a database; the repository is
// responsible for the actual write.
type User struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email        string    `gorm:"column:email;size:255;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	FirstName    string    `gorm:"column:first_name;size:100;not null"`
	LastName     string    `gorm:"column:last_name;size:100;not null"`
	Phone        string    `gorm:"column:phone;size:20"`
	Role         Role      `gorm:"column:role;type:varchar(20);not null;default:'client'"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`

	EmailVerified              bool       `gorm:"column:email_verified;not null;default:false"`
	EmailVerificationTokenHash string     `gorm:"column:email_verification_token_hash;index:idx_users_verification_token,where:email_verification_token_hash <> ''"`
	EmailVerificationExpires   *time.Time `gorm:"column:email_verification_expires"`
	EmailVerifiedAt            *time.Time `gorm:"column:email_verified_at"`

	PasswordResetTokenHash   string     `gorm:"column:password_reset_token_hash;index:idx_users_reset_token,where:password_reset_token_hash <> ''"`
	PasswordResetExpires     *time.Time `gorm:"column:password_reset_expires"`
	PasswordResetRequestedAt *time.Time `gorm:"column:password_reset_requested_at"`
	PasswordChangedAt        *time.Time `gorm:"column:password_changed_at"`

	FailedLoginAttempts int        `gorm:"column:failed_login_attempts;not null;default:0"`
	LockedUntil         *time.Time `gorm:"column:locked_until"`
	LockoutCount        int        `gorm:"column:lockout_count;not null;default:0"`
	LastFailedLogin     *time.Time `gorm:"column:last_failed_login"`

	LastLogin     *time.Time                               `gorm:"column:last_login"`
	RefreshTokens datatypes.JSONType[[]RefreshTokenRecord] `gorm:"column:refresh_tokens"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID primary key when none was provided
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Validate enforces the aggregate invariants on identity fields
func (u *User) Validate() error {
	email := strings.TrimSpace(u.Email)
	if email == "" {
		return fmt.Errorf("email must not be empty")
	}
	if len(email) > constants.MaxEmailLength {
		return fmt.Errorf("email must be at most %d characters", constants.MaxEmailLength)
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("email is not a valid address")
	}
	if name := strings.TrimSpace(u.FirstName); name == "" || len(name) > constants.MaxNameLength {
		return fmt.Errorf("first name must be 1-%d characters", constants.MaxNameLength)
	}
	if name := strings.TrimSpace(u.LastName); name == "" || len(name) > constants.MaxNameLength {
		return fmt.Errorf("last name must be 1-%d characters", constants.MaxNameLength)
	}
	if phone := strings.TrimSpace(u.Phone); phone != "" {
		if len(phone) < constants.MinPhoneLength || len(phone) > constants.MaxPhoneLength || !phoneRegex.MatchString(phone) {
			return fmt.Errorf("phone must be a valid E.164 number")
		}
	}
	if !u.Role.Valid() {
		return fmt.Errorf("unknown role %q", u.Role)
	}
	return nil
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasRole reports whether the user holds exactly the given role
func (u *User) HasRole(r Role) bool {
	return u.Role == r
}

// CanManageUser reports whether this user may manage the target user. A user
// may always act on themselves; otherwise the role ordering table decides.
func (u *User) CanManageUser(target *User) bool {
	if u.ID == target.ID {
		return true
	}
	return u.Role.CanManage(target.Role)
}

// ---- Lockout state machine ----

// IsLocked is derived state: true iff locked_until is set and in the future
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// RegisterFailedLogin records one failed password verification
func (u *User) RegisterFailedLogin(now time.Time) {
	u.FailedLoginAttempts++
	u.LastFailedLogin = &now
}

// Lock transitions the account into the locked state until the given time.
// LockoutCount is incremented so later lockouts back off further.
func (u *User) Lock(until time.Time) {
	u.LockedUntil = &until
	u.LockoutCount++
}

// RecordSuccessfulLogin resets the failure counter and clears any lock.
// LockoutCount is deliberately preserved so backoff history survives.
func (u *User) RecordSuccessfulLogin(now time.Time) {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &now
}

// Unlock is the admin action: wipes the full lockout history
func (u *User) Unlock() {
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LockoutCount = 0
}

// ---- Refresh token bookkeeping ----

// TokenList returns the live refresh-token records
func (u *User) TokenList() []RefreshTokenRecord {
	return u.RefreshTokens.Data()
}

func (u *User) setTokenList(records []RefreshTokenRecord) {
	u.RefreshTokens = datatypes.NewJSONType(records)
}

// AddRefreshToken appends a record, pruning expired entries first and
// evicting the oldest record (FIFO) once the list is at capacity.
func (u *User) AddRefreshToken(rec RefreshTokenRecord, maxTokens int, now time.Time) {
	records := u.TokenList()

	pruned := records[:0]
	for _, r := range records {
		if r.ExpiresAt.After(now) {
			pruned = append(pruned, r)
		}
	}

	for len(pruned) >= maxTokens && len(pruned) > 0 {
		pruned = pruned[1:]
	}

	u.setTokenList(append(pruned, rec))
}

// FindRefreshToken locates an unexpired record matching hash and family
func (u *User) FindRefreshToken(tokenHash, familyID string, now time.Time) (RefreshTokenRecord, bool) {
	for _, r := range u.TokenList() {
		if r.TokenHash == tokenHash && r.FamilyID == familyID && r.ExpiresAt.After(now) {
			return r, true
		}
	}
	return RefreshTokenRecord{}, false
}

// RemoveRefreshToken removes the single record with the given hash
func (u *User) RemoveRefreshToken(tokenHash string) bool {
	records := u.TokenList()
	for i, r := range records {
		if r.TokenHash == tokenHash {
			u.setTokenList(append(records[:i], records[i+1:]...))
			return true
		}
	}
	return false
}

// RevokeTokenFamily removes every record sharing the family id and returns
// how many were removed. Used when refresh-token reuse is detected.
func (u *User) RevokeTokenFamily(familyID string) int {
	records := u.TokenList()
	kept := records[:0]
	removed := 0
	for _, r := range records {
		if r.FamilyID == familyID {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	u.setTokenList(kept)
	return removed
}

// ClearRefreshTokens drops every live refresh token (logout everywhere)
func (u *User) ClearRefreshTokens() {
	u.setTokenList(nil)
}

// ---- Email verification ----

// StartEmailVerification stores a new hashed verification token
func (u *User) StartEmailVerification(tokenHash string, expires time.Time) {
	u.EmailVerificationTokenHash = tokenHash
	u.EmailVerificationExpires = &expires
}

// ConfirmEmailVerification marks the email verified and clears token state
func (u *User) ConfirmEmailVerification(now time.Time) {
	u.EmailVerified = true
	u.EmailVerifiedAt = &now
	u.EmailVerificationTokenHash = ""
	u.EmailVerificationExpires = nil
}

// ---- Password reset ----

// StartPasswordReset stores a new hashed reset token
func (u *User) StartPasswordReset(tokenHash string, expires, requestedAt time.Time) {
	u.PasswordResetTokenHash = tokenHash
	u.PasswordResetExpires = &expires
	u.PasswordResetRequestedAt = &requestedAt
}

// CompletePasswordReset installs the new password hash, clears reset token
// state and revokes every refresh token. The trust boundary of the account
// changed, so every session must re-authenticate.
func (u *User) CompletePasswordReset(newPasswordHash string, now time.Time) {
	u.PasswordHash = newPasswordHash
	u.PasswordChangedAt = &now
	u.PasswordResetTokenHash = ""
	u.PasswordResetExpires = nil
	u.PasswordResetRequestedAt = nil
	u.ClearRefreshTokens()
}

// ChangePassword installs a new password hash outside the reset flow
func (u *User) ChangePassword(newPasswordHash string, now time.Time) {
	u.PasswordHash = newPasswordHash
	u.PasswordChangedAt = &now
}
