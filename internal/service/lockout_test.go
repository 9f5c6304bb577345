package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/washpoint/carwash/config"
	apperrors "github.com/washpoint/carwash/internal/errors"
	"github.com/washpoint/carwash/internal/events"
	"github.com/washpoint/carwash/internal/model"
	"github.com/washpoint/carwash/pkg/logger"
)

func init() {
	logger.InitTestLogger()
}

// capturingPublisher records published events for assertions
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) byName(name string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		EmailVerificationEnabled:   true,
		PasswordResetEnabled:       true,
		AccountLockoutEnabled:      true,
		TokenRotationEnabled:       true,
		MaxLoginAttempts:           5,
		InitialLockout:             5 * time.Minute,
		MaxLockout:                 60 * time.Minute,
		LockoutMultiplier:          2,
		EmailVerificationTTL:       24 * time.Hour,
		PasswordResetTTL:           2 * time.Hour,
		VerificationResendInterval: 5 * time.Minute,
		ResetRequestInterval:       time.Hour,
		MaxRefreshTokensPerUser:    5,
	}
}

func activeUser(email string) *model.User {
	return &model.User{
		Email:         email,
		PasswordHash:  "$2a$10$placeholderplaceholderplaceholderplaceh",
		FirstName:     "Test",
		LastName:      "User",
		Role:          model.RoleClient,
		IsActive:      true,
		EmailVerified: true,
	}
}

func TestBackoffFor(t *testing.T) {
	svc := NewLockoutService(newFakeUserStore(), testAuthConfig(), events.NopPublisher{})

	tests := []struct {
		name         string
		lockoutCount int
		want         time.Duration
	}{
		{"first lockout", 0, 5 * time.Minute},
		{"second lockout", 1, 10 * time.Minute},
		{"third lockout", 2, 20 * time.Minute},
		{"fourth lockout", 3, 40 * time.Minute},
		{"fifth lockout capped", 4, 60 * time.Minute},
		{"far past cap", 10, 60 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.BackoffFor(tt.lockoutCount); got != tt.want {
				t.Errorf("Expected backoff %v for count %d, got %v", tt.want, tt.lockoutCount, got)
			}
		})
	}
}

func TestBackoffForMonotonic(t *testing.T) {
	svc := NewLockoutService(newFakeUserStore(), testAuthConfig(), events.NopPublisher{})

	prev := time.Duration(0)
	for n := 0; n < 20; n++ {
		window := svc.BackoffFor(n)
		if window < prev {
			t.Fatalf("Expected non-decreasing backoff, got %v after %v at count %d", window, prev, n)
		}
		if window > 60*time.Minute {
			t.Fatalf("Expected backoff capped at 60m, got %v at count %d", window, n)
		}
		prev = window
	}
}

func TestRegisterFailureThresholdBoundary(t *testing.T) {
	user := activeUser("boundary@example.com")
	store := newFakeUserStore(user)
	bus := &capturingPublisher{}
	svc := NewLockoutService(store, testAuthConfig(), bus)
	ctx := context.Background()

	// Four failures: counter climbs, no lock.
	for i := 1; i <= 4; i++ {
		u, err := svc.RegisterFailure(ctx, user.ID)
		if err != nil {
			t.Fatalf("RegisterFailure returned error: %v", err)
		}
		if u.FailedLoginAttempts != i {
			t.Errorf("Expected %d failed attempts, got %d", i, u.FailedLoginAttempts)
		}
		if u.IsLocked(time.Now()) {
			t.Fatalf("Expected account unlocked after %d failures", i)
		}
	}

	if got := svc.RemainingAttempts(store.get(user.ID)); got != 1 {
		t.Errorf("Expected 1 remaining attempt before lockout, got %d", got)
	}

	// Fifth failure crosses the threshold.
	u, err := svc.RegisterFailure(ctx, user.ID)
	if err != nil {
		t.Fatalf("RegisterFailure returned error: %v", err)
	}
	if !u.IsLocked(time.Now()) {
		t.Fatal("Expected account locked after fifth failure")
	}
	if u.LockoutCount != 1 {
		t.Errorf("Expected lockout count 1, got %d", u.LockoutCount)
	}
	if u.FailedLoginAttempts != 0 {
		t.Errorf("Expected failure counter reset on lock, got %d", u.FailedLoginAttempts)
	}

	wantUntil := time.Now().Add(5 * time.Minute)
	if u.LockedUntil == nil || u.LockedUntil.Before(wantUntil.Add(-time.Minute)) || u.LockedUntil.After(wantUntil.Add(time.Minute)) {
		t.Errorf("Expected locked_until near %v, got %v", wantUntil, u.LockedUntil)
	}

	locked := bus.byName(events.EventUserAccountLocked)
	if len(locked) != 1 {
		t.Fatalf("Expected 1 account-locked event, got %d", len(locked))
	}
	if ev := locked[0].(events.UserAccountLocked); ev.LockoutCount != 1 {
		t.Errorf("Expected event lockout count 1, got %d", ev.LockoutCount)
	}
}

func TestCheckNotLocked(t *testing.T) {
	svc := NewLockoutService(newFakeUserStore(), testAuthConfig(), events.NopPublisher{})

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(10 * time.Minute)

	tests := []struct {
		name        string
		lockedUntil *time.Time
		wantLocked  bool
	}{
		{"never locked", nil, false},
		{"expired lock", &past, false},
		{"active lock", &future, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := activeUser("check@example.com")
			user.LockedUntil = tt.lockedUntil

			err := svc.CheckNotLocked(user)
			if tt.wantLocked {
				if !errors.Is(err, apperrors.ErrAccountLocked) {
					t.Errorf("Expected ErrAccountLocked, got %v", err)
				}
				var lockedErr *apperrors.AccountLockedError
				if !errors.As(err, &lockedErr) {
					t.Fatal("Expected AccountLockedError with deadline")
				}
				if !lockedErr.LockedUntil.Equal(future) {
					t.Errorf("Expected deadline %v, got %v", future, lockedErr.LockedUntil)
				}
			} else if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestCheckNotLockedDisabled(t *testing.T) {
	cfg := testAuthConfig()
	cfg.AccountLockoutEnabled = false
	svc := NewLockoutService(newFakeUserStore(), cfg, events.NopPublisher{})

	user := activeUser("disabled@example.com")
	until := time.Now().Add(time.Hour)
	user.LockedUntil = &until

	if err := svc.CheckNotLocked(user); err != nil {
		t.Errorf("Expected lockout check skipped when disabled, got %v", err)
	}
}

func TestRegisterSuccessResetsCounterKeepsHistory(t *testing.T) {
	user := activeUser("success@example.com")
	user.FailedLoginAttempts = 3
	user.LockoutCount = 2
	past := time.Now().Add(-time.Minute)
	user.LockedUntil = &past

	store := newFakeUserStore(user)
	svc := NewLockoutService(store, testAuthConfig(), events.NopPublisher{})

	u, err := svc.RegisterSuccess(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("RegisterSuccess returned error: %v", err)
	}
	if u.FailedLoginAttempts != 0 {
		t.Errorf("Expected failure counter reset, got %d", u.FailedLoginAttempts)
	}
	if u.LockedUntil != nil {
		t.Errorf("Expected lock window cleared, got %v", u.LockedUntil)
	}
	if u.LockoutCount != 2 {
		t.Errorf("Expected lockout history preserved, got %d", u.LockoutCount)
	}
	if u.LastLogin == nil {
		t.Error("Expected last login timestamp set")
	}

	// A second success is a no-op on the counters.
	again, err := svc.RegisterSuccess(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("RegisterSuccess returned error: %v", err)
	}
	if again.FailedLoginAttempts != 0 || again.LockoutCount != 2 {
		t.Error("Expected repeated success to leave counters unchanged")
	}
}

func TestEscalatingBackoffAcrossLockouts(t *testing.T) {
	user := activeUser("repeat@example.com")
	store := newFakeUserStore(user)
	svc := NewLockoutService(store, testAuthConfig(), events.NopPublisher{})
	ctx := context.Background()

	lockAndExpire := func(wantWindow time.Duration, wantCount int) {
		t.Helper()
		for i := 0; i < 5; i++ {
			if _, err := svc.RegisterFailure(ctx, user.ID); err != nil {
				t.Fatalf("RegisterFailure returned error: %v", err)
			}
		}
		u := store.get(user.ID)
		if u.LockoutCount != wantCount {
			t.Fatalf("Expected lockout count %d, got %d", wantCount, u.LockoutCount)
		}
		gotWindow := time.Until(*u.LockedUntil)
		if gotWindow < wantWindow-time.Minute || gotWindow > wantWindow+time.Minute {
			t.Fatalf("Expected lock window near %v, got %v", wantWindow, gotWindow)
		}
		// Simulate the window elapsing.
		past := time.Now().Add(-time.Second)
		u.LockedUntil = &past
	}

	lockAndExpire(5*time.Minute, 1)
	lockAndExpire(10*time.Minute, 2)
	lockAndExpire(20*time.Minute, 3)
}

func TestUnlockClearsEverything(t *testing.T) {
	user := activeUser("unlock@example.com")
	user.FailedLoginAttempts = 2
	user.LockoutCount = 4
	until := time.Now().Add(time.Hour)
	user.LockedUntil = &until

	store := newFakeUserStore(user)
	svc := NewLockoutService(store, testAuthConfig(), events.NopPublisher{})

	u, err := svc.Unlock(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}
	if u.FailedLoginAttempts != 0 || u.LockoutCount != 0 || u.LockedUntil != nil {
		t.Error("Expected unlock to clear counters, history and window")
	}
}
