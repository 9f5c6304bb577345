package email

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/washpoint/carwash/config"
	"github.com/washpoint/carwash/internal/events"
	"github.com/washpoint/carwash/pkg/logger"
)

func init() {
	logger.InitTestLogger()
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (s *recordingSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:    "Carwash Auth Service",
			BaseURL: "https://app.example.com",
		},
	}
}

func TestNotifierVerificationEmail(t *testing.T) {
	sender := &recordingSender{}
	bus := events.NewBus()
	NewNotifier(testConfig(), sender).Register(bus)

	bus.Publish(context.Background(), events.EmailVerificationRequested{
		Email:     "new@example.com",
		FirstName: "Ada",
		Token:     "raw-verification-token",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	})

	if len(sender.sent) != 1 {
		t.Fatalf("Expected 1 email, got %d", len(sender.sent))
	}
	mail := sender.sent[0]
	if mail.to != "new@example.com" {
		t.Errorf("Expected recipient new@example.com, got %q", mail.to)
	}
	if mail.subject != verificationSubject {
		t.Errorf("Expected verification subject, got %q", mail.subject)
	}
	if !strings.Contains(mail.body, "verify-email?token=raw-verification-token") {
		t.Error("Expected verification link with raw token in body")
	}
	if !strings.Contains(mail.body, "Ada") {
		t.Error("Expected first name in body")
	}
}

func TestNotifierResetEmail(t *testing.T) {
	sender := &recordingSender{}
	bus := events.NewBus()
	NewNotifier(testConfig(), sender).Register(bus)

	bus.Publish(context.Background(), events.PasswordResetRequested{
		Email:     "forgot@example.com",
		Token:     "raw-reset-token",
		ExpiresAt: time.Now().Add(2 * time.Hour),
	})

	if len(sender.sent) != 1 {
		t.Fatalf("Expected 1 email, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].body, "reset-password?token=raw-reset-token") {
		t.Error("Expected reset link with raw token in body")
	}
	// Empty first name falls back to the generic greeting.
	if !strings.Contains(sender.sent[0].body, "Hi there") {
		t.Error("Expected default greeting for missing first name")
	}
}

func TestNotifierIgnoresUnrelatedEvents(t *testing.T) {
	sender := &recordingSender{}
	bus := events.NewBus()
	NewNotifier(testConfig(), sender).Register(bus)

	bus.Publish(context.Background(), events.UserLoggedIn{Email: "noise@example.com"})

	if len(sender.sent) != 0 {
		t.Errorf("Expected no email for login event, got %d", len(sender.sent))
	}
}
