package email

import (
	"context"
	"time"

	"github.com/washpoint/carwash/config"
	"github.com/washpoint/carwash/internal/events"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
)

// Sender delivers a rendered message. The default implementation only logs;
// wiring an SMTP or API-backed sender is a deployment concern.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogSender writes outgoing mail to the log instead of delivering it
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	logger.InfoWithContext(ctx, "Outgoing email").
		String("to", to).
		String("subject", subject).
		Int("body_bytes", len(htmlBody)).
		Log()
	return nil
}

// Notifier renders and sends the auth lifecycle emails. It subscribes to
// the event bus, so the services never see a mail dependency.
type Notifier struct {
	cfg    *config.Config
	sender Sender
}

func NewNotifier(cfg *config.Config, sender Sender) *Notifier {
	if sender == nil {
		sender = LogSender{}
	}
	return &Notifier{cfg: cfg, sender: sender}
}

// Register subscribes the notifier to the events that produce mail
func (n *Notifier) Register(bus *events.Bus) {
	bus.Subscribe(events.EventEmailVerificationRequested, n.onVerificationRequested)
	bus.Subscribe(events.EventPasswordResetRequested, n.onPasswordResetRequested)
	bus.Subscribe(events.EventUserAccountLocked, n.onAccountLocked)
}

func (n *Notifier) onVerificationRequested(ctx context.Context, event events.Event) {
	ev, ok := event.(events.EmailVerificationRequested)
	if !ok {
		return
	}
	n.deliver(ctx, ev.Email, verificationSubject, verificationBody, map[string]interface{}{
		"FirstName": ev.FirstName,
		"AppName":   n.cfg.App.Name,
		"BaseURL":   n.cfg.App.BaseURL,
		"Token":     ev.Token,
		"ExpiresAt": ev.ExpiresAt,
	})
}

func (n *Notifier) onPasswordResetRequested(ctx context.Context, event events.Event) {
	ev, ok := event.(events.PasswordResetRequested)
	if !ok {
		return
	}
	n.deliver(ctx, ev.Email, passwordResetSubject, passwordResetBody, map[string]interface{}{
		"FirstName": ev.FirstName,
		"AppName":   n.cfg.App.Name,
		"BaseURL":   n.cfg.App.BaseURL,
		"Token":     ev.Token,
		"ExpiresAt": ev.ExpiresAt,
	})
}

func (n *Notifier) onAccountLocked(ctx context.Context, event events.Event) {
	ev, ok := event.(events.UserAccountLocked)
	if !ok {
		return
	}
	n.deliver(ctx, ev.Email, accountLockedSubject, accountLockedBody, map[string]interface{}{
		"FirstName":   "",
		"AppName":     n.cfg.App.Name,
		"LockedUntil": ev.LockedUntil,
	})
}

func (n *Notifier) deliver(ctx context.Context, to, subject, tmpl string, data map[string]interface{}) {
	ctx = ctxutil.WithOperation(ctx, "email", "deliver")

	body, err := renderTemplate(tmpl, data)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to render email template").
			String("subject", subject).
			Err(err).
			Log()
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := n.sender.Send(sendCtx, to, subject, body); err != nil {
		logger.ErrorWithContext(ctx, "Failed to send email").
			String("subject", subject).
			Err(err).
			Log()
	}
}
