package email

import (
	"bytes"
	"html/template"

	"github.com/Masterminds/sprig/v3"
)

// Message templates. The verification and reset links embed the raw token;
// the stored side only ever holds its hash.

const verificationSubject = "Verify your email address"

const verificationBody = `
<p>Hi {{ .FirstName | default "there" }},</p>
<p>Welcome to {{ .AppName }}. Please confirm your email address by clicking the link below:</p>
<p><a href="{{ .BaseURL }}/verify-email?token={{ .Token }}">Verify my email</a></p>
<p>This link expires {{ .ExpiresAt | date "Jan 2, 2006 at 15:04 MST" }}.</p>
<p>If you did not create this account, you can ignore this message.</p>
`

const passwordResetSubject = "Reset your password"

const passwordResetBody = `
<p>Hi {{ .FirstName | default "there" }},</p>
<p>We received a request to reset the password on your {{ .AppName }} account.</p>
<p><a href="{{ .BaseURL }}/reset-password?token={{ .Token }}">Choose a new password</a></p>
<p>This link expires {{ .ExpiresAt | date "Jan 2, 2006 at 15:04 MST" }}. If you did not ask for a reset, no action is needed; your password is unchanged.</p>
`

const accountLockedSubject = "Your account was temporarily locked"

const accountLockedBody = `
<p>Hi {{ .FirstName | default "there" }},</p>
<p>Your {{ .AppName }} account was locked after repeated failed sign-in attempts. You can try again after {{ .LockedUntil | date "Jan 2, 2006 at 15:04 MST" }}.</p>
<p>If this wasn't you, we recommend resetting your password once the lock expires.</p>
`

// renderTemplate executes a message template with the sprig function map
func renderTemplate(tmplStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Funcs(sprig.FuncMap()).Parse(tmplStr)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}
