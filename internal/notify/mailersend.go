package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mailersend/mailersend-go"
)

// ErrMailerDisabled is returned when no API key or sender is configured.
var ErrMailerDisabled = errors.New("mailer disabled (missing MAILERSEND_API_KEY or MAILER_FROM)")

// MailerSendNotifier emails alerts through MailerSend.
type MailerSendNotifier struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

func NewMailerSendNotifier(apiKey, fromName, fromEmail string) *MailerSendNotifier {
	m := &MailerSendNotifier{
		enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
	if m.enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *MailerSendNotifier) Enabled() bool { return m.enabled }

func (m *MailerSendNotifier) Notify(ctx context.Context, to Recipient, msg Message) error {
	if !m.enabled {
		return ErrMailerDisabled
	}
	if to.Address == "" {
		return fmt.Errorf("notify: recipient %q has no email address", to.Name)
	}

	email := m.client.Email.NewMessage()
	email.SetFrom(m.from)
	email.SetRecipients([]mailersend.Recipient{{Name: to.Name, Email: to.Address}})
	email.SetSubject(msg.Subject)
	email.SetText(emailText(msg))

	res, err := m.client.Email.Send(ctx, email)
	if err != nil {
		return fmt.Errorf("notify: mailersend send: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func emailText(msg Message) string {
	var b strings.Builder
	b.WriteString(msg.Body)
	if msg.Location != "" {
		b.WriteString("\n\nLocation: ")
		b.WriteString(msg.Location)
	}
	if !msg.At.IsZero() {
		b.WriteString("\nRaised at: ")
		b.WriteString(msg.At.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}
