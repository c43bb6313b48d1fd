// Package mailer sends transactional email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wneessen/go-mail"

	"github.com/sharow/sharow/internal/config"
	"github.com/sharow/sharow/internal/domain"
)

// ErrSMTPRequired is returned outside dev and test when SMTP credentials are missing.
var ErrSMTPRequired = errors.New("EMAIL_ID and EMAIL_PASS are required outside dev")

// FromConfig picks the SMTP mailer when credentials are set. LogMailer writes codes to
// the log, so it is only allowed in dev and test.
func FromConfig(cfg config.Config) (domain.Mailer, error) {
	if cfg.MailerEnabled() {
		m, err := NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailID, cfg.EmailPass)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	if cfg.IsDev() || cfg.IsTest() {
		return LogMailer{}, nil
	}
	return nil, fmt.Errorf("op=mailer.FromConfig: %w", ErrSMTPRequired)
}

// sender is the part of *mail.Client used to deliver messages.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPMailer delivers OTP codes through an authenticated SMTP relay.
type SMTPMailer struct {
	from       string
	client     sender
	maxRetries uint64
}

// NewSMTPMailer dials nothing up front; the connection is opened per send.
func NewSMTPMailer(host string, port int, username, password string) (*SMTPMailer, error) {
	c, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(username),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("op=mailer.NewSMTPMailer: %w", err)
	}
	return &SMTPMailer{from: username, client: c, maxRetries: 2}, nil
}

var otpHTML = template.Must(template.New("otp").Parse(`<div style="font-family:sans-serif">
<h2>Verify your Sharow account</h2>
<p>Your verification code is</p>
<p style="font-size:28px;letter-spacing:6px"><b>{{.Code}}</b></p>
<p>The code expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>
</div>`))

// SendOTP emails code to the recipient, retrying transient failures.
func (m *SMTPMailer) SendOTP(ctx domain.Context, to, code string, ttl time.Duration) error {
	msg, err := buildOTPMessage(m.from, to, code, ttl)
	if err != nil {
		return fmt.Errorf("op=mailer.SendOTP: %w", err)
	}

	op := func() error {
		return m.client.DialAndSendWithContext(ctx, msg)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.maxRetries), ctx)
	notify := func(err error, d time.Duration) {
		slog.Warn("otp email send failed, retrying", slog.Any("error", err), slog.Duration("backoff", d))
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return fmt.Errorf("op=mailer.SendOTP: %w", err)
	}
	return nil
}

func buildOTPMessage(from, to, code string, ttl time.Duration) (*mail.Msg, error) {
	minutes := int(ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, err
	}
	if err := msg.To(to); err != nil {
		return nil, err
	}
	msg.Subject("Your Sharow verification code")
	msg.SetBodyString(mail.TypeTextPlain,
		fmt.Sprintf("Your Sharow verification code is %s. It expires in %d minutes.", code, minutes))

	var html bytes.Buffer
	if err := otpHTML.Execute(&html, struct {
		Code    string
		Minutes int
	}{code, minutes}); err != nil {
		return nil, err
	}
	msg.AddAlternativeString(mail.TypeTextHTML, html.String())
	return msg, nil
}

// LogMailer logs codes instead of sending them. It is wired in dev when SMTP is not configured.
type LogMailer struct{}

// SendOTP writes the code to the log at debug level.
func (LogMailer) SendOTP(ctx domain.Context, to, code string, ttl time.Duration) error {
	slog.DebugContext(ctx, "otp email not sent; smtp disabled",
		slog.String("to", to), slog.String("code", code), slog.Duration("ttl", ttl))
	return nil
}
