package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/rs/zerolog"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <p>Hi {{.Name}},</p>
  <p>Your verification code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code expires in {{.ExpiresIn}}. If you did not create an account you can ignore this email.</p>
</body>
</html>`))

type verificationData struct {
	Name      string
	Code      string
	ExpiresIn string
}

type SMTPConfig struct {
	Addr      string // host:port
	Host      string
	From      string
	Password  string
	ExpiresIn string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send sendFunc
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.ExpiresIn == "" {
		cfg.ExpiresIn = "10 minutes"
	}
	return &SMTPMailer{
		cfg:  cfg,
		auth: smtp.PlainAuth("", cfg.From, cfg.Password, cfg.Host),
		send: smtp.SendMail,
	}
}

func (m *SMTPMailer) SendVerificationCode(ctx context.Context, to, name, code string) error {
	var body bytes.Buffer
	if err := verificationTemplate.Execute(&body, verificationData{Name: name, Code: code, ExpiresIn: m.cfg.ExpiresIn}); err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	message := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-version: 1.0;\r\nContent-Type: text/html; charset=\"UTF-8\";\r\n\r\n%s",
		m.cfg.From, to, "Verify your email", body.String(),
	)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.send(m.cfg.Addr, m.auth, m.cfg.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogMailer writes codes to the log instead of sending them. Used when no
// SMTP server is configured.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, to, name, code string) error {
	m.logger.Info().Str("to", to).Str("code", code).Msg("verification code")
	return nil
}
