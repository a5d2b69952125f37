package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/djlord-it/bizflow/internal/action"
)

var _ action.Mailer = (*SMTPMailer)(nil)

var ErrUnknownTemplate = errors.New("unknown email template")

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer renders a template and delivers it via SMTP.
type SMTPMailer struct {
	cfg       SMTPConfig
	templates *Templates
	send      sendFunc
	now       func() time.Time
}

func NewSMTPMailer(cfg SMTPConfig, templates *Templates) *SMTPMailer {
	return &SMTPMailer{
		cfg:       cfg,
		templates: templates,
		send:      smtp.SendMail,
		now:       time.Now,
	}
}

func (m *SMTPMailer) SendTemplate(ctx context.Context, to, template string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body, err := m.templates.Render(template, data)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	msg := buildMessage(m.cfg.From, to, subject, body, m.now())
	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	log.Printf("mail: sent template=%s to=%s", template, to)
	return nil
}

func buildMessage(from, to, subject, body string, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogMailer logs instead of sending. Used when SMTP is not configured.
type LogMailer struct{}

func (LogMailer) SendTemplate(ctx context.Context, to, template string, data map[string]any) error {
	log.Printf("mail: smtp not configured, dropping template=%s to=%s", template, to)
	return nil
}
