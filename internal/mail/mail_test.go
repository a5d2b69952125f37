package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

const testTemplates = `
templates:
  invoice_overdue:
    subject: "Invoice {{.invoiceNumber}} is overdue"
    body: |
      Hello {{.clientName}},
      invoice {{.invoiceNumber}} for {{.amount}} is overdue.
  welcome:
    subject: "Welcome"
    body: "Hi {{.missing}}!"
`

func TestParseTemplates(t *testing.T) {
	tmpl, err := ParseTemplates([]byte(testTemplates))
	if err != nil {
		t.Fatalf("ParseTemplates: %v", err)
	}
	names := tmpl.Names()
	if len(names) != 2 || names[0] != "invoice_overdue" || names[1] != "welcome" {
		t.Errorf("Names() = %v", names)
	}

	subject, body, err := tmpl.Render("invoice_overdue", map[string]any{
		"invoiceNumber": "INV-7", "clientName": "Acme", "amount": 1500,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "Invoice INV-7 is overdue" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "Hello Acme,") || !strings.Contains(body, "for 1500 is overdue") {
		t.Errorf("body = %q", body)
	}
}

func TestParseTemplates_Invalid(t *testing.T) {
	if _, err := ParseTemplates([]byte("templates: [")); err == nil {
		t.Error("expected yaml error")
	}
	if _, err := ParseTemplates([]byte("templates:\n  bad:\n    subject: \"{{.x\"\n")); err == nil {
		t.Error("expected template parse error")
	}
}

func TestRender_UnknownTemplate(t *testing.T) {
	tmpl, _ := ParseTemplates([]byte(testTemplates))
	if _, _, err := tmpl.Render("nope", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestSMTPMailer_SendTemplate(t *testing.T) {
	tmpl, _ := ParseTemplates([]byte(testTemplates))
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "noreply@example.com"}, tmpl)
	m.now = func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC) }

	var (
		gotAddr string
		gotAuth smtp.Auth
		gotTo   []string
		gotMsg  string
	)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		return nil
	}

	err := m.SendTemplate(context.Background(), "client@example.com", "invoice_overdue", map[string]any{"invoiceNumber": "INV-7"})
	if err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotAuth == nil {
		t.Error("expected auth when username is set")
	}
	if len(gotTo) != 1 || gotTo[0] != "client@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	if !strings.Contains(gotMsg, "Subject: Invoice INV-7 is overdue\r\n") {
		t.Errorf("message missing subject: %q", gotMsg)
	}
	if !strings.Contains(gotMsg, "To: client@example.com\r\n") {
		t.Errorf("message missing To header: %q", gotMsg)
	}
}

func TestSMTPMailer_NoAuthWithoutUsername(t *testing.T) {
	tmpl, _ := ParseTemplates([]byte(testTemplates))
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25, From: "a@example.com"}, tmpl)
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if a != nil {
			t.Error("expected nil auth")
		}
		return nil
	}
	if err := m.SendTemplate(context.Background(), "b@example.com", "welcome", nil); err != nil {
		t.Fatalf("SendTemplate: %v", err)
	}
}

func TestSMTPMailer_SendError(t *testing.T) {
	tmpl, _ := ParseTemplates([]byte(testTemplates))
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 25}, tmpl)
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	if err := m.SendTemplate(context.Background(), "b@example.com", "welcome", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestSanitizeHeader(t *testing.T) {
	if got := sanitizeHeader("a\r\nBcc: x"); strings.ContainsAny(got, "\r\n") {
		t.Errorf("sanitizeHeader left newlines: %q", got)
	}
}

func TestDefaultTemplates(t *testing.T) {
	tmpl, err := DefaultTemplates()
	if err != nil {
		t.Fatalf("DefaultTemplates: %v", err)
	}

	want := []string{"invoice_created", "invoice_overdue", "payment_received", "proposal_sent"}
	got := tmpl.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	subject, body, err := tmpl.Render("invoice_overdue", map[string]any{
		"invoiceNumber": "INV-7",
		"clientName":    "Acme",
		"daysOverdue":   12,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "Invoice INV-7 is overdue" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "12 days overdue") {
		t.Errorf("body = %q", body)
	}
}
