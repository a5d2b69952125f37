package config

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		DatabaseDriver:   DriverPostgres,
		DatabaseURL:      "postgres://localhost/bizflow",
		DBOpTimeoutStr:   "5s",
		ReminderSchedule: "0 9 * * *",
		ReminderTimezone: "UTC",
		PortalAPIURL:     "https://portal.example.com",
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("valid config should not return error, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr string
	}{
		{"missing database url", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL", "required"},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "DATABASE_DRIVER", "mysql"},
		{"non-parseable duration", func(c *Config) { c.DBOpTimeoutStr = "invalid" }, "DB_OP_TIMEOUT", "invalid duration"},
		{"negative duration", func(c *Config) { c.WebhookTimeoutStr = "-1s" }, "WEBHOOK_TIMEOUT", "must be positive"},
		{"zero duration", func(c *Config) { c.LeaderRetryIntervalStr = "0s" }, "LEADER_RETRY_INTERVAL", "must be positive"},
		{"bad cron", func(c *Config) { c.ReminderSchedule = "61 * * * *" }, "REMINDER_SCHEDULE", "parse cron"},
		{"bad timezone", func(c *Config) { c.ReminderTimezone = "Mars/Olympus" }, "REMINDER_SCHEDULE", "timezone"},
		{"reminders without portal", func(c *Config) { c.PortalAPIURL = "" }, "PORTAL_API_URL", "required when"},
		{"relative portal url", func(c *Config) { c.PortalAPIURL = "/api" }, "PORTAL_API_URL", "absolute"},
		{"smtp without from", func(c *Config) { c.SMTPHost = "smtp.example.com" }, "SMTP_FROM", "required"},
		{"negative breaker threshold", func(c *Config) { c.CircuitBreakerThreshold = -1 }, "CIRCUIT_BREAKER_THRESHOLD", "negative"},
		{"negative ingest rate", func(c *Config) { c.IngestRateLimit = -5 }, "INGEST_RATE_LIMIT", "non-negative"},
		{"NaN ingest rate", func(c *Config) { c.IngestRateLimit = math.NaN() }, "INGEST_RATE_LIMIT", "finite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			var errs ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.field && strings.Contains(e.Message, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %s error containing %q, got %v", tt.field, tt.wantErr, errs)
			}
		})
	}
}

func TestValidate_RemindersDisabledNeedNoPortal(t *testing.T) {
	cfg := validConfig()
	cfg.ReminderSchedule = ""
	cfg.PortalAPIURL = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.DBOpTimeoutStr = "invalid"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}

	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	if len(errs) != 2 {
		t.Errorf("expected 2 validation errors, got %d: %v", len(errs), errs)
	}
}

func TestValidationError_Format(t *testing.T) {
	err := ValidationError{Field: "DATABASE_URL", Message: "required"}
	got := err.Error()
	want := "DATABASE_URL: required"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Format(t *testing.T) {
	single := ValidationErrors{{Field: "F1", Message: "M1"}}
	if single.Error() != "F1: M1" {
		t.Errorf("single error = %q, want 'F1: M1'", single.Error())
	}

	multi := ValidationErrors{
		{Field: "F1", Message: "M1"},
		{Field: "F2", Message: "M2"},
	}
	got := multi.Error()
	if !strings.Contains(got, "2 validation errors") {
		t.Errorf("multi error should contain '2 validation errors': %q", got)
	}
	if !strings.Contains(got, "F1: M1") || !strings.Contains(got, "F2: M2") {
		t.Errorf("multi error should contain both errors: %q", got)
	}

	empty := ValidationErrors{}
	if empty.Error() != "" {
		t.Errorf("empty errors should return empty string, got %q", empty.Error())
	}
}
