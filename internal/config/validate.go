package config

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/djlord-it/bizflow/internal/cron"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_URL",
			Message: "required",
		})
	}

	if cfg.DatabaseDriver != DriverPostgres && cfg.DatabaseDriver != DriverSQLite {
		errs = append(errs, ValidationError{
			Field:   "DATABASE_DRIVER",
			Message: fmt.Sprintf("must be 'postgres' or 'sqlite', got %q", cfg.DatabaseDriver),
		})
	}

	for _, d := range cfg.durations() {
		if *d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   d.env,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if v <= 0 {
			errs = append(errs, ValidationError{
				Field:   d.env,
				Message: "must be positive",
			})
		}
	}

	if cfg.ReminderSchedule != "" {
		if _, err := cron.NewParser().Parse(cfg.ReminderSchedule, cfg.ReminderTimezone); err != nil {
			errs = append(errs, ValidationError{
				Field:   "REMINDER_SCHEDULE",
				Message: err.Error(),
			})
		}
		if cfg.PortalAPIURL == "" {
			errs = append(errs, ValidationError{
				Field:   "PORTAL_API_URL",
				Message: "required when REMINDER_SCHEDULE is set",
			})
		}
	}

	if cfg.PortalAPIURL != "" {
		if u, err := url.Parse(cfg.PortalAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "PORTAL_API_URL",
				Message: "must be an absolute http(s) URL",
			})
		}
	}

	if cfg.SMTPHost != "" && cfg.SMTPFrom == "" {
		errs = append(errs, ValidationError{
			Field:   "SMTP_FROM",
			Message: "required when SMTP_HOST is set",
		})
	}

	if !(cfg.IngestRateLimit >= 0) || math.IsInf(cfg.IngestRateLimit, 1) {
		errs = append(errs, ValidationError{
			Field:   "INGEST_RATE_LIMIT",
			Message: "must be a finite, non-negative number",
		})
	}

	if cfg.CircuitBreakerThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "CIRCUIT_BREAKER_THRESHOLD",
			Message: "must not be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
