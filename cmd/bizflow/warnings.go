package main

import (
	"log"

	"github.com/djlord-it/bizflow/internal/config"
)

// logConfigWarnings reports risky or degraded configurations at startup.
// P0 warnings can lose or duplicate work; P1 reduce visibility or resilience.
func logConfigWarnings(cfg *config.Config) {
	if cfg.DatabaseDriver == config.DriverSQLite {
		log.Println("bizflow: WARNING [P0]: DATABASE_DRIVER=sqlite uses a standalone leader lock; " +
			"run exactly one instance per database or reminders will be sent more than once")
	}

	if !cfg.MetricsEnabled {
		log.Println("bizflow: WARNING [P1]: METRICS_ENABLED=false; dispatcher, webhook and leader metrics are not exported")
	}

	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("bizflow: WARNING [P1]: CIRCUIT_BREAKER_THRESHOLD=0 disables the webhook circuit breaker; " +
			"a failing endpoint is retried on every event")
	}

	if cfg.ReminderSchedule == "" {
		log.Println("bizflow: INFO: REMINDER_SCHEDULE is empty; overdue invoice reminders are disabled")
	}

	if cfg.NATSURL == "" {
		log.Println("bizflow: INFO: NATS_URL not set; notify actions are logged only")
	}

	if cfg.SMTPHost == "" {
		log.Println("bizflow: INFO: SMTP_HOST not set; send_email actions are logged only")
	}
}
