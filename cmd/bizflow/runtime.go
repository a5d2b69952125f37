package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/bizflow/internal/action"
	"github.com/djlord-it/bizflow/internal/analytics"
	"github.com/djlord-it/bizflow/internal/api"
	"github.com/djlord-it/bizflow/internal/automation"
	"github.com/djlord-it/bizflow/internal/circuitbreaker"
	"github.com/djlord-it/bizflow/internal/config"
	"github.com/djlord-it/bizflow/internal/cron"
	"github.com/djlord-it/bizflow/internal/dispatcher"
	"github.com/djlord-it/bizflow/internal/leaderelection"
	"github.com/djlord-it/bizflow/internal/mail"
	"github.com/djlord-it/bizflow/internal/metrics"
	"github.com/djlord-it/bizflow/internal/notify"
	"github.com/djlord-it/bizflow/internal/scheduler"
	"github.com/djlord-it/bizflow/internal/store/postgres"
	"github.com/djlord-it/bizflow/internal/store/sqlite"
	"github.com/djlord-it/bizflow/internal/trigger"

	_ "github.com/lib/pq"
)

// appStore is what both database drivers provide.
type appStore interface {
	dispatcher.Store
	trigger.Store
	api.AuditStore
}

var (
	_ appStore = (*postgres.Store)(nil)
	_ appStore = (*sqlite.Store)(nil)
)

// cronParserAdapter adapts internal/cron.Parser to scheduler.CronParser interface.
type cronParserAdapter struct {
	parser *cron.Parser
}

func newCronAdapter() *cronParserAdapter {
	return &cronParserAdapter{parser: cron.NewParser()}
}

func (a *cronParserAdapter) Parse(expression string, timezone string) (scheduler.CronSchedule, error) {
	sched, err := a.parser.Parse(expression, timezone)
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// engine holds the components shared by serve and emit.
type engine struct {
	cfg     config.Config
	db      *sql.DB
	store   appStore
	locker  leaderelection.Locker
	metrics metrics.Sink
	portal  *automation.RESTPortal
	disp    *dispatcher.Dispatcher

	closers []func() error
}

// newEngine opens the database and wires the dispatcher with its action
// handlers. reg receives Prometheus collectors; nil disables metrics.
func newEngine(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*engine, error) {
	e := &engine{cfg: cfg, metrics: metrics.NewNoopSink()}
	if reg != nil {
		e.metrics = metrics.NewPrometheusSink(reg)
	}

	if err := e.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.PortalAPIURL != "" {
		e.portal = automation.NewRESTPortal(cfg.PortalAPIURL, cfg.PortalAPIToken)
		log.Printf("bizflow: portal api configured (url=%s)", cfg.PortalAPIURL)
	} else {
		log.Println("bizflow: PORTAL_API_URL not set; update_status actions, automation and reminders disabled")
	}

	exec, err := e.executor()
	if err != nil {
		e.Close()
		return nil, err
	}

	e.disp = dispatcher.New(e.store, exec).
		WithDrainTimeout(cfg.DispatcherDrainTimeout).
		WithMetrics(e.metrics)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		e.closers = append(e.closers, client.Close)
		e.disp = e.disp.WithAnalytics(analytics.NewRedisSink(client))
		log.Printf("bizflow: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("bizflow: REDIS_ADDR not set; analytics disabled")
	}

	if e.portal != nil {
		automation.New(e.portal, e.disp).Register(e.disp)
	}

	return e, nil
}

func (e *engine) openStore(ctx context.Context) error {
	cfg := e.cfg

	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		e.db, e.store = s.DB(), s
		e.locker = leaderelection.StandaloneLocker{}
		e.closers = append(e.closers, s.Close)
		log.Printf("bizflow: using sqlite store (%s)", cfg.DatabaseURL)
		return nil

	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

		log.Printf("bizflow: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
			cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

		opCtx, cancel := context.WithTimeout(ctx, cfg.DBOpTimeout)
		defer cancel()
		if err := db.PingContext(opCtx); err != nil {
			_ = db.Close()
			return fmt.Errorf("connect to database: %w", err)
		}

		s := postgres.New(db)
		if err := s.EnsureSchema(opCtx); err != nil {
			_ = db.Close()
			return err
		}
		e.db, e.store = db, s
		e.locker = leaderelection.NewPostgresLocker(db, cfg.LeaderLockKey)
		e.closers = append(e.closers, db.Close)
		return nil
	}
	return fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
}

func (e *engine) executor() (*action.Executor, error) {
	cfg := e.cfg
	exec := action.NewExecutor()

	if cfg.NATSURL != "" {
		n, err := notify.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, n.Close)
		exec.WithNotifier(n)
	} else {
		exec.WithNotifier(notify.LogNotifier{})
	}

	if cfg.SMTPHost != "" {
		tmpl, err := e.templates()
		if err != nil {
			return nil, err
		}
		exec.WithMailer(mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, tmpl))
		log.Printf("bizflow: smtp mailer configured (host=%s:%d, templates=%v)", cfg.SMTPHost, cfg.SMTPPort, tmpl.Names())
	} else {
		exec.WithMailer(mail.LogMailer{})
	}

	webhook := action.NewWebhookHandler().
		WithTimeout(cfg.WebhookTimeout).
		WithMetrics(e.metrics)
	if cfg.CircuitBreakerThreshold > 0 {
		webhook = webhook.WithCircuitBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
		log.Printf("bizflow: webhook circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}
	exec.WithWebhook(webhook)

	if e.portal != nil {
		exec.WithEntityService(e.portal)
	}

	return exec, nil
}

func (e *engine) templates() (*mail.Templates, error) {
	if e.cfg.MailTemplatesFile == "" {
		return mail.DefaultTemplates()
	}
	return mail.LoadTemplates(e.cfg.MailTemplatesFile)
}

// reminders returns the reminder scheduler, or nil when reminders are off.
func (e *engine) reminders() *scheduler.Scheduler {
	if e.cfg.ReminderSchedule == "" || e.portal == nil {
		return nil
	}
	return scheduler.New(
		scheduler.Config{Expression: e.cfg.ReminderSchedule, Timezone: e.cfg.ReminderTimezone},
		e.portal,
		newCronAdapter(),
		e.disp,
	).WithMetrics(e.metrics)
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
