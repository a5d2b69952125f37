package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/djlord-it/bizflow/internal/cron"
	"github.com/djlord-it/bizflow/internal/domain"
)

var ErrNoSchedule = errors.New("scheduler: no reminder schedule configured")

// OverdueInvoice is the subset of portal invoice data a reminder needs.
type OverdueInvoice struct {
	ID          int64
	Number      string
	Amount      float64
	Currency    string
	DueDate     time.Time
	ClientID    int64
	ClientName  string
	ClientEmail string
}

type ReminderSource interface {
	ListOverdueInvoices(ctx context.Context, asOf time.Time) ([]OverdueInvoice, error)
}

type CronParser interface {
	Parse(expression string, timezone string) (CronSchedule, error)
}

type CronSchedule interface {
	Next(after time.Time) time.Time
}

type EventEmitter interface {
	Emit(ctx context.Context, eventType domain.EventType, payload map[string]any)
}

type MetricsSink interface {
	ReminderRunCompleted(duration time.Duration, emitted int, err error)
}

type Config struct {
	TickInterval time.Duration
	Expression   string
	Timezone     string
}

// Scheduler emits invoice.overdue for every overdue invoice each time the
// reminder schedule comes due. Occurrences missed between ticks collapse
// into a single run.
type Scheduler struct {
	config   Config
	source   ReminderSource
	parser   CronParser
	emitter  EventEmitter
	metrics  MetricsSink
	clock    func() time.Time
	lastTick time.Time
	lastRun  time.Time
}

func New(config Config, source ReminderSource, parser CronParser, emitter EventEmitter) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = time.Minute
	}
	return &Scheduler{
		config:  config,
		source:  source,
		parser:  parser,
		emitter: emitter,
		clock:   time.Now,
	}
}

func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

func (s *Scheduler) Run(ctx context.Context) error {
	if s.config.Expression == "" {
		return ErrNoSchedule
	}
	sched, err := s.parser.Parse(s.config.Expression, s.config.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Printf("scheduler: started, schedule=%q tz=%s tick=%s", s.config.Expression, s.config.Timezone, s.config.TickInterval)
	s.lastTick = s.clock().UTC()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.processTick(ctx, sched); err != nil {
				log.Printf("scheduler: tick error: %v", err)
			}
		}
	}
}

func (s *Scheduler) processTick(ctx context.Context, sched CronSchedule) error {
	now := s.clock().UTC()
	defer func() { s.lastTick = now }()

	due, missed := cron.Due(sched, s.lastTick, now)
	if missed == 0 || !due.After(s.lastRun) {
		return nil
	}
	if missed > 1 {
		log.Printf("scheduler: %d reminder runs due since %s, running once", missed, s.lastTick.Format(time.RFC3339))
	}

	s.lastRun = due
	_, err := s.RunOnce(ctx, due.UTC())
	return err
}

// RunOnce emits a reminder for every invoice overdue at scheduledAt. Emit
// errors are not possible; a failing source aborts the run.
func (s *Scheduler) RunOnce(ctx context.Context, scheduledAt time.Time) (int, error) {
	start := s.clock()
	emitted, err := s.remind(ctx, scheduledAt)
	if s.metrics != nil {
		s.metrics.ReminderRunCompleted(s.clock().Sub(start), emitted, err)
	}
	return emitted, err
}

func (s *Scheduler) remind(ctx context.Context, scheduledAt time.Time) (int, error) {
	invoices, err := s.source.ListOverdueInvoices(ctx, scheduledAt)
	if err != nil {
		return 0, fmt.Errorf("list overdue invoices: %w", err)
	}

	emitted := 0
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}
		s.emitter.Emit(ctx, domain.EventInvoiceOverdue, reminderPayload(inv, scheduledAt))
		emitted++
	}

	log.Printf("scheduler: reminder run scheduled_at=%s overdue=%d", scheduledAt.Format(time.RFC3339), emitted)
	return emitted, nil
}

func reminderPayload(inv OverdueInvoice, asOf time.Time) map[string]any {
	days := int(asOf.Sub(inv.DueDate) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	p := map[string]any{
		domain.PayloadKeyEntityID: inv.ID,
		"invoiceNumber":           inv.Number,
		"amount":                  inv.Amount,
		"dueDate":                 inv.DueDate.Format(time.DateOnly),
		"daysOverdue":             days,
		"scheduledAt":             asOf.Format(time.RFC3339),
	}
	if inv.Currency != "" {
		p["currency"] = inv.Currency
	}
	if inv.ClientID != 0 {
		p["clientId"] = inv.ClientID
	}
	if inv.ClientName != "" {
		p["clientName"] = inv.ClientName
	}
	if inv.ClientEmail != "" {
		p["email"] = inv.ClientEmail
	}
	return p
}
