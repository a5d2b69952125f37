// Package postgres implements the event, trigger and trigger log stores on
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/store"
)

//go:embed schema.sql
var schema string

// Store is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertEvent persists ev and returns it with ID and CreatedAt set.
func (s *Store) InsertEvent(ctx context.Context, ev domain.Event) (domain.Event, error) {
	payload, err := store.EncodePayload(ev.Payload)
	if err != nil {
		return domain.Event{}, err
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}

	var entityID sql.NullInt64
	if ev.EntityID != nil {
		entityID = sql.NullInt64{Int64: *ev.EntityID, Valid: true}
	}

	err = s.db.QueryRowContext(ctx, queryInsertEvent,
		string(ev.Type),
		entityID,
		payload,
		ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

// ListEvents returns events newest first.
func (s *Store) ListEvents(ctx context.Context, f store.EventFilter) ([]domain.Event, error) {
	limit, offset := store.Page(f.Limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, queryListEvents, string(f.Type), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Event
	for rows.Next() {
		var (
			ev       domain.Event
			typ      string
			entityID sql.NullInt64
			payload  string
		)
		if err := rows.Scan(&ev.ID, &typ, &entityID, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(typ)
		if entityID.Valid {
			id := entityID.Int64
			ev.EntityID = &id
		}
		if ev.Payload, err = store.DecodePayload(payload); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ListTriggers returns all triggers, optionally restricted to one event type.
func (s *Store) ListTriggers(ctx context.Context, eventType domain.EventType) ([]domain.Trigger, error) {
	return s.queryTriggers(ctx, queryListTriggers, string(eventType))
}

// ListActiveTriggers returns active triggers for eventType ordered by
// priority, then id.
func (s *Store) ListActiveTriggers(ctx context.Context, eventType domain.EventType) ([]domain.Trigger, error) {
	return s.queryTriggers(ctx, queryListActiveTriggers, string(eventType))
}

func (s *Store) GetTrigger(ctx context.Context, id int64) (domain.Trigger, error) {
	return s.queryTrigger(ctx, queryGetTrigger, id)
}

func (s *Store) CreateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error) {
	cols, err := store.EncodeTrigger(t)
	if err != nil {
		return domain.Trigger{}, err
	}
	return s.queryTrigger(ctx, queryInsertTrigger,
		t.Name,
		string(t.EventType),
		cols.Conditions,
		cols.ActionType,
		cols.ActionConfig,
		t.IsActive,
		t.Priority,
		s.now().UTC(),
	)
}

// UpdateTrigger overwrites every mutable column of t.
func (s *Store) UpdateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error) {
	cols, err := store.EncodeTrigger(t)
	if err != nil {
		return domain.Trigger{}, err
	}
	return s.queryTrigger(ctx, queryUpdateTrigger,
		t.ID,
		t.Name,
		string(t.EventType),
		cols.Conditions,
		cols.ActionType,
		cols.ActionConfig,
		t.IsActive,
		t.Priority,
		s.now().UTC(),
	)
}

// ToggleTrigger flips is_active in a single statement.
func (s *Store) ToggleTrigger(ctx context.Context, id int64) (domain.Trigger, error) {
	return s.queryTrigger(ctx, queryToggleTrigger, id, s.now().UTC())
}

// DeleteTrigger removes the trigger and, by cascade, its logs.
func (s *Store) DeleteTrigger(ctx context.Context, id int64) error {
	var deletedID int64
	err := s.db.QueryRowContext(ctx, queryDeleteTrigger, id).Scan(&deletedID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) InsertTriggerLog(ctx context.Context, l domain.TriggerLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, queryInsertTriggerLog,
		l.TriggerID,
		string(l.EventType),
		string(l.Result),
		l.Error,
		l.CreatedAt,
	)
	return err
}

// ListTriggerLogs returns a trigger's logs newest first.
func (s *Store) ListTriggerLogs(ctx context.Context, triggerID int64, limit, offset int) ([]domain.TriggerLog, error) {
	limit, offset = store.Page(limit, offset)
	rows, err := s.db.QueryContext(ctx, queryListTriggerLogs, triggerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.TriggerLog
	for rows.Next() {
		var (
			l        domain.TriggerLog
			typ, res string
		)
		if err := rows.Scan(&l.ID, &l.TriggerID, &typ, &res, &l.Error, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.EventType = domain.EventType(typ)
		l.Result = domain.TriggerResult(res)
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row scanner) (domain.Trigger, error) {
	var (
		t    domain.Trigger
		typ  string
		cols store.TriggerColumns
	)
	err := row.Scan(
		&t.ID,
		&t.Name,
		&typ,
		&cols.Conditions,
		&cols.ActionType,
		&cols.ActionConfig,
		&t.IsActive,
		&t.Priority,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return domain.Trigger{}, err
	}
	t.EventType = domain.EventType(typ)
	store.DecodeTrigger(&t, cols)
	return t, nil
}

func (s *Store) queryTrigger(ctx context.Context, query string, args ...any) (domain.Trigger, error) {
	t, err := scanTrigger(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trigger{}, store.ErrNotFound
	}
	return t, err
}

func (s *Store) queryTriggers(ctx context.Context, query string, args ...any) ([]domain.Trigger, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
