// Package sqlite implements the event, trigger and trigger log stores on
// SQLite. It backs local development and the end-to-end tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/djlord-it/bizflow/internal/domain"
	"github.com/djlord-it/bizflow/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS system_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT    NOT NULL,
	entity_id  INTEGER,
	payload    TEXT    NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS system_events_type_created_idx ON system_events (event_type, created_at);

CREATE TABLE IF NOT EXISTS workflow_triggers (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT    NOT NULL,
	event_type    TEXT    NOT NULL,
	conditions    TEXT    NOT NULL DEFAULT '[]',
	action_type   TEXT    NOT NULL,
	action_config TEXT    NOT NULL DEFAULT '{}',
	is_active     INTEGER NOT NULL DEFAULT 1,
	priority      INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS workflow_triggers_active_idx ON workflow_triggers (event_type, is_active, priority, id);

CREATE TABLE IF NOT EXISTS workflow_trigger_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	trigger_id INTEGER NOT NULL,
	event_type TEXT    NOT NULL,
	result     TEXT    NOT NULL,
	error      TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS workflow_trigger_logs_trigger_idx ON workflow_trigger_logs (trigger_id, created_at);
`

const triggerColumns = `id, name, event_type, conditions, action_type, action_config, is_active, priority, created_at, updated_at`

// Store serialises access with a mutex; SQLite allows a single writer.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at dsn and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema to db and returns a store backed by it.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return s, nil
}

// WithClock replaces the timestamp source for stored rows.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

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

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO system_events (event_type, entity_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(ev.Type), entityID, payload, ev.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.Event{}, err
	}
	if ev.ID, err = res.LastInsertId(); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context, f store.EventFilter) ([]domain.Event, error) {
	limit, offset := store.Page(f.Limit, f.Offset)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, entity_id, payload, created_at
		FROM system_events
		WHERE (? = '' OR event_type = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		string(f.Type), string(f.Type), limit, offset,
	)
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
			created  int64
		)
		if err := rows.Scan(&ev.ID, &typ, &entityID, &payload, &created); err != nil {
			return nil, err
		}
		ev.Type = domain.EventType(typ)
		ev.CreatedAt = fromNanos(created)
		if entityID.Valid {
			id := entityID.Int64
			ev.EntityID = &id
		}
		if ev.Payload, err = store.DecodePayload(payload); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (s *Store) ListTriggers(ctx context.Context, eventType domain.EventType) ([]domain.Trigger, error) {
	return s.queryTriggers(ctx, `
		SELECT `+triggerColumns+`
		FROM workflow_triggers
		WHERE (? = '' OR event_type = ?)
		ORDER BY id`,
		string(eventType), string(eventType),
	)
}

func (s *Store) ListActiveTriggers(ctx context.Context, eventType domain.EventType) ([]domain.Trigger, error) {
	return s.queryTriggers(ctx, `
		SELECT `+triggerColumns+`
		FROM workflow_triggers
		WHERE event_type = ? AND is_active = 1
		ORDER BY priority ASC, id ASC`,
		string(eventType),
	)
}

func (s *Store) GetTrigger(ctx context.Context, id int64) (domain.Trigger, error) {
	return s.queryTrigger(ctx, `SELECT `+triggerColumns+` FROM workflow_triggers WHERE id = ?`, id)
}

func (s *Store) CreateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error) {
	cols, err := store.EncodeTrigger(t)
	if err != nil {
		return domain.Trigger{}, err
	}
	now := s.now().UTC().UnixNano()
	return s.queryTrigger(ctx, `
		INSERT INTO workflow_triggers (name, event_type, conditions, action_type, action_config, is_active, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+triggerColumns,
		t.Name, string(t.EventType), cols.Conditions, cols.ActionType, cols.ActionConfig,
		t.IsActive, t.Priority, now, now,
	)
}

func (s *Store) UpdateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error) {
	cols, err := store.EncodeTrigger(t)
	if err != nil {
		return domain.Trigger{}, err
	}
	return s.queryTrigger(ctx, `
		UPDATE workflow_triggers
		SET name = ?, event_type = ?, conditions = ?, action_type = ?, action_config = ?,
		    is_active = ?, priority = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+triggerColumns,
		t.Name, string(t.EventType), cols.Conditions, cols.ActionType, cols.ActionConfig,
		t.IsActive, t.Priority, s.now().UTC().UnixNano(), t.ID,
	)
}

func (s *Store) ToggleTrigger(ctx context.Context, id int64) (domain.Trigger, error) {
	return s.queryTrigger(ctx, `
		UPDATE workflow_triggers
		SET is_active = NOT is_active, updated_at = ?
		WHERE id = ?
		RETURNING `+triggerColumns,
		s.now().UTC().UnixNano(), id,
	)
}

// DeleteTrigger removes the trigger and its logs.
func (s *Store) DeleteTrigger(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM workflow_triggers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_trigger_logs WHERE trigger_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) InsertTriggerLog(ctx context.Context, l domain.TriggerLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_trigger_logs (trigger_id, event_type, result, error, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.TriggerID, string(l.EventType), string(l.Result), l.Error, l.CreatedAt.UnixNano(),
	)
	return err
}

func (s *Store) ListTriggerLogs(ctx context.Context, triggerID int64, limit, offset int) ([]domain.TriggerLog, error) {
	limit, offset = store.Page(limit, offset)

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_id, event_type, result, error, created_at
		FROM workflow_trigger_logs
		WHERE trigger_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		triggerID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.TriggerLog
	for rows.Next() {
		var (
			l        domain.TriggerLog
			typ, res string
			created  int64
		)
		if err := rows.Scan(&l.ID, &l.TriggerID, &typ, &res, &l.Error, &created); err != nil {
			return nil, err
		}
		l.EventType = domain.EventType(typ)
		l.Result = domain.TriggerResult(res)
		l.CreatedAt = fromNanos(created)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row scanner) (domain.Trigger, error) {
	var (
		t                domain.Trigger
		typ              string
		cols             store.TriggerColumns
		created, updated int64
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
		&created,
		&updated,
	)
	if err != nil {
		return domain.Trigger{}, err
	}
	t.EventType = domain.EventType(typ)
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	store.DecodeTrigger(&t, cols)
	return t, nil
}

func (s *Store) queryTrigger(ctx context.Context, query string, args ...any) (domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := scanTrigger(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trigger{}, store.ErrNotFound
	}
	return t, err
}

func (s *Store) queryTriggers(ctx context.Context, query string, args ...any) ([]domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	return result, rows.Err()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
