// Package store keeps emitted records in a SQL database, one row per record plus
// one row per field value.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/dgallion1/apindex/internal/fields"
	"github.com/dgallion1/apindex/internal/record"
	"github.com/dgallion1/apindex/internal/segment"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id    TEXT PRIMARY KEY,
		kind  TEXT NOT NULL,
		druid TEXT NOT NULL,
		body  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS records_druid ON records (druid)`,
	`CREATE TABLE IF NOT EXISTS record_values (
		record_id TEXT NOT NULL,
		field     TEXT NOT NULL,
		position  INTEGER,
		value     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS record_values_record ON record_values (record_id, field)`,
}

// Row is a stored record.
type Row struct {
	ID    string
	Kind  record.Kind
	Druid string
	Body  json.RawMessage
}

// Value is one stored field value. Position is set for position-aware fields only.
type Value struct {
	Position sql.NullInt64
	Value    string
}

type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to dsn with driver and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverSQLite {
		// One connection: SQLite has a single writer and :memory: databases are
		// per connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	s := &Store{db: db, driver: driver}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Put inserts rec, replacing any earlier record with the same id.
func (s *Store) Put(ctx context.Context, rec *record.Record) (err error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO records (id, kind, druid, body) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET kind = excluded.kind, druid = excluded.druid, body = excluded.body`),
		rec.ID, string(rec.Kind), rec.Druid(), string(body)); err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.ID, err)
	}
	if _, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM record_values WHERE record_id = ?`), rec.ID); err != nil {
		return fmt.Errorf("clear values %s: %w", rec.ID, err)
	}

	insert := s.rebind(`INSERT INTO record_values (record_id, field, position, value) VALUES (?, ?, ?, ?)`)
	for _, key := range rec.Fields.Keys() {
		positional := fields.Positional(key)
		for i, v := range rec.Fields.Values(key) {
			var pos sql.NullInt64
			if positional {
				pos = sql.NullInt64{Int64: int64(i), Valid: true}
			}
			if _, err = tx.ExecContext(ctx, insert, rec.ID, key, pos, valueString(v)); err != nil {
				return fmt.Errorf("insert value %s.%s: %w", rec.ID, key, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns the stored record id, or nil when there is none.
func (s *Store) Get(ctx context.Context, id string) (*Row, error) {
	var r Row
	var kind, body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, kind, druid, body FROM records WHERE id = ?`), id).
		Scan(&r.ID, &kind, &r.Druid, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	r.Kind = record.Kind(kind)
	r.Body = json.RawMessage(body)
	return &r, nil
}

// Values returns the stored values of one field of a record, in order.
func (s *Store) Values(ctx context.Context, id, field string) ([]Value, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT position, value FROM record_values
		WHERE record_id = ? AND field = ?
		ORDER BY position`), id, field)
	if err != nil {
		return nil, fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	var out []Value
	for rows.Next() {
		var v Value
		if err := rows.Scan(&v.Position, &v.Value); err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Count returns the number of records stored for druid.
func (s *Store) Count(ctx context.Context, druid string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM records WHERE druid = ?`), druid).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// DeleteVolume removes every record of druid and returns how many were removed.
func (s *Store) DeleteVolume(ctx context.Context, druid string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`
		DELETE FROM record_values WHERE record_id IN (SELECT id FROM records WHERE druid = ?)`), druid); err != nil {
		return 0, fmt.Errorf("delete values: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM records WHERE druid = ?`), druid)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Sink adapts the store to the segmentation engine's sink.
func (s *Store) Sink(ctx context.Context) segment.Sink {
	return segment.SinkFunc(func(rec *record.Record) error {
		return s.Put(ctx, rec)
	})
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
