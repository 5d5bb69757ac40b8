package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/apiforge-io/apiforge-apps/internal/events"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewPostgresStore creates a new store instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// appendEventTx writes one outbox row inside an open transaction. A nil
// event is a no-op so mutations can skip event emission.
func (s *PostgresStore) appendEventTx(ctx context.Context, tx *sql.Tx, event *events.Event) error {
	if event == nil {
		return nil
	}

	persisted := *event
	if persisted.CreatedAt.IsZero() {
		persisted.CreatedAt = time.Now().UTC()
	}

	query := s.sb.
		Insert("apps.outbox").
		Columns("id", "source", "event_type", "subject", "data", "created_at").
		Values(persisted.ID, persisted.Source, persisted.Type, persisted.Subject,
			[]byte(persisted.Data), persisted.CreatedAt.UTC())

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("building outbox insert query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("inserting outbox event %q: %w", persisted.ID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func optionalTimeValue(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func normalizePageLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageLimit
	case limit > maxPageLimit:
		return maxPageLimit
	default:
		return limit
	}
}
