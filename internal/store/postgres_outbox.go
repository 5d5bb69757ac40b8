package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/apiforge-io/apiforge-apps/internal/events"
)

const outboxColumns = "id, source, event_type, subject, data, created_at, sent_at"

// AppendEvent writes one outbox row outside of any store mutation. Used for
// events with no accompanying row change, such as reconciliation reports.
func (s *PostgresStore) AppendEvent(ctx context.Context, event events.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := s.sb.
		Insert("apps.outbox").
		Columns("id", "source", "event_type", "subject", "data", "created_at").
		Values(event.ID, event.Source, event.Type, event.Subject,
			[]byte(event.Data), event.CreatedAt.UTC())

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("building outbox insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("event %q: %w", event.ID, ErrConflict)
		}
		return fmt.Errorf("inserting outbox event %q: %w", event.ID, err)
	}
	return nil
}

// ListUnpublishedEvents returns oldest-first outbox rows not yet published.
func (s *PostgresStore) ListUnpublishedEvents(ctx context.Context, limit int) ([]events.Event, error) {
	limit = normalizePageLimit(limit)

	query := s.sb.
		Select(outboxColumns).
		From("apps.outbox").
		Where(sq.Eq{"sent_at": nil}).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building unpublished events query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("listing unpublished events: %w", err)
	}
	defer rows.Close()

	items := make([]events.Event, 0, limit)
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, event)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterating unpublished event rows: %w", rowsErr)
	}

	return items, nil
}

// MarkEventPublished records the publish time of one outbox row.
func (s *PostgresStore) MarkEventPublished(ctx context.Context, id string, sentAt time.Time) error {
	query := s.sb.
		Update("apps.outbox").
		Set("sent_at", sentAt.UTC()).
		Where(sq.Eq{"id": id, "sent_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("building event publish update query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("marking event %q published: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows for event publish: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentEvents returns paginated outbox rows newest first, for the admin
// events listing.
func (s *PostgresStore) ListRecentEvents(ctx context.Context, limit, offset int) ([]events.Event, int, error) {
	limit = normalizePageLimit(limit)
	if offset < 0 {
		offset = 0
	}

	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("apps.outbox").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building events count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting events: %w", err)
	}

	query := s.sb.
		Select(outboxColumns).
		From("apps.outbox").
		OrderBy("created_at DESC", "id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building events list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	items := make([]events.Event, 0, limit)
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		items = append(items, event)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("iterating event rows: %w", rowsErr)
	}

	return items, total, nil
}

func scanEvent(scanner interface{ Scan(dest ...any) error }) (events.Event, error) {
	var out events.Event
	var data []byte
	var sentAt sql.NullTime

	err := scanner.Scan(
		&out.ID,
		&out.Source,
		&out.Type,
		&out.Subject,
		&data,
		&out.CreatedAt,
		&sentAt,
	)
	if err != nil {
		return events.Event{}, err
	}

	out.Data = data
	out.SentAt = nullTimePtr(sentAt)
	return out, nil
}
