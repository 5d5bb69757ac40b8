package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

const applicationColumns = "id, team_id, name, description, created_by, created_at, updated_at, deleted_at"

// CreateApplication persists a new application and its creation event.
func (s *PostgresStore) CreateApplication(
	ctx context.Context,
	app model.Application,
	event *events.Event,
) (model.Application, error) {
	now := time.Now().UTC()
	app.ID = strings.TrimSpace(app.ID)
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.TeamID = strings.TrimSpace(app.TeamID)
	app.Name = strings.TrimSpace(app.Name)
	app.Description = strings.TrimSpace(app.Description)
	app.CreatedBy = strings.TrimSpace(app.CreatedBy)
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt

	query := s.sb.
		Insert("apps.applications").
		Columns("id", "team_id", "name", "description", "created_by", "created_at", "updated_at").
		Values(app.ID, app.TeamID, app.Name, app.Description, app.CreatedBy, app.CreatedAt, app.UpdatedAt)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Application{}, fmt.Errorf("building application insert query: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, sqlStr, args...); execErr != nil {
			if isUniqueViolation(execErr) {
				return fmt.Errorf("application %q: %w", app.Name, ErrConflict)
			}
			return fmt.Errorf("inserting application: %w", execErr)
		}
		return s.appendEventTx(ctx, tx, event)
	})
	if err != nil {
		return model.Application{}, err
	}

	return app, nil
}

// GetApplication returns one live application by ID. Soft-deleted
// applications are reported as not found.
func (s *PostgresStore) GetApplication(ctx context.Context, id string) (model.Application, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Application{}, ErrNotFound
	}

	query := s.sb.
		Select(applicationColumns).
		From("apps.applications").
		Where(sq.Eq{"id": id, "deleted_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Application{}, fmt.Errorf("building application get query: %w", err)
	}

	app, err := scanApplication(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Application{}, ErrNotFound
		}
		return model.Application{}, err
	}
	return app, nil
}

// ListApplications returns paginated live applications, optionally filtered
// by team, ordered by name.
func (s *PostgresStore) ListApplications(
	ctx context.Context,
	opts ListApplicationsOptions,
) ([]model.Application, int, error) {
	limit := normalizePageLimit(opts.Limit)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	filter := sq.And{sq.Eq{"deleted_at": nil}}
	if teamID := strings.TrimSpace(opts.TeamID); teamID != "" {
		filter = append(filter, sq.Eq{"team_id": teamID})
	}

	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("apps.applications").Where(filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building applications count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting applications: %w", err)
	}

	query := s.sb.
		Select(applicationColumns).
		From("apps.applications").
		Where(filter).
		OrderBy("name ASC", "id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building applications list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	items := make([]model.Application, 0, limit)
	for rows.Next() {
		app, scanErr := scanApplication(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		items = append(items, app)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("iterating application rows: %w", rowsErr)
	}

	return items, total, nil
}

// UpdateApplication updates the mutable fields of a live application.
func (s *PostgresStore) UpdateApplication(ctx context.Context, app model.Application) (model.Application, error) {
	id := strings.TrimSpace(app.ID)
	if id == "" {
		return model.Application{}, fmt.Errorf("application id is required")
	}

	app.ID = id
	app.UpdatedAt = time.Now().UTC()

	query := s.sb.
		Update("apps.applications").
		Set("name", strings.TrimSpace(app.Name)).
		Set("description", strings.TrimSpace(app.Description)).
		Set("updated_at", app.UpdatedAt).
		Where(sq.Eq{"id": id, "deleted_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Application{}, fmt.Errorf("building application update query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Application{}, fmt.Errorf("application %q: %w", app.Name, ErrConflict)
		}
		return model.Application{}, fmt.Errorf("updating application %q: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return model.Application{}, fmt.Errorf("reading affected rows for application update: %w", err)
	}
	if affected == 0 {
		return model.Application{}, ErrNotFound
	}

	return s.GetApplication(ctx, id)
}

// SoftDeleteApplication marks an application deleted while retaining its
// row, and writes the deletion event in the same transaction.
func (s *PostgresStore) SoftDeleteApplication(
	ctx context.Context,
	id string,
	deletedAt time.Time,
	event *events.Event,
) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}

	query := s.sb.
		Update("apps.applications").
		Set("deleted_at", deletedAt.UTC()).
		Set("updated_at", deletedAt.UTC()).
		Where(sq.Eq{"id": id, "deleted_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("building application delete query: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, sqlStr, args...)
		if execErr != nil {
			return fmt.Errorf("soft-deleting application %q: %w", id, execErr)
		}
		affected, affErr := res.RowsAffected()
		if affErr != nil {
			return fmt.Errorf("reading affected rows for application delete: %w", affErr)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return s.appendEventTx(ctx, tx, event)
	})
}

func scanApplication(scanner interface{ Scan(dest ...any) error }) (model.Application, error) {
	var out model.Application
	var deletedAt sql.NullTime

	err := scanner.Scan(
		&out.ID,
		&out.TeamID,
		&out.Name,
		&out.Description,
		&out.CreatedBy,
		&out.CreatedAt,
		&out.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return model.Application{}, err
	}

	out.DeletedAt = nullTimePtr(deletedAt)
	return out, nil
}
