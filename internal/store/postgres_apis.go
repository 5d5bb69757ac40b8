package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

const apiLinkColumns = "application_id, api_id, endpoints, linked_by, created_at, updated_at"

// UpsertAPILink creates or replaces the link between an application and a
// published API. Re-linking overwrites the consumed endpoint list.
func (s *PostgresStore) UpsertAPILink(
	ctx context.Context,
	link model.APILink,
	event *events.Event,
) (model.APILink, error) {
	now := time.Now().UTC()
	link.ApplicationID = strings.TrimSpace(link.ApplicationID)
	link.APIID = strings.TrimSpace(link.APIID)
	link.LinkedBy = strings.TrimSpace(link.LinkedBy)
	link.Endpoints = model.NormalizeEndpoints(link.Endpoints)
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now

	endpoints, err := json.Marshal(link.Endpoints)
	if err != nil {
		return model.APILink{}, fmt.Errorf("marshaling link endpoints: %w", err)
	}

	query := s.sb.
		Insert("apps.application_apis").
		Columns("application_id", "api_id", "endpoints", "linked_by", "created_at", "updated_at").
		Values(link.ApplicationID, link.APIID, endpoints, link.LinkedBy, link.CreatedAt, link.UpdatedAt).
		Suffix("ON CONFLICT (application_id, api_id) DO UPDATE SET endpoints = EXCLUDED.endpoints, linked_by = EXCLUDED.linked_by, updated_at = EXCLUDED.updated_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.APILink{}, fmt.Errorf("building api link upsert query: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, execErr := tx.ExecContext(ctx, sqlStr, args...); execErr != nil {
			return fmt.Errorf("upserting api link %q: %w", link.APIID, execErr)
		}
		return s.appendEventTx(ctx, tx, event)
	})
	if err != nil {
		return model.APILink{}, err
	}

	return link, nil
}

// DeleteAPILink removes the link between an application and a published API.
func (s *PostgresStore) DeleteAPILink(
	ctx context.Context,
	applicationID, apiID string,
	event *events.Event,
) error {
	applicationID = strings.TrimSpace(applicationID)
	apiID = strings.TrimSpace(apiID)
	if applicationID == "" || apiID == "" {
		return ErrNotFound
	}

	query := s.sb.
		Delete("apps.application_apis").
		Where(sq.Eq{"application_id": applicationID, "api_id": apiID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("building api link delete query: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, sqlStr, args...)
		if execErr != nil {
			return fmt.Errorf("deleting api link %q: %w", apiID, execErr)
		}
		affected, affErr := res.RowsAffected()
		if affErr != nil {
			return fmt.Errorf("reading affected rows for api link delete: %w", affErr)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return s.appendEventTx(ctx, tx, event)
	})
}

// ListAPILinks returns all API links of one application ordered by API ID.
func (s *PostgresStore) ListAPILinks(ctx context.Context, applicationID string) ([]model.APILink, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return []model.APILink{}, nil
	}

	query := s.sb.
		Select(apiLinkColumns).
		From("apps.application_apis").
		Where(sq.Eq{"application_id": applicationID}).
		OrderBy("api_id ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building api link list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("listing api links: %w", err)
	}
	defer rows.Close()

	items := make([]model.APILink, 0)
	for rows.Next() {
		link, scanErr := scanAPILink(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, link)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterating api link rows: %w", rowsErr)
	}

	return items, nil
}

func scanAPILink(scanner interface{ Scan(dest ...any) error }) (model.APILink, error) {
	var out model.APILink
	var endpoints []byte

	err := scanner.Scan(
		&out.ApplicationID,
		&out.APIID,
		&endpoints,
		&out.LinkedBy,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return model.APILink{}, err
	}

	if len(endpoints) > 0 {
		if err := json.Unmarshal(endpoints, &out.Endpoints); err != nil {
			return model.APILink{}, fmt.Errorf("decoding link endpoints: %w", err)
		}
	}
	if out.Endpoints == nil {
		out.Endpoints = []model.Endpoint{}
	}
	return out, nil
}
