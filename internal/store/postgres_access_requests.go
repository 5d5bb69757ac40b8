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
	"github.com/lib/pq"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

const accessRequestColumns = "id, application_id, requested_by, requester_email, reason, scopes, environments, state, decided_by, decision_note, decided_at, created_at, updated_at"

// CreateAccessRequest persists a new pending access request.
func (s *PostgresStore) CreateAccessRequest(
	ctx context.Context,
	request model.AccessRequest,
) (model.AccessRequest, error) {
	now := time.Now().UTC()
	request.ID = strings.TrimSpace(request.ID)
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	request.ApplicationID = strings.TrimSpace(request.ApplicationID)
	request.RequestedBy = strings.TrimSpace(request.RequestedBy)
	request.RequesterEmail = strings.TrimSpace(request.RequesterEmail)
	request.Reason = strings.TrimSpace(request.Reason)
	request.Scopes = model.NormalizeScopes(request.Scopes)
	request.Environments = model.NormalizeScopes(request.Environments)
	if request.State == "" {
		request.State = model.AccessRequestStatePending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = request.CreatedAt

	query := s.sb.
		Insert("apps.access_requests").
		Columns("id", "application_id", "requested_by", "requester_email", "reason",
			"scopes", "environments", "state", "created_at", "updated_at").
		Values(
			request.ID,
			request.ApplicationID,
			request.RequestedBy,
			request.RequesterEmail,
			request.Reason,
			pq.Array(request.Scopes),
			pq.Array(request.Environments),
			request.State,
			request.CreatedAt,
			request.UpdatedAt,
		)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.AccessRequest{}, fmt.Errorf("building access request insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return model.AccessRequest{}, fmt.Errorf("access request %q: %w", request.ID, ErrConflict)
		}
		return model.AccessRequest{}, fmt.Errorf("inserting access request: %w", err)
	}

	return request, nil
}

// GetAccessRequest returns one access request by ID.
func (s *PostgresStore) GetAccessRequest(ctx context.Context, id string) (model.AccessRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.AccessRequest{}, ErrNotFound
	}

	query := s.sb.
		Select(accessRequestColumns).
		From("apps.access_requests").
		Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.AccessRequest{}, fmt.Errorf("building access request get query: %w", err)
	}

	request, err := scanAccessRequest(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AccessRequest{}, ErrNotFound
		}
		return model.AccessRequest{}, err
	}
	return request, nil
}

// UpdateAccessRequest persists a state transition and decision metadata,
// writing the decision event in the same transaction.
func (s *PostgresStore) UpdateAccessRequest(
	ctx context.Context,
	request model.AccessRequest,
	event *events.Event,
) (model.AccessRequest, error) {
	id := strings.TrimSpace(request.ID)
	if id == "" {
		return model.AccessRequest{}, ErrNotFound
	}
	request.ID = id
	request.UpdatedAt = time.Now().UTC()

	query := s.sb.
		Update("apps.access_requests").
		Set("state", request.State).
		Set("decided_by", strings.TrimSpace(request.DecidedBy)).
		Set("decision_note", strings.TrimSpace(request.DecisionNote)).
		Set("decided_at", optionalTimeValue(request.DecidedAt)).
		Set("updated_at", request.UpdatedAt).
		Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.AccessRequest{}, fmt.Errorf("building access request update query: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, execErr := tx.ExecContext(ctx, sqlStr, args...)
		if execErr != nil {
			return fmt.Errorf("updating access request %q: %w", id, execErr)
		}
		affected, affErr := res.RowsAffected()
		if affErr != nil {
			return fmt.Errorf("reading affected rows for access request update: %w", affErr)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return s.appendEventTx(ctx, tx, event)
	})
	if err != nil {
		return model.AccessRequest{}, err
	}

	return s.GetAccessRequest(ctx, id)
}

// ListAccessRequests returns paginated access requests, optionally filtered
// by application and state, newest first.
func (s *PostgresStore) ListAccessRequests(
	ctx context.Context,
	opts ListAccessRequestsOptions,
) ([]model.AccessRequest, int, error) {
	limit := normalizePageLimit(opts.Limit)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	filter := sq.And{}
	if applicationID := strings.TrimSpace(opts.ApplicationID); applicationID != "" {
		filter = append(filter, sq.Eq{"application_id": applicationID})
	}
	if state := strings.TrimSpace(opts.State); state != "" {
		filter = append(filter, sq.Eq{"state": state})
	}

	countQuery := s.sb.Select("COUNT(*)").From("apps.access_requests")
	listQuery := s.sb.
		Select(accessRequestColumns).
		From("apps.access_requests").
		OrderBy("created_at DESC", "id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if len(filter) > 0 {
		countQuery = countQuery.Where(filter)
		listQuery = listQuery.Where(filter)
	}

	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building access requests count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting access requests: %w", err)
	}

	sqlStr, args, err := listQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building access requests list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing access requests: %w", err)
	}
	defer rows.Close()

	items := make([]model.AccessRequest, 0, limit)
	for rows.Next() {
		request, scanErr := scanAccessRequest(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		items = append(items, request)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("iterating access request rows: %w", rowsErr)
	}

	return items, total, nil
}

// ListApprovedAccessRequests returns every approved request of one
// application. Reconciliation folds these into the desired scope set.
func (s *PostgresStore) ListApprovedAccessRequests(
	ctx context.Context,
	applicationID string,
) ([]model.AccessRequest, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return []model.AccessRequest{}, nil
	}

	query := s.sb.
		Select(accessRequestColumns).
		From("apps.access_requests").
		Where(sq.Eq{
			"application_id": applicationID,
			"state":          model.AccessRequestStateApproved,
		}).
		OrderBy("created_at ASC", "id ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building approved requests query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("listing approved requests: %w", err)
	}
	defer rows.Close()

	items := make([]model.AccessRequest, 0)
	for rows.Next() {
		request, scanErr := scanAccessRequest(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, request)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterating approved request rows: %w", rowsErr)
	}

	return items, nil
}

func scanAccessRequest(scanner interface{ Scan(dest ...any) error }) (model.AccessRequest, error) {
	var out model.AccessRequest
	var decidedBy, decisionNote sql.NullString
	var decidedAt sql.NullTime

	err := scanner.Scan(
		&out.ID,
		&out.ApplicationID,
		&out.RequestedBy,
		&out.RequesterEmail,
		&out.Reason,
		pq.Array(&out.Scopes),
		pq.Array(&out.Environments),
		&out.State,
		&decidedBy,
		&decisionNote,
		&decidedAt,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return model.AccessRequest{}, err
	}

	out.DecidedBy = decidedBy.String
	out.DecisionNote = decisionNote.String
	out.DecidedAt = nullTimePtr(decidedAt)
	if out.Scopes == nil {
		out.Scopes = []string{}
	}
	if out.Environments == nil {
		out.Environments = []string{}
	}
	return out, nil
}
