package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/apiforge-io/apiforge-apps/internal/events"
	"github.com/apiforge-io/apiforge-apps/internal/model"
)

const credentialColumns = "id, application_id, environment, client_id, created_at, updated_at"

// CreateCredential persists a gateway credential, enforcing the
// per-environment cap inside the transaction. The count query locks the
// application row first so concurrent issuance in the same environment
// serializes.
func (s *PostgresStore) CreateCredential(
	ctx context.Context,
	credential model.Credential,
	event *events.Event,
) (model.Credential, error) {
	now := time.Now().UTC()
	credential.ID = strings.TrimSpace(credential.ID)
	if credential.ID == "" {
		credential.ID = uuid.NewString()
	}
	credential.ApplicationID = strings.TrimSpace(credential.ApplicationID)
	credential.Environment = strings.TrimSpace(credential.Environment)
	credential.ClientID = strings.TrimSpace(credential.ClientID)
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}
	credential.UpdatedAt = credential.CreatedAt

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		lockSQL, lockArgs, buildErr := s.sb.
			Select("id").
			From("apps.applications").
			Where(sq.Eq{"id": credential.ApplicationID, "deleted_at": nil}).
			Suffix("FOR UPDATE").
			ToSql()
		if buildErr != nil {
			return fmt.Errorf("building application lock query: %w", buildErr)
		}
		var lockedID string
		if scanErr := tx.QueryRowContext(ctx, lockSQL, lockArgs...).Scan(&lockedID); scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return ErrNotFound
			}
			return fmt.Errorf("locking application %q: %w", credential.ApplicationID, scanErr)
		}

		countSQL, countArgs, buildErr := s.sb.
			Select("COUNT(*)").
			From("apps.credentials").
			Where(sq.Eq{
				"application_id": credential.ApplicationID,
				"environment":    credential.Environment,
			}).
			ToSql()
		if buildErr != nil {
			return fmt.Errorf("building credential count query: %w", buildErr)
		}
		var count int
		if scanErr := tx.QueryRowContext(ctx, countSQL, countArgs...).Scan(&count); scanErr != nil {
			return fmt.Errorf("counting credentials: %w", scanErr)
		}
		if count >= model.MaxCredentialsPerEnvironment {
			return fmt.Errorf("environment %q: %w", credential.Environment, ErrCredentialLimit)
		}

		insertSQL, insertArgs, buildErr := s.sb.
			Insert("apps.credentials").
			Columns("id", "application_id", "environment", "client_id", "created_at", "updated_at").
			Values(
				credential.ID,
				credential.ApplicationID,
				credential.Environment,
				credential.ClientID,
				credential.CreatedAt,
				credential.UpdatedAt,
			).
			ToSql()
		if buildErr != nil {
			return fmt.Errorf("building credential insert query: %w", buildErr)
		}
		if _, execErr := tx.ExecContext(ctx, insertSQL, insertArgs...); execErr != nil {
			if isUniqueViolation(execErr) {
				return fmt.Errorf("credential %q in %q: %w", credential.ClientID, credential.Environment, ErrConflict)
			}
			return fmt.Errorf("inserting credential: %w", execErr)
		}

		return s.appendEventTx(ctx, tx, event)
	})
	if err != nil {
		return model.Credential{}, err
	}

	return credential, nil
}

// ListCredentials returns all credentials of one application ordered by
// environment then creation time.
func (s *PostgresStore) ListCredentials(ctx context.Context, applicationID string) ([]model.Credential, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return []model.Credential{}, nil
	}

	query := s.sb.
		Select(credentialColumns).
		From("apps.credentials").
		Where(sq.Eq{"application_id": applicationID}).
		OrderBy("environment ASC", "created_at ASC", "id ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building credential list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	items := make([]model.Credential, 0)
	for rows.Next() {
		credential, scanErr := scanCredential(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, credential)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterating credential rows: %w", rowsErr)
	}

	return items, nil
}

// DeleteCredentials removes every credential of one application in one
// environment, returning the removed rows so the caller can revoke the
// gateway clients.
func (s *PostgresStore) DeleteCredentials(
	ctx context.Context,
	applicationID, environment string,
	event *events.Event,
) ([]model.Credential, error) {
	applicationID = strings.TrimSpace(applicationID)
	environment = strings.TrimSpace(environment)
	if applicationID == "" || environment == "" {
		return nil, ErrNotFound
	}

	query := s.sb.
		Delete("apps.credentials").
		Where(sq.Eq{"application_id": applicationID, "environment": environment}).
		Suffix("RETURNING " + credentialColumns)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building credential delete query: %w", err)
	}

	var removed []model.Credential
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		rows, queryErr := tx.QueryContext(ctx, sqlStr, args...)
		if queryErr != nil {
			return fmt.Errorf("deleting credentials: %w", queryErr)
		}
		defer rows.Close()

		for rows.Next() {
			credential, scanErr := scanCredential(rows)
			if scanErr != nil {
				return scanErr
			}
			removed = append(removed, credential)
		}
		if rowsErr := rows.Err(); rowsErr != nil {
			return fmt.Errorf("iterating deleted credential rows: %w", rowsErr)
		}
		if len(removed) == 0 {
			return ErrNotFound
		}

		return s.appendEventTx(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	return removed, nil
}

func scanCredential(scanner interface{ Scan(dest ...any) error }) (model.Credential, error) {
	var out model.Credential
	err := scanner.Scan(
		&out.ID,
		&out.ApplicationID,
		&out.Environment,
		&out.ClientID,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return model.Credential{}, err
	}
	return out, nil
}
