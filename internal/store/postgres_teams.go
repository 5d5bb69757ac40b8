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

	"github.com/apiforge-io/apiforge-apps/internal/model"
)

const teamColumns = "id, name, description, created_at, updated_at"

// CreateTeam persists a new team. Team names are unique.
func (s *PostgresStore) CreateTeam(ctx context.Context, team model.Team) (model.Team, error) {
	now := time.Now().UTC()
	team.ID = strings.TrimSpace(team.ID)
	if team.ID == "" {
		team.ID = uuid.NewString()
	}
	team.Name = strings.TrimSpace(team.Name)
	team.Description = strings.TrimSpace(team.Description)
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}
	team.UpdatedAt = team.CreatedAt

	query := s.sb.
		Insert("apps.teams").
		Columns("id", "name", "description", "created_at", "updated_at").
		Values(team.ID, team.Name, team.Description, team.CreatedAt, team.UpdatedAt)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Team{}, fmt.Errorf("building team insert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if isUniqueViolation(err) {
			return model.Team{}, fmt.Errorf("team %q: %w", team.Name, ErrConflict)
		}
		return model.Team{}, fmt.Errorf("inserting team: %w", err)
	}

	return team, nil
}

// GetTeam returns one team by ID.
func (s *PostgresStore) GetTeam(ctx context.Context, id string) (model.Team, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Team{}, ErrNotFound
	}

	query := s.sb.Select(teamColumns).From("apps.teams").Where(sq.Eq{"id": id})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Team{}, fmt.Errorf("building team get query: %w", err)
	}

	team, err := scanTeam(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Team{}, ErrNotFound
		}
		return model.Team{}, err
	}
	return team, nil
}

// ListTeams returns paginated teams ordered by name.
func (s *PostgresStore) ListTeams(ctx context.Context, limit, offset int) ([]model.Team, int, error) {
	limit = normalizePageLimit(limit)
	if offset < 0 {
		offset = 0
	}

	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("apps.teams").ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building teams count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting teams: %w", err)
	}

	query := s.sb.
		Select(teamColumns).
		From("apps.teams").
		OrderBy("name ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building teams list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing teams: %w", err)
	}
	defer rows.Close()

	items := make([]model.Team, 0, limit)
	for rows.Next() {
		team, scanErr := scanTeam(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		items = append(items, team)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, 0, fmt.Errorf("iterating team rows: %w", rowsErr)
	}

	return items, total, nil
}

func scanTeam(scanner interface{ Scan(dest ...any) error }) (model.Team, error) {
	var out model.Team
	err := scanner.Scan(&out.ID, &out.Name, &out.Description, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return model.Team{}, err
	}
	return out, nil
}
