package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

type actorRow struct {
	ID          string `db:"id"`
	DisplayName string `db:"display_name"`
	Email       string `db:"email"`
	Role        string `db:"role"`
}

type ActorDirectory struct {
	db *sql.DB
}

func NewActorDirectory(db *sql.DB) *ActorDirectory {
	return &ActorDirectory{db: db}
}

// Lookup resolves ids in one query. Unknown ids are absent from the result.
func (d *ActorDirectory) Lookup(ctx context.Context, ids []string) (map[string]domain.Actor, error) {
	out := make(map[string]domain.Actor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := psql().
		Select("id", "display_name", "email", "role").
		From("users").
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build actor lookup: %w", err)
	}

	var rows []actorRow
	if err := sqlscan.Select(ctx, d.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select actors: %w", err)
	}
	for _, row := range rows {
		out[row.ID] = domain.Actor{
			ID:          row.ID,
			DisplayName: row.DisplayName,
			Email:       row.Email,
			Role:        row.Role,
		}
	}
	return out, nil
}
