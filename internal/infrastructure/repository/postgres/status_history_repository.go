package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

// StatusHistoryRepository reads lead_status_history. The table is written by
// the lead workflow, never by intake.
type StatusHistoryRepository struct {
	db *sql.DB
}

func NewStatusHistoryRepository(db *sql.DB) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

func (r *StatusHistoryRepository) ListRecent(ctx context.Context, q domain.ActivityQuery) ([]domain.StatusHistoryEntry, error) {
	builder := psql().
		Select("id", "lead_id", "old_status", "new_status", "reason", "notes", "changed_by", "changed_at").
		From("lead_status_history").
		OrderBy("changed_at DESC", "id")
	if q.LeadID != "" {
		builder = builder.Where(sq.Eq{"lead_id": q.LeadID})
	}
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build status history query: %w", err)
	}

	var entries []domain.StatusHistoryEntry
	if err := sqlscan.Select(ctx, r.db, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("select status history: %w", err)
	}
	return entries, nil
}
