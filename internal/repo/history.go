package repo

import (
	"context"
	"database/sql"

	"snagline/internal/domain"
)

const historyColumns = `id,defect_id,field,old_value,new_value,from_status,to_status,actor_id,note,created_at`

func scanHistoryRows(rows *sql.Rows) ([]domain.HistoryEvent, error) {
	var res []domain.HistoryEvent
	for rows.Next() {
		var h domain.HistoryEvent
		var oldValue, fromStatus, toStatus, note sql.NullString
		if err := rows.Scan(&h.ID, &h.DefectID, &h.Field, &oldValue, &h.NewValue, &fromStatus, &toStatus, &h.ActorID, &note, &h.CreatedAt); err != nil {
			return nil, err
		}
		if oldValue.Valid {
			h.OldValue = oldValue.String
		}
		if fromStatus.Valid {
			s := domain.Status(fromStatus.String)
			h.FromStatus = &s
		}
		if toStatus.Valid {
			s := domain.Status(toStatus.String)
			h.ToStatus = &s
		}
		if note.Valid {
			h.Note = note.String
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// ListHistory returns the full history of a defect ordered by creation time.
// Ascending order is replay order; descending is display order.
func (r Repo) ListHistory(ctx context.Context, defectID string, ascending bool) ([]domain.HistoryEvent, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+historyColumns+`
FROM defect_history WHERE defect_id=? ORDER BY created_at `+order+`, id `+order, defectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

// HistoryAfter returns up to limit history rows across all defects with an
// id greater than afterID, oldest first. Webhook delivery cursors on this.
func (r Repo) HistoryAfter(ctx context.Context, limit int, afterID int64) ([]domain.HistoryEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+historyColumns+`
FROM defect_history WHERE id>? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHistoryRows(rows)
}

// LatestHistoryID returns the highest history row id, 0 when empty.
func (r Repo) LatestHistoryID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM defect_history`).Scan(&id)
	return id, err
}

// CountHistory returns the number of history rows for a defect.
func (r Repo) CountHistory(ctx context.Context, defectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM defect_history WHERE defect_id=?`, defectID).Scan(&n)
	return n, err
}
