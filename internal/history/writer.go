package history

import (
	"context"
	"database/sql"
	"time"

	"snagline/internal/domain"
)

// Writer appends audit records inside the caller's transaction so the defect
// write and its history commit or roll back as one unit.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// Record is one field change to append.
type Record struct {
	DefectID   string
	Field      string
	OldValue   string
	NewValue   string
	FromStatus *domain.Status
	ToStatus   *domain.Status
	ActorID    string
	Note       string
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO defect_history(defect_id,field,old_value,new_value,from_status,to_status,actor_id,note,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.DefectID, rec.Field, nullable(rec.OldValue), rec.NewValue,
		nullableStatus(rec.FromStatus), nullableStatus(rec.ToStatus), rec.ActorID, nullable(rec.Note), ts)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStatus(s *domain.Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
