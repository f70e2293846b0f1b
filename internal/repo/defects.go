package repo

import (
	"context"
	"database/sql"
	"strings"

	"snagline/internal/domain"
)

const defectColumns = `id,title,description,priority,status,project_id,stage_id,reporter_id,assignee_id,due_at,created_at,updated_at`

func (r Repo) InsertDefect(ctx context.Context, tx *sql.Tx, d domain.Defect) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO defects(`+defectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Title, nullable(d.Description), string(d.Priority), string(d.Status), d.ProjectID,
		nullableStringPtr(d.StageID), d.ReporterID, nullableStringPtr(d.AssigneeID), nullableStringPtr(d.DueAt),
		d.CreatedAt, d.UpdatedAt)
	return err
}

// UpdateDefectFields rewrites the mutable field set. Status is deliberately
// not part of this statement; status moves go through UpdateDefectStatus.
func (r Repo) UpdateDefectFields(ctx context.Context, tx *sql.Tx, d domain.Defect) error {
	res, err := tx.ExecContext(ctx, `UPDATE defects SET title=?, description=?, priority=?, stage_id=?, assignee_id=?, due_at=?, updated_at=? WHERE id=?`,
		d.Title, nullable(d.Description), string(d.Priority), nullableStringPtr(d.StageID),
		nullableStringPtr(d.AssigneeID), nullableStringPtr(d.DueAt), d.UpdatedAt, d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDefectStatus applies a guarded status move: the row is only updated
// when its status still matches the snapshot the caller read. Returns false
// when another transaction won the race.
func (r Repo) UpdateDefectStatus(ctx context.Context, tx *sql.Tx, id string, from, to domain.Status, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE defects SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), updatedAt, id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) DeleteDefect(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM defects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type defectScanner interface {
	Scan(dest ...any) error
}

func scanDefect(row defectScanner) (domain.Defect, error) {
	var d domain.Defect
	var description, stageID, assigneeID, dueAt sql.NullString
	var priority, status string
	err := row.Scan(&d.ID, &d.Title, &description, &priority, &status, &d.ProjectID,
		&stageID, &d.ReporterID, &assigneeID, &dueAt, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Priority = domain.Priority(priority)
	d.Status = domain.Status(status)
	if description.Valid {
		d.Description = description.String
	}
	if stageID.Valid {
		d.StageID = &stageID.String
	}
	if assigneeID.Valid {
		d.AssigneeID = &assigneeID.String
	}
	if dueAt.Valid {
		d.DueAt = &dueAt.String
	}
	return d, nil
}

func (r Repo) GetDefect(ctx context.Context, id string) (domain.Defect, error) {
	return scanDefect(r.DB.QueryRowContext(ctx, `SELECT `+defectColumns+` FROM defects WHERE id=?`, id))
}

// GetDefectTx reads the defect inside the caller's transaction so the diff in
// the lifecycle engine is computed against the same snapshot it writes over.
func (r Repo) GetDefectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Defect, error) {
	return scanDefect(tx.QueryRowContext(ctx, `SELECT `+defectColumns+` FROM defects WHERE id=?`, id))
}

// DefectFilters compose conjunctively; a zero-value filter imposes no
// constraint. Query matches title or description, case-insensitively.
type DefectFilters struct {
	Status     domain.Status
	Priority   domain.Priority
	ProjectID  string
	AssigneeID string
	Query      string
	Sort       string
}

// priorityRank orders LOW..CRITICAL for the priority sort keys.
const priorityRank = `CASE priority WHEN 'LOW' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HIGH' THEN 3 ELSE 4 END`

var sortClauses = map[string]string{
	"createdAt_desc": "created_at DESC, id DESC",
	"createdAt_asc":  "created_at ASC, id ASC",
	"priority_desc":  priorityRank + " DESC, created_at DESC, id DESC",
	"priority_asc":   priorityRank + " ASC, created_at DESC, id DESC",
	"dueAt_asc":      "due_at IS NULL, due_at ASC, id ASC",
	"dueAt_desc":     "due_at IS NULL, due_at DESC, id DESC",
}

// SortKeys lists the accepted sort keys; anything else falls back to
// createdAt_desc.
var SortKeys = []string{"createdAt_desc", "createdAt_asc", "priority_desc", "priority_asc", "dueAt_asc", "dueAt_desc"}

func orderClause(sort string) string {
	if clause, ok := sortClauses[sort]; ok {
		return clause
	}
	return sortClauses["createdAt_desc"]
}

func (r Repo) ListDefects(ctx context.Context, f DefectFilters) ([]domain.Defect, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, string(f.Priority))
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Query != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Query + "%"
		args = append(args, pattern, pattern)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + defectColumns + ` FROM defects ` + where + ` ORDER BY ` + orderClause(f.Sort)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Defect
	for rows.Next() {
		d, err := scanDefect(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) countDefectsBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+column+`, count(*) FROM defects GROUP BY `+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		res[key] = count
	}
	return res, rows.Err()
}

func (r Repo) CountDefectsByStatus(ctx context.Context) (map[string]int, error) {
	return r.countDefectsBy(ctx, "status")
}

func (r Repo) CountDefectsByPriority(ctx context.Context) (map[string]int, error) {
	return r.countDefectsBy(ctx, "priority")
}

func (r Repo) CountDefectsByProject(ctx context.Context) (map[string]int, error) {
	return r.countDefectsBy(ctx, "project_id")
}

// ExportRow is one line of the defect report export, with references
// resolved to display names.
type ExportRow struct {
	ID        string
	Title     string
	Status    string
	Priority  string
	Project   string
	Stage     string
	Assignee  string
	Reporter  string
	CreatedAt string
}

func (r Repo) ExportDefects(ctx context.Context) ([]ExportRow, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT d.id, d.title, d.status, d.priority, p.name,
       COALESCE(s.name,''), COALESCE(a.name,''), u.name, d.created_at
FROM defects d
JOIN projects p ON p.id = d.project_id
LEFT JOIN stages s ON s.id = d.stage_id
LEFT JOIN users a ON a.id = d.assignee_id
JOIN users u ON u.id = d.reporter_id
ORDER BY d.created_at DESC, d.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ExportRow
	for rows.Next() {
		var row ExportRow
		if err := rows.Scan(&row.ID, &row.Title, &row.Status, &row.Priority, &row.Project,
			&row.Stage, &row.Assignee, &row.Reporter, &row.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}
