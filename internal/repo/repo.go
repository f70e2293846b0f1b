package repo

import (
	"context"
	"database/sql"
	"errors"

	"snagline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,description,created_at) VALUES (?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertStage(ctx context.Context, s domain.Stage) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO stages(id,project_id,name,position,created_at) VALUES (?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, s.Position, s.CreatedAt)
	return err
}

func (r Repo) GetStage(ctx context.Context, id string) (domain.Stage, error) {
	var s domain.Stage
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,position,created_at FROM stages WHERE id=?`, id).
		Scan(&s.ID, &s.ProjectID, &s.Name, &s.Position, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListStages(ctx context.Context, projectID string) ([]domain.Stage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,position,created_at FROM stages WHERE project_id=? ORDER BY position ASC, name ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Stage
	for rows.Next() {
		var s domain.Stage
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Position, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
