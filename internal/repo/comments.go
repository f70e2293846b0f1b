package repo

import (
	"context"

	"snagline/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, c domain.Comment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO comments(id,defect_id,author_id,content,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.DefectID, c.AuthorID, c.Content, c.CreatedAt)
	return err
}

func (r Repo) ListComments(ctx context.Context, defectID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,defect_id,author_id,content,created_at FROM comments WHERE defect_id=? ORDER BY created_at DESC, id DESC`, defectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.DefectID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertAttachment(ctx context.Context, a domain.Attachment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO attachments(id,defect_id,uploaded_by_id,original_name,stored_name,mime_type,size,path,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.DefectID, a.UploadedByID, a.OriginalName, a.StoredName, a.MimeType, a.Size, a.Path, a.CreatedAt)
	return err
}

func (r Repo) ListAttachments(ctx context.Context, defectID string) ([]domain.Attachment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,defect_id,uploaded_by_id,original_name,stored_name,mime_type,size,path,created_at FROM attachments WHERE defect_id=? ORDER BY created_at DESC, id DESC`, defectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.DefectID, &a.UploadedByID, &a.OriginalName, &a.StoredName, &a.MimeType, &a.Size, &a.Path, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
