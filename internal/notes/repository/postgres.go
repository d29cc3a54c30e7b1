package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/quillpad/quillpad/internal/models"
)

// PostgresRepo implements Repository against the notes and note_attachments
// tables. Identifiers are BIGSERIAL values rendered as decimal strings.
type PostgresRepo struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresRepo creates a PostgresRepo; db must already carry the schema.
func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

const listNotesQuery = `
SELECT n.id, n.title, n.content, n.user_id, n.created_at, n.updated_at,
       a.id, a.file_name, a.file_type, a.file_size, a.file_path, a.created_at
FROM notes n
LEFT JOIN note_attachments a ON a.note_id = n.id AND a.user_id = n.user_id
WHERE n.user_id = $1
ORDER BY n.created_at DESC, n.id DESC, a.id ASC`

// List fetches the user's notes joined with their attachments in one query.
func (r *PostgresRepo) List(ctx context.Context, userID string) ([]*models.Note, error) {
	rows, err := r.DB.QueryContext(ctx, listNotesQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	out := []*models.Note{}
	var cur *models.Note
	for rows.Next() {
		var (
			noteID                    int64
			n                         models.Note
			attID, attSize            sql.NullInt64
			attName, attType, attPath sql.NullString
			attCreated                sql.NullTime
		)
		if err := rows.Scan(&noteID, &n.Title, &n.Content, &n.UserID, &n.CreatedAt, &n.UpdatedAt,
			&attID, &attName, &attType, &attSize, &attPath, &attCreated); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		n.ID = strconv.FormatInt(noteID, 10)
		if cur == nil || cur.ID != n.ID {
			n.Attachments = []*models.Attachment{}
			cur = &n
			out = append(out, cur)
		}
		if attID.Valid {
			cur.Attachments = append(cur.Attachments, &models.Attachment{
				ID:        strconv.FormatInt(attID.Int64, 10),
				NoteID:    cur.ID,
				FileName:  attName.String,
				FileType:  attType.String,
				FileSize:  attSize.Int64,
				Path:      attPath.String,
				UserID:    cur.UserID,
				CreatedAt: attCreated.Time,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) Get(ctx context.Context, userID, id string) (*models.Note, error) {
	nid, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	var n models.Note
	err := r.DB.QueryRowContext(ctx, `
		SELECT title, content, user_id, created_at, updated_at FROM notes WHERE id = $1 AND user_id = $2
	`, nid, userID).Scan(&n.Title, &n.Content, &n.UserID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	n.ID = id
	atts, err := r.ListAttachments(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	n.Attachments = atts
	return &n, nil
}

func (r *PostgresRepo) Create(ctx context.Context, n *models.Note) (string, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO notes (title, content, user_id) VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, n.Title, n.Content, n.UserID).Scan(&id, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("Create: %w", err)
	}
	n.ID = strconv.FormatInt(id, 10)
	return n.ID, nil
}

func (r *PostgresRepo) Update(ctx context.Context, userID, id, title, content string) error {
	nid, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx, `
		UPDATE notes SET title = $1, content = $2, updated_at = $3 WHERE id = $4 AND user_id = $5
	`, title, content, time.Now().UTC(), nid, userID)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return requireAffected(res)
}

func (r *PostgresRepo) Delete(ctx context.Context, userID, id string) error {
	nid, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM notes WHERE id = $1 AND user_id = $2`, nid, userID)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return requireAffected(res)
}

// AddAttachment inserts the row only when the owned parent note exists, in a
// single statement so the check and the insert cannot interleave with a delete.
func (r *PostgresRepo) AddAttachment(ctx context.Context, a *models.Attachment) (string, error) {
	nid, ok := parseID(a.NoteID)
	if !ok {
		return "", ErrNotFound
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO note_attachments (note_id, file_name, file_type, file_size, file_path, user_id)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM notes WHERE id = $1 AND user_id = $6)
		RETURNING id, created_at
	`, nid, a.FileName, a.FileType, a.FileSize, a.Path, a.UserID).Scan(&id, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("AddAttachment: %w", err)
	}
	a.ID = strconv.FormatInt(id, 10)
	return a.ID, nil
}

func (r *PostgresRepo) GetAttachment(ctx context.Context, userID, id string) (*models.Attachment, error) {
	aid, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	row := r.DB.QueryRowContext(ctx, `
		SELECT id, note_id, file_name, file_type, file_size, file_path, user_id, created_at
		FROM note_attachments WHERE id = $1 AND user_id = $2
	`, aid, userID)
	a, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("GetAttachment: %w", err)
	}
	return a, nil
}

func (r *PostgresRepo) ListAttachments(ctx context.Context, userID, noteID string) ([]*models.Attachment, error) {
	nid, ok := parseID(noteID)
	if !ok {
		return []*models.Attachment{}, nil
	}
	return r.queryAttachments(ctx, "ListAttachments", `
		SELECT id, note_id, file_name, file_type, file_size, file_path, user_id, created_at
		FROM note_attachments WHERE note_id = $1 AND user_id = $2 ORDER BY id ASC
	`, nid, userID)
}

func (r *PostgresRepo) DeleteAttachment(ctx context.Context, userID, id string) error {
	aid, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM note_attachments WHERE id = $1 AND user_id = $2`, aid, userID)
	if err != nil {
		return fmt.Errorf("DeleteAttachment: %w", err)
	}
	return requireAffected(res)
}

func (r *PostgresRepo) Orphans(ctx context.Context) ([]*models.Attachment, error) {
	return r.queryAttachments(ctx, "Orphans", `
		SELECT a.id, a.note_id, a.file_name, a.file_type, a.file_size, a.file_path, a.user_id, a.created_at
		FROM note_attachments a LEFT JOIN notes n ON n.id = a.note_id
		WHERE n.id IS NULL ORDER BY a.id ASC
	`)
}

func (r *PostgresRepo) queryAttachments(ctx context.Context, op, query string, args ...any) ([]*models.Attachment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	out := []*models.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttachment(s rowScanner) (*models.Attachment, error) {
	var (
		a          models.Attachment
		id, noteID int64
	)
	if err := s.Scan(&id, &noteID, &a.FileName, &a.FileType, &a.FileSize, &a.Path, &a.UserID, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = strconv.FormatInt(id, 10)
	a.NoteID = strconv.FormatInt(noteID, 10)
	return &a, nil
}

func parseID(id string) (int64, bool) {
	v, err := strconv.ParseInt(id, 10, 64)
	return v, err == nil && v > 0
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
