package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/quillpad/quillpad/internal/models"
)

// PostgresUserRepository implements UserRepository on the users table.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

const userColumns = `id, sub, email, name, password_hash, verified_at, created_at, updated_at`

func (r *PostgresUserRepository) Create(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (sub, email, name, password_hash, verified_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, u.Sub, u.Email, u.Name, u.PasswordHash, u.VerifiedAt).Scan(&id, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("Create: %w", err)
	}
	u.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *PostgresUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (sub, email, name, verified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sub) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			verified_at = COALESCE(EXCLUDED.verified_at, users.verified_at),
			updated_at = now()
		RETURNING `+userColumns, u.Sub, NormalizeEmail(u.Email), u.Name, u.VerifiedAt)
	out, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("UpsertBySub: %w", err)
	}
	return out, nil
}

func (r *PostgresUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return r.getOne(ctx, "GetBySub", `SELECT `+userColumns+` FROM users WHERE sub = $1`, sub)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "GetByEmail", `SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email))
}

func (r *PostgresUserRepository) SetPassword(ctx context.Context, sub, hash string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET password_hash = $1, updated_at = now() WHERE sub = $2`, hash, sub)
	if err != nil {
		return fmt.Errorf("SetPassword: %w", err)
	}
	return affected(res)
}

func (r *PostgresUserRepository) MarkVerified(ctx context.Context, sub string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET verified_at = $1, updated_at = now() WHERE sub = $2`, at.UTC(), sub)
	if err != nil {
		return fmt.Errorf("MarkVerified: %w", err)
	}
	return affected(res)
}

func (r *PostgresUserRepository) getOne(ctx context.Context, op, query string, arg string) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u        models.User
		id       int64
		verified sql.NullTime
	)
	if err := row.Scan(&id, &u.Sub, &u.Email, &u.Name, &u.PasswordHash, &verified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	if verified.Valid {
		t := verified.Time
		u.VerifiedAt = &t
	}
	return &u, nil
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
