package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

// Repository exposes persistence operations for users.
type Repository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByRole(ctx context.Context, role requisition.Role) ([]User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, user User) error
}

const userColumns = `id, email, name, role, password_hash, is_active, created_at, updated_at`

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByID loads a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail loads a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// ListByRole returns users holding role ordered by id.
func (r *PGRepository) ListByRole(ctx context.Context, role requisition.Role) ([]User, error) {
	return r.many(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, string(role))
}

// List returns every user ordered by id.
func (r *PGRepository) List(ctx context.Context) ([]User, error) {
	return r.many(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// Create inserts a user.
func (r *PGRepository) Create(ctx context.Context, user User) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.Name, string(user.Role), user.PasswordHash, user.IsActive,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("auth: create user: %w", err)
	}
	return nil
}

func (r *PGRepository) one(ctx context.Context, query string, arg any) (*User, error) {
	user, err := scanPG(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	return &user, nil
}

func (r *PGRepository) many(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auth: list users: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanPG(rows)
		if err != nil {
			return nil, fmt.Errorf("auth: list users: %w", err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func scanPG(row pgx.Row) (User, error) {
	var (
		user User
		role string
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	user.Role = requisition.Role(role)
	return user, err
}

// SQLiteRepository implements Repository on the database shared with sqlitestore.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository constructs a SQLiteRepository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// FindByID loads a user by id.
func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByEmail loads a user by email.
func (r *SQLiteRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

// ListByRole returns users holding role ordered by id.
func (r *SQLiteRepository) ListByRole(ctx context.Context, role requisition.Role) ([]User, error) {
	return r.many(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY id`, string(role))
}

// List returns every user ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]User, error) {
	return r.many(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

// Create inserts a user.
func (r *SQLiteRepository) Create(ctx context.Context, user User) error {
	active := 0
	if user.IsActive {
		active = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, string(user.Role), user.PasswordHash, active,
		user.CreatedAt.UTC().Format(sqliteTimeLayout), user.UpdatedAt.UTC().Format(sqliteTimeLayout))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("auth: create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) one(ctx context.Context, query string, arg any) (*User, error) {
	user, err := scanSQLite(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	return &user, nil
}

func (r *SQLiteRepository) many(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auth: list users: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("auth: list users: %w", err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func scanSQLite(row interface{ Scan(dest ...any) error }) (User, error) {
	var (
		user             User
		role             string
		active           int
		created, updated string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.PasswordHash, &active, &created, &updated); err != nil {
		return User{}, err
	}
	user.Role = requisition.Role(role)
	user.IsActive = active != 0
	user.CreatedAt, _ = time.Parse(sqliteTimeLayout, created)
	user.UpdatedAt, _ = time.Parse(sqliteTimeLayout, updated)
	return user, nil
}
