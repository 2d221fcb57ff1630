// Package sqlitestore persists requisitions in a single SQLite file for
// single-site deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/odyssey-erp/reqflow/internal/platform/migrations"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

const (
	sqliteBusyCode          = 5
	sqliteConstraintPK      = 1555
	sqliteConstraintUnique  = 2067
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	// fixed width so stored timestamps compare correctly as text
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements requisition.Store on SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ requisition.Store = (*Store)(nil)

// Open connects to the database at path and applies migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	if err := migrations.Up(ctx, db, migrations.SQLite, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// DB exposes the handle so other repositories can share the file.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts req; an existing id is reported as requisition.ErrConflict.
func (s *Store) Create(ctx context.Context, req requisition.Requisition) error {
	return retryOnBusy(ctx, func() error { return insert(ctx, s.db, req) })
}

// Get loads one requisition.
func (s *Store) Get(ctx context.Context, id string) (requisition.Requisition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT document, version, reminder_count FROM requisitions WHERE id = ?`, id)
	req, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return requisition.Requisition{}, requisition.ErrNotFound
	}
	return req, err
}

// List returns requisitions matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter requisition.Filter) ([]requisition.Requisition, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Stage != "" {
		clauses = append(clauses, "stage = ?")
		args = append(args, string(filter.Stage))
	}
	if filter.RequesterID != "" {
		clauses = append(clauses, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.ParentID != "" {
		clauses = append(clauses, "parent_id = ?")
		args = append(args, filter.ParentID)
	}
	if filter.ActiveOnly {
		marks := make([]string, 0, len(requisition.IdleStages))
		for _, stage := range requisition.IdleStages {
			marks = append(marks, "?")
			args = append(args, string(stage))
		}
		clauses = append(clauses, "stage NOT IN ("+strings.Join(marks, ", ")+")")
	}
	if !filter.UpdatedBefore.IsZero() {
		clauses = append(clauses, "updated_at < ?")
		args = append(args, formatTime(filter.UpdatedBefore))
	}

	query := `SELECT document, version, reminder_count FROM requisitions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()
	var out []requisition.Requisition
	for rows.Next() {
		req, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Replace writes req when the stored version still equals expectedVersion.
func (s *Store) Replace(ctx context.Context, req requisition.Requisition, expectedVersion int64) error {
	return retryOnBusy(ctx, func() error { return update(ctx, s.db, req, expectedVersion) })
}

// SaveSplit writes the parent and its children in one transaction. An
// expectedVersion of zero inserts the parent instead of updating it.
func (s *Store) SaveSplit(ctx context.Context, parent requisition.Requisition, expectedVersion int64, children []requisition.Requisition) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlitestore: begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if expectedVersion == 0 {
			err = insert(ctx, tx, parent)
		} else {
			err = update(ctx, tx, parent, expectedVersion)
		}
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := insert(ctx, tx, child); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlitestore: commit tx: %w", err)
		}
		return nil
	})
}

// IncrementReminder bumps the reminder counter without touching the version.
func (s *Store) IncrementReminder(ctx context.Context, id string) error {
	return retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE requisitions SET reminder_count = reminder_count + 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlitestore: increment reminder: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlitestore: increment reminder: %w", err)
		}
		if n == 0 {
			return requisition.ErrNotFound
		}
		return nil
	})
}

func insert(ctx context.Context, q execer, req requisition.Requisition) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode %s: %w", req.ID, err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO requisitions
		(id, type, stage, requester_id, parent_id, version, reminder_count, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(req.Type), string(req.Stage), req.Requester.ID, nullable(req.ParentID),
		req.Version, req.ReminderCount, string(doc), formatTime(req.CreatedAt), formatTime(req.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlitestore: %s exists: %w", req.ID, requisition.ErrConflict)
		}
		return fmt.Errorf("sqlitestore: insert %s: %w", req.ID, err)
	}
	return nil
}

func update(ctx context.Context, q execer, req requisition.Requisition, expectedVersion int64) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode %s: %w", req.ID, err)
	}
	res, err := q.ExecContext(ctx, `UPDATE requisitions
		SET stage = ?, parent_id = ?, version = ?, document = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(req.Stage), nullable(req.ParentID), req.Version, string(doc), formatTime(req.UpdatedAt),
		req.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("sqlitestore: update %s: %w", req.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: update %s: %w", req.ID, err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM requisitions WHERE id = ?`, req.ID).Scan(&exists); err != nil {
		return fmt.Errorf("sqlitestore: update %s: %w", req.ID, err)
	}
	if exists == 0 {
		return requisition.ErrNotFound
	}
	return fmt.Errorf("sqlitestore: %s is no longer at version %d: %w", req.ID, expectedVersion, requisition.ErrConflict)
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (requisition.Requisition, error) {
	var (
		doc       string
		version   int64
		reminders int
	)
	if err := row.Scan(&doc, &version, &reminders); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return requisition.Requisition{}, err
		}
		return requisition.Requisition{}, fmt.Errorf("sqlitestore: scan: %w", err)
	}
	var req requisition.Requisition
	if err := json.Unmarshal([]byte(doc), &req); err != nil {
		return requisition.Requisition{}, fmt.Errorf("sqlitestore: decode: %w", err)
	}
	req.Version = version
	req.ReminderCount = reminders
	return req, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullable(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func isUniqueViolation(err error) bool {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		code := coder.Code()
		if code == sqliteConstraintPK || code == sqliteConstraintUnique {
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
