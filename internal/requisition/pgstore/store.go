// Package pgstore persists requisitions in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/reqflow/internal/platform/db"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements requisition.Store on a pgx pool. The aggregate is kept as a
// JSONB document next to the columns used for filtering and versioning.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ requisition.Store = (*Store)(nil)

// Create inserts req; an existing id is reported as requisition.ErrConflict.
func (s *Store) Create(ctx context.Context, req requisition.Requisition) error {
	return insert(ctx, s.pool, req)
}

// Get loads one requisition.
func (s *Store) Get(ctx context.Context, id string) (requisition.Requisition, error) {
	row := s.pool.QueryRow(ctx, `SELECT document, version, reminder_count FROM requisitions WHERE id = $1`, id)
	req, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return requisition.Requisition{}, requisition.ErrNotFound
	}
	return req, err
}

// List returns requisitions matching filter, oldest first.
func (s *Store) List(ctx context.Context, filter requisition.Filter) ([]requisition.Requisition, error) {
	query := `SELECT document, version, reminder_count FROM requisitions WHERE 1=1`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND "+clause, len(args))
	}
	if filter.Type != "" {
		add("type = $%d", string(filter.Type))
	}
	if filter.Stage != "" {
		add("stage = $%d", string(filter.Stage))
	}
	if filter.RequesterID != "" {
		add("requester_id = $%d", filter.RequesterID)
	}
	if filter.ParentID != "" {
		add("parent_id = $%d", filter.ParentID)
	}
	if filter.ActiveOnly {
		idle := make([]string, 0, len(requisition.IdleStages))
		for _, stage := range requisition.IdleStages {
			idle = append(idle, string(stage))
		}
		add("NOT (stage = ANY($%d))", idle)
	}
	if !filter.UpdatedBefore.IsZero() {
		add("updated_at < $%d", filter.UpdatedBefore.UTC())
	}
	query += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
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
	return update(ctx, s.pool, req, expectedVersion)
}

// SaveSplit writes the parent and its children in one transaction. An
// expectedVersion of zero inserts the parent instead of updating it.
func (s *Store) SaveSplit(ctx context.Context, parent requisition.Requisition, expectedVersion int64, children []requisition.Requisition) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if expectedVersion == 0 {
			if err := insert(ctx, tx, parent); err != nil {
				return err
			}
		} else if err := update(ctx, tx, parent, expectedVersion); err != nil {
			return err
		}
		for _, child := range children {
			if err := insert(ctx, tx, child); err != nil {
				return err
			}
		}
		return nil
	})
}

// IncrementReminder bumps the reminder counter without touching the version.
func (s *Store) IncrementReminder(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE requisitions SET reminder_count = reminder_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgstore: increment reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return requisition.ErrNotFound
	}
	return nil
}

func insert(ctx context.Context, q querier, req requisition.Requisition) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("pgstore: encode %s: %w", req.ID, err)
	}
	_, err = q.Exec(ctx, `INSERT INTO requisitions
		(id, type, stage, requester_id, parent_id, version, reminder_count, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, string(req.Type), string(req.Stage), req.Requester.ID, nullable(req.ParentID),
		req.Version, req.ReminderCount, doc, req.CreatedAt.UTC(), req.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("pgstore: %s exists: %w", req.ID, requisition.ErrConflict)
		}
		return fmt.Errorf("pgstore: insert %s: %w", req.ID, err)
	}
	return nil
}

func update(ctx context.Context, q querier, req requisition.Requisition, expectedVersion int64) error {
	doc, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("pgstore: encode %s: %w", req.ID, err)
	}
	tag, err := q.Exec(ctx, `UPDATE requisitions
		SET stage = $3, parent_id = $4, version = $5, document = $6, updated_at = $7
		WHERE id = $1 AND version = $2`,
		req.ID, expectedVersion, string(req.Stage), nullable(req.ParentID), req.Version, doc, req.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("pgstore: update %s: %w", req.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requisitions WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
		return fmt.Errorf("pgstore: update %s: %w", req.ID, err)
	}
	if !exists {
		return requisition.ErrNotFound
	}
	return fmt.Errorf("pgstore: %s is no longer at version %d: %w", req.ID, expectedVersion, requisition.ErrConflict)
}

func scan(row pgx.Row) (requisition.Requisition, error) {
	var (
		doc       []byte
		version   int64
		reminders int
	)
	if err := row.Scan(&doc, &version, &reminders); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return requisition.Requisition{}, err
		}
		return requisition.Requisition{}, fmt.Errorf("pgstore: scan: %w", err)
	}
	var req requisition.Requisition
	if err := json.Unmarshal(doc, &req); err != nil {
		return requisition.Requisition{}, fmt.Errorf("pgstore: decode: %w", err)
	}
	req.Version = version
	req.ReminderCount = reminders
	return req, nil
}

func nullable(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
