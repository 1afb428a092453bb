package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"imageorganizer/internal/models"
)

// SQLiteStore persists the ledger in a SQLite database. A partial
// unique index on (origin, source_id) over staged rows enforces the
// single-active-operation invariant inside the database itself, so
// concurrent CLI invocations cannot double-stage a record.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the ledger database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		operation_id TEXT PRIMARY KEY,
		origin TEXT NOT NULL,
		source_id TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		original_location TEXT NOT NULL,
		staged_location TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_operations_active
		ON operations(origin, source_id) WHERE state = 'staged';

	CREATE INDEX IF NOT EXISTS idx_operations_state ON operations(state);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements Store.
func (s *SQLiteStore) Append(op *models.StagingOperation) error {
	_, err := s.db.Exec(`
		INSERT INTO operations (operation_id, origin, source_id, display_name,
			size_bytes, original_location, staged_location, reason, state,
			failure_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.OperationID,
		string(op.Origin),
		op.SourceID,
		op.DisplayName,
		op.SizeBytes,
		op.OriginalLocation,
		op.StagedLocation,
		op.Reason,
		string(op.State),
		op.FailureReason,
		op.CreatedAt.UTC().Format(time.RFC3339Nano),
		op.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrAlreadyStaged
		}
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

const operationColumns = `operation_id, origin, source_id, display_name, size_bytes,
	original_location, staged_location, reason, state, failure_reason, created_at, updated_at`

func scanOperation(row interface{ Scan(...any) error }) (*models.StagingOperation, error) {
	op := &models.StagingOperation{}
	var origin, state, createdAt, updatedAt string
	err := row.Scan(
		&op.OperationID,
		&origin,
		&op.SourceID,
		&op.DisplayName,
		&op.SizeBytes,
		&op.OriginalLocation,
		&op.StagedLocation,
		&op.Reason,
		&state,
		&op.FailureReason,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	op.Origin = models.Origin(origin)
	op.State = models.OperationState(state)
	op.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	op.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return op, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(operationID string) (*models.StagingOperation, error) {
	row := s.db.QueryRow(`SELECT `+operationColumns+` FROM operations WHERE operation_id = ?`, operationID)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load operation: %w", err)
	}
	return op, nil
}

// List implements Store.
func (s *SQLiteStore) List(state models.OperationState) ([]*models.StagingOperation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations ORDER BY created_at`
	args := []any{}
	if state != "" {
		query = `SELECT ` + operationColumns + ` FROM operations WHERE state = ? ORDER BY created_at`
		args = append(args, string(state))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.StagingOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// UpdateState implements Store. The state check is part of the UPDATE
// itself, so the transition is a single atomic compare-and-set.
func (s *SQLiteStore) UpdateState(operationID string, from, to models.OperationState) error {
	res, err := s.db.Exec(`
		UPDATE operations SET state = ?, updated_at = ? WHERE operation_id = ? AND state = ?
	`, string(to), time.Now().UTC().Format(time.RFC3339Nano), operationID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update operation state: %w", err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := s.Get(operationID); err != nil {
			return err
		}
		return ErrTerminalState
	}
	return nil
}

// RecordFailure implements Store.
func (s *SQLiteStore) RecordFailure(operationID, reason string) error {
	res, err := s.db.Exec(`
		UPDATE operations SET failure_reason = ?, updated_at = ? WHERE operation_id = ?
	`, reason, time.Now().UTC().Format(time.RFC3339Nano), operationID)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveFor implements Store.
func (s *SQLiteStore) ActiveFor(key models.RecordKey) (*models.StagingOperation, error) {
	row := s.db.QueryRow(
		`SELECT `+operationColumns+` FROM operations WHERE origin = ? AND source_id = ? AND state = 'staged'`,
		string(key.Origin), key.SourceID)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active operation: %w", err)
	}
	return op, nil
}
