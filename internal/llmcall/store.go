package llmcall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS llm_calls (
	id               TEXT PRIMARY KEY,
	request_id       TEXT NOT NULL,
	timestamp        TEXT NOT NULL,
	latency_ms       INTEGER NOT NULL,
	prompt_key       TEXT,
	prompt_hash      TEXT,
	instruction_hash TEXT,
	backend          TEXT NOT NULL,
	model            TEXT,
	mode             TEXT,
	schema_name      TEXT,
	temperature      REAL,
	input_tokens     INTEGER DEFAULT 0,
	output_tokens    INTEGER DEFAULT 0,
	response         TEXT,
	success          INTEGER NOT NULL,
	failure_kind     TEXT,
	failure_path     TEXT,
	error            TEXT
);

CREATE INDEX IF NOT EXISTS idx_llm_calls_timestamp ON llm_calls(timestamp);
CREATE INDEX IF NOT EXISTS idx_llm_calls_prompt_key ON llm_calls(prompt_key);
CREATE INDEX IF NOT EXISTS idx_llm_calls_backend ON llm_calls(backend);
`

// timeLayout is fixed-width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `id, request_id, timestamp, latency_ms, prompt_key, prompt_hash,
	instruction_hash, backend, model, mode, schema_name, temperature,
	input_tokens, output_tokens, response, success, failure_kind, failure_path, error`

// Store provides access to call records in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// QueryFilter specifies filters for listing calls.
type QueryFilter struct {
	PromptKey   string
	Backend     string
	Model       string
	Mode        string
	FailureKind string
	After       *time.Time
	Before      *time.Time
	Success     *bool
	Limit       int
	Offset      int
}

// NewStore opens or creates the history database at path.
// The path can be a file path or ":memory:" for an in-memory database.
func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close() // Close error less important than schema error
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes calls in a single transaction.
func (s *Store) Insert(ctx context.Context, calls ...*Call) error {
	if len(calls) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO llm_calls (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range calls {
		if c == nil {
			continue
		}
		var temperature sql.NullFloat64
		if c.Temperature != nil {
			temperature = sql.NullFloat64{Float64: *c.Temperature, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			c.ID, c.RequestID, c.Timestamp.UTC().Format(timeLayout), c.LatencyMs,
			c.PromptKey, c.PromptHash, c.InstructionHash,
			c.Backend, c.Model, c.Mode, c.Schema, temperature,
			c.InputTokens, c.OutputTokens, c.Response,
			c.Success, c.FailureKind, c.FailurePath, c.Error,
		)
		if err != nil {
			return fmt.Errorf("insert call %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get retrieves a single call by ID. Returns nil, nil when no call matches.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM llm_calls WHERE id = ?`, id)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return call, nil
}

// List retrieves calls matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	var (
		conditions []string
		args       []any
	)
	addEq := func(column, value string) {
		if value != "" {
			conditions = append(conditions, column+" = ?")
			args = append(args, value)
		}
	}
	addEq("prompt_key", filter.PromptKey)
	addEq("backend", filter.Backend)
	addEq("model", filter.Model)
	addEq("mode", filter.Mode)
	addEq("failure_kind", filter.FailureKind)

	if filter.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *filter.Success)
	}
	if filter.After != nil {
		conditions = append(conditions, "timestamp > ?")
		args = append(args, filter.After.UTC().Format(timeLayout))
	}
	if filter.Before != nil {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.Before.UTC().Format(timeLayout))
	}

	query := `SELECT ` + selectColumns + ` FROM llm_calls`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	} else if filter.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	calls := make([]Call, 0)
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return calls, nil
}

// CountByPromptKey returns call counts grouped by prompt key.
func (s *Store) CountByPromptKey(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT COALESCE(prompt_key, ''), COUNT(*) FROM llm_calls GROUP BY prompt_key`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*Call, error) {
	var (
		c               Call
		timestamp       string
		promptKey       sql.NullString
		promptHash      sql.NullString
		instructionHash sql.NullString
		model           sql.NullString
		mode            sql.NullString
		schemaName      sql.NullString
		temperature     sql.NullFloat64
		response        sql.NullString
		failureKind     sql.NullString
		failurePath     sql.NullString
		errText         sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.RequestID, &timestamp, &c.LatencyMs,
		&promptKey, &promptHash, &instructionHash,
		&c.Backend, &model, &mode, &schemaName, &temperature,
		&c.InputTokens, &c.OutputTokens, &response,
		&c.Success, &failureKind, &failurePath, &errText,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(timeLayout, timestamp); err == nil {
		c.Timestamp = t
	}
	c.PromptKey = promptKey.String
	c.PromptHash = promptHash.String
	c.InstructionHash = instructionHash.String
	c.Model = model.String
	c.Mode = mode.String
	c.Schema = schemaName.String
	if temperature.Valid {
		v := temperature.Float64
		c.Temperature = &v
	}
	c.Response = response.String
	c.FailureKind = failureKind.String
	c.FailurePath = failurePath.String
	c.Error = errText.String
	return &c, nil
}
