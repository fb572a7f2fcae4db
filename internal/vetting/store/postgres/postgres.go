// internal/vetting/store/postgres/postgres.go
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vetting-engine/internal/common/database"
	"vetting-engine/internal/vetting/store"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Store implements store.Store on PostgreSQL.
type Store struct {
	pg *database.PostgresClient
}

var _ store.Store = (*Store)(nil)

func New(pg *database.PostgresClient) *Store {
	return &Store{pg: pg}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pg.DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// mapError translates driver errors into store sentinels.
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s (%s)", store.ErrDuplicate, what, pqErr.Constraint)
		case pqCheckViolation:
			return fmt.Errorf("%s violates %s: %w", what, pqErr.Constraint, err)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func expectOneRow(res sql.Result, notMatched error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notMatched
	}
	return nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func unmarshalJSON(raw []byte, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
