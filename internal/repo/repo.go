package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
)

// ErrNotFound is returned when a row does not exist (or is soft-deleted).
var ErrNotFound = domain.ErrNotFound

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo is the SQLite store. The zero tx field means statements run on DB;
// a Repo returned by InTx runs everything inside one transaction.
type Repo struct {
	DB *sql.DB
	tx *sql.Tx
}

func (r Repo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// InTx runs fn with a Repo bound to a new transaction, committing when fn
// returns nil. Nested calls reuse the outer transaction.
func (r Repo) InTx(ctx context.Context, fn func(tx Repo) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(Repo{DB: r.DB, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// NextSequence increments and returns a per-org counter.
func (r Repo) NextSequence(ctx context.Context, orgID, name string) (int64, error) {
	var v int64
	err := r.q().QueryRowContext(ctx, `INSERT INTO sequences(org_id,name,value) VALUES (?,?,1)
ON CONFLICT(org_id,name) DO UPDATE SET value=value+1 RETURNING value`, orgID, name).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", name, err)
	}
	return v, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if s := string(data); s != "null" && s != "[]" && s != "{}" {
		return s, nil
	}
	return nil, nil
}

func unmarshalJSON(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

type scanner interface {
	Scan(dest ...any) error
}
