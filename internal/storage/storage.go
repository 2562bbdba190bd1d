package storage

import (
	"context"
	"database/sql"
)

// Querier is the statement-execution surface shared by a Storage and the
// Sessions it opens. All values are parameterized; no caller ever
// interpolates values into SQL text.
type Querier interface {
	// Query executes a read statement and returns the resulting rows.
	// Callers are responsible for closing the returned rows.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// Exec executes a write statement.
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Storage is the abstract contract the engine consumes: parameterized
// statement execution plus explicit transaction boundaries.
type Storage interface {
	Querier

	// Begin opens a new session with its own transaction scope. The
	// session exclusively owns one underlying connection until Commit or
	// Rollback.
	Begin(ctx context.Context) (Session, error)
}

// Session is a transaction scope. Statements issued through the same
// session observe each other's uncommitted effects (read-your-writes) and
// are invisible to other sessions until Commit.
type Session interface {
	Querier

	// Commit makes the session's effects durable and visible.
	Commit() error

	// Rollback discards all effects since Begin. Safe to call after
	// Commit (no-op), so `defer sess.Rollback()` works on every exit
	// path.
	Rollback() error
}
