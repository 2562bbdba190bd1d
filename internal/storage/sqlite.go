package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/quarry/internal/filter"
	"github.com/roach88/quarry/internal/schema"
)

// driverName registers a sqlite3 driver variant with the FOLD function
// installed on every connection. FOLD is the engine's single definition
// of case-insensitive text (see filter.Fold); compiled statements call it
// for StringMatch predicates with the insensitive mode.
const driverName = "sqlite3_fold"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", filter.Fold, true)
		},
	})
}

// SQLite is the storage implementation backed by a SQLite database.
// Tables are synthesized from the entity registry on open, so a fresh
// database file is immediately usable.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

var _ Storage = (*SQLite)(nil)

// Option configures a SQLite storage.
type Option func(*SQLite)

// WithLogger installs a logger. Default is zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(s *SQLite) { s.log = log }
}

// Open creates or opens a SQLite database at the given path and applies
// the schema derived from the registry. Use ":memory:" for tests.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - Case-sensitive LIKE, so case-insensitivity is always explicit
//
// This function is idempotent - safe to call multiple times.
func Open(path string, reg *schema.Registry, opts ...Option) (*SQLite, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: connect: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db, reg); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{db: db, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries. Use with caution -
// prefer the Storage interface when available.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Query implements Querier.
func (s *SQLite) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, query)
	}
	return rows, nil
}

// Exec implements Querier.
func (s *SQLite) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, query)
	}
	return res, nil
}

// Begin implements Storage. The returned session owns one connection
// until Commit or Rollback.
func (s *SQLite) Begin(ctx context.Context) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, "BEGIN")
	}
	s.log.Debug("session opened")
	return &sqliteSession{tx: tx, log: s.log}, nil
}

type sqliteSession struct {
	tx  *sql.Tx
	log *zap.Logger
}

func (s *sqliteSession) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, query)
	}
	return rows, nil
}

func (s *sqliteSession) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, query)
	}
	return res, nil
}

func (s *sqliteSession) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return classify(err, "COMMIT")
	}
	s.log.Debug("session committed")
	return nil
}

func (s *sqliteSession) Rollback() error {
	err := s.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil // already committed or rolled back
	}
	if err != nil {
		return classify(err, "ROLLBACK")
	}
	s.log.Debug("session rolled back")
	return nil
}

// classify maps sqlite driver errors onto the engine's error taxonomy.
func classify(err error, statement string) error {
	code := ErrCodeGeneric
	if sqliteErr, ok := asSQLiteError(err); ok {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			code = ErrCodeConstraint
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			code = ErrCodeDeadlock
		}
	}
	return &Error{Code: code, Statement: statement, Err: err}
}

func asSQLiteError(err error) (sqlite3.Error, bool) {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se, true
	}
	return sqlite3.Error{}, false
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA case_sensitive_like = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("storage: execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates one table per entity if it doesn't exist. This
// function is idempotent.
func applySchema(db *sql.DB, reg *schema.Registry) error {
	for _, name := range reg.Names() {
		entity, _ := reg.Entity(name)
		ddl := TableDDL(entity)
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("storage: create table %q: %w", name, err)
		}
	}
	return nil
}

// TableDDL synthesizes a CREATE TABLE statement from an entity
// descriptor. Foreign key constraints come from the entity's to-one
// relations (the side carrying the key).
func TableDDL(e *schema.Entity) string {
	var cols []string
	for _, f := range e.Fields {
		col := fmt.Sprintf("%q %s", f.Name, columnType(f.Type))
		if f.Primary {
			col += " PRIMARY KEY"
		}
		if !f.Nullable && !f.Primary {
			col += " NOT NULL"
		}
		if f.Unique && !f.Primary {
			col += " UNIQUE"
		}
		cols = append(cols, col)
	}
	for _, rel := range e.Relations {
		if rel.Kind != schema.ToOne {
			continue
		}
		if ref := rel.References; ref != "" {
			cols = append(cols, fmt.Sprintf("FOREIGN KEY (%q) REFERENCES %q(%q)", rel.ForeignKey, rel.Target, ref))
		} else {
			// Bare REFERENCES resolves to the target's primary key.
			cols = append(cols, fmt.Sprintf("FOREIGN KEY (%q) REFERENCES %q", rel.ForeignKey, rel.Target))
		}
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (\n\t%s\n)", e.Name, strings.Join(cols, ",\n\t"))
}

func columnType(t schema.ScalarType) string {
	switch t {
	case schema.TypeInt:
		return "INTEGER"
	case schema.TypeFloat:
		return "REAL"
	case schema.TypeBool:
		return "INTEGER"
	case schema.TypeTime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}
