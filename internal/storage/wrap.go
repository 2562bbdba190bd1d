package storage

import (
	"context"
	"database/sql"
)

// Wrap adapts any *sql.DB to the Storage interface without sqlite error
// classification. Used by tests that drive the engine through sqlmock,
// and usable for other database/sql drivers where generic classification
// is acceptable.
func Wrap(db *sql.DB) Storage {
	return &wrapped{db: db}
}

type wrapped struct {
	db *sql.DB
}

func (w *wrapped) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Code: ErrCodeGeneric, Statement: query, Err: err}
	}
	return rows, nil
}

func (w *wrapped) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := w.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Code: ErrCodeGeneric, Statement: query, Err: err}
	}
	return res, nil
}

func (w *wrapped) Begin(ctx context.Context) (Session, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &Error{Code: ErrCodeGeneric, Statement: "BEGIN", Err: err}
	}
	return &wrappedSession{tx: tx}, nil
}

type wrappedSession struct {
	tx *sql.Tx
}

func (s *wrappedSession) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Code: ErrCodeGeneric, Statement: query, Err: err}
	}
	return rows, nil
}

func (s *wrappedSession) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Code: ErrCodeGeneric, Statement: query, Err: err}
	}
	return res, nil
}

func (s *wrappedSession) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return &Error{Code: ErrCodeGeneric, Statement: "COMMIT", Err: err}
	}
	return nil
}

func (s *wrappedSession) Rollback() error {
	err := s.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	if err != nil {
		return &Error{Code: ErrCodeGeneric, Statement: "ROLLBACK", Err: err}
	}
	return nil
}
