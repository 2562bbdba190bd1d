package txn

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/quarry/internal/storage"
)

// State enumerates the coordinator's lifecycle states.
//
//	Idle → Active → Committing → Committed
//	              ↘ RollingBack → RolledBack
type State string

const (
	StateIdle        State = "IDLE"
	StateActive      State = "ACTIVE"
	StateCommitting  State = "COMMITTING"
	StateCommitted   State = "COMMITTED"
	StateRollingBack State = "ROLLING_BACK"
	StateRolledBack  State = "ROLLED_BACK"
)

// Handle owns one storage session for the lifetime of a unit of work.
// Every statement issued through the handle runs on that session, so
// later statements observe earlier uncommitted writes (read-your-writes)
// and nothing is visible outside until Commit.
//
// A handle must be closed (Commit or Rollback) on every exit path.
// Rollback is idempotent and safe from failure-handling paths.
type Handle struct {
	mu      sync.Mutex
	state   State
	session storage.Session
	id      string
	log     *zap.Logger
}

var _ storage.Querier = (*Handle)(nil)

// Option configures a handle.
type Option func(*Handle)

// WithLogger installs a logger. Default is zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(h *Handle) { h.log = log }
}

// Begin opens a unit of work on its own storage session.
func Begin(ctx context.Context, store storage.Storage, opts ...Option) (*Handle, error) {
	h := &Handle{state: StateIdle, id: uuid.NewString(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	session, err := store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	h.session = session
	h.state = StateActive
	h.log.Debug("transaction active", zap.String("tx", h.id))
	return h, nil
}

// ID returns the handle's identifier, used for log correlation.
func (h *Handle) ID() string { return h.id }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Query implements storage.Querier on the handle's session. Fails with
// TxAlreadyClosed once the handle has left the Active state.
func (h *Handle) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	session, err := h.activeSession()
	if err != nil {
		return nil, err
	}
	return session.Query(ctx, query, args...)
}

// Exec implements storage.Querier on the handle's session.
func (h *Handle) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	session, err := h.activeSession()
	if err != nil {
		return nil, err
	}
	return session.Exec(ctx, query, args...)
}

func (h *Handle) activeSession() (storage.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateActive {
		return nil, &Error{Code: ErrCodeAlreadyClosed, State: h.state, TxID: h.id}
	}
	return h.session, nil
}

// Commit makes all effects of the unit of work durable and visible.
func (h *Handle) Commit() error {
	h.mu.Lock()
	if h.state != StateActive {
		state := h.state
		h.mu.Unlock()
		return &Error{Code: ErrCodeAlreadyClosed, State: state, TxID: h.id}
	}
	h.state = StateCommitting
	h.mu.Unlock()

	if err := h.session.Commit(); err != nil {
		// A failed commit leaves nothing durable; the session is gone.
		h.setState(StateRolledBack)
		return err
	}
	h.setState(StateCommitted)
	h.log.Debug("transaction committed", zap.String("tx", h.id))
	return nil
}

// Rollback discards every effect since Begin. Idempotent: calling it
// after Commit or a prior Rollback is a no-op, so it is always safe in a
// defer or a failure path.
func (h *Handle) Rollback() error {
	h.mu.Lock()
	if h.state != StateActive {
		h.mu.Unlock()
		return nil
	}
	h.state = StateRollingBack
	h.mu.Unlock()

	err := h.session.Rollback()
	h.setState(StateRolledBack)
	if err != nil {
		return err
	}
	h.log.Debug("transaction rolled back", zap.String("tx", h.id))
	return nil
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Run executes fn inside a unit of work, committing on success and
// rolling back on any error. No partial writes survive a failure. The
// coordinator never retries; DeadlockDetected errors are surfaced for the
// caller to retry the whole unit of work.
func Run(ctx context.Context, store storage.Storage, fn func(*Handle) error, opts ...Option) error {
	h, err := Begin(ctx, store, opts...)
	if err != nil {
		return err
	}
	defer h.Rollback() // no-op if committed

	if err := fn(h); err != nil {
		if rbErr := h.Rollback(); rbErr != nil {
			h.log.Warn("rollback failed", zap.String("tx", h.id), zap.Error(rbErr))
		}
		return err
	}
	return h.Commit()
}
