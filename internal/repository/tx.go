package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrStoreBusy means no pooled connection became free within the acquisition timeout.
	ErrStoreBusy = errors.New("catalog store busy")
	// ErrConsistency means a statement touched more rows than the transition allows.
	ErrConsistency = errors.New("catalog consistency violation")
)

const defaultAcquireTimeout = 3 * time.Second

// Tx is a catalog transaction. The caller decides when to commit; Rollback after
// Commit is a no-op so it can always be deferred.
type Tx interface {
	Commit() error
	Rollback() error
}

type pgTx struct {
	tx      *sqlx.Tx
	conn    *sqlx.Conn
	release sync.Once
}

func (t *pgTx) Commit() error {
	defer t.close()
	return t.tx.Commit()
}

func (t *pgTx) Rollback() error {
	defer t.close()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (t *pgTx) close() {
	t.release.Do(func() { _ = t.conn.Close() })
}

func unwrapTx(tx Tx) (*sqlx.Tx, error) {
	t, ok := tx.(*pgTx)
	if !ok || t == nil {
		return nil, fmt.Errorf("unsupported transaction handle %T", tx)
	}
	return t.tx, nil
}

// acquire takes a pooled connection, waiting at most acquireTimeout. The timeout
// only bounds the wait; the returned connection lives until closed.
func (r *PaperRepository) acquire(ctx context.Context) (*sqlx.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()

	conn, err := r.db.Connx(actx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no connection within %s", ErrStoreBusy, r.acquireTimeout)
		}
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

// BeginTx starts a transaction on a freshly acquired connection.
func (r *PaperRepository) BeginTx(ctx context.Context) (Tx, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("begin catalog transaction: %w", err)
	}
	return &pgTx{tx: tx, conn: conn}, nil
}

func (r *PaperRepository) withConn(ctx context.Context, fn func(*sqlx.Conn) error) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck
	return fn(conn)
}

func expectOneRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	switch {
	case affected == 0:
		return sql.ErrNoRows
	case affected > 1:
		return fmt.Errorf("%s touched %d rows: %w", op, affected, ErrConsistency)
	}
	return nil
}
