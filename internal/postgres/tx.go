package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so
// repositories work the same inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

type txState struct {
	tx    pgx.Tx
	hooks []func()
}

// TxRunner opens one local transaction per WithTx call and carries it in the
// context. Nested calls join the surrounding transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if stateFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	st := &txState{tx: tx}
	txCtx := context.WithValue(ctx, txKey{}, st)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	// Hooks run outside the transaction boundary, only for durable state.
	for _, h := range st.hooks {
		h()
	}
	return nil
}

// OnCommit registers fn to run after the surrounding transaction commits.
// With no transaction in flight the state is already durable, so fn runs
// immediately.
func OnCommit(ctx context.Context, fn func()) {
	if st := stateFromContext(ctx); st != nil {
		st.hooks = append(st.hooks, fn)
		return
	}
	fn()
}

// From returns the in-flight transaction when ctx carries one, the pool
// otherwise.
func From(ctx context.Context, pool *pgxpool.Pool) Querier {
	if st := stateFromContext(ctx); st != nil {
		return st.tx
	}
	return pool
}

func stateFromContext(ctx context.Context) *txState {
	st, _ := ctx.Value(txKey{}).(*txState)
	return st
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
