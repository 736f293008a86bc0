package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/upb/authentication-api/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TransactionManager runs units of work on one *sql.Tx carried through ctx.
// Token rotation relies on it so that a revoke and the save of the
// replacement pair commit together.
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{db: db, logger: logger}
}

// Begin opens a transaction. Failures are reported as store errors.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, repositories.StoreError("begin transaction", err)
	}
	t := &Transaction{tx: sqlTx}
	t.ctx = context.WithValue(ctx, txKey{}, t)
	return t, nil
}

// InTransaction runs fn inside a transaction, committing when fn returns nil
// and rolling back on error or panic. A ctx that already carries a
// transaction is reused, so nested calls join the outer unit of work.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if outer, ok := GetTransactionFromContext(ctx); ok {
		return fn(ctx, outer)
	}

	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(tx.Context(), tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return repositories.StoreError("commit transaction", err)
	}
	committed = true
	return nil
}

// Transaction is a repositories.Transaction over *sql.Tx
type Transaction struct {
	tx  *sql.Tx
	ctx context.Context
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction. Rolling back a finished one is a no-op.
func (t *Transaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Context returns a ctx carrying this transaction
func (t *Transaction) Context() context.Context {
	return t.ctx
}

// GetTransactionFromContext returns the transaction carried by ctx, if any
func GetTransactionFromContext(ctx context.Context) (repositories.Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*Transaction)
	if !ok {
		return nil, false
	}
	return tx, true
}

// GetExecutor returns the transaction carried by ctx, or the pool when there is none
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := ctx.Value(txKey{}).(*Transaction); ok {
		return tx.tx
	}
	return db.DB
}
