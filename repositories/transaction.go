package repositories

import "context"

// NoopTransactionManager runs functions directly. It backs stores that make
// each operation atomic on their own and have no multi-statement transactions.
type NoopTransactionManager struct{}

// NewNoopTransactionManager creates a new NoopTransactionManager
func NewNoopTransactionManager() TransactionManager {
	return NoopTransactionManager{}
}

// Begin returns a transaction whose Commit and Rollback do nothing
func (NoopTransactionManager) Begin(ctx context.Context) (Transaction, error) {
	return noopTransaction{ctx: ctx}, nil
}

// InTransaction calls fn with the unchanged context
func (m NoopTransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error {
	tx, _ := m.Begin(ctx)
	return fn(ctx, tx)
}

type noopTransaction struct {
	ctx context.Context
}

func (noopTransaction) Commit() error              { return nil }
func (noopTransaction) Rollback() error            { return nil }
func (t noopTransaction) Context() context.Context { return t.ctx }
