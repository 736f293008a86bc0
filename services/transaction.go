package services

import (
	"context"

	"github.com/upb/authentication-api/repositories"
)

// WithTransactionResult executes a function within a transaction and returns a result.
// The zero value is returned when the transaction rolls back.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context, tx repositories.Transaction) (T, error)) (T, error) {
	var result T

	err := txMgr.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		var err error
		result, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}
