package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// FromTx wraps a transaction handle so stores can be rebound to it.
func FromTx(tx *gorm.DB) Database {
	return Database{db: tx}
}

// WithTransaction runs fn inside a transaction, committing when fn returns
// nil and rolling back otherwise. fn receives a Database bound to the
// transaction; it must not use the outer Database while running.
func WithTransaction(ctx context.Context, db Database, fn func(tx Database) error) error {
	err := db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(FromTx(tx))
	})
	if err != nil {
		return fmt.Errorf("transaction: %w", err)
	}
	return nil
}

// WithTransactionResult runs fn inside a transaction and returns its result on commit.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx Database) (T, error)) (T, error) {
	var result T
	err := WithTransaction(ctx, db, func(tx Database) error {
		var err error
		result, err = fn(tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
