package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// NoTX marks a non-transactional repository call.
var NoTX Tx

// TransactionManager executes a function within a database transaction,
// passing the underlying handle via `tx`.
//
// Use-case interfaces stay clean (no driver types leaking out); repository
// methods accept `tx Tx` and detect a live transaction implementation-side.
// Repositories MUST gracefully accept NoTX (non-transactional path).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
