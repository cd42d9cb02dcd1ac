package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc runs inside a transaction. Repositories reached through ctx join tx automatically.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes RunTransaction.
type TxOption func(*txSettings)

type txSettings struct {
	attempts int
	budget   time.Duration
}

var defaultTxSettings = txSettings{attempts: 5, budget: 15 * time.Second}

// WithTxAttempts sets how many times the SDK may rerun fn on contention.
func WithTxAttempts(n int) TxOption {
	return func(s *txSettings) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithTxTimeout caps the wall time of all attempts together.
func WithTxTimeout(d time.Duration) TxOption {
	return func(s *txSettings) {
		if d > 0 {
			s.budget = d
		}
	}
}

type activeTxKey struct{}

// WithTransaction returns a ctx through which collection calls read and write via tx.
func WithTransaction(ctx context.Context, tx *firestore.Transaction) context.Context {
	return context.WithValue(ctx, activeTxKey{}, tx)
}

// TransactionFrom reports the transaction a unit of work placed on ctx, if any.
func TransactionFrom(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, _ := ctx.Value(activeTxKey{}).(*firestore.Transaction)
	return tx, tx != nil
}

// RunTransaction runs fn in a fresh transaction on client. fn may be invoked more than
// once, so it must derive every write from the reads of the same attempt.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	switch {
	case client == nil:
		return WrapError("transaction", errors.New("firestore: client is nil"))
	case fn == nil:
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	settings := defaultTxSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	// Only tighten the caller's deadline, never extend it.
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > settings.budget {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.budget)
		defer cancel()
	}

	return WrapError("transaction", client.RunTransaction(ctx, func(attemptCtx context.Context, tx *firestore.Transaction) error {
		return fn(WithTransaction(attemptCtx, tx), tx)
	}, firestore.MaxAttempts(settings.attempts)))
}
