package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/northline-logistics/api/internal/platform/firestore"
)

const countersCollection = "counters"

// sequenceDocument is the stored state of one named sequence, e.g. the tracking number counter.
type sequenceDocument struct {
	Count     int64     `firestore:"count"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out gap-free sequence values stored in the counters collection.
type CounterRepository struct {
	provider  *pfirestore.Provider
	sequences *pfirestore.Collection[sequenceDocument]
	now       func() time.Time
}

func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider:  provider,
		sequences: pfirestore.NewCollection[sequenceDocument](provider, countersCollection),
		now:       time.Now,
	}, nil
}

// Next advances the named sequence by one and returns the value it now holds. A missing
// document starts the sequence at 1. Called inside a unit of work, the increment commits
// or rolls back with the order that consumes it, so a failed create never burns a number.
func (r *CounterRepository) Next(ctx context.Context, counterID string) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	name := strings.TrimSpace(counterID)
	if name == "" {
		return 0, errors.New("counter id is required")
	}

	var value int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		value = 1
		doc, err := r.sequences.Get(ctx, name)
		if err == nil {
			value = doc.Data.Count + 1
		} else if !pfirestore.IsNotFound(err) {
			return err
		}
		return r.sequences.Set(ctx, name, sequenceDocument{Count: value, UpdatedAt: r.now().UTC()})
	})
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return value, nil
}
