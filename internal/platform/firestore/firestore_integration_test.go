//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/northline-logistics/api/internal/platform/firestore"
	"github.com/northline-logistics/api/internal/platform/firestore/firestoretest"
)

type sampleEntity struct {
	Name  string `firestore:"name"`
	Count int    `firestore:"count"`
}

func TestCollectionIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	samples := pfirestore.NewCollection[sampleEntity](provider, "samples")

	if err := samples.Create(ctx, "s1", sampleEntity{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := samples.Create(ctx, "s1", sampleEntity{Name: "dup"})
	type classifier interface{ IsConflict() bool }
	var cls classifier
	if !errors.As(err, &cls) || !cls.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		doc, err := samples.Get(ctx, "s1")
		if err != nil {
			return err
		}
		doc.Data.Count++
		return samples.Set(ctx, "s1", doc.Data)
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	doc, err := samples.Get(ctx, "s1")
	if err != nil || doc.Data.Count != 2 {
		t.Fatalf("expected count 2, got %+v %v", doc.Data, err)
	}

	total, err := samples.Count(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("name", "==", "alpha")
	})
	if err != nil || total != 1 {
		t.Fatalf("expected count aggregation 1, got %d %v", total, err)
	}

	if _, err := samples.Get(ctx, "missing"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
