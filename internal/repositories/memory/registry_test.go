package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/northline-logistics/api/internal/domain"
	"github.com/northline-logistics/api/internal/repositories"
)

func TestCounterNextDistinctUnderConcurrency(t *testing.T) {
	counters := NewRegistry().Counters()
	const callers = 64

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]struct{}, callers)
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := counters.Next(context.Background(), "order_track")
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			seen[v] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != callers {
		t.Fatalf("expected %d distinct values, got %d", callers, len(seen))
	}
}

func TestMutateAppliesConcurrentWritersInTurn(t *testing.T) {
	reg := NewRegistry()
	orders := reg.Orders()
	ctx := context.Background()
	if err := orders.Insert(ctx, domain.Order{ID: "ord_1", Status: domain.OrderStatusUnassigned, Logs: []domain.OrderLogEntry{{Message: "created"}}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var wg sync.WaitGroup
	for _, msg := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orders.Mutate(ctx, "ord_1", func(o *domain.Order) error {
				o.Logs = append(o.Logs, domain.OrderLogEntry{Message: msg})
				return nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := orders.FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(stored.Logs) != 4 || stored.Revision != 3 {
		t.Fatalf("expected 4 logs at revision 3, got %d at %d", len(stored.Logs), stored.Revision)
	}

	abort := errors.New("abort")
	if _, err := orders.Mutate(ctx, "ord_1", func(o *domain.Order) error {
		o.Logs = nil
		return abort
	}); !errors.Is(err, abort) {
		t.Fatalf("expected abort, got %v", err)
	}
	stored, _ = orders.FindByID(ctx, "ord_1")
	if len(stored.Logs) != 4 {
		t.Fatalf("failed mutation must not be stored")
	}
}

func TestMissingRecordsAreNotFound(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	_, err := reg.Orders().FindByTrackOrder(ctx, "NL0404")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := reg.Users().FindByID(ctx, "nobody"); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestCustomerUniqueness(t *testing.T) {
	reg := NewRegistry()
	customers := reg.Customers()
	ctx := context.Background()
	now := time.Now()

	if err := customers.Insert(ctx, domain.Customer{ID: "c1", Email: "a@x.io", MobileNumber: "1", OwnerID: "u1", CreatedAt: now}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var dup *repositories.DuplicateError
	if err := customers.Insert(ctx, domain.Customer{ID: "c2", Email: "b@x.io", MobileNumber: "1", OwnerID: "u1"}); !errors.As(err, &dup) || dup.Field != "mobileNumber" {
		t.Fatalf("expected duplicate mobile, got %v", err)
	}
	if err := customers.Insert(ctx, domain.Customer{ID: "c2", Email: "b@x.io", MobileNumber: "2", OwnerID: "u2", CreatedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	page, err := customers.List(ctx, repositories.CustomerListFilter{OwnerID: "u1", Limit: 10})
	if err != nil || page.Total != 1 || page.Items[0].ID != "c1" {
		t.Fatalf("unexpected owner listing %+v %v", page, err)
	}
}
