package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/northline-logistics/api/internal/domain"
	"github.com/northline-logistics/api/internal/repositories/memory"
)

var reportNow = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)

func statusPtr(s domain.OrderStatus) *domain.OrderStatus { return &s }

func logAt(ts time.Time, status domain.OrderStatus) domain.OrderLogEntry {
	return domain.OrderLogEntry{Timestamp: ts, Status: statusPtr(status), Reason: domain.DefaultLogReason}
}

func newReportFixture(t *testing.T, orders ...domain.Order) (*memory.Registry, OrderReportService) {
	t.Helper()
	registry := memory.NewRegistry()
	registry.PutUser(domain.User{ID: "usr_driver", Name: "Dana", Role: domain.UserRoleDriver})
	ctx := context.Background()
	for _, order := range orders {
		if err := registry.Orders().Insert(ctx, order); err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}
	svc, err := NewReportService(ReportServiceDeps{
		Orders:    registry.Orders(),
		Customers: registry.Customers(),
		Users:     registry.Users(),
		Location:  time.UTC,
		Clock:     func() time.Time { return reportNow },
	})
	if err != nil {
		t.Fatalf("NewReportService: %v", err)
	}
	return registry, svc
}

func totals(summary []StatusCount) map[domain.OrderStatus]int64 {
	out := make(map[domain.OrderStatus]int64, len(summary))
	for _, bucket := range summary {
		out[bucket.Status] = bucket.Total
	}
	return out
}

func TestDayWindowAt(t *testing.T) {
	manila := time.FixedZone("PHT", 8*60*60)
	tests := []struct {
		name      string
		now       time.Time
		loc       *time.Location
		dayStart  time.Duration
		wantStart time.Time
	}{
		{
			name:      "utc midnight",
			now:       reportNow,
			loc:       time.UTC,
			wantStart: time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "local zone ahead of utc",
			now:       time.Date(2026, 5, 3, 20, 0, 0, 0, time.UTC),
			loc:       manila,
			wantStart: time.Date(2026, 5, 4, 0, 0, 0, 0, manila),
		},
		{
			name:      "before configured day start belongs to previous day",
			now:       time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC),
			loc:       time.UTC,
			dayStart:  6 * time.Hour,
			wantStart: time.Date(2026, 5, 3, 6, 0, 0, 0, time.UTC),
		},
		{
			name:      "after configured day start",
			now:       time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC),
			loc:       time.UTC,
			dayStart:  6 * time.Hour,
			wantStart: time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			window := DayWindowAt(tc.now, tc.loc, tc.dayStart)
			if !window.Start.Equal(tc.wantStart) {
				t.Fatalf("expected start %s, got %s", tc.wantStart, window.Start)
			}
			if !window.End.Equal(tc.wantStart.AddDate(0, 0, 1)) {
				t.Fatalf("expected end one day later, got %s", window.End)
			}
			if !window.Contains(tc.now) {
				t.Fatalf("expected window to contain %s", tc.now)
			}
		})
	}
}

func TestStatusForDay(t *testing.T) {
	window := DayWindowAt(reportNow, time.UTC, 0)
	yesterday := window.Start.Add(-time.Hour)
	noon := window.Start.Add(12 * time.Hour)

	t.Run("latest entry in window wins", func(t *testing.T) {
		order := domain.Order{Logs: []domain.OrderLogEntry{
			logAt(yesterday, domain.OrderStatusUnassigned),
			logAt(noon, domain.OrderStatusPickup),
			logAt(noon.Add(time.Hour), domain.OrderStatusInTransit),
		}}
		if got, ok := StatusForDay(order, window); !ok || got != domain.OrderStatusInTransit {
			t.Fatalf("expected intransit, got %s %v", got, ok)
		}
	})

	t.Run("equal timestamps resolve to later entry", func(t *testing.T) {
		order := domain.Order{Logs: []domain.OrderLogEntry{
			logAt(noon, domain.OrderStatusPickup),
			logAt(noon, domain.OrderStatusDelivered),
		}}
		if got, _ := StatusForDay(order, window); got != domain.OrderStatusDelivered {
			t.Fatalf("expected delivered, got %s", got)
		}
	})

	t.Run("entries without status are skipped", func(t *testing.T) {
		order := domain.Order{Logs: []domain.OrderLogEntry{
			logAt(noon, domain.OrderStatusPickup),
			{Timestamp: noon.Add(time.Minute), Message: "note"},
		}}
		if got, _ := StatusForDay(order, window); got != domain.OrderStatusPickup {
			t.Fatalf("expected pickup, got %s", got)
		}
	})

	t.Run("no entry today", func(t *testing.T) {
		order := domain.Order{Logs: []domain.OrderLogEntry{logAt(yesterday, domain.OrderStatusPickup)}}
		if _, ok := StatusForDay(order, window); ok {
			t.Fatal("expected no status for the day")
		}
	})
}

func TestReportServiceStatusSummary(t *testing.T) {
	today := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	_, svc := newReportFixture(t,
		domain.Order{ID: "o1", Status: domain.OrderStatusUnassigned, CreatedAt: today, UpdatedAt: today},
		domain.Order{ID: "o2", Status: domain.OrderStatusPickup, CreatedAt: today, UpdatedAt: today},
		domain.Order{ID: "o3", Status: domain.OrderStatusPickup, CreatedAt: today.Add(time.Hour), UpdatedAt: today},
		domain.Order{ID: "o4", Status: domain.OrderStatusDelivered, CreatedAt: today.AddDate(0, 0, -1), UpdatedAt: today},
	)

	summary, err := svc.StatusSummary(context.Background())
	if err != nil {
		t.Fatalf("StatusSummary: %v", err)
	}
	if len(summary) != len(domain.OrderStatuses()) {
		t.Fatalf("expected every status bucket, got %d", len(summary))
	}
	for i, status := range domain.OrderStatuses() {
		if summary[i].Status != status {
			t.Fatalf("expected bucket %d to be %s, got %s", i, status, summary[i].Status)
		}
	}
	got := totals(summary)
	if got[domain.OrderStatusUnassigned] != 1 || got[domain.OrderStatusPickup] != 2 || got[domain.OrderStatusDelivered] != 0 {
		t.Fatalf("unexpected totals %v", got)
	}
}

func TestReportServiceStatusSummaryEmpty(t *testing.T) {
	yesterday := time.Date(2026, 5, 3, 9, 0, 0, 0, time.UTC)
	_, svc := newReportFixture(t, domain.Order{ID: "o1", Status: domain.OrderStatusPickup, CreatedAt: yesterday, UpdatedAt: yesterday})
	if _, err := svc.StatusSummary(context.Background()); !errors.Is(err, ErrSummaryEmpty) {
		t.Fatalf("expected empty summary, got %v", err)
	}
}

func TestReportServiceDriverStatusSummary(t *testing.T) {
	driver := "usr_driver"
	yesterday := time.Date(2026, 5, 3, 18, 0, 0, 0, time.UTC)
	today := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	t.Run("activity only yesterday", func(t *testing.T) {
		_, svc := newReportFixture(t, domain.Order{
			ID:               "o1",
			AssignedDriverID: &driver,
			Status:           domain.OrderStatusPickup,
			CreatedAt:        yesterday,
			UpdatedAt:        yesterday,
			Logs:             []domain.OrderLogEntry{logAt(yesterday, domain.OrderStatusPickup)},
		})
		summary, err := svc.DriverStatusSummary(context.Background(), driver)
		if err != nil {
			t.Fatalf("DriverStatusSummary: %v", err)
		}
		if len(summary) != len(domain.OrderStatuses()) {
			t.Fatalf("expected every bucket, got %d", len(summary))
		}
		for _, bucket := range summary {
			if bucket.Total != 0 {
				t.Fatalf("expected all zero buckets, got %+v", summary)
			}
		}
	})

	t.Run("counts status as of today's latest entry", func(t *testing.T) {
		other := "usr_other"
		_, svc := newReportFixture(t,
			domain.Order{
				ID: "o1", AssignedDriverID: &driver, Status: domain.OrderStatusInTransit,
				CreatedAt: yesterday, UpdatedAt: today,
				Logs: []domain.OrderLogEntry{logAt(yesterday, domain.OrderStatusPickup), logAt(today, domain.OrderStatusInTransit)},
			},
			domain.Order{
				ID: "o2", AssignedDriverID: &driver, Status: domain.OrderStatusDelivered,
				CreatedAt: today, UpdatedAt: today.Add(time.Hour),
				Logs: []domain.OrderLogEntry{logAt(today, domain.OrderStatusPickup), logAt(today.Add(time.Hour), domain.OrderStatusDelivered)},
			},
			domain.Order{
				ID: "o3", AssignedDriverID: &other, Status: domain.OrderStatusPickup,
				CreatedAt: today, UpdatedAt: today,
				Logs: []domain.OrderLogEntry{logAt(today, domain.OrderStatusPickup)},
			},
		)
		summary, err := svc.DriverStatusSummary(context.Background(), driver)
		if err != nil {
			t.Fatalf("DriverStatusSummary: %v", err)
		}
		got := totals(summary)
		if got[domain.OrderStatusInTransit] != 1 || got[domain.OrderStatusDelivered] != 1 || got[domain.OrderStatusPickup] != 0 {
			t.Fatalf("unexpected totals %v", got)
		}
	})

	t.Run("blank driver", func(t *testing.T) {
		_, svc := newReportFixture(t)
		if _, err := svc.DriverStatusSummary(context.Background(), " "); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})
}

func TestReportServiceDriverOrdersByStatus(t *testing.T) {
	driver := "usr_driver"
	morning := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	_, svc := newReportFixture(t,
		domain.Order{
			ID: "early", AssignedDriverID: &driver, Status: domain.OrderStatusPickup,
			CreatedAt: morning, UpdatedAt: morning,
			Logs: []domain.OrderLogEntry{logAt(morning, domain.OrderStatusPickup)},
		},
		domain.Order{
			ID: "late", AssignedDriverID: &driver, Status: domain.OrderStatusPickup,
			CreatedAt: morning, UpdatedAt: morning.Add(2 * time.Hour),
			Logs: []domain.OrderLogEntry{logAt(morning.Add(2*time.Hour), domain.OrderStatusPickup)},
		},
		domain.Order{
			ID: "done", AssignedDriverID: &driver, Status: domain.OrderStatusDelivered,
			CreatedAt: morning, UpdatedAt: morning.Add(time.Hour),
			Logs: []domain.OrderLogEntry{logAt(morning.Add(time.Hour), domain.OrderStatusDelivered)},
		},
	)
	ctx := context.Background()

	views, err := svc.DriverOrdersByStatus(ctx, driver, "Pickup")
	if err != nil {
		t.Fatalf("DriverOrdersByStatus: %v", err)
	}
	if len(views) != 2 || views[0].Order.ID != "late" || views[1].Order.ID != "early" {
		t.Fatalf("expected late then early, got %+v", views)
	}
	if views[0].Driver == nil || views[0].Driver.Name != "Dana" {
		t.Fatalf("expected expanded driver, got %+v", views[0].Driver)
	}
	if views[0].Receiver != nil {
		t.Fatalf("expected unresolved receiver to stay nil, got %+v", views[0].Receiver)
	}

	none, err := svc.DriverOrdersByStatus(ctx, driver, "unfulfilled")
	if err != nil {
		t.Fatalf("DriverOrdersByStatus: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}

	if _, err := svc.DriverOrdersByStatus(ctx, driver, "lost"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}
