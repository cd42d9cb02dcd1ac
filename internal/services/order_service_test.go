package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/northline-logistics/api/internal/domain"
	"github.com/northline-logistics/api/internal/repositories/memory"
)

// stepClock advances one second per reading so log timestamps stay ordered.
type stepClock struct {
	base  time.Time
	ticks atomic.Int64
}

func (c *stepClock) Now() time.Time {
	return c.base.Add(time.Duration(c.ticks.Add(1)) * time.Second)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type channelNotifier struct {
	sent chan Notification
}

func (n *channelNotifier) SendNotification(_ context.Context, notification Notification) error {
	n.sent <- notification
	return nil
}

type orderFixture struct {
	registry *memory.Registry
	service  *orderService
	clock    *stepClock
	metrics  *recordingMetrics
	events   *recordingPublisher
}

func newOrderFixture(t *testing.T, mutate ...func(*OrderServiceDeps)) *orderFixture {
	t.Helper()
	ctx := context.Background()
	registry := memory.NewRegistry()
	clock := &stepClock{base: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}

	registry.PutUser(domain.User{ID: "usr_owner", Name: "Olive Owner", Role: domain.UserRoleClient})
	registry.PutUser(domain.User{ID: "usr_other", Name: "Oscar Other", Role: domain.UserRoleClient})
	registry.PutUser(domain.User{ID: "usr_driver", Name: "Dana", Role: domain.UserRoleDriver})
	registry.PutUser(domain.User{ID: "usr_driver2", Name: "Rui", Role: domain.UserRoleDriver})
	for _, c := range []domain.Customer{
		{ID: "cus_1", FullName: "Wren Receiver", Email: "wren@example.com", MobileNumber: "+15550001", OwnerID: "usr_owner", CreatedAt: clock.base},
		{ID: "cus_2", FullName: "Ada Receiver", Email: "ada@example.com", MobileNumber: "+15550002", OwnerID: "usr_other", CreatedAt: clock.base},
	} {
		if err := registry.Customers().Insert(ctx, c); err != nil {
			t.Fatalf("seed customer: %v", err)
		}
	}

	metrics := &recordingMetrics{}
	sequence, err := NewSequenceService(SequenceServiceDeps{Repository: registry.Counters(), Metrics: metrics})
	if err != nil {
		t.Fatalf("NewSequenceService: %v", err)
	}
	events := &recordingPublisher{}
	deps := OrderServiceDeps{
		Orders:              registry.Orders(),
		Customers:           registry.Customers(),
		Users:               registry.Users(),
		Sequence:            sequence,
		UnitOfWork:          registry,
		LogSameDriverReason: true,
		Events:              events,
		Metrics:             metrics,
		Clock:               clock.Now,
	}
	for _, fn := range mutate {
		fn(&deps)
	}
	svc, err := newOrderService(deps)
	if err != nil {
		t.Fatalf("newOrderService: %v", err)
	}
	return &orderFixture{registry: registry, service: svc, clock: clock, metrics: metrics, events: events}
}

func (f *orderFixture) create(t *testing.T, receiverID string) OrderView {
	t.Helper()
	qty := 2.0
	view, err := f.service.CreateOrder(context.Background(), CreateOrderCommand{
		ActorID:    "usr_owner",
		ReceiverID: receiverID,
		Products:   []ProductInput{{Name: "Pallet of tiles", Quantity: &qty}},
		Shift:      "morning",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return view
}

func strPtr(v string) *string { return &v }

func TestOrderServiceCreateOrder(t *testing.T) {
	f := newOrderFixture(t)

	first := f.create(t, "cus_1")
	if first.Order.TrackOrder != "NL0001" {
		t.Fatalf("expected NL0001, got %s", first.Order.TrackOrder)
	}
	if first.Order.Status != domain.OrderStatusUnassigned {
		t.Fatalf("expected unassigned, got %s", first.Order.Status)
	}
	if !strings.HasPrefix(first.Order.ID, "ord_") || first.Order.OrderToken == "" {
		t.Fatalf("expected id and token, got %q %q", first.Order.ID, first.Order.OrderToken)
	}
	if len(first.Order.Logs) != 1 {
		t.Fatalf("expected one log entry, got %d", len(first.Order.Logs))
	}
	entry := first.Order.Logs[0]
	if entry.Message != createdLogMessage || entry.Reason != domain.DefaultLogReason {
		t.Fatalf("unexpected creation log %+v", entry)
	}
	if entry.Status == nil || *entry.Status != domain.OrderStatusUnassigned || entry.AssignedDriver != nil {
		t.Fatalf("unexpected creation log status/driver %+v", entry)
	}
	if first.Receiver == nil || first.Receiver.ID != "cus_1" || first.Receiver.OwnerID != "" {
		t.Fatalf("expected receiver without owner id, got %+v", first.Receiver)
	}
	if first.Owner == nil || first.Owner.ID != "usr_owner" {
		t.Fatalf("expected owner lifted beside receiver, got %+v", first.Owner)
	}
	if first.Driver != nil {
		t.Fatalf("expected no driver, got %+v", first.Driver)
	}

	second := f.create(t, "cus_1")
	if second.Order.TrackOrder != "NL0002" {
		t.Fatalf("expected NL0002, got %s", second.Order.TrackOrder)
	}
	if second.Order.OrderToken == first.Order.OrderToken {
		t.Fatal("expected distinct order tokens")
	}
	if len(f.events.events) != 2 || f.events.events[0].Type != orderEventCreated {
		t.Fatalf("expected two created events, got %+v", f.events.events)
	}
	if f.metrics.events[0] != "order.created:ok" {
		t.Fatalf("expected created metric, got %v", f.metrics.events)
	}
}

func TestOrderServiceCreateOrderRejectsInput(t *testing.T) {
	f := newOrderFixture(t)
	one, zero := 1.0, 0.0
	pickup := time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC)
	drop := pickup.Add(-time.Hour)

	tests := []struct {
		name string
		cmd  CreateOrderCommand
		want error
	}{
		{name: "missing receiver", cmd: CreateOrderCommand{}, want: ErrOrderInvalidInput},
		{name: "blank product", cmd: CreateOrderCommand{ReceiverID: "cus_1", Products: []ProductInput{{Name: "  ", Quantity: &one}}}, want: ErrOrderInvalidInput},
		{name: "missing quantity", cmd: CreateOrderCommand{ReceiverID: "cus_1", Products: []ProductInput{{Name: "Box"}}}, want: ErrOrderInvalidInput},
		{name: "zero quantity", cmd: CreateOrderCommand{ReceiverID: "cus_1", Products: []ProductInput{{Name: "Box", Quantity: &zero}}}, want: ErrOrderInvalidInput},
		{name: "drop before pickup", cmd: CreateOrderCommand{ReceiverID: "cus_1", PickupDate: &pickup, DropDate: &drop}, want: ErrOrderInvalidInput},
		{name: "unknown receiver", cmd: CreateOrderCommand{ReceiverID: "cus_missing"}, want: ErrReceiverNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.service.CreateOrder(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	page, err := f.service.ListOrders(context.Background(), OrderListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected rejected orders not to be stored, got %d", page.Total)
	}
}

func TestOrderServiceUpdateStatusAppendsOneEntry(t *testing.T) {
	f := newOrderFixture(t)
	created := f.create(t, "cus_1")
	ctx := context.Background()

	updated, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, Status: strPtr("pickup")})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if updated.Order.Status != domain.OrderStatusPickup {
		t.Fatalf("expected pickup, got %s", updated.Order.Status)
	}
	if len(updated.Order.Logs) != 2 {
		t.Fatalf("expected two log entries, got %d", len(updated.Order.Logs))
	}
	last := updated.Order.Logs[1]
	if last.Message != "Order picked up" || last.Reason != domain.DefaultLogReason {
		t.Fatalf("unexpected log entry %+v", last)
	}
	if last.Status == nil || *last.Status != domain.OrderStatusPickup {
		t.Fatalf("expected entry to carry pickup status, got %+v", last.Status)
	}
	if !last.Timestamp.After(updated.Order.Logs[0].Timestamp) {
		t.Fatal("expected update entry after creation entry")
	}

	_, err = f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, Status: strPtr("PICKUP")})
	if !errors.Is(err, ErrOrderNoChanges) {
		t.Fatalf("expected no changes, got %v", err)
	}
	current, err := f.service.GetOrder(ctx, created.Order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(current.Order.Logs) != 2 || current.Order.Revision != 1 {
		t.Fatalf("expected no-op update to leave order untouched, got %d logs rev %d", len(current.Order.Logs), current.Order.Revision)
	}

	events := f.events.events
	if got := events[len(events)-1]; got.PreviousStatus != "unassigned" || got.CurrentStatus != "pickup" {
		t.Fatalf("unexpected update event %+v", got)
	}
}

func TestOrderServiceUpdateStatusAndDriverTogether(t *testing.T) {
	f := newOrderFixture(t)
	created := f.create(t, "cus_1")

	updated, err := f.service.UpdateOrder(context.Background(), UpdateOrderCommand{
		OrderID:  created.Order.ID,
		Status:   strPtr("intransit"),
		DriverID: strPtr("usr_driver"),
		Reason:   strPtr("  Loaded at <b>dock 4</b> "),
	})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if len(updated.Order.Logs) != 2 {
		t.Fatalf("expected exactly one new entry, got %d logs", len(updated.Order.Logs))
	}
	entry := updated.Order.Logs[1]
	if want := "Order is now in transit | Driver 'Dana' assigned to the order"; entry.Message != want {
		t.Fatalf("expected %q, got %q", want, entry.Message)
	}
	if entry.Reason != "Loaded at dock 4" {
		t.Fatalf("expected sanitised reason, got %q", entry.Reason)
	}
	if entry.AssignedDriver == nil || *entry.AssignedDriver != "usr_driver" {
		t.Fatalf("expected entry to carry driver, got %v", entry.AssignedDriver)
	}
	if updated.Driver == nil || updated.Driver.Name != "Dana" {
		t.Fatalf("expected expanded driver, got %+v", updated.Driver)
	}
}

func TestOrderServiceDriverAssignmentPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("driver only keeps status", func(t *testing.T) {
		f := newOrderFixture(t)
		created := f.create(t, "cus_1")
		updated, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver")})
		if err != nil {
			t.Fatalf("UpdateOrder: %v", err)
		}
		entry := updated.Order.Logs[1]
		if entry.Message != "Driver 'Dana' assigned to the order" {
			t.Fatalf("unexpected message %q", entry.Message)
		}
		if entry.Status == nil || *entry.Status != domain.OrderStatusUnassigned {
			t.Fatalf("expected entry to carry current status, got %v", entry.Status)
		}
	})

	t.Run("same driver with reason logs reassignment", func(t *testing.T) {
		f := newOrderFixture(t)
		created := f.create(t, "cus_1")
		if _, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver")}); err != nil {
			t.Fatalf("assign: %v", err)
		}
		updated, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver"), Reason: strPtr("truck swap")})
		if err != nil {
			t.Fatalf("reassign: %v", err)
		}
		entry := updated.Order.Logs[2]
		if entry.Message != "Driver 'Dana' reassigned to the order" || entry.Reason != "truck swap" {
			t.Fatalf("unexpected reassignment entry %+v", entry)
		}
	})

	t.Run("same driver without reason is a no-op", func(t *testing.T) {
		f := newOrderFixture(t)
		created := f.create(t, "cus_1")
		if _, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver")}); err != nil {
			t.Fatalf("assign: %v", err)
		}
		_, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver")})
		if !errors.Is(err, ErrOrderNoChanges) {
			t.Fatalf("expected no changes, got %v", err)
		}
	})

	t.Run("reassignment logging disabled", func(t *testing.T) {
		f := newOrderFixture(t, func(d *OrderServiceDeps) { d.LogSameDriverReason = false })
		created := f.create(t, "cus_1")
		if _, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver")}); err != nil {
			t.Fatalf("assign: %v", err)
		}
		_, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver"), Reason: strPtr("again")})
		if !errors.Is(err, ErrOrderNoChanges) {
			t.Fatalf("expected no changes, got %v", err)
		}
	})

	t.Run("new driver replaces old", func(t *testing.T) {
		f := newOrderFixture(t)
		created := f.create(t, "cus_1")
		if _, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver")}); err != nil {
			t.Fatalf("assign: %v", err)
		}
		updated, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver2")})
		if err != nil {
			t.Fatalf("replace: %v", err)
		}
		if updated.Order.AssignedDriverID == nil || *updated.Order.AssignedDriverID != "usr_driver2" {
			t.Fatalf("expected usr_driver2, got %v", updated.Order.AssignedDriverID)
		}
		if updated.Order.Logs[2].Message != "Driver 'Rui' assigned to the order" {
			t.Fatalf("unexpected message %q", updated.Order.Logs[2].Message)
		}
	})
}

func TestOrderServiceUpdateOrderErrors(t *testing.T) {
	f := newOrderFixture(t)
	created := f.create(t, "cus_1")
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  UpdateOrderCommand
		want error
	}{
		{name: "unknown order", cmd: UpdateOrderCommand{OrderID: "ord_missing", Status: strPtr("pickup")}, want: ErrOrderNotFound},
		{name: "unknown status", cmd: UpdateOrderCommand{OrderID: created.Order.ID, Status: strPtr("lost")}, want: ErrOrderInvalidInput},
		{name: "unknown driver", cmd: UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_ghost")}, want: ErrDriverNotFound},
		{name: "blank driver", cmd: UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr(" ")}, want: ErrOrderInvalidInput},
		{name: "nothing requested", cmd: UpdateOrderCommand{OrderID: created.Order.ID}, want: ErrOrderNoChanges},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.service.UpdateOrder(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOrderServiceConcurrentUpdatesKeepEveryEntry(t *testing.T) {
	f := newOrderFixture(t)
	created := f.create(t, "cus_1")
	ctx := context.Background()

	cmds := []UpdateOrderCommand{
		{OrderID: created.Order.ID, Status: strPtr("pickup")},
		{OrderID: created.Order.ID, DriverID: strPtr("usr_driver")},
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(cmds))
	for _, cmd := range cmds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.UpdateOrder(ctx, cmd)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpdateOrder: %v", err)
		}
	}

	current, err := f.service.GetOrder(ctx, created.Order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if len(current.Order.Logs) != 3 {
		t.Fatalf("expected three log entries, got %d", len(current.Order.Logs))
	}
	if current.Order.Status != domain.OrderStatusPickup || current.Order.AssignedDriverID == nil {
		t.Fatalf("expected both updates applied, got %+v", current.Order)
	}
	if current.Order.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", current.Order.Revision)
	}
}

func TestOrderServiceTransitionTable(t *testing.T) {
	table, err := ParseTransitionTable([]byte("transitions:\n  delivered: [intransit]\n"))
	if err != nil {
		t.Fatalf("ParseTransitionTable: %v", err)
	}
	f := newOrderFixture(t, func(d *OrderServiceDeps) { d.Transitions = table })
	created := f.create(t, "cus_1")
	ctx := context.Background()

	if _, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, Status: strPtr("delivered")}); !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, Status: strPtr("intransit")}); err != nil {
		t.Fatalf("intransit: %v", err)
	}
	updated, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: created.Order.ID, Status: strPtr("delivered")})
	if err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if updated.Order.Logs[len(updated.Order.Logs)-1].Message != "Order successfully delivered" {
		t.Fatalf("unexpected message %q", updated.Order.Logs[len(updated.Order.Logs)-1].Message)
	}
}

func TestOrderServiceLookups(t *testing.T) {
	f := newOrderFixture(t)
	created := f.create(t, "cus_1")
	ctx := context.Background()

	byCode, err := f.service.GetOrderByTrackingCode(ctx, " nl0001 ")
	if err != nil || byCode.Order.ID != created.Order.ID {
		t.Fatalf("GetOrderByTrackingCode: %+v %v", byCode.Order, err)
	}
	if len(byCode.Order.Logs) != 1 || byCode.OmitLogs {
		t.Fatal("expected tracking lookup to include logs")
	}
	again, err := f.service.GetOrderByTrackingCode(ctx, "NL0001")
	if err != nil {
		t.Fatalf("GetOrderByTrackingCode repeat: %v", err)
	}
	if again.Order.Status != byCode.Order.Status || len(again.Order.Logs) != len(byCode.Order.Logs) || again.Order.TrackOrder != byCode.Order.TrackOrder {
		t.Fatalf("expected repeated tracking lookups to agree, got %+v then %+v", byCode.Order, again.Order)
	}

	byToken, err := f.service.GetOrderByToken(ctx, created.Order.OrderToken)
	if err != nil {
		t.Fatalf("GetOrderByToken: %v", err)
	}
	if !byToken.OmitLogs || byToken.Order.Logs != nil {
		t.Fatalf("expected token lookup to omit logs, got %+v", byToken.Order.Logs)
	}
	if byToken.Receiver == nil || byToken.Owner == nil {
		t.Fatal("expected token lookup to expand relations")
	}

	second := f.create(t, "cus_1")
	byReceiver, err := f.service.GetOrderByReceiver(ctx, "cus_1")
	if err != nil || byReceiver.Order.ID != second.Order.ID {
		t.Fatalf("expected newest order for receiver, got %+v %v", byReceiver.Order, err)
	}

	if _, err := f.service.GetOrderByToken(ctx, "no-such-token"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.service.GetOrder(ctx, " "); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServiceListOrdersPastLastPage(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.create(t, "cus_1")
	}

	for _, page := range []int{2, math.MaxInt / 2} {
		got, err := f.service.ListOrders(ctx, OrderListFilter{Page: page, Limit: 4})
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if len(got.Items) != 0 || got.Total != 3 || got.Page != page {
			t.Fatalf("page %d: expected an empty page with total 3, got items=%d total=%d page=%d", page, len(got.Items), got.Total, got.Page)
		}
	}
}

func TestOrderServiceListOrders(t *testing.T) {
	f := newOrderFixture(t)
	ctx := context.Background()
	mine := f.create(t, "cus_1")
	theirs := f.create(t, "cus_2")
	if _, err := f.service.UpdateOrder(ctx, UpdateOrderCommand{OrderID: theirs.Order.ID, Status: strPtr("pickup")}); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}

	all, err := f.service.ListOrders(ctx, OrderListFilter{Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if all.Total != 2 || len(all.Items) != 2 || all.Items[0].Order.ID != theirs.Order.ID {
		t.Fatalf("expected both orders newest first, got %+v", all)
	}

	owned, err := f.service.ListOrders(ctx, OrderListFilter{OwnerID: "usr_owner", Limit: 10})
	if err != nil {
		t.Fatalf("ListOrders owner: %v", err)
	}
	if owned.Total != 1 || owned.Items[0].Order.ID != mine.Order.ID {
		t.Fatalf("expected only owned order, got %+v", owned)
	}

	picked, err := f.service.ListOrders(ctx, OrderListFilter{Status: strPtr("pickup"), Limit: 10})
	if err != nil {
		t.Fatalf("ListOrders status: %v", err)
	}
	if picked.Total != 1 || picked.Items[0].Order.ID != theirs.Order.ID {
		t.Fatalf("expected pickup order only, got %+v", picked)
	}

	f.registry.DeleteCustomer("cus_1")
	orphaned, err := f.service.ListOrders(ctx, OrderListFilter{OwnerID: "usr_owner", Limit: 10})
	if err != nil {
		t.Fatalf("ListOrders orphaned: %v", err)
	}
	if orphaned.Total != 0 || orphaned.Items == nil || len(orphaned.Items) != 0 {
		t.Fatalf("expected empty non-nil page, got %+v", orphaned)
	}

	// the admin view still lists the orphan, without a receiver
	all, err = f.service.ListOrders(ctx, OrderListFilter{Limit: 10})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if all.Items[1].Receiver != nil || all.Items[1].Owner != nil {
		t.Fatalf("expected orphan without receiver, got %+v", all.Items[1])
	}

	if _, err := f.service.ListOrders(ctx, OrderListFilter{Limit: 0}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid limit, got %v", err)
	}
	if _, err := f.service.ListOrders(ctx, OrderListFilter{Limit: 5, Status: strPtr("lost")}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestOrderServiceNotifiesReceiverInBackground(t *testing.T) {
	notifier := &channelNotifier{sent: make(chan Notification, 4)}
	f := newOrderFixture(t, func(d *OrderServiceDeps) { d.Notifications = notifier })
	created := f.create(t, "cus_1")

	select {
	case n := <-notifier.sent:
		if n.Recipient != "wren@example.com" || n.TrackOrder != created.Order.TrackOrder {
			t.Fatalf("unexpected notification %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected creation notification")
	}

	if _, err := f.service.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: created.Order.ID, DriverID: strPtr("usr_driver")}); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if _, err := f.service.UpdateOrder(context.Background(), UpdateOrderCommand{OrderID: created.Order.ID, Status: strPtr("delivered")}); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	select {
	case n := <-notifier.sent:
		if n.Status != "delivered" || n.Kind != "order.delivered" {
			t.Fatalf("expected delivered notification, got %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected status notification")
	}
}
