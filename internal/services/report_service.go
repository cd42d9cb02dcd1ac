package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/northline-logistics/api/internal/domain"
	"github.com/northline-logistics/api/internal/repositories"
)

// ReportServiceDeps bundles collaborators required to construct the report service.
type ReportServiceDeps struct {
	Orders    repositories.OrderRepository
	Customers repositories.CustomerRepository
	Users     repositories.UserRepository
	// Location and DayStart define the local reporting day.
	Location *time.Location
	DayStart time.Duration
	Clock    func() time.Time
}

type reportService struct {
	orders    repositories.OrderRepository
	relations relationLoader
	location  *time.Location
	dayStart  time.Duration
	clock     func() time.Time
}

var _ OrderReportService = (*reportService)(nil)

// NewReportService constructs the daily status reporting service.
func NewReportService(deps ReportServiceDeps) (OrderReportService, error) {
	if deps.Orders == nil || deps.Customers == nil || deps.Users == nil {
		return nil, errors.New("report service: order, customer and user repositories are required")
	}
	location := deps.Location
	if location == nil {
		location = time.Local
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &reportService{
		orders:    deps.Orders,
		relations: relationLoader{customers: deps.Customers, users: deps.Users},
		location:  location,
		dayStart:  deps.DayStart,
		clock:     clock,
	}, nil
}

// DayWindowAt returns the reporting day containing now: it starts dayStart after
// local midnight in loc and lasts one calendar day.
func DayWindowAt(now time.Time, loc *time.Location, dayStart time.Duration) DayWindow {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if local.Before(midnight.Add(dayStart)) {
		midnight = midnight.AddDate(0, 0, -1)
	}
	return DayWindow{
		Start: midnight.Add(dayStart),
		End:   midnight.AddDate(0, 0, 1).Add(dayStart),
	}
}

func (s *reportService) today() DayWindow {
	return DayWindowAt(s.clock(), s.location, s.dayStart)
}

func (s *reportService) StatusSummary(ctx context.Context) ([]StatusCount, error) {
	counts, err := s.orders.CountByStatus(ctx, s.today())
	if err != nil {
		return nil, storeError(err)
	}
	summary, total := zeroFilled(counts)
	if total == 0 {
		return nil, ErrSummaryEmpty
	}
	return summary, nil
}

func (s *reportService) DriverStatusSummary(ctx context.Context, driverID string) ([]StatusCount, error) {
	window := s.today()
	orders, err := s.driverOrders(ctx, driverID, window)
	if err != nil {
		return nil, err
	}
	counts := make(map[OrderStatus]int64)
	for _, order := range orders {
		if status, ok := StatusForDay(order, window); ok {
			counts[status]++
		}
	}
	summary, _ := zeroFilled(counts)
	return summary, nil
}

func (s *reportService) DriverOrdersByStatus(ctx context.Context, driverID string, status string) ([]OrderView, error) {
	wanted := domain.OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if !wanted.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, status)
	}
	window := s.today()
	orders, err := s.driverOrders(ctx, driverID, window)
	if err != nil {
		return nil, err
	}

	var matched []Order
	for _, order := range orders {
		if current, ok := StatusForDay(order, window); ok && current == wanted {
			matched = append(matched, order)
		}
	}
	slices.SortStableFunc(matched, func(a, b Order) int { return b.UpdatedAt.Compare(a.UpdatedAt) })

	populated, err := s.relations.populateAll(ctx, matched)
	if err != nil {
		return nil, storeError(err)
	}
	views := make([]OrderView, 0, len(populated))
	for _, p := range populated {
		views = append(views, ReshapeOrder(p))
	}
	return views, nil
}

func (s *reportService) driverOrders(ctx context.Context, driverID string, window DayWindow) ([]Order, error) {
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return nil, fmt.Errorf("%w: driver identity is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.ListAssignedToDriver(ctx, driverID, window.Start)
	if err != nil {
		return nil, storeError(err)
	}
	return orders, nil
}

// StatusForDay returns the status of the order's latest log entry inside window
// that carries a status. Equal timestamps resolve to the later entry in the log.
func StatusForDay(order Order, window DayWindow) (OrderStatus, bool) {
	best := -1
	for i, entry := range order.Logs {
		if entry.Status == nil || !window.Contains(entry.Timestamp) {
			continue
		}
		if best < 0 || !entry.Timestamp.Before(order.Logs[best].Timestamp) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return *order.Logs[best].Status, true
}

func zeroFilled(counts map[OrderStatus]int64) ([]StatusCount, int64) {
	statuses := domain.OrderStatuses()
	summary := make([]StatusCount, 0, len(statuses))
	var total int64
	for _, status := range statuses {
		summary = append(summary, StatusCount{Status: status, Total: counts[status]})
		total += counts[status]
	}
	return summary, total
}

func storeError(err error) error {
	switch {
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	default:
		return err
	}
}
