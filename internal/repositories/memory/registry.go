// Package memory keeps every repository in process memory. It backs local
// runs with API_STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/northline-logistics/api/internal/domain"
	pfirestore "github.com/northline-logistics/api/internal/platform/firestore"
	"github.com/northline-logistics/api/internal/repositories"
)

// Registry implements repositories.Registry on maps guarded by one mutex.
type Registry struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	customers map[string]domain.Customer
	users     map[string]domain.User
	counters  map[string]int64
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		orders:    make(map[string]domain.Order),
		customers: make(map[string]domain.Customer),
		users:     make(map[string]domain.User),
		counters:  make(map[string]int64),
	}
}

// WithHealth attaches a health repository.
func (r *Registry) WithHealth(health repositories.HealthRepository) *Registry {
	r.health = health
	return r
}

// PutUser seeds an identity store account.
func (r *Registry) PutUser(user domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
}

// DeleteCustomer removes a customer, leaving any orders that reference it orphaned.
func (r *Registry) DeleteCustomer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.customers, id)
}

func (r *Registry) Orders() repositories.OrderRepository       { return orderStore{r} }
func (r *Registry) Customers() repositories.CustomerRepository { return customerStore{r} }
func (r *Registry) Users() repositories.UserRepository         { return userStore{r} }
func (r *Registry) Counters() repositories.CounterRepository   { return counterStore{r} }
func (r *Registry) Health() repositories.HealthRepository      { return r.health }

// RunInTx runs fn directly. Each repository call is atomic on its own.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Close is a no-op.
func (r *Registry) Close(context.Context) error { return nil }

type counterStore struct{ r *Registry }

func (s counterStore) Next(ctx context.Context, counterID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.counters[counterID]++
	return s.r.counters[counterID], nil
}

type userStore struct{ r *Registry }

func (s userStore) FindByID(_ context.Context, userID string) (domain.User, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	user, ok := s.r.users[userID]
	if !ok {
		return domain.User{}, pfirestore.NewNotFound("users.get", "user "+userID+" not found")
	}
	return user, nil
}

type orderStore struct{ r *Registry }

func (s orderStore) Insert(_ context.Context, order domain.Order) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if _, exists := s.r.orders[order.ID]; exists {
		return pfirestore.NewConflict("orders.create", "order "+order.ID+" already exists")
	}
	s.r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s orderStore) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	order, ok := s.r.orders[orderID]
	if !ok {
		return domain.Order{}, pfirestore.NewNotFound("orders.get", "order "+orderID+" not found")
	}
	return cloneOrder(order), nil
}

func (s orderStore) FindByTrackOrder(_ context.Context, trackOrder string) (domain.Order, error) {
	return s.first("orders.findByTrackOrder", func(o domain.Order) bool { return o.TrackOrder == trackOrder })
}

func (s orderStore) FindByToken(_ context.Context, orderToken string) (domain.Order, error) {
	return s.first("orders.findByToken", func(o domain.Order) bool { return o.OrderToken == orderToken })
}

func (s orderStore) FindByReceiver(_ context.Context, receiverID string) (domain.Order, error) {
	return s.first("orders.findByReceiver", func(o domain.Order) bool { return o.ReceiverID == receiverID })
}

// first returns the newest matching order.
func (s orderStore) first(op string, match func(domain.Order) bool) (domain.Order, error) {
	page := repositories.PageOrders(s.filter(match), 0, 1)
	if len(page.Items) == 0 {
		return domain.Order{}, pfirestore.NewNotFound(op, "no matching order")
	}
	return page.Items[0], nil
}

func (s orderStore) filter(match func(domain.Order) bool) []domain.Order {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	var out []domain.Order
	for _, order := range s.r.orders {
		if match(order) {
			out = append(out, cloneOrder(order))
		}
	}
	return out
}

func (s orderStore) List(_ context.Context, filter repositories.OrderListFilter) (domain.OffsetPage[domain.Order], error) {
	matched := s.filter(func(o domain.Order) bool {
		if filter.Status != nil && o.Status != *filter.Status {
			return false
		}
		if filter.ReceiverIDs != nil && !slices.Contains(filter.ReceiverIDs, o.ReceiverID) {
			return false
		}
		return true
	})
	return repositories.PageOrders(matched, filter.Offset, filter.Limit), nil
}

func (s orderStore) ListAssignedToDriver(_ context.Context, driverID string, since time.Time) ([]domain.Order, error) {
	return s.filter(func(o domain.Order) bool {
		return o.AssignedDriverID != nil && *o.AssignedDriverID == driverID && !o.UpdatedAt.Before(since)
	}), nil
}

func (s orderStore) CountByStatus(_ context.Context, window domain.DayWindow) (map[domain.OrderStatus]int64, error) {
	counts := make(map[domain.OrderStatus]int64)
	for _, order := range s.filter(func(o domain.Order) bool { return window.Contains(o.CreatedAt) }) {
		counts[order.Status]++
	}
	return counts, nil
}

// Mutate holds the registry lock across the read, fn and the write, so
// concurrent mutations of one order apply one after another.
func (s orderStore) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	stored, ok := s.r.orders[orderID]
	if !ok {
		return domain.Order{}, pfirestore.NewNotFound("orders.mutate", "order "+orderID+" not found")
	}
	working := cloneOrder(stored)
	if err := fn(&working); err != nil {
		return domain.Order{}, err
	}
	working.ID = stored.ID
	working.Revision = stored.Revision + 1
	s.r.orders[orderID] = cloneOrder(working)
	return working, nil
}

type customerStore struct{ r *Registry }

func (s customerStore) Insert(_ context.Context, customer domain.Customer) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if _, exists := s.r.customers[customer.ID]; exists {
		return pfirestore.NewConflict("customers.create", "customer "+customer.ID+" already exists")
	}
	if err := s.uniqueLocked(customer); err != nil {
		return err
	}
	s.r.customers[customer.ID] = customer
	return nil
}

func (s customerStore) Update(_ context.Context, customer domain.Customer) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if _, exists := s.r.customers[customer.ID]; !exists {
		return pfirestore.NewNotFound("customers.update", "customer "+customer.ID+" not found")
	}
	if err := s.uniqueLocked(customer); err != nil {
		return err
	}
	s.r.customers[customer.ID] = customer
	return nil
}

func (s customerStore) uniqueLocked(customer domain.Customer) error {
	for id, other := range s.r.customers {
		if id == customer.ID {
			continue
		}
		if strings.EqualFold(other.Email, customer.Email) {
			return &repositories.DuplicateError{Entity: "customer", Field: "email"}
		}
		if other.MobileNumber == customer.MobileNumber {
			return &repositories.DuplicateError{Entity: "customer", Field: "mobileNumber"}
		}
	}
	return nil
}

func (s customerStore) FindByID(_ context.Context, customerID string) (domain.Customer, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	customer, ok := s.r.customers[customerID]
	if !ok {
		return domain.Customer{}, pfirestore.NewNotFound("customers.get", "customer "+customerID+" not found")
	}
	return customer, nil
}

func (s customerStore) List(_ context.Context, filter repositories.CustomerListFilter) (domain.OffsetPage[domain.Customer], error) {
	s.r.mu.Lock()
	var matched []domain.Customer
	for _, customer := range s.r.customers {
		if filter.OwnerID == "" || customer.OwnerID == filter.OwnerID {
			matched = append(matched, customer)
		}
	}
	s.r.mu.Unlock()
	return repositories.PageCustomers(matched, filter.Offset, filter.Limit), nil
}

func (s customerStore) ListIDsByOwner(_ context.Context, ownerID string) ([]string, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	ids := []string{}
	for id, customer := range s.r.customers {
		if customer.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Products = slices.Clone(order.Products)
	order.ServiceType = slices.Clone(order.ServiceType)
	order.Logs = slices.Clone(order.Logs)
	return order
}
