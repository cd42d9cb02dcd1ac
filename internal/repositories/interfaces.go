package repositories

import (
	"context"
	"time"

	domain "github.com/northline-logistics/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Customers() CustomerRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Repositories
// called with the ctx handed to fn join that transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CounterRepository provides named, atomically incremented sequences.
type CounterRepository interface {
	// Next increments counterID, creating it at zero when absent, and returns the new value.
	Next(ctx context.Context, counterID string) (int64, error)
}

// OrderMutation edits an order loaded inside a transaction. Returning an error aborts the write.
// It may run more than once when the store retries on contention.
type OrderMutation func(order *domain.Order) error

// OrderRepository persists orders together with their embedded audit log.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByTrackOrder(ctx context.Context, trackOrder string) (domain.Order, error)
	FindByToken(ctx context.Context, orderToken string) (domain.Order, error)
	// FindByReceiver returns the most recently created order for receiverID.
	FindByReceiver(ctx context.Context, receiverID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.OffsetPage[domain.Order], error)
	// ListAssignedToDriver returns orders currently assigned to driverID that changed at or after since.
	ListAssignedToDriver(ctx context.Context, driverID string, since time.Time) ([]domain.Order, error)
	CountByStatus(ctx context.Context, window domain.DayWindow) (map[domain.OrderStatus]int64, error)
	// Mutate applies fn to the stored order and writes it back with Revision incremented.
	// Concurrent mutations of the same order are serialised.
	Mutate(ctx context.Context, orderID string, fn OrderMutation) (domain.Order, error)
}

// CustomerRepository persists receivers. Email and mobile number are unique.
type CustomerRepository interface {
	Insert(ctx context.Context, customer domain.Customer) error
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	List(ctx context.Context, filter CustomerListFilter) (domain.OffsetPage[domain.Customer], error)
	ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error)
	Update(ctx context.Context, customer domain.Customer) error
}

// UserRepository reads accounts from the identity store.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// OrderListFilter narrows an order listing. ReceiverIDs, when non-nil, restricts
// results to those receivers; an empty non-nil slice matches nothing.
type OrderListFilter struct {
	Status      *domain.OrderStatus
	ReceiverIDs []string
	Offset      int
	Limit       int
}

// CustomerListFilter narrows a customer listing.
type CustomerListFilter struct {
	OwnerID string
	Offset  int
	Limit   int
}
