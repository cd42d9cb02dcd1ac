package services

import (
	"context"
	"time"

	domain "github.com/northline-logistics/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderLogEntry      = domain.OrderLogEntry
	Product            = domain.Product
	Customer           = domain.Customer
	Address            = domain.Address
	User               = domain.User
	StatusCount        = domain.StatusCount
	DayWindow          = domain.DayWindow
	SystemHealthReport = domain.SystemHealthReport
)

// SequenceService mints values from named atomic counters.
type SequenceService interface {
	Next(ctx context.Context, counter string) (int64, error)
	// NextTrackingCode returns the next human-readable tracking code, for example NL0042.
	NextTrackingCode(ctx context.Context) (string, error)
}

// OrderService runs the order lifecycle: intake, status and driver updates, and lookups.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderView, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (OrderView, error)
	GetOrder(ctx context.Context, orderID string) (OrderView, error)
	GetOrderByTrackingCode(ctx context.Context, trackOrder string) (OrderView, error)
	// GetOrderByToken omits the log from the returned view.
	GetOrderByToken(ctx context.Context, orderToken string) (OrderView, error)
	GetOrderByReceiver(ctx context.Context, receiverID string) (OrderView, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (OrderPage, error)
}

// OrderReportService computes daily status breakdowns.
type OrderReportService interface {
	StatusSummary(ctx context.Context) ([]StatusCount, error)
	DriverStatusSummary(ctx context.Context, driverID string) ([]StatusCount, error)
	DriverOrdersByStatus(ctx context.Context, driverID string, status string) ([]OrderView, error)
}

// CustomerService manages receivers registered by client accounts.
type CustomerService interface {
	CreateCustomer(ctx context.Context, cmd CreateCustomerCommand) (Customer, error)
	GetCustomer(ctx context.Context, customerID string, requester Requester) (Customer, error)
	ListCustomers(ctx context.Context, filter CustomerListFilter) (CustomerPage, error)
	UpdateCustomer(ctx context.Context, cmd UpdateCustomerCommand) (Customer, error)
}

// SystemService exposes operational metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// NotificationSender hands customer notifications to the mailer.
type NotificationSender interface {
	SendNotification(ctx context.Context, notification Notification) error
}

// Metrics receives lifecycle counters. *observability.Metrics implements it.
type Metrics interface {
	OrderEvent(event, status string)
	ObserveSequence(elapsed time.Duration)
}

// Requester identifies the caller of an access-controlled operation.
type Requester struct {
	ID    string
	Admin bool
}

// ProductInput is one requested line item. Quantity is nil when the caller sent none.
type ProductInput struct {
	Name     string
	Quantity *float64
}

// CreateOrderCommand captures a client's shipment request.
type CreateOrderCommand struct {
	ActorID     string
	ReceiverID  string
	ServiceType []string
	Message     string
	Products    []ProductInput
	PickupDate  *time.Time
	DropDate    *time.Time
	Shift       string
}

// UpdateOrderCommand changes status and/or driver. Nil fields are left as they are.
type UpdateOrderCommand struct {
	ActorID  string
	OrderID  string
	Status   *string
	DriverID *string
	Reason   *string
}

// OrderListFilter selects a page of orders. OwnerID limits results to receivers registered by that account.
type OrderListFilter struct {
	Status  *string
	OwnerID string
	Page    int
	Limit   int
}

// OrderPage is one page of expanded orders.
type OrderPage struct {
	Items []OrderView
	Total int64
	Page  int
	Limit int
}

// PopulatedCustomer is a receiver with its owner resolved.
type PopulatedCustomer struct {
	Customer Customer
	Owner    *User
}

// PopulatedOrder is an order with its relations resolved. Nil relations failed to resolve.
type PopulatedOrder struct {
	Order    Order
	Receiver *PopulatedCustomer
	Driver   *User
}

// OrderView is the presentation shape of an order: the receiver's owner sits
// beside the receiver rather than inside it.
type OrderView struct {
	Order    Order
	Receiver *Customer
	Owner    *User
	Driver   *User
	OmitLogs bool
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	TrackOrder     string
	PreviousStatus string
	CurrentStatus  string
	DriverID       string
	ActorID        string
	Message        string
	OccurredAt     time.Time
}

// Notification is a fire-and-forget message for a customer.
type Notification struct {
	Kind          string
	OrderID       string
	TrackOrder    string
	Status        string
	Recipient     string
	RecipientName string
	Subject       string
	Body          string
}

// CreateCustomerCommand registers a receiver for OwnerID.
type CreateCustomerCommand struct {
	OwnerID      string
	FullName     string
	BusinessName string
	Email        string
	MobileNumber string
	Address      Address
}

// UpdateCustomerCommand patches a receiver. Nil fields are left as they are.
type UpdateCustomerCommand struct {
	Requester    Requester
	CustomerID   string
	FullName     *string
	BusinessName *string
	Email        *string
	MobileNumber *string
	Province     *string
	City         *string
	PostalCode   *string
	Address1     *string
	Address2     *string
}

// CustomerListFilter selects a page of customers. Non-admin requesters only see their own.
type CustomerListFilter struct {
	Requester Requester
	Page      int
	Limit     int
}

// CustomerPage is one page of customers.
type CustomerPage struct {
	Items []Customer
	Total int64
	Page  int
	Limit int
}
