package domain

import (
	"time"
)

// OrderStatus enumerates the lifecycle states of a shipment order.
type OrderStatus string

const (
	// OrderStatusUnassigned is the initial state of every order.
	OrderStatusUnassigned OrderStatus = "unassigned"
	// OrderStatusAssigned indicates a driver has been attached.
	OrderStatusAssigned OrderStatus = "assigned"
	// OrderStatusPickup indicates the parcel was collected.
	OrderStatusPickup OrderStatus = "pickup"
	// OrderStatusInTransit indicates the parcel is on its way to the receiver.
	OrderStatusInTransit OrderStatus = "intransit"
	// OrderStatusDelivered is a terminal success state.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusUnfulfilled is a terminal failure state.
	OrderStatusUnfulfilled OrderStatus = "unfulfilled"
)

var orderStatuses = []OrderStatus{
	OrderStatusUnassigned,
	OrderStatusAssigned,
	OrderStatusPickup,
	OrderStatusInTransit,
	OrderStatusDelivered,
	OrderStatusUnfulfilled,
}

// OrderStatuses returns every status in reporting order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, status := range orderStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// DefaultLogReason is recorded when an update carries no reason.
const DefaultLogReason = "No specific reason provided."

// Product is one line item of an order.
type Product struct {
	Name     string
	Quantity float64
}

// OrderLogEntry is one immutable audit record. Status is nil when the entry
// only records a driver change.
type OrderLogEntry struct {
	Timestamp      time.Time
	Status         *OrderStatus
	AssignedDriver *string
	Message        string
	Reason         string
}

// Order is a logistics shipment request.
type Order struct {
	ID               string
	TrackOrder       string
	OrderToken       string
	ReceiverID       string
	AssignedDriverID *string
	Products         []Product
	Status           OrderStatus
	PickupDate       *time.Time
	DropDate         *time.Time
	Shift            string
	ServiceType      []string
	Message          string
	Logs             []OrderLogEntry
	Revision         int64
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Address is the postal address of a customer.
type Address struct {
	Province   string
	City       string
	PostalCode string
	Address1   string
	Address2   string
}

// Customer is the delivery-destination party of an order, registered by an owner account.
type Customer struct {
	ID           string
	FullName     string
	BusinessName string
	Email        string
	MobileNumber string
	Address      Address
	OwnerID      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// User roles known to the identity store.
const (
	UserRoleClient = "client"
	UserRoleDriver = "driver"
	UserRoleAdmin  = "admin"
)

// User is a read-only projection of an identity store account.
type User struct {
	ID           string
	Name         string
	Email        string
	PhoneNo      string
	Role         string
	Status       string
	ZoneAssigned string
}

// StatusCount is one bucket of a status summary.
type StatusCount struct {
	Status OrderStatus
	Total  int64
}

// DayWindow is a half-open reporting interval [Start, End).
type DayWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// OffsetPage is one page of an offset-paginated listing.
type OffsetPage[T any] struct {
	Items []T
	Total int64
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
