package handlers

import (
	"time"

	"github.com/northline-logistics/api/internal/services"
)

type productPayload struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

type orderLogPayload struct {
	Timestamp      string  `json:"timestamp"`
	OrderStatus    *string `json:"order_status"`
	AssignedDriver *string `json:"assigned_driver"`
	Message        string  `json:"message"`
	Reason         string  `json:"reason"`
}

type addressPayload struct {
	Province   string `json:"province"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
}

type customerPayload struct {
	ID           string         `json:"id"`
	FullName     string         `json:"full_name"`
	BusinessName string         `json:"business_name,omitempty"`
	Email        string         `json:"email"`
	MobileNumber string         `json:"mobile_number"`
	Address      addressPayload `json:"address"`
	OwnerID      string         `json:"owner_id,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	UpdatedAt    string         `json:"updated_at,omitempty"`
}

type userPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	PhoneNo      string `json:"phone_no,omitempty"`
	Role         string `json:"role,omitempty"`
	ZoneAssigned string `json:"zone_assigned,omitempty"`
}

// orderPayload is the wire shape of services.OrderView. Relations that failed
// to resolve render as null.
type orderPayload struct {
	ID             string            `json:"id"`
	TrackOrder     string            `json:"track_order"`
	OrderToken     string            `json:"order_token"`
	Receiver       *customerPayload  `json:"receiver"`
	Owner          *userPayload      `json:"owner"`
	AssignedDriver *userPayload      `json:"assigned_driver"`
	Products       []productPayload  `json:"products"`
	OrderStatus    string            `json:"order_status"`
	PickupDate     string            `json:"pickup_date,omitempty"`
	DropDate       string            `json:"drop_date,omitempty"`
	Shift          string            `json:"shift"`
	ServiceType    []string          `json:"service_type"`
	Message        string            `json:"message"`
	Logs           []orderLogPayload `json:"logs,omitempty"`
	Revision       int64             `json:"revision"`
	CreatedBy      string            `json:"created_by,omitempty"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

type statusCountPayload struct {
	Status string `json:"status"`
	Total  int64  `json:"total"`
}

func buildOrderPayload(view services.OrderView) orderPayload {
	order := view.Order
	payload := orderPayload{
		ID:          order.ID,
		TrackOrder:  order.TrackOrder,
		OrderToken:  order.OrderToken,
		Products:    make([]productPayload, 0, len(order.Products)),
		OrderStatus: string(order.Status),
		PickupDate:  formatTimePtr(order.PickupDate),
		DropDate:    formatTimePtr(order.DropDate),
		Shift:       order.Shift,
		ServiceType: append([]string{}, order.ServiceType...),
		Message:     order.Message,
		Revision:    order.Revision,
		CreatedBy:   order.CreatedBy,
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
	}
	for _, product := range order.Products {
		payload.Products = append(payload.Products, productPayload{Name: product.Name, Quantity: product.Quantity})
	}
	if view.Receiver != nil {
		receiver := buildCustomerPayload(*view.Receiver)
		payload.Receiver = &receiver
	}
	payload.Owner = buildUserPayload(view.Owner)
	payload.AssignedDriver = buildUserPayload(view.Driver)

	if !view.OmitLogs {
		payload.Logs = make([]orderLogPayload, 0, len(order.Logs))
		for _, entry := range order.Logs {
			log := orderLogPayload{
				Timestamp:      formatTime(entry.Timestamp),
				AssignedDriver: cloneStringPointer(entry.AssignedDriver),
				Message:        entry.Message,
				Reason:         entry.Reason,
			}
			if entry.Status != nil {
				status := string(*entry.Status)
				log.OrderStatus = &status
			}
			payload.Logs = append(payload.Logs, log)
		}
	}
	return payload
}

func buildOrderPayloads(views []services.OrderView) []orderPayload {
	items := make([]orderPayload, 0, len(views))
	for _, view := range views {
		items = append(items, buildOrderPayload(view))
	}
	return items
}

func buildCustomerPayload(customer services.Customer) customerPayload {
	return customerPayload{
		ID:           customer.ID,
		FullName:     customer.FullName,
		BusinessName: customer.BusinessName,
		Email:        customer.Email,
		MobileNumber: customer.MobileNumber,
		Address: addressPayload{
			Province:   customer.Address.Province,
			City:       customer.Address.City,
			PostalCode: customer.Address.PostalCode,
			Address1:   customer.Address.Address1,
			Address2:   customer.Address.Address2,
		},
		OwnerID:   customer.OwnerID,
		CreatedAt: formatTime(customer.CreatedAt),
		UpdatedAt: formatTime(customer.UpdatedAt),
	}
}

func buildUserPayload(user *services.User) *userPayload {
	if user == nil {
		return nil
	}
	return &userPayload{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		PhoneNo:      user.PhoneNo,
		Role:         user.Role,
		ZoneAssigned: user.ZoneAssigned,
	}
}

func buildStatusCounts(counts []services.StatusCount) []statusCountPayload {
	out := make([]statusCountPayload, 0, len(counts))
	for _, count := range counts {
		out = append(out, statusCountPayload{Status: string(count.Status), Total: count.Total})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
