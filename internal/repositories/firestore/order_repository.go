package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/northline-logistics/api/internal/domain"
	pfirestore "github.com/northline-logistics/api/internal/platform/firestore"
	"github.com/northline-logistics/api/internal/repositories"
)

const (
	ordersCollection = "orders"
	// Firestore caps "in" filters at 30 values.
	maxInFilterValues = 30
)

type productDocument struct {
	Name     string  `firestore:"name"`
	Quantity float64 `firestore:"quantity"`
}

type orderLogDocument struct {
	Timestamp        time.Time `firestore:"timestamp"`
	OrderStatus      *string   `firestore:"orderStatus"`
	AssignedDriverID *string   `firestore:"assignedDriverId"`
	Message          string    `firestore:"message"`
	Reason           string    `firestore:"reason"`
}

type orderDocument struct {
	TrackOrder       string             `firestore:"trackOrder"`
	OrderToken       string             `firestore:"orderToken"`
	ReceiverID       string             `firestore:"receiverId"`
	AssignedDriverID *string            `firestore:"assignedDriverId"`
	Products         []productDocument  `firestore:"products"`
	OrderStatus      string             `firestore:"orderStatus"`
	PickupDate       *time.Time         `firestore:"pickupDate,omitempty"`
	DropDate         *time.Time         `firestore:"dropDate,omitempty"`
	Shift            string             `firestore:"shift,omitempty"`
	ServiceType      []string           `firestore:"serviceType"`
	Message          string             `firestore:"message,omitempty"`
	Logs             []orderLogDocument `firestore:"logs"`
	Revision         int64              `firestore:"revision"`
	CreatedBy        string             `firestore:"createdBy,omitempty"`
	CreatedAt        time.Time          `firestore:"createdAt"`
	UpdatedAt        time.Time          `firestore:"updatedAt"`
}

// OrderRepository persists orders and their embedded log in the orders collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document, failing with a conflict if the id is taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order id is required")
	}
	return r.orders.Create(ctx, order.ID, fromDomainOrder(order))
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

// FindByTrackOrder loads the order carrying the tracking code.
func (r *OrderRepository) FindByTrackOrder(ctx context.Context, trackOrder string) (domain.Order, error) {
	return r.findOne(ctx, "trackOrder", trackOrder)
}

// FindByToken loads the order carrying the scanner token.
func (r *OrderRepository) FindByToken(ctx context.Context, orderToken string) (domain.Order, error) {
	return r.findOne(ctx, "orderToken", orderToken)
}

// FindByReceiver returns the newest order addressed to receiverID.
func (r *OrderRepository) FindByReceiver(ctx context.Context, receiverID string) (domain.Order, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return domain.Order{}, pfirestore.NewNotFound("orders.findByReceiver", "receiver id is required")
	}
	doc, err := r.orders.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("receiverId", "==", receiverID).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

func (r *OrderRepository) findOne(ctx context.Context, field, value string) (domain.Order, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Order{}, pfirestore.NewNotFound("orders.find", field+" is required")
	}
	doc, err := r.orders.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

// List returns one page of orders, newest first, with the total match count.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.OffsetPage[domain.Order], error) {
	if filter.ReceiverIDs != nil {
		return r.listByReceivers(ctx, filter)
	}

	where := func(q firestore.Query) firestore.Query {
		if filter.Status != nil {
			q = q.Where("orderStatus", "==", string(*filter.Status))
		}
		return q
	}
	total, err := r.orders.Count(ctx, where)
	if err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = where(q).OrderBy("createdAt", firestore.Desc).Offset(filter.Offset)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return domain.OffsetPage[domain.Order]{}, err
	}
	return domain.OffsetPage[domain.Order]{Items: toDomainOrders(docs), Total: total}, nil
}

// listByReceivers fans the receiver set out in chunks of the "in" limit and pages in memory.
func (r *OrderRepository) listByReceivers(ctx context.Context, filter repositories.OrderListFilter) (domain.OffsetPage[domain.Order], error) {
	var matched []domain.Order
	for chunk := range slices.Chunk(filter.ReceiverIDs, maxInFilterValues) {
		docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
			q = q.Where("receiverId", "in", chunk)
			if filter.Status != nil {
				q = q.Where("orderStatus", "==", string(*filter.Status))
			}
			return q
		})
		if err != nil {
			return domain.OffsetPage[domain.Order]{}, err
		}
		matched = append(matched, toDomainOrders(docs)...)
	}
	return repositories.PageOrders(matched, filter.Offset, filter.Limit), nil
}

// ListAssignedToDriver returns orders assigned to driverID updated at or after since.
func (r *OrderRepository) ListAssignedToDriver(ctx context.Context, driverID string, since time.Time) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("assignedDriverId", "==", driverID).Where("updatedAt", ">=", since)
	})
	if err != nil {
		return nil, err
	}
	return toDomainOrders(docs), nil
}

// CountByStatus counts orders created inside window, one aggregation per status.
func (r *OrderRepository) CountByStatus(ctx context.Context, window domain.DayWindow) (map[domain.OrderStatus]int64, error) {
	counts := make(map[domain.OrderStatus]int64)
	for _, status := range domain.OrderStatuses() {
		total, err := r.orders.Count(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("orderStatus", "==", string(status)).
				Where("createdAt", ">=", window.Start).
				Where("createdAt", "<", window.End)
		})
		if err != nil {
			return nil, err
		}
		counts[status] = total
	}
	return counts, nil
}

// Mutate loads, edits and rewrites the order in one transaction. Firestore
// aborts and retries the transaction when another writer touched the document.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	if fn == nil {
		return domain.Order{}, errors.New("order mutation is required")
	}
	var (
		updated  domain.Order
		fnFailed error
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		fnFailed = nil
		doc, err := r.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		order := toDomainOrder(doc)
		revision := order.Revision
		if err := fn(&order); err != nil {
			fnFailed = err
			return err
		}
		order.ID = doc.ID
		order.Revision = revision + 1
		updated = order
		return r.orders.Set(ctx, doc.ID, fromDomainOrder(order))
	})
	if fnFailed != nil {
		return domain.Order{}, fnFailed
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
	}
	return updated, nil
}

func toDomainOrders(docs []pfirestore.Document[orderDocument]) []domain.Order {
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDomainOrder(doc))
	}
	return out
}

func toDomainOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	data := doc.Data
	order := domain.Order{
		ID:               doc.ID,
		TrackOrder:       data.TrackOrder,
		OrderToken:       data.OrderToken,
		ReceiverID:       data.ReceiverID,
		AssignedDriverID: data.AssignedDriverID,
		Status:           domain.OrderStatus(data.OrderStatus),
		PickupDate:       data.PickupDate,
		DropDate:         data.DropDate,
		Shift:            data.Shift,
		ServiceType:      data.ServiceType,
		Message:          data.Message,
		Revision:         data.Revision,
		CreatedBy:        data.CreatedBy,
		CreatedAt:        data.CreatedAt,
		UpdatedAt:        data.UpdatedAt,
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusUnassigned
	}
	for _, p := range data.Products {
		order.Products = append(order.Products, domain.Product{Name: p.Name, Quantity: p.Quantity})
	}
	for _, l := range data.Logs {
		entry := domain.OrderLogEntry{
			Timestamp:      l.Timestamp,
			AssignedDriver: l.AssignedDriverID,
			Message:        l.Message,
			Reason:         l.Reason,
		}
		if l.OrderStatus != nil {
			status := domain.OrderStatus(*l.OrderStatus)
			entry.Status = &status
		}
		order.Logs = append(order.Logs, entry)
	}
	return order
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		TrackOrder:       order.TrackOrder,
		OrderToken:       order.OrderToken,
		ReceiverID:       order.ReceiverID,
		AssignedDriverID: order.AssignedDriverID,
		OrderStatus:      string(order.Status),
		PickupDate:       order.PickupDate,
		DropDate:         order.DropDate,
		Shift:            order.Shift,
		ServiceType:      order.ServiceType,
		Message:          order.Message,
		Revision:         order.Revision,
		CreatedBy:        order.CreatedBy,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
		Products:         make([]productDocument, 0, len(order.Products)),
		Logs:             make([]orderLogDocument, 0, len(order.Logs)),
	}
	if doc.ServiceType == nil {
		doc.ServiceType = []string{}
	}
	for _, p := range order.Products {
		doc.Products = append(doc.Products, productDocument{Name: p.Name, Quantity: p.Quantity})
	}
	for _, l := range order.Logs {
		entry := orderLogDocument{
			Timestamp:        l.Timestamp,
			AssignedDriverID: l.AssignedDriver,
			Message:          l.Message,
			Reason:           l.Reason,
		}
		if l.Status != nil {
			status := string(*l.Status)
			entry.OrderStatus = &status
		}
		doc.Logs = append(doc.Logs, entry)
	}
	return doc
}
