package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domain "github.com/northline-logistics/api/internal/domain"
	"github.com/northline-logistics/api/internal/platform/pagination"
	"github.com/northline-logistics/api/internal/platform/textutil"
	"github.com/northline-logistics/api/internal/repositories"
)

const (
	orderEventCreated = "order.created"
	orderEventUpdated = "order.updated"

	orderIDPrefix = "ord_"

	createdLogMessage = "Order created with initial status as 'unassigned'."
	logMessageJoiner  = " | "

	maxMessageLength = 2000
	maxReasonLength  = 500
	maxShiftLength   = 64
	maxProductName   = 200

	notificationTimeout = 10 * time.Second
)

// orderTokenNamespace scopes name-based order tokens to this service.
var orderTokenNamespace = uuid.MustParse("5b0e7c2e-3f4a-4d61-9a51-2c6f0f8e1d7a")

var tracer = otel.Tracer("github.com/northline-logistics/api/internal/services")

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Customers   repositories.CustomerRepository
	Users       repositories.UserRepository
	Sequence    SequenceService
	UnitOfWork  repositories.UnitOfWork
	Transitions TransitionTable
	// LogSameDriverReason records a reassignment entry when the current driver is
	// sent again together with a reason.
	LogSameDriverReason bool
	Events              OrderEventPublisher
	Notifications       NotificationSender
	Metrics             Metrics
	Clock               func() time.Time
	IDGenerator         func() string
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders              repositories.OrderRepository
	customers           repositories.CustomerRepository
	users               repositories.UserRepository
	sequence            SequenceService
	unitOfWork          repositories.UnitOfWork
	transitions         TransitionTable
	logSameDriverReason bool
	relations           relationLoader
	events              OrderEventPublisher
	notifications       NotificationSender
	metrics             Metrics
	clock               func() time.Time
	newID               func() string
	logger              func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	svc, err := newOrderService(deps)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func newOrderService(deps OrderServiceDeps) (*orderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("order service: customer repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("order service: user repository is required")
	}
	if deps.Sequence == nil {
		return nil, errors.New("order service: sequence service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:              deps.Orders,
		customers:           deps.Customers,
		users:               deps.Users,
		sequence:            deps.Sequence,
		unitOfWork:          unit,
		transitions:         deps.Transitions,
		logSameDriverReason: deps.LogSameDriverReason,
		relations:           relationLoader{customers: deps.Customers, users: deps.Users},
		events:              deps.Events,
		notifications:       deps.Notifications,
		metrics:             deps.Metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderView, error) {
	ctx, span := tracer.Start(ctx, "orders.create")
	defer span.End()

	receiverID := strings.TrimSpace(cmd.ReceiverID)
	if receiverID == "" {
		return OrderView{}, fmt.Errorf("%w: receiver is required", ErrOrderInvalidInput)
	}
	products, err := normaliseProducts(cmd.Products)
	if err != nil {
		return OrderView{}, err
	}
	if cmd.PickupDate != nil && cmd.DropDate != nil && cmd.DropDate.Before(*cmd.PickupDate) {
		return OrderView{}, fmt.Errorf("%w: drop date must not precede pickup date", ErrOrderInvalidInput)
	}

	receiver, err := s.customers.FindByID(ctx, receiverID)
	if err != nil {
		if isRepoNotFound(err) {
			return OrderView{}, fmt.Errorf("%w: %s", ErrReceiverNotFound, receiverID)
		}
		return OrderView{}, s.storeError(err)
	}

	now := s.clock()
	initial := domain.OrderStatusUnassigned
	order := Order{
		ID:          orderIDPrefix + s.newID(),
		ReceiverID:  receiver.ID,
		Products:    products,
		Status:      initial,
		PickupDate:  utcPtr(cmd.PickupDate),
		DropDate:    utcPtr(cmd.DropDate),
		Shift:       textutil.PlainText(cmd.Shift, maxShiftLength),
		ServiceType: textutil.NormalizeStrings(cmd.ServiceType),
		Message:     textutil.PlainText(cmd.Message, maxMessageLength),
		CreatedBy:   strings.TrimSpace(cmd.ActorID),
		CreatedAt:   now,
		UpdatedAt:   now,
		Logs: []OrderLogEntry{{
			Timestamp: now,
			Status:    &initial,
			Message:   createdLogMessage,
			Reason:    domain.DefaultLogReason,
		}},
	}
	order.OrderToken = orderToken(order.ID, now)

	// The counter bump and the insert commit together, so a failed insert never
	// leaves an order without a tracking code.
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		code, err := s.sequence.NextTrackingCode(txCtx)
		if err != nil {
			return err
		}
		order.TrackOrder = code
		return s.orders.Insert(txCtx, order)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order failed")
		s.recordMetric(orderEventCreated, "error")
		if errors.Is(err, ErrSequenceUnavailable) {
			return OrderView{}, err
		}
		return OrderView{}, s.storeError(err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.track", order.TrackOrder))
	s.recordMetric(orderEventCreated, "ok")

	s.logger(ctx, "order.created", map[string]any{
		"orderId":    order.ID,
		"trackOrder": order.TrackOrder,
		"receiverId": order.ReceiverID,
	})
	s.publish(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		TrackOrder:    order.TrackOrder,
		CurrentStatus: string(order.Status),
		ActorID:       order.CreatedBy,
		Message:       createdLogMessage,
		OccurredAt:    now,
	})
	s.notify(ctx, receiver, order, "Order "+order.TrackOrder+" received", createdLogMessage)

	return s.expand(ctx, order)
}

func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (OrderView, error) {
	ctx, span := tracer.Start(ctx, "orders.update")
	defer span.End()

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	var target *domain.OrderStatus
	if cmd.Status != nil {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(*cmd.Status)))
		if !status.Valid() {
			return OrderView{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, *cmd.Status)
		}
		target = &status
	}

	var driver *User
	if cmd.DriverID != nil {
		driverID := strings.TrimSpace(*cmd.DriverID)
		if driverID == "" {
			return OrderView{}, fmt.Errorf("%w: driver id must not be blank", ErrOrderInvalidInput)
		}
		found, err := s.users.FindByID(ctx, driverID)
		if err != nil {
			if isRepoNotFound(err) {
				return OrderView{}, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
			}
			return OrderView{}, s.storeError(err)
		}
		driver = &found
	}

	reason := textutil.PlainTextPtr(cmd.Reason, maxReasonLength)
	now := s.clock()

	var (
		previous OrderStatus
		message  string
	)
	updated, err := s.orders.Mutate(ctx, orderID, func(order *Order) error {
		previous = order.Status
		msg, err := s.applyUpdate(order, target, driver, reason, now)
		message = msg
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update order failed")
		switch {
		case errors.Is(err, ErrOrderNoChanges), errors.Is(err, ErrOrderInvalidState):
			s.recordMetric(orderEventUpdated, "rejected")
			return OrderView{}, err
		case isRepoNotFound(err):
			return OrderView{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		s.recordMetric(orderEventUpdated, "error")
		return OrderView{}, s.storeError(err)
	}
	s.recordMetric(orderEventUpdated, "ok")

	event := OrderEvent{
		Type:           orderEventUpdated,
		OrderID:        updated.ID,
		TrackOrder:     updated.TrackOrder,
		PreviousStatus: string(previous),
		CurrentStatus:  string(updated.Status),
		ActorID:        strings.TrimSpace(cmd.ActorID),
		Message:        message,
		OccurredAt:     now,
	}
	if updated.AssignedDriverID != nil {
		event.DriverID = *updated.AssignedDriverID
	}
	s.logger(ctx, "order.updated", map[string]any{
		"orderId":        updated.ID,
		"previousStatus": string(previous),
		"status":         string(updated.Status),
		"revision":       updated.Revision,
	})
	s.publish(ctx, event)
	if previous != updated.Status {
		if receiver, err := s.customers.FindByID(ctx, updated.ReceiverID); err == nil {
			s.notify(ctx, receiver, updated, "Order "+updated.TrackOrder+" is now "+string(updated.Status), message)
		}
	}

	return s.expand(ctx, updated)
}

// applyUpdate mutates order in place and appends the single consolidated log entry.
func (s *orderService) applyUpdate(order *Order, target *domain.OrderStatus, driver *User, reason *string, now time.Time) (string, error) {
	var messages []string

	if target != nil && *target != order.Status {
		if !s.transitions.Allows(order.Status, *target) {
			return "", fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, *target)
		}
		order.Status = *target
		messages = append(messages, statusMessage(*target))
	}

	if driver != nil {
		sameDriver := order.AssignedDriverID != nil && *order.AssignedDriverID == driver.ID
		switch {
		case !sameDriver:
			id := driver.ID
			order.AssignedDriverID = &id
			messages = append(messages, fmt.Sprintf("Driver '%s' assigned to the order", driver.Name))
		case reason != nil && s.logSameDriverReason:
			messages = append(messages, fmt.Sprintf("Driver '%s' reassigned to the order", driver.Name))
		}
	}

	if len(messages) == 0 {
		return "", ErrOrderNoChanges
	}

	message := strings.Join(messages, logMessageJoiner)
	status := order.Status
	entry := OrderLogEntry{
		Timestamp: now,
		Status:    &status,
		Message:   message,
		Reason:    domain.DefaultLogReason,
	}
	if order.AssignedDriverID != nil {
		id := *order.AssignedDriverID
		entry.AssignedDriver = &id
	}
	if reason != nil {
		entry.Reason = *reason
	}
	order.Logs = append(order.Logs, entry)
	order.UpdatedAt = now
	return message, nil
}

func statusMessage(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusPickup:
		return "Order picked up"
	case domain.OrderStatusInTransit:
		return "Order is now in transit"
	case domain.OrderStatusDelivered:
		return "Order successfully delivered"
	default:
		return fmt.Sprintf("Order status updated to '%s'", status)
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (OrderView, error) {
	return s.lookup(ctx, orderID, s.orders.FindByID, false)
}

func (s *orderService) GetOrderByTrackingCode(ctx context.Context, trackOrder string) (OrderView, error) {
	return s.lookup(ctx, strings.ToUpper(strings.TrimSpace(trackOrder)), s.orders.FindByTrackOrder, false)
}

func (s *orderService) GetOrderByToken(ctx context.Context, orderToken string) (OrderView, error) {
	return s.lookup(ctx, orderToken, s.orders.FindByToken, true)
}

func (s *orderService) GetOrderByReceiver(ctx context.Context, receiverID string) (OrderView, error) {
	return s.lookup(ctx, receiverID, s.orders.FindByReceiver, false)
}

func (s *orderService) lookup(ctx context.Context, key string, find func(context.Context, string) (Order, error), omitLogs bool) (OrderView, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return OrderView{}, fmt.Errorf("%w: lookup key is required", ErrOrderInvalidInput)
	}
	order, err := find(ctx, key)
	if err != nil {
		if isRepoNotFound(err) {
			return OrderView{}, fmt.Errorf("%w: %s", ErrOrderNotFound, key)
		}
		return OrderView{}, s.storeError(err)
	}
	view, err := s.expand(ctx, order)
	if err != nil {
		return OrderView{}, err
	}
	if omitLogs {
		view.OmitLogs = true
		view.Order.Logs = nil
	}
	return view, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (OrderPage, error) {
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return OrderPage{}, fmt.Errorf("%w: limit must be positive", ErrOrderInvalidInput)
	}

	repoFilter := repositories.OrderListFilter{Offset: pagination.Params{Page: page, Limit: limit}.Offset(), Limit: limit}
	if filter.Status != nil {
		status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(*filter.Status)))
		if !status.Valid() {
			return OrderPage{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, *filter.Status)
		}
		repoFilter.Status = &status
	}
	result := OrderPage{Items: []OrderView{}, Page: page, Limit: limit}
	ownerID := strings.TrimSpace(filter.OwnerID)
	if ownerID != "" {
		ids, err := s.customers.ListIDsByOwner(ctx, ownerID)
		if err != nil {
			return OrderPage{}, s.storeError(err)
		}
		if len(ids) == 0 {
			return result, nil
		}
		repoFilter.ReceiverIDs = ids
	}

	found, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return OrderPage{}, s.storeError(err)
	}
	populated, err := s.relations.populateAll(ctx, found.Items)
	if err != nil {
		return OrderPage{}, s.storeError(err)
	}

	result.Total = found.Total
	for _, p := range populated {
		// an owner listing reaches orders through their receiver, so one that no
		// longer resolves does not belong to the owner any more
		if ownerID != "" && p.Receiver == nil {
			result.Total--
			continue
		}
		result.Items = append(result.Items, ReshapeOrder(p))
	}
	return result, nil
}

func (s *orderService) expand(ctx context.Context, order Order) (OrderView, error) {
	populated, err := s.relations.populate(ctx, order)
	if err != nil {
		return OrderView{}, s.storeError(err)
	}
	return ReshapeOrder(populated), nil
}

func (s *orderService) storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	default:
		return err
	}
}

func (s *orderService) recordMetric(event, status string) {
	if s.metrics != nil {
		s.metrics.OrderEvent(event, status)
	}
}

func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

// notify hands the message to the mailer in the background. Failures are logged only.
func (s *orderService) notify(ctx context.Context, receiver Customer, order Order, subject, body string) {
	if s.notifications == nil || strings.TrimSpace(receiver.Email) == "" {
		return
	}
	notification := Notification{
		Kind:          "order." + string(order.Status),
		OrderID:       order.ID,
		TrackOrder:    order.TrackOrder,
		Status:        string(order.Status),
		Recipient:     receiver.Email,
		RecipientName: receiver.FullName,
		Subject:       subject,
		Body:          body,
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(bg, notificationTimeout)
		defer cancel()
		if err := s.notifications.SendNotification(sendCtx, notification); err != nil {
			s.logger(bg, "order.notification.failed", map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}()
}

func normaliseProducts(inputs []ProductInput) ([]Product, error) {
	products := make([]Product, 0, len(inputs))
	for i, input := range inputs {
		name := textutil.PlainText(input.Name, maxProductName)
		if name == "" {
			return nil, fmt.Errorf("%w: product %d name is required", ErrOrderInvalidInput, i+1)
		}
		if input.Quantity == nil || math.IsNaN(*input.Quantity) || math.IsInf(*input.Quantity, 0) {
			return nil, fmt.Errorf("%w: product %d quantity must be a number", ErrOrderInvalidInput, i+1)
		}
		if *input.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d quantity must be positive", ErrOrderInvalidInput, i+1)
		}
		products = append(products, Product{Name: name, Quantity: *input.Quantity})
	}
	return products, nil
}

// orderToken derives the scanner token from the order id and its creation instant.
func orderToken(orderID string, createdAt time.Time) string {
	seed := orderID + "|" + strconv.FormatInt(createdAt.UnixNano(), 10)
	return uuid.NewSHA1(orderTokenNamespace, []byte(seed)).String()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
