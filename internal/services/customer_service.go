package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/northline-logistics/api/internal/platform/pagination"
	"github.com/northline-logistics/api/internal/platform/textutil"
	"github.com/northline-logistics/api/internal/repositories"
)

const (
	customerIDPrefix   = "cus_"
	maxCustomerField   = 200
	minMobileDigits    = 7
	defaultCustomerCap = 100
)

// CustomerServiceDeps bundles collaborators required to construct the customer service.
type CustomerServiceDeps struct {
	Customers   repositories.CustomerRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type customerService struct {
	customers repositories.CustomerRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

var _ CustomerService = (*customerService)(nil)

// NewCustomerService constructs the customer management service.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
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
	return &customerService{
		customers: deps.Customers,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

func (s *customerService) CreateCustomer(ctx context.Context, cmd CreateCustomerCommand) (Customer, error) {
	ownerID := strings.TrimSpace(cmd.OwnerID)
	if ownerID == "" {
		return Customer{}, fmt.Errorf("%w: owner is required", ErrCustomerInvalidInput)
	}
	now := s.clock()
	customer := Customer{
		ID:           customerIDPrefix + s.newID(),
		FullName:     textutil.PlainText(cmd.FullName, maxCustomerField),
		BusinessName: textutil.PlainText(cmd.BusinessName, maxCustomerField),
		Email:        textutil.NormalizeEmail(cmd.Email),
		MobileNumber: textutil.NormalizePhone(cmd.MobileNumber),
		Address:      cleanAddress(cmd.Address),
		OwnerID:      ownerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateCustomer(customer); err != nil {
		return Customer{}, err
	}
	if err := s.customers.Insert(ctx, customer); err != nil {
		return Customer{}, customerStoreError(err)
	}
	s.logger(ctx, "customer.created", map[string]any{"customerId": customer.ID, "ownerId": ownerID})
	return customer, nil
}

func (s *customerService) GetCustomer(ctx context.Context, customerID string, requester Requester) (Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Customer{}, fmt.Errorf("%w: customer id is required", ErrCustomerInvalidInput)
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return Customer{}, customerStoreError(err)
	}
	if !requester.Admin && customer.OwnerID != requester.ID {
		return Customer{}, ErrCustomerForbidden
	}
	return customer, nil
}

func (s *customerService) ListCustomers(ctx context.Context, filter CustomerListFilter) (CustomerPage, error) {
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > defaultCustomerCap {
		limit = defaultCustomerCap
	}
	repoFilter := repositories.CustomerListFilter{Offset: pagination.Params{Page: page, Limit: limit}.Offset(), Limit: limit}
	if !filter.Requester.Admin {
		if strings.TrimSpace(filter.Requester.ID) == "" {
			return CustomerPage{}, ErrCustomerForbidden
		}
		repoFilter.OwnerID = filter.Requester.ID
	}
	found, err := s.customers.List(ctx, repoFilter)
	if err != nil {
		return CustomerPage{}, customerStoreError(err)
	}
	items := found.Items
	if items == nil {
		items = []Customer{}
	}
	return CustomerPage{Items: items, Total: found.Total, Page: page, Limit: limit}, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, cmd UpdateCustomerCommand) (Customer, error) {
	customer, err := s.GetCustomer(ctx, cmd.CustomerID, cmd.Requester)
	if err != nil {
		return Customer{}, err
	}

	changed := false
	set := func(dst *string, value *string, clean func(string) string) {
		if value == nil {
			return
		}
		if v := clean(*value); v != *dst {
			*dst = v
			changed = true
		}
	}
	plain := func(v string) string { return textutil.PlainText(v, maxCustomerField) }
	set(&customer.FullName, cmd.FullName, plain)
	set(&customer.BusinessName, cmd.BusinessName, plain)
	set(&customer.Email, cmd.Email, textutil.NormalizeEmail)
	set(&customer.MobileNumber, cmd.MobileNumber, textutil.NormalizePhone)
	set(&customer.Address.Province, cmd.Province, plain)
	set(&customer.Address.City, cmd.City, plain)
	set(&customer.Address.PostalCode, cmd.PostalCode, plain)
	set(&customer.Address.Address1, cmd.Address1, plain)
	set(&customer.Address.Address2, cmd.Address2, plain)
	if !changed {
		return customer, nil
	}
	if err := validateCustomer(customer); err != nil {
		return Customer{}, err
	}
	customer.UpdatedAt = s.clock()
	if err := s.customers.Update(ctx, customer); err != nil {
		return Customer{}, customerStoreError(err)
	}
	s.logger(ctx, "customer.updated", map[string]any{"customerId": customer.ID})
	return customer, nil
}

func validateCustomer(c Customer) error {
	if c.FullName == "" {
		return fmt.Errorf("%w: fullName is required", ErrCustomerInvalidInput)
	}
	if c.Email == "" {
		return fmt.Errorf("%w: email is required", ErrCustomerInvalidInput)
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return fmt.Errorf("%w: email is invalid", ErrCustomerInvalidInput)
	}
	if digits := strings.TrimPrefix(c.MobileNumber, "+"); len(digits) < minMobileDigits {
		return fmt.Errorf("%w: mobileNumber is invalid", ErrCustomerInvalidInput)
	}
	return nil
}

func cleanAddress(a Address) Address {
	return Address{
		Province:   textutil.PlainText(a.Province, maxCustomerField),
		City:       textutil.PlainText(a.City, maxCustomerField),
		PostalCode: textutil.PlainText(a.PostalCode, 32),
		Address1:   textutil.PlainText(a.Address1, maxCustomerField),
		Address2:   textutil.PlainText(a.Address2, maxCustomerField),
	}
}

func customerStoreError(err error) error {
	var dup *repositories.DuplicateError
	switch {
	case errors.As(err, &dup):
		return fmt.Errorf("%w: %s must be unique", ErrCustomerConflict, dup.Field)
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrCustomerConflict, err)
	case isRepoUnavailable(err):
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	default:
		return err
	}
}
