package firestore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/northline-logistics/api/internal/domain"
	pfirestore "github.com/northline-logistics/api/internal/platform/firestore"
	"github.com/northline-logistics/api/internal/repositories"
)

const (
	customersCollection    = "customers"
	customerKeysCollection = "customer_keys"
)

type customerDocument struct {
	FullName     string    `firestore:"fullName"`
	BusinessName string    `firestore:"businessName,omitempty"`
	Email        string    `firestore:"email"`
	MobileNumber string    `firestore:"mobileNumber"`
	Province     string    `firestore:"province,omitempty"`
	City         string    `firestore:"city,omitempty"`
	PostalCode   string    `firestore:"postalCode,omitempty"`
	Address1     string    `firestore:"address1,omitempty"`
	Address2     string    `firestore:"address2,omitempty"`
	OwnerID      string    `firestore:"ownerId"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// customerKeyDocument reserves a unique field value for one customer.
type customerKeyDocument struct {
	CustomerID string `firestore:"customerId"`
}

// CustomerRepository persists receivers. Unique fields are reserved through
// key documents written in the same transaction as the customer.
type CustomerRepository struct {
	provider  *pfirestore.Provider
	customers *pfirestore.Collection[customerDocument]
	keys      *pfirestore.Collection[customerKeyDocument]
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		provider:  provider,
		customers: pfirestore.NewCollection[customerDocument](provider, customersCollection),
		keys:      pfirestore.NewCollection[customerKeyDocument](provider, customerKeysCollection),
	}, nil
}

type uniqueKey struct {
	field string
	id    string
}

func uniqueKeys(c domain.Customer) []uniqueKey {
	return []uniqueKey{
		{field: "email", id: "email:" + url.PathEscape(c.Email)},
		{field: "mobileNumber", id: "mobile:" + url.PathEscape(c.MobileNumber)},
	}
}

// Insert stores a new customer, failing with a DuplicateError when email or mobile number is taken.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer id is required")
	}
	return r.write(ctx, customer, nil)
}

// Update rewrites an existing customer and moves its unique key reservations.
func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		current, err := r.customers.Get(ctx, customer.ID)
		if err != nil {
			return err
		}
		previous := toDomainCustomer(current)
		return r.write(ctx, customer, &previous)
	})
}

// write runs every read before the first write, as Firestore transactions require.
func (r *CustomerRepository) write(ctx context.Context, customer domain.Customer, previous *domain.Customer) error {
	var dup error
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		dup = nil
		keys := uniqueKeys(customer)
		fresh := make([]uniqueKey, 0, len(keys))
		for _, key := range keys {
			held, err := r.keys.Get(ctx, key.id)
			switch {
			case err == nil:
				if held.Data.CustomerID != customer.ID {
					dup = &repositories.DuplicateError{Entity: "customer", Field: key.field}
					return dup
				}
			case pfirestore.IsNotFound(err):
				fresh = append(fresh, key)
			default:
				return err
			}
		}

		if previous != nil {
			current := make(map[string]struct{}, len(keys))
			for _, key := range keys {
				current[key.id] = struct{}{}
			}
			for _, old := range uniqueKeys(*previous) {
				if _, kept := current[old.id]; !kept {
					if err := r.keys.Delete(ctx, old.id); err != nil {
						return err
					}
				}
			}
		}
		for _, key := range fresh {
			if err := r.keys.Set(ctx, key.id, customerKeyDocument{CustomerID: customer.ID}); err != nil {
				return err
			}
		}
		if previous == nil {
			return r.customers.Create(ctx, customer.ID, fromDomainCustomer(customer))
		}
		return r.customers.Set(ctx, customer.ID, fromDomainCustomer(customer))
	})
	if dup != nil {
		return dup
	}
	return err
}

// FindByID loads one customer.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.customers.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return toDomainCustomer(doc), nil
}

// List returns one page of customers, newest first.
func (r *CustomerRepository) List(ctx context.Context, filter repositories.CustomerListFilter) (domain.OffsetPage[domain.Customer], error) {
	where := func(q firestore.Query) firestore.Query {
		if owner := strings.TrimSpace(filter.OwnerID); owner != "" {
			q = q.Where("ownerId", "==", owner)
		}
		return q
	}
	total, err := r.customers.Count(ctx, where)
	if err != nil {
		return domain.OffsetPage[domain.Customer]{}, err
	}
	docs, err := r.customers.Query(ctx, func(q firestore.Query) firestore.Query {
		q = where(q).OrderBy("createdAt", firestore.Desc).Offset(filter.Offset)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return domain.OffsetPage[domain.Customer]{}, err
	}
	items := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		items = append(items, toDomainCustomer(doc))
	}
	return domain.OffsetPage[domain.Customer]{Items: items, Total: total}, nil
}

// ListIDsByOwner returns the ids of every customer registered by ownerID.
func (r *CustomerRepository) ListIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	docs, err := r.customers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("ownerId", "==", ownerID).Select()
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

func toDomainCustomer(doc pfirestore.Document[customerDocument]) domain.Customer {
	d := doc.Data
	return domain.Customer{
		ID:           doc.ID,
		FullName:     d.FullName,
		BusinessName: d.BusinessName,
		Email:        d.Email,
		MobileNumber: d.MobileNumber,
		Address: domain.Address{
			Province:   d.Province,
			City:       d.City,
			PostalCode: d.PostalCode,
			Address1:   d.Address1,
			Address2:   d.Address2,
		},
		OwnerID:   d.OwnerID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func fromDomainCustomer(c domain.Customer) customerDocument {
	return customerDocument{
		FullName:     c.FullName,
		BusinessName: c.BusinessName,
		Email:        c.Email,
		MobileNumber: c.MobileNumber,
		Province:     c.Address.Province,
		City:         c.Address.City,
		PostalCode:   c.Address.PostalCode,
		Address1:     c.Address.Address1,
		Address2:     c.Address.Address2,
		OwnerID:      c.OwnerID,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
