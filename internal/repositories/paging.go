package repositories

import (
	"slices"
	"strings"

	domain "github.com/northline-logistics/api/internal/domain"
)

// PageOrders sorts orders newest first and cuts the requested window.
// Backends that cannot page server-side share it.
func PageOrders(orders []domain.Order, offset, limit int) domain.OffsetPage[domain.Order] {
	sorted := slices.Clone(orders)
	slices.SortStableFunc(sorted, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return domain.OffsetPage[domain.Order]{
		Items: window(sorted, offset, limit),
		Total: int64(len(sorted)),
	}
}

// PageCustomers sorts customers newest first and cuts the requested window.
func PageCustomers(customers []domain.Customer, offset, limit int) domain.OffsetPage[domain.Customer] {
	sorted := slices.Clone(customers)
	slices.SortStableFunc(sorted, func(a, b domain.Customer) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return domain.OffsetPage[domain.Customer]{
		Items: window(sorted, offset, limit),
		Total: int64(len(sorted)),
	}
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
