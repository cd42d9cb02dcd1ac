package services

import (
	"errors"

	"github.com/northline-logistics/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrReceiverNotFound indicates the referenced receiver does not exist.
	ErrReceiverNotFound = errors.New("order: receiver not found")
	// ErrDriverNotFound indicates the referenced driver does not exist.
	ErrDriverNotFound = errors.New("order: driver not found")
	// ErrOrderNoChanges rejects an update that changes neither status nor driver.
	ErrOrderNoChanges = errors.New("order: no changes to update")
	// ErrOrderInvalidState indicates the transition table forbids the requested status.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent writers could not be reconciled.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the store could not be reached.
	ErrOrderUnavailable = errors.New("order: store unavailable")
	// ErrSummaryEmpty reports a day without orders.
	ErrSummaryEmpty = errors.New("order: no orders found for today")

	// ErrSequenceUnavailable indicates the counter could not be incremented.
	ErrSequenceUnavailable = errors.New("sequence: unavailable")

	// ErrCustomerInvalidInput signals invalid customer data.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates the customer could not be located.
	ErrCustomerNotFound = errors.New("customer: not found")
	// ErrCustomerConflict indicates a unique customer field is already in use.
	ErrCustomerConflict = errors.New("customer: conflict")
	// ErrCustomerForbidden indicates the requester does not own the customer.
	ErrCustomerForbidden = errors.New("customer: forbidden")
)

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func isRepoUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
