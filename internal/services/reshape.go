package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/northline-logistics/api/internal/repositories"
)

// expansionConcurrency bounds parallel relation lookups for list endpoints.
const expansionConcurrency = 8

// ReshapeOrder lifts the receiver's owner beside the receiver and strips it from
// the nested receiver. A receiver that failed to resolve yields a nil owner.
func ReshapeOrder(populated PopulatedOrder) OrderView {
	view := OrderView{
		Order:  populated.Order,
		Driver: populated.Driver,
	}
	if populated.Receiver != nil {
		receiver := populated.Receiver.Customer
		receiver.OwnerID = ""
		view.Receiver = &receiver
		view.Owner = populated.Receiver.Owner
	}
	return view
}

// relationLoader resolves the receiver, the receiver's owner and the driver of orders.
type relationLoader struct {
	customers repositories.CustomerRepository
	users     repositories.UserRepository
}

// populate resolves relations concurrently. Missing records become nil; any
// other lookup failure is returned.
func (l relationLoader) populate(ctx context.Context, order Order) (PopulatedOrder, error) {
	result := PopulatedOrder{Order: order}
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		customer, err := l.customers.FindByID(gctx, order.ReceiverID)
		if err != nil {
			if isRepoNotFound(err) {
				return nil
			}
			return fmt.Errorf("load receiver %s: %w", order.ReceiverID, err)
		}
		receiver := &PopulatedCustomer{Customer: customer}
		if customer.OwnerID != "" {
			owner, err := l.users.FindByID(gctx, customer.OwnerID)
			switch {
			case err == nil:
				receiver.Owner = &owner
			case !isRepoNotFound(err):
				return fmt.Errorf("load owner %s: %w", customer.OwnerID, err)
			}
		}
		result.Receiver = receiver
		return nil
	})

	if order.AssignedDriverID != nil && *order.AssignedDriverID != "" {
		driverID := *order.AssignedDriverID
		group.Go(func() error {
			driver, err := l.users.FindByID(gctx, driverID)
			switch {
			case err == nil:
				result.Driver = &driver
			case !isRepoNotFound(err):
				return fmt.Errorf("load driver %s: %w", driverID, err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return PopulatedOrder{}, err
	}
	return result, nil
}

// populateAll keeps input order in the output.
func (l relationLoader) populateAll(ctx context.Context, orders []Order) ([]PopulatedOrder, error) {
	out := make([]PopulatedOrder, len(orders))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(expansionConcurrency)
	for i, order := range orders {
		group.Go(func() error {
			populated, err := l.populate(gctx, order)
			if err != nil {
				return err
			}
			out[i] = populated
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
