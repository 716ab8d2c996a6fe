package customer

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// ErrNotFound is returned when the customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a registered buyer with optional default addresses.
type Customer struct {
	ID          string
	Email       string
	BillAddress *order.Address
	ShipAddress *order.Address
}

// Repository persists customers.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	// SaveDefaultAddresses replaces the non-nil default addresses.
	SaveDefaultAddresses(ctx context.Context, id string, bill, ship *order.Address) error
}

// AddressBook saves addresses from the details step as customer defaults.
type AddressBook struct {
	repo Repository
}

// NewAddressBook creates an AddressBook backed by repo.
func NewAddressBook(repo Repository) *AddressBook {
	return &AddressBook{repo: repo}
}

// SaveDefaults stores the addresses the buyer asked to keep. Guest orders
// and requests with neither flag set are ignored.
func (b *AddressBook) SaveDefaults(ctx context.Context, o *order.Order, saveBill, saveShip bool) error {
	if o.CustomerID == "" || (!saveBill && !saveShip) {
		return nil
	}
	var bill, ship *order.Address
	if saveBill {
		bill = o.BillAddress
	}
	if saveShip {
		ship = o.ShipAddress
	}
	if err := b.repo.SaveDefaultAddresses(ctx, o.CustomerID, bill, ship); err != nil {
		return errors.Wrapf(err, "save default addresses for %s", o.CustomerID)
	}
	return nil
}
