package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// CalculatorType enumerates how a shipping method prices a shipment.
type CalculatorType string

const (
	// CalculatorFlat charges Amount once per shipment.
	CalculatorFlat CalculatorType = "flat"
	// CalculatorPerItem charges Amount for every unit shipped.
	CalculatorPerItem CalculatorType = "per_item"
	// CalculatorPercent charges Amount percent of the item total.
	CalculatorPercent CalculatorType = "percent_of_items"
)

var (
	// ErrNoRateAvailable is returned when a shipping method cannot price the
	// order's current shipments.
	ErrNoRateAvailable = errors.New("no shipping rate available")
	// ErrNotFound is returned by Repository when the method does not exist.
	ErrNotFound = errors.New("shipping method not found")
)

var hundred = decimal.NewFromInt(100)

// Method is a shipping option a distributor offers.
type Method struct {
	ID             string
	Name           string
	Calculator     CalculatorType
	Amount         decimal.Decimal
	DistributorIDs []string
	// MaxItems caps the units a single shipment may carry. Zero means no cap.
	MaxItems int
}

// OfferedBy reports whether the distributor offers this method.
func (m *Method) OfferedBy(distributorID string) bool {
	for _, id := range m.DistributorIDs {
		if id == distributorID {
			return true
		}
	}
	return false
}

// Cost prices a shipment carrying all of o's line items.
func (m *Method) Cost(o *order.Order) (decimal.Decimal, error) {
	items := o.ItemCount()
	if m.MaxItems > 0 && items > m.MaxItems {
		return decimal.Zero, ErrNoRateAvailable
	}

	var cost decimal.Decimal
	switch m.Calculator {
	case CalculatorFlat:
		cost = m.Amount
	case CalculatorPerItem:
		cost = m.Amount.Mul(decimal.NewFromInt(int64(items)))
	case CalculatorPercent:
		cost = o.ItemTotal.Mul(m.Amount).Div(hundred)
	default:
		return decimal.Zero, errors.Errorf("unsupported calculator: %q", m.Calculator)
	}
	if cost.IsNegative() {
		cost = decimal.Zero
	}
	return cost.Round(2), nil
}

// Repository provides lookup of shipping methods.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Method, error)
}
