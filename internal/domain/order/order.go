package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Order is the aggregate advanced through checkout. Totals are derived and
// must be refreshed with UpdateTotals after any mutation of line items or
// adjustments.
type Order struct {
	ID            string
	Number        string
	Token         string
	State         State
	Email         string
	CustomerID    string
	DistributorID string
	OrderCycleID  string

	LineItems   []LineItem
	BillAddress *Address
	ShipAddress *Address
	Shipments   []Shipment
	Payments    []Payment
	Adjustments []Adjustment

	ItemTotal       decimal.Decimal
	AdjustmentTotal decimal.Decimal
	Total           decimal.Decimal

	// TermsAcceptedAt is set when the buyer accepts the terms of service on
	// the summary step.
	TermsAcceptedAt *time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// LineItem is a single purchasable variant on the order.
type LineItem struct {
	ID        int64
	VariantID string
	Quantity  int
	Price     decimal.Decimal
}

// Amount returns price * quantity.
func (li LineItem) Amount() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// UpdateTotals recomputes item, adjustment and grand totals from the line
// items and adjustments currently attached to the order.
func (o *Order) UpdateTotals() {
	items := decimal.Zero
	for _, li := range o.LineItems {
		items = items.Add(li.Amount())
	}
	adjustments := decimal.Zero
	for _, a := range o.Adjustments {
		adjustments = adjustments.Add(a.Amount)
	}
	o.ItemTotal = items.Round(2)
	o.AdjustmentTotal = adjustments.Round(2)
	o.Total = o.ItemTotal.Add(o.AdjustmentTotal)
}

// IsZeroTotal reports whether nothing is payable on the order.
func (o *Order) IsZeroTotal() bool {
	return !o.Total.IsPositive()
}

// VariantIDs returns the variant of every line item, in line item order.
func (o *Order) VariantIDs() []string {
	ids := make([]string, len(o.LineItems))
	for i, li := range o.LineItems {
		ids[i] = li.VariantID
	}
	return ids
}

// ItemCount returns the sum of line item quantities.
func (o *Order) ItemCount() int {
	n := 0
	for _, li := range o.LineItems {
		n += li.Quantity
	}
	return n
}

// ShippingMethodID returns the method of the first selected shipping rate, or
// "" if no shipment has a selection.
func (o *Order) ShippingMethodID() string {
	for i := range o.Shipments {
		if r := o.Shipments[i].SelectedRate(); r != nil {
			return r.ShippingMethodID
		}
	}
	return ""
}

// ShippingFee returns the total of shipping-origin adjustments.
func (o *Order) ShippingFee() decimal.Decimal {
	return o.adjustmentSum(OriginShipping)
}

// PaymentFee returns the total of payment-fee-origin adjustments.
func (o *Order) PaymentFee() decimal.Decimal {
	return o.adjustmentSum(OriginPaymentFee)
}

func (o *Order) adjustmentSum(origin AdjustmentOrigin) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range o.Adjustments {
		if a.Origin == origin {
			sum = sum.Add(a.Amount)
		}
	}
	return sum
}

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	// Get loads the full aggregate.
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate loads the full aggregate and locks the order row for the
	// rest of the surrounding transaction.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// Save writes the aggregate: order columns, addresses, shipments with
	// their rates, payments and adjustments.
	Save(ctx context.Context, o *Order) error
	// UpdateState writes only the state column.
	UpdateState(ctx context.Context, id string, state State) error
}

// TxManager runs fn inside a single database transaction. Repositories
// called with the context passed to fn participate in that transaction.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	c := *o
	c.LineItems = slices.Clone(o.LineItems)
	c.Payments = slices.Clone(o.Payments)
	c.Adjustments = slices.Clone(o.Adjustments)
	c.Shipments = make([]Shipment, len(o.Shipments))
	for i, s := range o.Shipments {
		s.Rates = slices.Clone(s.Rates)
		c.Shipments[i] = s
	}
	if o.Shipments == nil {
		c.Shipments = nil
	}
	if o.BillAddress != nil {
		a := *o.BillAddress
		c.BillAddress = &a
	}
	if o.ShipAddress != nil {
		a := *o.ShipAddress
		c.ShipAddress = &a
	}
	if o.TermsAcceptedAt != nil {
		t := *o.TermsAcceptedAt
		c.TermsAcceptedAt = &t
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
