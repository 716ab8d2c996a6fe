package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Selector attaches a shipping rate for a chosen method to every shipment on
// an order and keeps the shipping fee adjustment in step with it.
type Selector struct {
	methods Repository
	newID   func() string
}

// NewSelector creates a Selector backed by the given method repository.
func NewSelector(methods Repository) *Selector {
	return &Selector{
		methods: methods,
		newID:   func() string { return uuid.New().String() },
	}
}

// Select selects methodID on o. A shipment is created when the order has
// items but no shipment yet; all shipments are dropped when nothing is left
// to ship. Returns ErrNoRateAvailable when the method is unknown, not
// offered by the order's distributor, or cannot price the shipment.
func (s *Selector) Select(ctx context.Context, o *order.Order, methodID string) error {
	m, err := s.methods.FindByID(ctx, methodID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNoRateAvailable
		}
		return errors.Wrapf(err, "find shipping method %s", methodID)
	}
	if !m.OfferedBy(o.DistributorID) {
		return ErrNoRateAvailable
	}

	if len(o.LineItems) == 0 {
		o.Shipments = nil
		o.RemoveAdjustments(order.OriginShipping)
		o.UpdateTotals()
		return nil
	}

	o.UpdateTotals()
	cost, err := m.Cost(o)
	if err != nil {
		return err
	}

	if len(o.Shipments) == 0 {
		o.Shipments = append(o.Shipments, order.Shipment{ID: s.newID()})
	}

	fee := cost.Mul(decimal.NewFromInt(int64(len(o.Shipments))))
	for i := range o.Shipments {
		sh := &o.Shipments[i]
		if r := sh.SelectedRate(); r != nil && r.ShippingMethodID == m.ID && r.Cost.Equal(cost) {
			continue
		}
		sh.SelectRate(m.ID, cost, s.newID)
	}

	if fee.IsZero() {
		o.RemoveAdjustments(order.OriginShipping)
	} else {
		o.SetAdjustment(order.OriginShipping, m.ID, m.Name, fee, s.newID)
	}
	o.UpdateTotals()
	return nil
}
