package voucher

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Recalculator refreshes the voucher adjustment of an order against its
// current item total and fees.
type Recalculator struct {
	repo  Repository
	newID func() string
}

// NewRecalculator creates a Recalculator backed by repo.
func NewRecalculator(repo Repository) *Recalculator {
	return &Recalculator{
		repo:  repo,
		newID: func() string { return uuid.New().String() },
	}
}

// Recalculate recomputes the voucher adjustment in place. Orders without a
// voucher adjustment are left untouched and the repository is not queried.
// A voucher that is no longer active, or that belongs to another distributor,
// is dropped from the order. Calling it again with unchanged inputs yields
// the same amount.
func (r *Recalculator) Recalculate(ctx context.Context, o *order.Order) error {
	adj := o.VoucherAdjustment()
	if adj == nil {
		return nil
	}

	v, err := r.repo.FindByCode(ctx, adj.OriginID)
	switch {
	case errors.Is(err, ErrNotFound):
		o.RemoveAdjustments(order.OriginVoucher)
		o.UpdateTotals()
		return nil
	case err != nil:
		return errors.Wrapf(err, "find voucher %s", adj.OriginID)
	case v.DistributorID != o.DistributorID:
		o.RemoveAdjustments(order.OriginVoucher)
		o.UpdateTotals()
		return nil
	}

	o.UpdateTotals()
	items := make([]Item, len(o.LineItems))
	for i, li := range o.LineItems {
		items[i] = Item{VariantID: li.VariantID, Price: li.Price, Quantity: li.Quantity}
	}

	amount, err := Discount(v, o.FeeBase(), items)
	if err != nil {
		return errors.Wrapf(err, "discount for voucher %s", v.Code)
	}

	o.SetAdjustment(order.OriginVoucher, v.Code, v.Description, amount.Neg(), r.newID)
	o.UpdateTotals()
	return nil
}
