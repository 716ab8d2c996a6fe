package order

import "github.com/shopspring/decimal"

// AdjustmentOrigin tags what produced an adjustment.
type AdjustmentOrigin string

const (
	OriginShipping   AdjustmentOrigin = "shipping"
	OriginPaymentFee AdjustmentOrigin = "payment_fee"
	OriginVoucher    AdjustmentOrigin = "voucher"
)

// Adjustment is a signed amount added to the order total. Fees are positive,
// voucher discounts negative.
type Adjustment struct {
	ID       string
	Origin   AdjustmentOrigin
	OriginID string
	Label    string
	Amount   decimal.Decimal
}

// SetAdjustment updates the adjustment with the given origin in place, or
// appends one if none exists. There is never more than one adjustment per
// origin. Totals are not refreshed.
func (o *Order) SetAdjustment(origin AdjustmentOrigin, originID, label string, amount decimal.Decimal, newID func() string) *Adjustment {
	for i := range o.Adjustments {
		a := &o.Adjustments[i]
		if a.Origin == origin {
			a.OriginID = originID
			a.Label = label
			a.Amount = amount
			return a
		}
	}
	o.Adjustments = append(o.Adjustments, Adjustment{
		ID:       newID(),
		Origin:   origin,
		OriginID: originID,
		Label:    label,
		Amount:   amount,
	})
	return &o.Adjustments[len(o.Adjustments)-1]
}

// RemoveAdjustments drops every adjustment with the given origin.
func (o *Order) RemoveAdjustments(origin AdjustmentOrigin) {
	kept := o.Adjustments[:0]
	for _, a := range o.Adjustments {
		if a.Origin != origin {
			kept = append(kept, a)
		}
	}
	o.Adjustments = kept
}

// VoucherAdjustment returns the active voucher adjustment, or nil.
func (o *Order) VoucherAdjustment() *Adjustment {
	for i := range o.Adjustments {
		if o.Adjustments[i].Origin == OriginVoucher {
			return &o.Adjustments[i]
		}
	}
	return nil
}

// FeeBase returns the amount vouchers are computed against: item total plus
// every non-voucher adjustment.
func (o *Order) FeeBase() decimal.Decimal {
	base := o.ItemTotal
	for _, a := range o.Adjustments {
		if a.Origin != OriginVoucher {
			base = base.Add(a.Amount)
		}
	}
	return base
}
