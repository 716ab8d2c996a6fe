package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// feeSnapshot captures every input a voucher discount is computed from
// besides the line items.
type feeSnapshot struct {
	shippingMethodID string
	shipments        int
	shippingFee      decimal.Decimal
	paymentMethodID  string
	paymentFee       decimal.Decimal
}

func snapshotFees(o *order.Order) feeSnapshot {
	s := feeSnapshot{
		shippingMethodID: o.ShippingMethodID(),
		shipments:        len(o.Shipments),
		shippingFee:      o.ShippingFee(),
		paymentFee:       o.PaymentFee(),
	}
	if p := o.CurrentPayment(); p != nil {
		s.paymentMethodID = p.PaymentMethodID
	}
	return s
}

func (s feeSnapshot) equal(other feeSnapshot) bool {
	return s.shippingMethodID == other.shippingMethodID &&
		s.shipments == other.shipments &&
		s.shippingFee.Equal(other.shippingFee) &&
		s.paymentMethodID == other.paymentMethodID &&
		s.paymentFee.Equal(other.paymentFee)
}

// needsVoucherRecalculation reports whether the voucher on o must be
// recomputed after a step changed its fees from before to after. Orders
// without a voucher never need it.
func needsVoucherRecalculation(o *order.Order, before, after feeSnapshot) bool {
	if o.VoucherAdjustment() == nil {
		return false
	}
	return !before.equal(after)
}
