package voucher

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount computes the positive discount v grants against base, the order's
// item total plus fees. The result never exceeds base and is rounded to
// cents.
func Discount(v *Voucher, base decimal.Decimal, items []Item) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, nil
	}

	var amount decimal.Decimal
	switch v.Kind {
	case KindPercentage:
		amount = base.Mul(v.Value).Div(hundred)
	case KindFlat:
		amount = v.Value
	case KindFreeLowest:
		amount = lowestUnitPrice(items)
	default:
		return decimal.Zero, errors.Errorf("unsupported voucher kind: %q", v.Kind)
	}

	if v.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, v.MaxDiscount)
	}
	amount = decimal.Min(amount, base)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2), nil
}

// lowestUnitPrice returns the lowest unit price among items, or zero.
func lowestUnitPrice(items []Item) decimal.Decimal {
	var lowest decimal.Decimal
	found := false
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if !found || it.Price.LessThan(lowest) {
			lowest = it.Price
			found = true
		}
	}
	return lowest
}
