package voucher

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported voucher discount strategies.
type Kind string

const (
	// KindPercentage discounts Value percent of the fee base.
	KindPercentage Kind = "percentage"
	// KindFlat discounts Value, capped at the fee base.
	KindFlat Kind = "flat"
	// KindFreeLowest discounts the cheapest unit price on the order.
	KindFreeLowest Kind = "free_lowest"
)

// ErrNotFound is returned when a voucher code does not exist.
var ErrNotFound = errors.New("voucher not found")

// Voucher is a discount a distributor issues against its orders.
type Voucher struct {
	Code          string
	DistributorID string
	Kind          Kind
	Value         decimal.Decimal
	// MaxDiscount caps the discount when positive.
	MaxDiscount decimal.Decimal
	Description string
}

// Item is a line item as seen by discount calculation.
type Item struct {
	VariantID string
	Price     decimal.Decimal
	Quantity  int
}

// Repository provides lookup of vouchers by code.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Voucher, error)
}
