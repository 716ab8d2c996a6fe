package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Kind enumerates how a payment method collects money.
type Kind string

const (
	// KindManual methods (cash, bank transfer) are settled outside the
	// platform.
	KindManual Kind = "manual"
	// KindCard methods charge a tokenised card through a Processor.
	KindCard Kind = "card"
	// KindExternal methods redirect the buyer off-platform to confirm.
	KindExternal Kind = "external_gateway"
)

// FeeType enumerates how a payment method fee is computed.
type FeeType string

const (
	FeeNone    FeeType = "none"
	FeeFlat    FeeType = "flat"
	FeePercent FeeType = "percent"
)

var (
	// ErrNotFound is returned by repositories for unknown methods or sources.
	ErrNotFound = errors.New("payment method not found")
	// ErrSourceNotFound is returned for unknown payment sources.
	ErrSourceNotFound = errors.New("payment source not found")
)

var hundred = decimal.NewFromInt(100)

// Method is a payment option a distributor offers.
type Method struct {
	ID             string
	Name           string
	Kind           Kind
	FeeType        FeeType
	FeeAmount      decimal.Decimal
	DistributorIDs []string
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

// RequiresSource reports whether a payable order needs a card source.
func (m *Method) RequiresSource() bool {
	return m.Kind == KindCard
}

// Fee returns the fee this method levies on base.
func (m *Method) Fee(base decimal.Decimal) decimal.Decimal {
	var fee decimal.Decimal
	switch m.FeeType {
	case FeeFlat:
		fee = m.FeeAmount
	case FeePercent:
		fee = base.Mul(m.FeeAmount).Div(hundred)
	default:
		return decimal.Zero
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee.Round(2)
}

// Source is a tokenised card kept for a customer. Only the gateway token and
// display data are stored.
type Source struct {
	ID           string
	CustomerID   string
	GatewayToken string
	Brand        string
	LastDigits   string
	ExpMonth     int
	ExpYear      int
	// Reusable sources are offered again on later checkouts.
	Reusable bool
}

// SourceAttributes describe a new source submitted on the payment step.
type SourceAttributes struct {
	GatewayToken string
	Brand        string
	LastDigits   string
	ExpMonth     int
	ExpYear      int
	Save         bool
}

// Request is the payment step input handed to the Applicator. At most one
// of NewSource, StoredSourceID and ZeroAmount is set.
type Request struct {
	MethodID       string
	NewSource      *SourceAttributes
	StoredSourceID string
	ZeroAmount     bool
}

// Repository provides lookup of payment methods.
type Repository interface {
	FindMethod(ctx context.Context, id string) (*Method, error)
}

// SourceRepository stores and looks up payment sources.
type SourceRepository interface {
	FindSource(ctx context.Context, id string) (*Source, error)
	CreateSource(ctx context.Context, s *Source) error
}

// Gateway starts an off-platform payment and returns where to send the
// buyer.
type Gateway interface {
	RedirectURL(ctx context.Context, o *order.Order, p *order.Payment) (string, error)
}

// Processor charges a card payment. It sets the payment state on success.
type Processor interface {
	Process(ctx context.Context, o *order.Order, p *order.Payment) error
}

// ApplicatorError reports a payment that cannot be applied as submitted:
// misconfigured method, foreign source, or gateway rejection. It is
// recoverable by the buyer.
type ApplicatorError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ApplicatorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment %s %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("payment %s %s", e.Field, e.Reason)
}

func (e *ApplicatorError) Unwrap() error {
	return e.Err
}

// ExternalGatewayPending is returned by Applicator.Process when the buyer
// must confirm the payment with an external gateway. It is a successful
// outcome, not a failure.
type ExternalGatewayPending struct {
	URL string
}

func (e *ExternalGatewayPending) Error() string {
	return "external gateway confirmation pending"
}
