package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState is the lifecycle state of a payment record.
type PaymentState string

const (
	// PaymentCheckout is an attempt created on the payment step and not yet
	// processed.
	PaymentCheckout   PaymentState = "checkout"
	PaymentPending    PaymentState = "pending"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
	PaymentVoid       PaymentState = "void"
)

// SourceKind describes where a payment's source came from.
type SourceKind string

const (
	SourceNone   SourceKind = "none"
	SourceNew    SourceKind = "new"
	SourceStored SourceKind = "stored"
)

// Payment is one payment attempt. SourceID references a stored payment
// source; card data is never held on the payment itself.
type Payment struct {
	ID              string
	PaymentMethodID string
	Amount          decimal.Decimal
	State           PaymentState
	SourceKind      SourceKind
	SourceID        string
	// ZeroAmount marks a payment created for a zero-total order.
	ZeroAmount  bool
	RedirectURL string
	CreatedAt   time.Time
}

// CurrentPayment returns the latest unprocessed or in-flight payment, or nil.
func (o *Order) CurrentPayment() *Payment {
	for i := len(o.Payments) - 1; i >= 0; i-- {
		switch o.Payments[i].State {
		case PaymentCheckout, PaymentProcessing:
			return &o.Payments[i]
		}
	}
	return nil
}

// VoidUnprocessedPayments voids every payment that has not been settled:
// attempts still in the checkout state and gateway payments awaiting
// confirmation.
func (o *Order) VoidUnprocessedPayments() {
	for i := range o.Payments {
		switch o.Payments[i].State {
		case PaymentCheckout, PaymentProcessing:
			o.Payments[i].State = PaymentVoid
			o.Payments[i].RedirectURL = ""
		}
	}
}

// SyncPaymentAmount sets the current payment amount to the order total.
// Zero-amount payments are left untouched.
func (o *Order) SyncPaymentAmount() {
	p := o.CurrentPayment()
	if p == nil || p.ZeroAmount {
		return
	}
	p.Amount = o.Total
}
