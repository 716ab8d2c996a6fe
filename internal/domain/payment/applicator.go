package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Applicator creates payment records on the payment step and processes them
// when the order is confirmed.
type Applicator struct {
	methods   Repository
	sources   SourceRepository
	gateway   Gateway
	processor Processor
	newID     func() string
	now       func() time.Time
}

// NewApplicator creates an Applicator with its collaborators.
func NewApplicator(methods Repository, sources SourceRepository, gateway Gateway, processor Processor) *Applicator {
	return &Applicator{
		methods:   methods,
		sources:   sources,
		gateway:   gateway,
		processor: processor,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// Apply attaches the payment method fee to o and creates one checkout
// payment covering item total plus adjustments. Earlier unprocessed attempts
// are voided. Recoverable problems are reported as *ApplicatorError.
func (a *Applicator) Apply(ctx context.Context, o *order.Order, req Request) (*order.Payment, error) {
	m, err := a.method(ctx, o, req.MethodID)
	if err != nil {
		return nil, err
	}

	o.UpdateTotals()
	fee := m.Fee(o.ItemTotal.Add(o.ShippingFee()))
	if fee.IsZero() {
		o.RemoveAdjustments(order.OriginPaymentFee)
	} else {
		o.SetAdjustment(order.OriginPaymentFee, m.ID, m.Name, fee, a.newID)
	}
	o.UpdateTotals()

	p := order.Payment{
		ID:              a.newID(),
		PaymentMethodID: m.ID,
		State:           order.PaymentCheckout,
		SourceKind:      order.SourceNone,
		CreatedAt:       a.now(),
	}

	switch {
	case req.ZeroAmount:
		if !o.IsZeroTotal() {
			return nil, &ApplicatorError{Field: "amount", Reason: "must cover the order total"}
		}
		p.ZeroAmount = true
	case req.StoredSourceID != "":
		src, err := a.storedSource(ctx, o, req.StoredSourceID)
		if err != nil {
			return nil, err
		}
		p.SourceKind = order.SourceStored
		p.SourceID = src.ID
	case req.NewSource != nil:
		src := &Source{
			ID:           a.newID(),
			CustomerID:   o.CustomerID,
			GatewayToken: req.NewSource.GatewayToken,
			Brand:        req.NewSource.Brand,
			LastDigits:   req.NewSource.LastDigits,
			ExpMonth:     req.NewSource.ExpMonth,
			ExpYear:      req.NewSource.ExpYear,
			Reusable:     req.NewSource.Save && o.CustomerID != "",
		}
		if err := a.sources.CreateSource(ctx, src); err != nil {
			return nil, errors.Wrap(err, "create payment source")
		}
		p.SourceKind = order.SourceNew
		p.SourceID = src.ID
	default:
		if m.RequiresSource() && !o.IsZeroTotal() {
			return nil, &ApplicatorError{Field: "source", Reason: "can't be blank"}
		}
	}

	if !p.ZeroAmount {
		p.Amount = o.ItemTotal.Add(o.AdjustmentTotal)
	}

	o.VoidUnprocessedPayments()
	o.Payments = append(o.Payments, p)
	return &o.Payments[len(o.Payments)-1], nil
}

// Process runs the current payment when the order is being completed.
// Manual payments become pending, card payments go through the Processor,
// and external gateway payments return *ExternalGatewayPending carrying the
// URL the buyer must follow. Nothing is charged for zero-amount payments.
func (a *Applicator) Process(ctx context.Context, o *order.Order) error {
	p := o.CurrentPayment()
	if p == nil {
		return &ApplicatorError{Field: "payment", Reason: "is missing"}
	}
	m, err := a.method(ctx, o, p.PaymentMethodID)
	if err != nil {
		return err
	}

	if p.ZeroAmount || !p.Amount.IsPositive() {
		p.State = order.PaymentCompleted
		return nil
	}

	switch m.Kind {
	case KindExternal:
		url, err := a.gateway.RedirectURL(ctx, o, p)
		if err != nil {
			return &ApplicatorError{Field: "payment", Reason: "was declined by the gateway", Err: err}
		}
		p.State = order.PaymentProcessing
		p.RedirectURL = url
		return &ExternalGatewayPending{URL: url}
	case KindCard:
		if err := a.processor.Process(ctx, o, p); err != nil {
			p.State = order.PaymentFailed
			return &ApplicatorError{Field: "payment", Reason: "could not be processed", Err: err}
		}
		return nil
	default:
		p.State = order.PaymentPending
		return nil
	}
}

func (a *Applicator) method(ctx context.Context, o *order.Order, id string) (*Method, error) {
	m, err := a.methods.FindMethod(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &ApplicatorError{Field: "payment_method_id", Reason: "is not available", Err: err}
		}
		return nil, errors.Wrapf(err, "find payment method %s", id)
	}
	if !m.OfferedBy(o.DistributorID) {
		return nil, &ApplicatorError{Field: "payment_method_id", Reason: "is not available"}
	}
	return m, nil
}

// storedSource resolves a stored source and checks it belongs to the
// order's customer. Foreign and unknown sources are indistinguishable to
// the caller.
func (a *Applicator) storedSource(ctx context.Context, o *order.Order, id string) (*Source, error) {
	src, err := a.sources.FindSource(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSourceNotFound) {
			return nil, &ApplicatorError{Field: "source_id", Reason: "is invalid"}
		}
		return nil, errors.Wrapf(err, "find payment source %s", id)
	}
	if o.CustomerID == "" || src.CustomerID != o.CustomerID || !src.Reusable {
		return nil, &ApplicatorError{Field: "source_id", Reason: "is invalid"}
	}
	return src, nil
}
