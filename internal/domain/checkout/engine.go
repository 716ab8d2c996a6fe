package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/shipping"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

// StockChecker reports whether an order can still be fulfilled.
type StockChecker interface {
	Check(ctx context.Context, o *order.Order) (stock.Report, error)
}

// ShippingSelector selects a shipping method's rate on every shipment. It
// returns shipping.ErrNoRateAvailable when the method cannot ship the order.
type ShippingSelector interface {
	Select(ctx context.Context, o *order.Order, methodID string) error
}

// PaymentApplicator creates the checkout payment on the payment step and
// processes it on the summary step.
type PaymentApplicator interface {
	Apply(ctx context.Context, o *order.Order, req payment.Request) (*order.Payment, error)
	// Process returns *payment.ExternalGatewayPending when the buyer must
	// confirm off-platform.
	Process(ctx context.Context, o *order.Order) error
}

// VoucherRecalculator recomputes the voucher adjustment of an order.
type VoucherRecalculator interface {
	Recalculate(ctx context.Context, o *order.Order) error
}

// AddressBook stores addresses as customer defaults.
type AddressBook interface {
	SaveDefaults(ctx context.Context, o *order.Order, saveBill, saveShip bool) error
}

// EventPublisher announces completed orders.
type EventPublisher interface {
	OrderCompleted(ctx context.Context, o *order.Order) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Orders    order.Repository
	Tx        order.TxManager
	Stock     StockChecker
	Shipping  ShippingSelector
	Payments  PaymentApplicator
	Vouchers  VoucherRecalculator
	Addresses AddressBook
	Events    EventPublisher
}

// Options configure an Engine.
type Options struct {
	Policy         Policy
	Paths          Paths
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Engine runs view and update requests against the checkout state machine.
// Each request is one transaction on one order.
type Engine struct {
	deps      Deps
	validator *Validator
	paths     Paths
	now       func() time.Time

	tracer      trace.Tracer
	outcomes    metric.Int64Counter
	transitions metric.Int64Counter
}

// NewEngine creates an Engine. Nil tracer and meter providers fall back to
// no-op implementations.
func NewEngine(deps Deps, opts Options) (*Engine, error) {
	if opts.Paths == (Paths{}) {
		opts.Paths = DefaultPaths
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}
	meter := opts.MeterProvider.Meter("checkout")
	outcomes, err := meter.Int64Counter("checkout.step.outcomes",
		metric.WithDescription("Checkout requests by step and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create outcomes counter")
	}
	transitions, err := meter.Int64Counter("checkout.transitions",
		metric.WithDescription("Order state transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create transitions counter")
	}
	return &Engine{
		deps:        deps,
		validator:   NewValidator(opts.Policy),
		paths:       opts.Paths,
		now:         time.Now,
		tracer:      opts.TracerProvider.Tracer("checkout"),
		outcomes:    outcomes,
		transitions: transitions,
	}, nil
}

// rejection aborts the request transaction while still answering the
// caller with outcome.
type rejection struct {
	outcome *Outcome
}

func (r *rejection) Error() string {
	return "checkout request rejected"
}

// View resolves which step to show for the order. An empty step redirects to
// the current one. Viewing an earlier step moves the order back to it.
func (e *Engine) View(ctx context.Context, orderID string, step Step) (_ *Outcome, rerr error) {
	ctx, span := e.tracer.Start(ctx, "checkout.View", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("checkout.step", string(step)),
	))
	defer func() { finish(span, "view", step, rerr) }()

	var out *Outcome
	err := e.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		o, err := e.deps.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		out, err = e.view(ctx, o, step)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.record(ctx, step, out)
	return out, nil
}

func (e *Engine) view(ctx context.Context, o *order.Order, step Step) (*Outcome, error) {
	if step != "" && step.Index() < 0 {
		return nil, errors.Wrapf(ErrInvalidStep, "%q", step)
	}
	canonical, ok := StepFor(o.State)
	if !ok {
		return redirect(e.paths.Confirmation(o)), nil
	}
	if step == "" {
		return redirect(e.paths.Step(o.ID, canonical)), nil
	}
	if out, err := e.stockGate(ctx, o); out != nil || err != nil {
		return out, err
	}

	switch {
	case step.Before(canonical):
		// Viewing an earlier step re-enters it.
		if err := e.transition(ctx, o, step.State()); err != nil {
			return nil, err
		}
		return render(step, o), nil
	case canonical.Before(step):
		return redirect(e.paths.Step(o.ID, canonical)), nil
	default:
		return render(step, o), nil
	}
}

// stockGate redirects to the cart when the order can no longer be checked
// out as it stands.
func (e *Engine) stockGate(ctx context.Context, o *order.Order) (*Outcome, error) {
	report, err := e.deps.Stock.Check(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "check stock")
	}
	if report.HasInsufficientStock() || !report.IsDistributed() {
		zctx.From(ctx).Info("Order cannot be fulfilled, redirecting to cart",
			zap.String("order_id", o.ID),
			zap.Strings("insufficient", report.Insufficient),
			zap.Strings("undistributed", report.Undistributed),
		)
		return redirect(e.paths.Cart), nil
	}
	return nil, nil
}

func (e *Engine) transition(ctx context.Context, o *order.Order, to order.State) error {
	from := o.State
	if err := e.deps.Orders.UpdateState(ctx, o.ID, to); err != nil {
		return errors.Wrapf(err, "move order to %s", to)
	}
	o.State = to
	e.logTransition(ctx, o.ID, from, to)
	return nil
}

// Update submits step for the order. The step must be the order's current
// step. Validation failures are reported as a 422 outcome, not an error, and
// leave the order untouched.
func (e *Engine) Update(ctx context.Context, orderID string, step Step, attrs Attributes) (_ *Outcome, rerr error) {
	ctx, span := e.tracer.Start(ctx, "checkout.Update", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("checkout.step", string(step)),
	))
	defer func() { finish(span, "update", step, rerr) }()

	var (
		out       *Outcome
		completed *order.Order
	)
	err := e.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		o, err := e.deps.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		out, err = e.update(ctx, o, step, attrs)
		if err != nil {
			return err
		}
		if o.State == order.StateComplete {
			completed = o
		}
		return nil
	})
	var rej *rejection
	switch {
	case errors.As(err, &rej):
		out = rej.outcome
	case err != nil:
		return nil, err
	}

	if completed != nil && e.deps.Events != nil {
		if err := e.deps.Events.OrderCompleted(ctx, completed); err != nil {
			zctx.From(ctx).Warn("Publish order completed", zap.String("order_id", completed.ID), zap.Error(err))
		}
	}
	e.record(ctx, step, out)
	return out, nil
}

func (e *Engine) update(ctx context.Context, o *order.Order, step Step, attrs Attributes) (*Outcome, error) {
	if step.Index() < 0 {
		return nil, errors.Wrapf(ErrInvalidStep, "%q", step)
	}
	canonical, ok := StepFor(o.State)
	if !ok {
		return nil, ErrOrderComplete
	}
	if step != canonical {
		return nil, errors.Wrapf(ErrStepMismatch, "order %s is on %s, got %s", o.ID, canonical, step)
	}
	if out, err := e.stockGate(ctx, o); out != nil || err != nil {
		return out, err
	}

	if errs := e.validator.Validate(step, o, attrs); errs != nil {
		return nil, e.reject(ctx, step, o, errs)
	}

	// Rejected steps roll back, so their form is rendered from the order as
	// it was before any step side effects.
	pristine := o.Clone()
	var (
		out *Outcome
		err error
	)
	switch step {
	case StepDetails:
		err = e.applyDetails(ctx, o, attrs)
	case StepPayment:
		err = e.applyPayment(ctx, o, attrs.Payment)
	case StepSummary:
		out, err = e.applySummary(ctx, o, attrs)
	}
	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			rej.outcome.Order = pristine
		}
		return nil, err
	}

	from := o.State
	if out == nil {
		o.State = step.Target()
	}
	o.UpdatedAt = e.now()
	if err := e.deps.Orders.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	if out != nil {
		return out, nil
	}

	e.logTransition(ctx, o.ID, from, o.State)
	if o.State == order.StateComplete {
		return redirect(e.paths.Confirmation(o)), nil
	}
	next, _ := StepFor(o.State)
	return redirect(e.paths.Step(o.ID, next)), nil
}

func (e *Engine) reject(ctx context.Context, step Step, o *order.Order, errs FieldErrors) error {
	zctx.From(ctx).Debug("Checkout step rejected",
		zap.String("order_id", o.ID),
		zap.String("step", string(step)),
		zap.Error(errs),
	)
	return &rejection{outcome: renderErrors(step, o, errs)}
}

func (e *Engine) applyDetails(ctx context.Context, o *order.Order, attrs Attributes) error {
	before := snapshotFees(o)

	if attrs.Email != "" {
		o.Email = attrs.Email
	}
	bill := *attrs.BillAddress
	o.BillAddress = &bill
	ship := bill
	if !attrs.ShipToBilling {
		ship = *attrs.ShipAddress
	}
	o.ShipAddress = &ship

	if attrs.ShippingMethodID != "" {
		if err := e.deps.Shipping.Select(ctx, o, attrs.ShippingMethodID); err != nil {
			if errors.Is(err, shipping.ErrNoRateAvailable) {
				return e.reject(ctx, StepDetails, o, FieldErrors{"shipping_method_id": "is not available for this order"})
			}
			return errors.Wrap(err, "select shipping method")
		}
	}

	if err := e.recalculateVoucher(ctx, o, before); err != nil {
		return err
	}

	if e.deps.Addresses != nil {
		if err := e.deps.Addresses.SaveDefaults(ctx, o, attrs.SaveBillAddress, attrs.SaveShipAddress); err != nil {
			return errors.Wrap(err, "save default addresses")
		}
	}
	return nil
}

func (e *Engine) applyPayment(ctx context.Context, o *order.Order, req payment.Request) error {
	before := snapshotFees(o)

	if _, err := e.deps.Payments.Apply(ctx, o, req); err != nil {
		var appErr *payment.ApplicatorError
		if errors.As(err, &appErr) {
			return e.reject(ctx, StepPayment, o, FieldErrors{appErr.Field: appErr.Reason})
		}
		return errors.Wrap(err, "apply payment")
	}

	return e.recalculateVoucher(ctx, o, before)
}

// recalculateVoucher refreshes the voucher discount when the step changed
// any fee it depends on, then brings the payment amount in line with the
// new total.
func (e *Engine) recalculateVoucher(ctx context.Context, o *order.Order, before feeSnapshot) error {
	if !needsVoucherRecalculation(o, before, snapshotFees(o)) {
		return nil
	}
	if err := e.deps.Vouchers.Recalculate(ctx, o); err != nil {
		return errors.Wrap(err, "recalculate voucher")
	}
	o.UpdateTotals()
	o.SyncPaymentAmount()
	return nil
}

// applySummary accepts the terms and processes the payment. A non-nil
// outcome means the order stays on the summary step.
func (e *Engine) applySummary(ctx context.Context, o *order.Order, attrs Attributes) (*Outcome, error) {
	now := e.now()
	if attrs.TermsAccepted {
		o.TermsAcceptedAt = &now
	}

	err := e.deps.Payments.Process(ctx, o)
	var (
		pending *payment.ExternalGatewayPending
		appErr  *payment.ApplicatorError
	)
	switch {
	case err == nil:
		o.CompletedAt = &now
		return nil, nil
	case errors.As(err, &pending):
		zctx.From(ctx).Info("Awaiting external payment confirmation",
			zap.String("order_id", o.ID),
			zap.String("url", pending.URL),
		)
		return external(pending.URL), nil
	case errors.As(err, &appErr):
		return nil, e.reject(ctx, StepSummary, o, FieldErrors{appErr.Field: appErr.Reason})
	default:
		return nil, errors.Wrap(err, "process payment")
	}
}

func (e *Engine) logTransition(ctx context.Context, orderID string, from, to order.State) {
	if from == to {
		return
	}
	zctx.From(ctx).Info("Order state changed",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (e *Engine) record(ctx context.Context, step Step, out *Outcome) {
	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", string(step)),
		attribute.String("outcome", string(out.Kind)),
		attribute.Int("status", out.Status),
	))
}

func finish(span trace.Span, op string, step Step, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" "+string(step))
	}
	span.End()
}
