package checkout

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/shipping"
	"github.com/xenking/kart-checkout/internal/domain/stock"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// memOrders keeps committed orders in memory. memTx restores them when the
// transaction function fails.
type memOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	saves  int
}

func newMemOrders(orders ...*order.Order) *memOrders {
	m := &memOrders{orders: map[string]*order.Order{}}
	for _, o := range orders {
		m.orders[o.ID] = o.Clone()
	}
	return m
}

func (m *memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (m *memOrders) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return m.Get(ctx, id)
}

func (m *memOrders) Save(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *memOrders) UpdateState(_ context.Context, id string, state order.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.State = state
	return nil
}

func (m *memOrders) stored(id string) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Clone()
}

type memTx struct {
	orders *memOrders
}

func (t memTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.orders.mu.Lock()
	snapshot := make(map[string]*order.Order, len(t.orders.orders))
	for id, o := range t.orders.orders {
		snapshot[id] = o.Clone()
	}
	t.orders.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.orders.mu.Lock()
		t.orders.orders = snapshot
		t.orders.mu.Unlock()
		return err
	}
	return nil
}

type mockStock struct {
	report stock.Report
	err    error
}

func (m *mockStock) Check(context.Context, *order.Order) (stock.Report, error) {
	return m.report, m.err
}

// mockShipping selects a rate on a single shipment at the configured fee.
// Methods listed in none clear all shipments.
type mockShipping struct {
	fees  map[string]decimal.Decimal
	none  map[string]bool
	calls int
}

func (m *mockShipping) Select(_ context.Context, o *order.Order, methodID string) error {
	m.calls++
	if m.none[methodID] {
		o.Shipments = nil
		o.RemoveAdjustments(order.OriginShipping)
		o.UpdateTotals()
		return nil
	}
	fee, ok := m.fees[methodID]
	if !ok {
		return shipping.ErrNoRateAvailable
	}
	o.Shipments = []order.Shipment{{
		ID:    "s1",
		Rates: []order.ShippingRate{{ID: "r-" + methodID, ShippingMethodID: methodID, Cost: fee, Selected: true}},
	}}
	o.SetAdjustment(order.OriginShipping, methodID, methodID, fee, func() string { return "adj-ship" })
	o.UpdateTotals()
	return nil
}

type mockPayments struct {
	fees       map[string]decimal.Decimal
	applyErr   error
	lateErr    error
	processErr error
	gatewayURL string
	applies    int
	processes  int
}

func (m *mockPayments) Apply(_ context.Context, o *order.Order, req payment.Request) (*order.Payment, error) {
	m.applies++
	if m.applyErr != nil {
		return nil, m.applyErr
	}
	if fee := m.fees[req.MethodID]; fee.IsPositive() {
		o.SetAdjustment(order.OriginPaymentFee, req.MethodID, req.MethodID, fee, func() string { return "adj-fee" })
	} else {
		o.RemoveAdjustments(order.OriginPaymentFee)
	}
	o.UpdateTotals()
	if m.lateErr != nil {
		return nil, m.lateErr
	}
	o.VoidUnprocessedPayments()
	p := order.Payment{
		ID:              "pay-" + req.MethodID,
		PaymentMethodID: req.MethodID,
		State:           order.PaymentCheckout,
		ZeroAmount:      req.ZeroAmount,
	}
	if !req.ZeroAmount {
		p.Amount = o.ItemTotal.Add(o.AdjustmentTotal)
	}
	o.Payments = append(o.Payments, p)
	return &o.Payments[len(o.Payments)-1], nil
}

func (m *mockPayments) Process(_ context.Context, o *order.Order) error {
	m.processes++
	p := o.CurrentPayment()
	if p == nil {
		return &payment.ApplicatorError{Field: "payment", Reason: "is missing"}
	}
	if m.gatewayURL != "" {
		p.State = order.PaymentProcessing
		p.RedirectURL = m.gatewayURL
		return &payment.ExternalGatewayPending{URL: m.gatewayURL}
	}
	if m.processErr != nil {
		return m.processErr
	}
	p.State = order.PaymentPending
	if p.ZeroAmount {
		p.State = order.PaymentCompleted
	}
	return nil
}

type mockVouchers struct {
	calls int
}

func (m *mockVouchers) Recalculate(_ context.Context, o *order.Order) error {
	m.calls++
	if adj := o.VoucherAdjustment(); adj != nil {
		adj.Amount = o.FeeBase().Mul(d("-0.1")).Round(2)
	}
	o.UpdateTotals()
	return nil
}

// missingVouchers behaves like a store where every voucher was deactivated.
type missingVouchers struct{}

func (missingVouchers) FindByCode(context.Context, string) (*voucher.Voucher, error) {
	return nil, voucher.ErrNotFound
}

type mockAddresses struct {
	calls    int
	saveBill bool
	saveShip bool
}

func (m *mockAddresses) SaveDefaults(_ context.Context, _ *order.Order, saveBill, saveShip bool) error {
	m.calls++
	m.saveBill, m.saveShip = saveBill, saveShip
	return nil
}

type mockEvents struct {
	completed []string
}

func (m *mockEvents) OrderCompleted(_ context.Context, o *order.Order) error {
	m.completed = append(m.completed, o.ID)
	return nil
}
