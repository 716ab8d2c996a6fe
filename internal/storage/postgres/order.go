package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	orderColumns = `id, number, token, state, email, customer_id, distributor_id, order_cycle_id,
		bill_address, ship_address, item_total, adjustment_total, total,
		terms_accepted_at, completed_at, updated_at`

	getOrderSQL          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listLineItemsSQL = `SELECT id, variant_id, quantity, price
		FROM line_items WHERE order_id = $1 ORDER BY id`

	listShipmentsSQL = `SELECT s.id, s.number, r.id, r.shipping_method_id, r.cost, r.selected
		FROM shipments s LEFT JOIN shipping_rates r ON r.shipment_id = s.id
		WHERE s.order_id = $1 ORDER BY s.id, r.id`

	listPaymentsSQL = `SELECT id, payment_method_id, amount, state, source_kind, source_id,
		zero_amount, redirect_url, created_at
		FROM payments WHERE order_id = $1 ORDER BY created_at, id`

	listAdjustmentsSQL = `SELECT id, origin, origin_id, label, amount
		FROM adjustments WHERE order_id = $1 ORDER BY id`

	createOrderSQL = `INSERT INTO orders (id, number, token, state, email, customer_id, distributor_id,
		order_cycle_id, item_total, adjustment_total, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	createLineItemSQL = `INSERT INTO line_items (order_id, variant_id, quantity, price)
		VALUES ($1, $2, $3, $4) RETURNING id`

	updateOrderSQL = `UPDATE orders SET state = $2, email = $3, bill_address = $4, ship_address = $5,
		item_total = $6, adjustment_total = $7, total = $8,
		terms_accepted_at = $9, completed_at = $10, updated_at = $11
		WHERE id = $1`

	updateOrderStateSQL = `UPDATE orders SET state = $2, updated_at = NOW() WHERE id = $1`

	deleteStaleAdjustmentsSQL = `DELETE FROM adjustments WHERE order_id = $1 AND NOT (id = ANY($2))`
	upsertAdjustmentSQL       = `INSERT INTO adjustments (id, order_id, origin, origin_id, label, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET origin_id = EXCLUDED.origin_id, label = EXCLUDED.label, amount = EXCLUDED.amount`

	deleteStalePaymentsSQL = `DELETE FROM payments WHERE order_id = $1 AND NOT (id = ANY($2))`
	upsertPaymentSQL       = `INSERT INTO payments (id, order_id, payment_method_id, amount, state, source_kind,
		source_id, zero_amount, redirect_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET amount = EXCLUDED.amount, state = EXCLUDED.state,
		redirect_url = EXCLUDED.redirect_url`

	deleteStaleShipmentsSQL = `DELETE FROM shipments WHERE order_id = $1 AND NOT (id = ANY($2))`
	upsertShipmentSQL       = `INSERT INTO shipments (id, order_id, number) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	clearSelectedRatesSQL = `UPDATE shipping_rates SET selected = FALSE
		WHERE selected AND shipment_id IN (SELECT id FROM shipments WHERE order_id = $1)`
	deleteStaleRatesSQL = `DELETE FROM shipping_rates r USING shipments s
		WHERE r.shipment_id = s.id AND s.order_id = $1 AND NOT (r.id = ANY($2))`
	upsertRateSQL = `INSERT INTO shipping_rates (id, shipment_id, shipping_method_id, cost, selected)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET cost = EXCLUDED.cost, selected = EXCLUDED.selected`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get loads the order aggregate.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, id)
}

// GetForUpdate loads the order aggregate and locks the order row until the
// surrounding transaction ends. Outside a transaction the lock is released
// immediately.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) get(ctx context.Context, query, id string) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if isNoRows(err) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	if o.LineItems, err = collect(ctx, q, listLineItemsSQL, id, scanLineItem); err != nil {
		return nil, fmt.Errorf("listing line items of order %q: %w", id, err)
	}
	if o.Shipments, err = r.shipments(ctx, q, id); err != nil {
		return nil, fmt.Errorf("listing shipments of order %q: %w", id, err)
	}
	if o.Payments, err = collect(ctx, q, listPaymentsSQL, id, scanPayment); err != nil {
		return nil, fmt.Errorf("listing payments of order %q: %w", id, err)
	}
	if o.Adjustments, err = collect(ctx, q, listAdjustmentsSQL, id, scanAdjustment); err != nil {
		return nil, fmt.Errorf("listing adjustments of order %q: %w", id, err)
	}
	return o, nil
}

func collect[T any](ctx context.Context, q querier, query, id string, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, fn)
}

func (r *OrderRepository) shipments(ctx context.Context, q querier, orderID string) ([]order.Shipment, error) {
	rows, err := q.Query(ctx, listShipmentsSQL, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shipments []order.Shipment
	for rows.Next() {
		var (
			s        order.Shipment
			rateID   *string
			methodID *string
			cost     decimal.NullDecimal
			selected *bool
		)
		if err := rows.Scan(&s.ID, &s.Number, &rateID, &methodID, &cost, &selected); err != nil {
			return nil, err
		}
		if n := len(shipments); n == 0 || shipments[n-1].ID != s.ID {
			shipments = append(shipments, s)
		}
		if rateID == nil {
			continue
		}
		rate := order.ShippingRate{
			ID:               *rateID,
			ShippingMethodID: deref(methodID),
			Cost:             cost.Decimal,
			Selected:         selected != nil && *selected,
		}
		last := &shipments[len(shipments)-1]
		last.Rates = append(last.Rates, rate)
	}
	return shipments, rows.Err()
}

// Create inserts a new order with its line items.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	q := conn(ctx, r.pool)
	o.UpdateTotals()

	_, err := q.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.Token, string(o.State), o.Email, nullString(o.CustomerID),
		o.DistributorID, o.OrderCycleID, o.ItemTotal, o.AdjustmentTotal, o.Total,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	for i := range o.LineItems {
		li := &o.LineItems[i]
		err := q.QueryRow(ctx, createLineItemSQL, o.ID, li.VariantID, li.Quantity, li.Price).Scan(&li.ID)
		if err != nil {
			return fmt.Errorf("creating line item for order %q: %w", o.ID, err)
		}
	}
	return nil
}

// Save writes the order columns, shipments with their rates, payments and
// adjustments. Child rows no longer on the aggregate are deleted. Line items
// are not written.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	bill, err := marshalAddress(o.BillAddress)
	if err != nil {
		return fmt.Errorf("marshaling bill address: %w", err)
	}
	ship, err := marshalAddress(o.ShipAddress)
	if err != nil {
		return fmt.Errorf("marshaling ship address: %w", err)
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now()
	}

	b := &pgx.Batch{}
	b.Queue(updateOrderSQL,
		o.ID, string(o.State), o.Email, bill, ship,
		o.ItemTotal, o.AdjustmentTotal, o.Total,
		o.TermsAcceptedAt, o.CompletedAt, o.UpdatedAt,
	)

	adjustmentIDs := make([]string, len(o.Adjustments))
	for i, a := range o.Adjustments {
		adjustmentIDs[i] = a.ID
	}
	b.Queue(deleteStaleAdjustmentsSQL, o.ID, adjustmentIDs)
	for _, a := range o.Adjustments {
		b.Queue(upsertAdjustmentSQL, a.ID, o.ID, string(a.Origin), a.OriginID, a.Label, a.Amount)
	}

	paymentIDs := make([]string, len(o.Payments))
	for i, p := range o.Payments {
		paymentIDs[i] = p.ID
	}
	b.Queue(deleteStalePaymentsSQL, o.ID, paymentIDs)
	for _, p := range o.Payments {
		b.Queue(upsertPaymentSQL,
			p.ID, o.ID, p.PaymentMethodID, p.Amount, string(p.State), string(p.SourceKind),
			nullString(p.SourceID), p.ZeroAmount, p.RedirectURL, p.CreatedAt,
		)
	}

	shipmentIDs := make([]string, len(o.Shipments))
	rateIDs := []string{}
	for i, s := range o.Shipments {
		shipmentIDs[i] = s.ID
		for _, rate := range s.Rates {
			rateIDs = append(rateIDs, rate.ID)
		}
	}
	b.Queue(deleteStaleShipmentsSQL, o.ID, shipmentIDs)
	for _, s := range o.Shipments {
		b.Queue(upsertShipmentSQL, s.ID, o.ID, s.Number)
	}
	b.Queue(deleteStaleRatesSQL, o.ID, rateIDs)
	b.Queue(clearSelectedRatesSQL, o.ID)
	for _, s := range o.Shipments {
		for _, rate := range s.Rates {
			b.Queue(upsertRateSQL, rate.ID, s.ID, rate.ShippingMethodID, rate.Cost, rate.Selected)
		}
	}

	br := conn(ctx, r.pool).SendBatch(ctx, b)
	tag, err := br.Exec()
	if err != nil {
		_ = br.Close()
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		_ = br.Close()
		return order.ErrNotFound
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	return nil
}

// UpdateState writes only the state column.
func (r *OrderRepository) UpdateState(ctx context.Context, id string, state order.State) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderStateSQL, id, string(state))
	if err != nil {
		return fmt.Errorf("updating state of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o          order.Order
		state      string
		customerID *string
		bill, ship []byte
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.Token, &state, &o.Email, &customerID, &o.DistributorID, &o.OrderCycleID,
		&bill, &ship, &o.ItemTotal, &o.AdjustmentTotal, &o.Total,
		&o.TermsAcceptedAt, &o.CompletedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if o.State, err = order.ParseState(state); err != nil {
		return nil, err
	}
	o.CustomerID = deref(customerID)
	if o.BillAddress, err = unmarshalAddress(bill); err != nil {
		return nil, fmt.Errorf("unmarshaling bill address: %w", err)
	}
	if o.ShipAddress, err = unmarshalAddress(ship); err != nil {
		return nil, fmt.Errorf("unmarshaling ship address: %w", err)
	}
	return &o, nil
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var (
		li  order.LineItem
		qty int32
	)
	err := row.Scan(&li.ID, &li.VariantID, &qty, &li.Price)
	li.Quantity = int(qty)
	return li, err
}

func scanPayment(row pgx.CollectableRow) (order.Payment, error) {
	var (
		p          order.Payment
		state      string
		sourceKind string
		sourceID   *string
	)
	err := row.Scan(
		&p.ID, &p.PaymentMethodID, &p.Amount, &state, &sourceKind, &sourceID,
		&p.ZeroAmount, &p.RedirectURL, &p.CreatedAt,
	)
	p.State = order.PaymentState(state)
	p.SourceKind = order.SourceKind(sourceKind)
	p.SourceID = deref(sourceID)
	return p, err
}

func scanAdjustment(row pgx.CollectableRow) (order.Adjustment, error) {
	var (
		a      order.Adjustment
		origin string
	)
	err := row.Scan(&a.ID, &origin, &a.OriginID, &a.Label, &a.Amount)
	a.Origin = order.AdjustmentOrigin(origin)
	return a, err
}

// addressRecord is the JSONB layout of an address column.
type addressRecord struct {
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	Zipcode     string `json:"zipcode"`
	Phone       string `json:"phone"`
	StateName   string `json:"state_name,omitempty"`
	CountryCode string `json:"country"`
}

func marshalAddress(a *order.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(addressRecord(*a))
}

func unmarshalAddress(data []byte) (*order.Address, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rec addressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	a := order.Address(rec)
	return &a, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
