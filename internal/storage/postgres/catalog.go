package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/shipping"
	"github.com/xenking/kart-checkout/internal/domain/stock"
)

const (
	getVariantsByIDsSQL = `SELECT id, on_hand, on_demand FROM variants WHERE id = ANY($1)`

	getDistributedVariantsSQL = `SELECT variant_id FROM order_cycle_variants
		WHERE distributor_id = $1 AND order_cycle_id = $2 AND variant_id = ANY($3)`

	getShippingMethodSQL = `SELECT m.id, m.name, m.calculator, m.amount, m.max_items,
		COALESCE(array_agg(d.distributor_id) FILTER (WHERE d.distributor_id IS NOT NULL), '{}')
		FROM shipping_methods m
		LEFT JOIN distributor_shipping_methods d ON d.shipping_method_id = m.id
		WHERE m.id = $1
		GROUP BY m.id`

	getPaymentMethodSQL = `SELECT m.id, m.name, m.kind, m.fee_type, m.fee_amount,
		COALESCE(array_agg(d.distributor_id) FILTER (WHERE d.distributor_id IS NOT NULL), '{}')
		FROM payment_methods m
		LEFT JOIN distributor_payment_methods d ON d.payment_method_id = m.id
		WHERE m.id = $1
		GROUP BY m.id`
)

var _ stock.Repository = (*VariantRepository)(nil)

// VariantRepository implements stock.Repository backed by PostgreSQL.
// Lookups always run on the pool so they can be issued concurrently.
type VariantRepository struct {
	pool *pgxpool.Pool
}

// NewVariantRepository returns a VariantRepository that uses the given pool.
func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

// Variants returns stock levels for the given ids. Unknown ids are omitted.
func (r *VariantRepository) Variants(ctx context.Context, ids []string) ([]stock.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	variants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stock.Variant, error) {
		var (
			v      stock.Variant
			onHand int32
		)
		err := row.Scan(&v.ID, &onHand, &v.OnDemand)
		v.OnHand = int(onHand)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning variants: %w", err)
	}
	return variants, nil
}

// Distributed returns the ids the distributor offers in the order cycle.
func (r *VariantRepository) Distributed(ctx context.Context, distributorID, orderCycleID string, ids []string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, getDistributedVariantsSQL, distributorID, orderCycleID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting distributed variants: %w", err)
	}
	offered, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning distributed variants: %w", err)
	}
	out := make(map[string]bool, len(offered))
	for _, id := range offered {
		out[id] = true
	}
	return out, nil
}

var _ shipping.Repository = (*ShippingMethodRepository)(nil)

// ShippingMethodRepository implements shipping.Repository backed by
// PostgreSQL.
type ShippingMethodRepository struct {
	pool *pgxpool.Pool
}

// NewShippingMethodRepository returns a ShippingMethodRepository that uses
// the given pool.
func NewShippingMethodRepository(pool *pgxpool.Pool) *ShippingMethodRepository {
	return &ShippingMethodRepository{pool: pool}
}

// FindByID returns the shipping method with its distributors. Returns
// shipping.ErrNotFound when it does not exist.
func (r *ShippingMethodRepository) FindByID(ctx context.Context, id string) (*shipping.Method, error) {
	var (
		m          shipping.Method
		calculator string
		maxItems   int32
	)
	err := conn(ctx, r.pool).QueryRow(ctx, getShippingMethodSQL, id).Scan(
		&m.ID, &m.Name, &calculator, &m.Amount, &maxItems, &m.DistributorIDs,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, shipping.ErrNotFound
		}
		return nil, fmt.Errorf("finding shipping method %q: %w", id, err)
	}
	m.Calculator = shipping.CalculatorType(calculator)
	m.MaxItems = int(maxItems)
	return &m, nil
}

var _ payment.Repository = (*PaymentMethodRepository)(nil)

// PaymentMethodRepository implements payment.Repository backed by
// PostgreSQL.
type PaymentMethodRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentMethodRepository returns a PaymentMethodRepository that uses the
// given pool.
func NewPaymentMethodRepository(pool *pgxpool.Pool) *PaymentMethodRepository {
	return &PaymentMethodRepository{pool: pool}
}

// FindMethod returns the payment method with its distributors. Returns
// payment.ErrNotFound when it does not exist.
func (r *PaymentMethodRepository) FindMethod(ctx context.Context, id string) (*payment.Method, error) {
	var (
		m       payment.Method
		kind    string
		feeType string
	)
	err := conn(ctx, r.pool).QueryRow(ctx, getPaymentMethodSQL, id).Scan(
		&m.ID, &m.Name, &kind, &feeType, &m.FeeAmount, &m.DistributorIDs,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("finding payment method %q: %w", id, err)
	}
	m.Kind = payment.Kind(kind)
	m.FeeType = payment.FeeType(feeType)
	return &m, nil
}
