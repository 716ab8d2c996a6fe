package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-checkout/internal/domain/customer"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

const (
	getPaymentSourceSQL = `SELECT id, customer_id, gateway_token, brand, last_digits, exp_month, exp_year, reusable
		FROM payment_sources WHERE id = $1`

	createPaymentSourceSQL = `INSERT INTO payment_sources
		(id, customer_id, gateway_token, brand, last_digits, exp_month, exp_year, reusable)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getCustomerSQL = `SELECT id, email, bill_address, ship_address FROM customers WHERE id = $1`

	saveDefaultAddressesSQL = `UPDATE customers SET
		bill_address = COALESCE($2, bill_address),
		ship_address = COALESCE($3, ship_address)
		WHERE id = $1`
)

var _ payment.SourceRepository = (*PaymentSourceRepository)(nil)

// PaymentSourceRepository implements payment.SourceRepository backed by
// PostgreSQL.
type PaymentSourceRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentSourceRepository returns a PaymentSourceRepository that uses the
// given pool.
func NewPaymentSourceRepository(pool *pgxpool.Pool) *PaymentSourceRepository {
	return &PaymentSourceRepository{pool: pool}
}

// FindSource returns a stored source. Returns payment.ErrSourceNotFound when
// it does not exist.
func (r *PaymentSourceRepository) FindSource(ctx context.Context, id string) (*payment.Source, error) {
	var (
		s                 payment.Source
		customerID        *string
		expMonth, expYear int32
	)
	err := conn(ctx, r.pool).QueryRow(ctx, getPaymentSourceSQL, id).Scan(
		&s.ID, &customerID, &s.GatewayToken, &s.Brand, &s.LastDigits, &expMonth, &expYear, &s.Reusable,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, payment.ErrSourceNotFound
		}
		return nil, fmt.Errorf("finding payment source %q: %w", id, err)
	}
	s.CustomerID = deref(customerID)
	s.ExpMonth = int(expMonth)
	s.ExpYear = int(expYear)
	return &s, nil
}

// CreateSource inserts a new source.
func (r *PaymentSourceRepository) CreateSource(ctx context.Context, s *payment.Source) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createPaymentSourceSQL,
		s.ID, nullString(s.CustomerID), s.GatewayToken, s.Brand, s.LastDigits, s.ExpMonth, s.ExpYear, s.Reusable,
	)
	if err != nil {
		return fmt.Errorf("creating payment source: %w", err)
	}
	return nil
}

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given
// pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Get returns the customer. Returns customer.ErrNotFound when it does not
// exist.
func (r *CustomerRepository) Get(ctx context.Context, id string) (*customer.Customer, error) {
	var (
		c          customer.Customer
		bill, ship []byte
	)
	err := conn(ctx, r.pool).QueryRow(ctx, getCustomerSQL, id).Scan(&c.ID, &c.Email, &bill, &ship)
	if err != nil {
		if isNoRows(err) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("finding customer %q: %w", id, err)
	}
	if c.BillAddress, err = unmarshalAddress(bill); err != nil {
		return nil, fmt.Errorf("unmarshaling bill address: %w", err)
	}
	if c.ShipAddress, err = unmarshalAddress(ship); err != nil {
		return nil, fmt.Errorf("unmarshaling ship address: %w", err)
	}
	return &c, nil
}

// SaveDefaultAddresses replaces the non-nil default addresses.
func (r *CustomerRepository) SaveDefaultAddresses(ctx context.Context, id string, bill, ship *order.Address) error {
	billJSON, err := marshalAddress(bill)
	if err != nil {
		return fmt.Errorf("marshaling bill address: %w", err)
	}
	shipJSON, err := marshalAddress(ship)
	if err != nil {
		return fmt.Errorf("marshaling ship address: %w", err)
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, saveDefaultAddressesSQL, id, billJSON, shipJSON)
	if err != nil {
		return fmt.Errorf("saving default addresses of customer %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}
