package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Seed is the catalog layout read by the seed-db command.
type Seed struct {
	Distributors []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"distributors"`
	OrderCycles []struct {
		ID            string `json:"id"`
		DistributorID string `json:"distributor_id"`
		Name          string `json:"name"`
	} `json:"order_cycles"`
	Variants []struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		OnHand   int             `json:"on_hand"`
		OnDemand bool            `json:"on_demand"`
		// Offered lists "distributor/order_cycle" pairs.
		Offered []string `json:"offered"`
	} `json:"variants"`
	Customers []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"customers"`
	ShippingMethods []struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		Calculator   string          `json:"calculator"`
		Amount       decimal.Decimal `json:"amount"`
		MaxItems     int             `json:"max_items"`
		Distributors []string        `json:"distributors"`
	} `json:"shipping_methods"`
	PaymentMethods []struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		Kind         string          `json:"kind"`
		FeeType      string          `json:"fee_type"`
		FeeAmount    decimal.Decimal `json:"fee_amount"`
		Distributors []string        `json:"distributors"`
	} `json:"payment_methods"`
	Vouchers []struct {
		Code          string          `json:"code"`
		DistributorID string          `json:"distributor_id"`
		Kind          string          `json:"kind"`
		Value         decimal.Decimal `json:"value"`
		MaxDiscount   decimal.Decimal `json:"max_discount"`
		Description   string          `json:"description"`
	} `json:"vouchers"`
}

// ParseSeed decodes a seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	return &s, nil
}

// Count returns the number of top-level records in s.
func (s *Seed) Count() int {
	return len(s.Distributors) + len(s.OrderCycles) + len(s.Variants) + len(s.Customers) +
		len(s.ShippingMethods) + len(s.PaymentMethods) + len(s.Vouchers)
}

const (
	upsertDistributorSQL = `INSERT INTO distributors (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	upsertOrderCycleSQL = `INSERT INTO order_cycles (id, distributor_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	upsertVariantSQL = `INSERT INTO variants (id, name, price, on_hand, on_demand) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
		on_hand = EXCLUDED.on_hand, on_demand = EXCLUDED.on_demand`
	insertOfferSQL = `INSERT INTO order_cycle_variants (order_cycle_id, distributor_id, variant_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	upsertCustomerSQL = `INSERT INTO customers (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email`
	upsertShippingMethodSQL = `INSERT INTO shipping_methods (id, name, calculator, amount, max_items)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, calculator = EXCLUDED.calculator,
		amount = EXCLUDED.amount, max_items = EXCLUDED.max_items`
	insertDistributorShippingSQL = `INSERT INTO distributor_shipping_methods (distributor_id, shipping_method_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`
	upsertPaymentMethodSQL = `INSERT INTO payment_methods (id, name, kind, fee_type, fee_amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind,
		fee_type = EXCLUDED.fee_type, fee_amount = EXCLUDED.fee_amount`
	insertDistributorPaymentSQL = `INSERT INTO distributor_payment_methods (distributor_id, payment_method_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

// ApplySeed upserts every record of s in a single batch. Re-applying the
// same seed is a no-op.
func ApplySeed(ctx context.Context, pool *pgxpool.Pool, s *Seed) error {
	b := &pgx.Batch{}
	for _, d := range s.Distributors {
		b.Queue(upsertDistributorSQL, d.ID, d.Name)
	}
	for _, c := range s.OrderCycles {
		b.Queue(upsertOrderCycleSQL, c.ID, c.DistributorID, c.Name)
	}
	for _, v := range s.Variants {
		b.Queue(upsertVariantSQL, v.ID, v.Name, v.Price, v.OnHand, v.OnDemand)
	}
	for _, v := range s.Variants {
		for _, offer := range v.Offered {
			distributorID, cycleID, ok := splitOffer(offer)
			if !ok {
				return fmt.Errorf("variant %q: malformed offer %q", v.ID, offer)
			}
			b.Queue(insertOfferSQL, cycleID, distributorID, v.ID)
		}
	}
	for _, c := range s.Customers {
		b.Queue(upsertCustomerSQL, c.ID, c.Email)
	}
	for _, m := range s.ShippingMethods {
		b.Queue(upsertShippingMethodSQL, m.ID, m.Name, m.Calculator, m.Amount, m.MaxItems)
		for _, d := range m.Distributors {
			b.Queue(insertDistributorShippingSQL, d, m.ID)
		}
	}
	for _, m := range s.PaymentMethods {
		feeType := m.FeeType
		if feeType == "" {
			feeType = "none"
		}
		b.Queue(upsertPaymentMethodSQL, m.ID, m.Name, m.Kind, feeType, m.FeeAmount)
		for _, d := range m.Distributors {
			b.Queue(insertDistributorPaymentSQL, d, m.ID)
		}
	}
	for _, v := range s.Vouchers {
		b.Queue(upsertVoucherSQL, v.Code, v.DistributorID, v.Kind, v.Value, v.MaxDiscount, v.Description)
	}

	return NewTxManager(pool).InTx(ctx, func(ctx context.Context) error {
		if err := conn(ctx, pool).SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("applying seed: %w", err)
		}
		return nil
	})
}

func splitOffer(offer string) (distributorID, cycleID string, ok bool) {
	distributorID, cycleID, ok = strings.Cut(offer, "/")
	return distributorID, cycleID, ok && distributorID != "" && cycleID != ""
}
