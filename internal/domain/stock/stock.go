// Package stock answers whether an order's line items can still be
// fulfilled by the distributor the order was placed against.
package stock

import (
	"context"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Variant is the stock level of one purchasable variant.
type Variant struct {
	ID       string
	OnHand   int
	OnDemand bool
}

// Repository provides stock and distribution lookups.
type Repository interface {
	// Variants returns stock levels for the given variant ids. Unknown ids
	// are omitted from the result.
	Variants(ctx context.Context, ids []string) ([]Variant, error)
	// Distributed returns the subset of ids offered by the distributor in
	// the given order cycle.
	Distributed(ctx context.Context, distributorID, orderCycleID string, ids []string) (map[string]bool, error)
}

// Report is the result of a stock check. Neither list is mutated back onto
// the order; callers decide what to do with unavailable items.
type Report struct {
	Insufficient  []string
	Undistributed []string
}

// HasInsufficientStock reports whether any line item exceeds stock on hand.
func (r Report) HasInsufficientStock() bool {
	return len(r.Insufficient) > 0
}

// IsDistributed reports whether every variant is still offered.
func (r Report) IsDistributed() bool {
	return len(r.Undistributed) == 0
}

// Checker checks line items against stock levels and the distributor's
// current catalog.
type Checker struct {
	repo Repository
}

// NewChecker creates a Checker backed by repo.
func NewChecker(repo Repository) *Checker {
	return &Checker{repo: repo}
}

// Check inspects every line item of o. Stock and distribution lookups run
// concurrently.
func (c *Checker) Check(ctx context.Context, o *order.Order) (Report, error) {
	if len(o.LineItems) == 0 {
		return Report{}, nil
	}
	ids := o.VariantIDs()

	var (
		variants    []Variant
		distributed map[string]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.repo.Variants(gctx, ids)
		if err != nil {
			return errors.Wrap(err, "variants")
		}
		variants = v
		return nil
	})
	g.Go(func() error {
		m, err := c.repo.Distributed(gctx, o.DistributorID, o.OrderCycleID, ids)
		if err != nil {
			return errors.Wrap(err, "distributed variants")
		}
		distributed = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	byID := make(map[string]Variant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}

	// Quantities are summed per variant in case the same variant appears on
	// more than one line.
	wanted := make(map[string]int, len(o.LineItems))
	for _, li := range o.LineItems {
		wanted[li.VariantID] += li.Quantity
	}

	var r Report
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if !distributed[id] {
			r.Undistributed = append(r.Undistributed, id)
		}
		v, ok := byID[id]
		if !ok || (!v.OnDemand && v.OnHand < wanted[id]) {
			r.Insufficient = append(r.Insufficient, id)
		}
	}
	return r, nil
}
