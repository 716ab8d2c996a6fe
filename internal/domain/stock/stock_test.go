package stock

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

type mockRepo struct {
	variants    []Variant
	distributed map[string]bool
	err         error
}

func (m *mockRepo) Variants(_ context.Context, _ []string) ([]Variant, error) {
	return m.variants, m.err
}

func (m *mockRepo) Distributed(_ context.Context, _, _ string, _ []string) (map[string]bool, error) {
	return m.distributed, nil
}

func newOrder(items ...order.LineItem) *order.Order {
	return &order.Order{DistributorID: "d1", OrderCycleID: "oc1", LineItems: items}
}

func item(variant string, qty int) order.LineItem {
	return order.LineItem{VariantID: variant, Quantity: qty, Price: decimal.NewFromInt(1)}
}

func TestChecker_Check(t *testing.T) {
	tests := []struct {
		name              string
		repo              *mockRepo
		order             *order.Order
		wantInsufficient  []string
		wantUndistributed []string
	}{
		{
			name: "all available",
			repo: &mockRepo{
				variants:    []Variant{{ID: "v1", OnHand: 5}, {ID: "v2", OnDemand: true}},
				distributed: map[string]bool{"v1": true, "v2": true},
			},
			order: newOrder(item("v1", 5), item("v2", 100)),
		},
		{
			name: "quantity above stock",
			repo: &mockRepo{
				variants:    []Variant{{ID: "v1", OnHand: 1}},
				distributed: map[string]bool{"v1": true},
			},
			order:            newOrder(item("v1", 2)),
			wantInsufficient: []string{"v1"},
		},
		{
			name: "same variant on two lines is summed",
			repo: &mockRepo{
				variants:    []Variant{{ID: "v1", OnHand: 3}},
				distributed: map[string]bool{"v1": true},
			},
			order:            newOrder(item("v1", 2), item("v1", 2)),
			wantInsufficient: []string{"v1"},
		},
		{
			name: "unknown variant counts as out of stock",
			repo: &mockRepo{
				distributed: map[string]bool{"v9": true},
			},
			order:            newOrder(item("v9", 1)),
			wantInsufficient: []string{"v9"},
		},
		{
			name: "variant no longer distributed",
			repo: &mockRepo{
				variants:    []Variant{{ID: "v1", OnHand: 10}},
				distributed: map[string]bool{},
			},
			order:             newOrder(item("v1", 1)),
			wantUndistributed: []string{"v1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewChecker(tt.repo).Check(context.Background(), tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInsufficient, r.Insufficient)
			assert.Equal(t, tt.wantUndistributed, r.Undistributed)
			assert.Equal(t, len(tt.wantInsufficient) > 0, r.HasInsufficientStock())
			assert.Equal(t, len(tt.wantUndistributed) == 0, r.IsDistributed())
		})
	}
}

func TestChecker_EmptyOrder(t *testing.T) {
	r, err := NewChecker(&mockRepo{err: errors.New("must not be called")}).Check(context.Background(), newOrder())
	require.NoError(t, err)
	assert.False(t, r.HasInsufficientStock())
	assert.True(t, r.IsDistributed())
}

func TestChecker_RepoError(t *testing.T) {
	repo := &mockRepo{err: errors.New("db down")}
	_, err := NewChecker(repo).Check(context.Background(), newOrder(item("v1", 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variants")
}
