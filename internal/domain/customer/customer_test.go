package customer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

type mockRepo struct {
	calls int
	id    string
	bill  *order.Address
	ship  *order.Address
}

func (m *mockRepo) Get(_ context.Context, id string) (*Customer, error) {
	return &Customer{ID: id}, nil
}

func (m *mockRepo) SaveDefaultAddresses(_ context.Context, id string, bill, ship *order.Address) error {
	m.calls++
	m.id, m.bill, m.ship = id, bill, ship
	return nil
}

func TestSaveDefaults(t *testing.T) {
	bill := &order.Address{FirstName: "Ann", City: "Hobart"}
	ship := &order.Address{FirstName: "Ann", City: "Launceston"}

	tests := []struct {
		name       string
		customerID string
		saveBill   bool
		saveShip   bool
		wantCalls  int
		wantBill   *order.Address
		wantShip   *order.Address
	}{
		{name: "both", customerID: "c1", saveBill: true, saveShip: true, wantCalls: 1, wantBill: bill, wantShip: ship},
		{name: "bill only", customerID: "c1", saveBill: true, wantCalls: 1, wantBill: bill},
		{name: "no flags", customerID: "c1"},
		{name: "guest", saveBill: true, saveShip: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepo{}
			o := &order.Order{CustomerID: tt.customerID, BillAddress: bill, ShipAddress: ship}

			require.NoError(t, NewAddressBook(repo).SaveDefaults(context.Background(), o, tt.saveBill, tt.saveShip))
			assert.Equal(t, tt.wantCalls, repo.calls)
			assert.Equal(t, tt.wantBill, repo.bill)
			assert.Equal(t, tt.wantShip, repo.ship)
		})
	}
}
