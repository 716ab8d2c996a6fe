//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xenking/kart-checkout/db"
	"github.com/xenking/kart-checkout/internal/domain/customer"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/shipping"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pgc, err := tcpostgres.Run(ctx, "postgres:17-alpine",
		tcpostgres.WithDatabase("checkout"),
		tcpostgres.WithUsername("checkout"),
		tcpostgres.WithPassword("checkout"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(pgc); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	dsn, err := pgc.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	seed, err := ParseSeed(db.DemoSeed)
	if err != nil {
		log.Fatalf("parse seed: %v", err)
	}
	if err := ApplySeed(ctx, testPool, seed); err != nil {
		log.Fatalf("apply seed: %v", err)
	}

	return m.Run()
}

func createOrder(t *testing.T) *order.Order {
	t.Helper()

	id := uuid.NewString()
	o := &order.Order{
		ID:            id,
		Number:        "R" + id[:8],
		Token:         uuid.NewString(),
		State:         order.StateCart,
		CustomerID:    "cust-1",
		DistributorID: "dist-1",
		OrderCycleID:  "oc-1",
		LineItems: []order.LineItem{
			{VariantID: "apples-1kg", Quantity: 2, Price: decimal.RequireFromString("4.50")},
			{VariantID: "carrots-500g", Quantity: 1, Price: decimal.RequireFromString("2.20")},
		},
	}
	require.NoError(t, NewOrderRepository(testPool).Create(context.Background(), o))
	return o
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	o := createOrder(t)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCart, got.State)
	assert.Equal(t, "cust-1", got.CustomerID)
	require.Len(t, got.LineItems, 2)
	assert.NotZero(t, got.LineItems[0].ID)
	assert.True(t, decimal.RequireFromString("11.20").Equal(got.ItemTotal))
	assert.Nil(t, got.BillAddress)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	o := createOrder(t)

	addr := &order.Address{
		FirstName: "Jane", LastName: "Doe", Address1: "1 Main St",
		City: "Springfield", Zipcode: "12345", Phone: "555-0100", CountryCode: "AU",
	}
	o.State = order.StatePayment
	o.Email = "jane@example.com"
	o.BillAddress = addr
	o.ShipAddress = addr
	o.Shipments = []order.Shipment{{
		ID:     uuid.NewString(),
		Number: "H1",
		Rates: []order.ShippingRate{
			{ID: uuid.NewString(), ShippingMethodID: "courier", Cost: decimal.RequireFromString("10.00"), Selected: true},
			{ID: uuid.NewString(), ShippingMethodID: "pickup", Cost: decimal.Zero},
		},
	}}
	o.Adjustments = []order.Adjustment{
		{ID: uuid.NewString(), Origin: order.OriginShipping, OriginID: "courier", Label: "Courier", Amount: decimal.RequireFromString("10.00")},
	}
	o.Payments = []order.Payment{{
		ID:              uuid.NewString(),
		PaymentMethodID: "cash",
		Amount:          decimal.RequireFromString("21.20"),
		State:           order.PaymentCheckout,
		SourceKind:      order.SourceNone,
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
	}}
	o.UpdateTotals()
	require.NoError(t, repo.Save(ctx, o))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatePayment, got.State)
	assert.Equal(t, addr, got.BillAddress)
	assert.Equal(t, "courier", got.ShippingMethodID())
	require.Len(t, got.Shipments, 1)
	assert.Len(t, got.Shipments[0].Rates, 2)
	assert.True(t, decimal.RequireFromString("10.00").Equal(got.ShippingFee()))
	assert.True(t, decimal.RequireFromString("21.20").Equal(got.Total))
	require.NotNil(t, got.CurrentPayment())
	assert.Equal(t, "cash", got.CurrentPayment().PaymentMethodID)

	// Switch the selected rate, drop the unselected one and the payment.
	got.Shipments[0].SelectRate("pickup", decimal.Zero, uuid.NewString)
	got.Shipments[0].Rates = got.Shipments[0].Rates[1:]
	got.Payments = nil
	require.NoError(t, repo.Save(ctx, got))

	again, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pickup", again.ShippingMethodID())
	assert.Len(t, again.Shipments[0].Rates, 1)
	assert.Empty(t, again.Payments)
}

func TestOrderRepository_SaveMissing(t *testing.T) {
	err := NewOrderRepository(testPool).Save(context.Background(), &order.Order{ID: "missing", State: order.StateCart})
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOrderRepository_UpdateState(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	o := createOrder(t)

	require.NoError(t, repo.UpdateState(ctx, o.ID, order.StateAddress))
	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateAddress, got.State)

	assert.ErrorIs(t, repo.UpdateState(ctx, "missing", order.StateAddress), order.ErrNotFound)
}

func TestTxManager_Rollback(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(testPool)
	tx := NewTxManager(testPool)
	o := createOrder(t)

	errBoom := errors.New("boom")
	err := tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := repo.GetForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if err := repo.UpdateState(ctx, locked.ID, order.StateAddress); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return tx.InTx(ctx, func(context.Context) error { return errBoom })
	})
	require.ErrorIs(t, err, errBoom)

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StateCart, got.State)
}

func TestCatalogRepositories(t *testing.T) {
	ctx := context.Background()

	variants, err := NewVariantRepository(testPool).Variants(ctx, []string{"eggs-12", "sourdough", "missing"})
	require.NoError(t, err)
	assert.Len(t, variants, 2)

	offered, err := NewVariantRepository(testPool).Distributed(ctx, "dist-1", "oc-1", []string{"apples-1kg", "honey-250g"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"apples-1kg": true}, offered)

	sm, err := NewShippingMethodRepository(testPool).FindByID(ctx, "courier")
	require.NoError(t, err)
	assert.Equal(t, shipping.CalculatorFlat, sm.Calculator)
	assert.True(t, sm.OfferedBy("dist-1"))
	assert.False(t, sm.OfferedBy("dist-2"))

	_, err = NewShippingMethodRepository(testPool).FindByID(ctx, "missing")
	assert.ErrorIs(t, err, shipping.ErrNotFound)

	pm, err := NewPaymentMethodRepository(testPool).FindMethod(ctx, "invoice")
	require.NoError(t, err)
	assert.Equal(t, payment.FeeFlat, pm.FeeType)
	assert.True(t, decimal.RequireFromString("1.23").Equal(pm.FeeAmount))

	_, err = NewPaymentMethodRepository(testPool).FindMethod(ctx, "missing")
	assert.ErrorIs(t, err, payment.ErrNotFound)
}

func TestVoucherRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewVoucherRepository(testPool)

	v, err := repo.FindByCode(ctx, "welcome10")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", v.Code)
	assert.Equal(t, voucher.KindPercentage, v.Kind)

	_, err = repo.FindByCode(ctx, "NOPE")
	assert.ErrorIs(t, err, voucher.ErrNotFound)

	require.NoError(t, repo.UpsertVouchers(ctx, []voucher.Voucher{
		{Code: "SPRING5", DistributorID: "dist-1", Kind: voucher.KindFlat, Value: decimal.NewFromInt(5)},
	}))
	var codes []string
	require.NoError(t, repo.ExistingCodes(ctx, func(code string) { codes = append(codes, code) }))
	assert.Contains(t, codes, "SPRING5")
	assert.Contains(t, codes, "FREEBIE")
}

func TestAccountRepositories(t *testing.T) {
	ctx := context.Background()
	sources := NewPaymentSourceRepository(testPool)

	src := &payment.Source{
		ID: uuid.NewString(), CustomerID: "cust-1", GatewayToken: "tok_1",
		Brand: "visa", LastDigits: "4242", ExpMonth: 12, ExpYear: 2030, Reusable: true,
	}
	require.NoError(t, sources.CreateSource(ctx, src))
	got, err := sources.FindSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, src, got)

	_, err = sources.FindSource(ctx, "missing")
	assert.ErrorIs(t, err, payment.ErrSourceNotFound)

	customers := NewCustomerRepository(testPool)
	addr := &order.Address{FirstName: "Jane", LastName: "Doe", Address1: "1 Main St", City: "Springfield", Zipcode: "12345", Phone: "555-0100", CountryCode: "AU"}
	require.NoError(t, customers.SaveDefaultAddresses(ctx, "cust-1", addr, nil))

	c, err := customers.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, addr, c.BillAddress)
	assert.Nil(t, c.ShipAddress)

	assert.ErrorIs(t, customers.SaveDefaultAddresses(ctx, "missing", addr, addr), customer.ErrNotFound)
}
