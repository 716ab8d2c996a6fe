package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

func TestParseStep(t *testing.T) {
	tests := map[string]Step{
		"details":      StepDetails,
		"address":      StepDetails,
		"payment":      StepPayment,
		"summary":      StepSummary,
		"confirmation": StepSummary,
	}
	for in, want := range tests {
		got, err := ParseStep(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStep("cart")
	require.ErrorIs(t, err, ErrInvalidStep)
}

func TestStepFor(t *testing.T) {
	tests := []struct {
		state  order.State
		want   Step
		wantOK bool
	}{
		{state: order.StateCart, want: StepDetails, wantOK: true},
		{state: order.StateAddress, want: StepDetails, wantOK: true},
		{state: order.StatePayment, want: StepPayment, wantOK: true},
		{state: order.StateConfirmation, want: StepSummary, wantOK: true},
		{state: order.StateComplete},
	}
	for _, tt := range tests {
		got, ok := StepFor(tt.state)
		assert.Equal(t, tt.wantOK, ok, tt.state)
		assert.Equal(t, tt.want, got, tt.state)
	}
}

func TestStepTransitions(t *testing.T) {
	assert.Equal(t, order.StatePayment, StepDetails.Target())
	assert.Equal(t, order.StateConfirmation, StepPayment.Target())
	assert.Equal(t, order.StateComplete, StepSummary.Target())

	assert.True(t, StepDetails.Before(StepPayment))
	assert.True(t, StepPayment.Before(StepSummary))
	assert.False(t, StepSummary.Before(StepSummary))

	// Every step's state maps back to the step.
	for _, s := range Steps {
		got, ok := StepFor(s.State())
		require.True(t, ok)
		assert.Equal(t, s, got)
	}
}

func TestPaths(t *testing.T) {
	p := Paths{Cart: "/shop/cart", Orders: "/orders"}
	assert.Equal(t, "/orders/o%201/checkout/payment", p.Step("o 1", StepPayment))
	assert.Equal(t, "/orders/o1?order_token=a%26b", p.Confirmation(&order.Order{ID: "o1", Token: "a&b"}))
}

func TestValidate(t *testing.T) {
	payable := newOrder(order.StatePayment)
	free := &order.Order{}
	free.UpdateTotals()

	tests := []struct {
		name   string
		policy Policy
		step   Step
		order  *order.Order
		attrs  Attributes
		want   []string
	}{
		{
			name:  "details complete",
			step:  StepDetails,
			order: newOrder(order.StateCart),
			attrs: detailsAttrs("courier"),
		},
		{
			name:  "details falls back to order email",
			step:  StepDetails,
			order: newOrder(order.StateAddress),
			attrs: Attributes{BillAddress: testAddress(), ShipToBilling: true},
		},
		{
			name:  "details nothing submitted",
			step:  StepDetails,
			order: newOrder(order.StateCart),
			want:  []string{"email", "bill_address", "ship_address", "shipping_method_id"},
		},
		{
			name:  "details incomplete addresses",
			step:  StepDetails,
			order: newOrder(order.StateCart),
			attrs: Attributes{
				Email:            "a@b.c",
				BillAddress:      &order.Address{FirstName: "Ann", LastName: "S", Address1: "1 St", City: "X", Zipcode: "1", Phone: "2"},
				ShipAddress:      &order.Address{},
				ShippingMethodID: "post",
			},
			want: []string{
				"bill_address.country",
				"ship_address.firstname", "ship_address.lastname", "ship_address.address1",
				"ship_address.city", "ship_address.zipcode", "ship_address.phone", "ship_address.country",
			},
		},
		{
			name:  "payment method only",
			step:  StepPayment,
			order: payable,
			attrs: Attributes{Payment: payment.Request{MethodID: "cash"}},
		},
		{
			name:  "payment missing method",
			step:  StepPayment,
			order: payable,
			want:  []string{"payment_method_id"},
		},
		{
			name:  "payment two sources",
			step:  StepPayment,
			order: payable,
			attrs: Attributes{Payment: payment.Request{
				MethodID:       "card",
				NewSource:      &payment.SourceAttributes{GatewayToken: "tok"},
				StoredSourceID: "src",
			}},
			want: []string{"source"},
		},
		{
			name:  "payment new source without token",
			step:  StepPayment,
			order: payable,
			attrs: Attributes{Payment: payment.Request{MethodID: "card", NewSource: &payment.SourceAttributes{}}},
			want:  []string{"source.gateway_token"},
		},
		{
			name:  "zero amount on payable order",
			step:  StepPayment,
			order: payable,
			attrs: Attributes{Payment: payment.Request{MethodID: "cash", ZeroAmount: true}},
			want:  []string{"amount"},
		},
		{
			name:  "zero amount on free order",
			step:  StepPayment,
			order: free,
			attrs: Attributes{Payment: payment.Request{MethodID: "cash", ZeroAmount: true}},
		},
		{
			name:   "terms required and missing",
			policy: Policy{TermsRequired: true},
			step:   StepSummary,
			order:  payable,
			want:   []string{"accept_terms"},
		},
		{
			name:   "terms required and accepted",
			policy: Policy{TermsRequired: true},
			step:   StepSummary,
			order:  payable,
			attrs:  Attributes{TermsAccepted: true},
		},
		{
			name:  "terms optional",
			step:  StepSummary,
			order: payable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := NewValidator(tt.policy).Validate(tt.step, tt.order, tt.attrs)
			if len(tt.want) == 0 {
				assert.Nil(t, errs)
				return
			}
			require.Len(t, errs, len(tt.want), "%v", errs)
			for _, f := range tt.want {
				assert.Contains(t, errs, f)
			}
		})
	}
}

func TestFieldErrors(t *testing.T) {
	errs := FieldErrors{}
	errs.Add("email", "can't be blank")
	errs.Add("email", "is invalid")
	errs.Add("bill_address", "can't be blank")

	assert.Equal(t, "can't be blank", errs["email"])
	assert.Equal(t, "validation failed: bill_address can't be blank; email can't be blank", errs.Error())
}

func TestNeedsVoucherRecalculation(t *testing.T) {
	base := newOrder(order.StatePayment)
	before := snapshotFees(base)

	t.Run("no voucher", func(t *testing.T) {
		o := base.Clone()
		o.Shipments = nil
		assert.False(t, needsVoucherRecalculation(o, before, snapshotFees(o)))
	})

	voucher := withVoucher(base.Clone())
	before = snapshotFees(voucher)

	tests := []struct {
		name   string
		mutate func(o *order.Order)
		want   bool
	}{
		{name: "unchanged", mutate: func(*order.Order) {}, want: false},
		{name: "line items only", mutate: func(o *order.Order) { o.LineItems[0].Quantity = 5 }, want: false},
		{name: "shipping method", mutate: func(o *order.Order) {
			o.Shipments[0].SelectRate("courier", d("5.00"), func() string { return "r2" })
		}, want: true},
		{name: "shipping fee", mutate: func(o *order.Order) {
			o.SetAdjustment(order.OriginShipping, "post", "post", d("7.00"), nil)
		}, want: true},
		{name: "shipments removed", mutate: func(o *order.Order) { o.Shipments = nil }, want: true},
		{name: "payment method", mutate: func(o *order.Order) {
			o.Payments = append(o.Payments, order.Payment{PaymentMethodID: "cash", State: order.PaymentCheckout})
		}, want: true},
		{name: "payment fee", mutate: func(o *order.Order) {
			o.SetAdjustment(order.OriginPaymentFee, "card", "card", d("1.23"), func() string { return "f" })
		}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := voucher.Clone()
			tt.mutate(o)
			assert.Equal(t, tt.want, needsVoucherRecalculation(o, before, snapshotFees(o)))
		})
	}
}
