package checkout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// Attributes is the step-scoped input of an update request. Only the fields
// of the submitted step are read.
type Attributes struct {
	// Details step.
	Email            string
	BillAddress      *order.Address
	ShipAddress      *order.Address
	ShipToBilling    bool
	ShippingMethodID string
	SaveBillAddress  bool
	SaveShipAddress  bool

	// Payment step.
	Payment payment.Request

	// Summary step.
	TermsAccepted bool
}

// FieldErrors maps a field name to a human-readable reason.
type FieldErrors map[string]string

// Add records reason for field, keeping the first reason reported.
func (fe FieldErrors) Add(field, reason string) {
	if _, ok := fe[field]; !ok {
		fe[field] = reason
	}
}

func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s %s", f, fe[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Policy holds store-wide checkout rules.
type Policy struct {
	// TermsRequired makes acceptance of the terms of service mandatory on the
	// summary step.
	TermsRequired bool
}

// Validator checks the attributes relevant to one step.
type Validator struct {
	policy Policy
}

// NewValidator creates a Validator enforcing policy.
func NewValidator(policy Policy) *Validator {
	return &Validator{policy: policy}
}

// Validate returns the field errors of attrs for step, or nil. It does not
// mutate o.
func (v *Validator) Validate(step Step, o *order.Order, attrs Attributes) FieldErrors {
	errs := FieldErrors{}
	switch step {
	case StepDetails:
		v.details(errs, o, attrs)
	case StepPayment:
		v.payment(errs, o, attrs.Payment)
	case StepSummary:
		if v.policy.TermsRequired && !attrs.TermsAccepted {
			errs.Add("accept_terms", "must be accepted")
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (v *Validator) details(errs FieldErrors, o *order.Order, attrs Attributes) {
	if strings.TrimSpace(attrs.Email) == "" && strings.TrimSpace(o.Email) == "" {
		errs.Add("email", "can't be blank")
	}
	addressErrors(errs, "bill_address", attrs.BillAddress)
	if !attrs.ShipToBilling {
		addressErrors(errs, "ship_address", attrs.ShipAddress)
	}
	if attrs.ShippingMethodID == "" && len(o.LineItems) > 0 && o.ShippingMethodID() == "" {
		errs.Add("shipping_method_id", "can't be blank")
	}
}

func addressErrors(errs FieldErrors, prefix string, a *order.Address) {
	if a == nil {
		errs.Add(prefix, "can't be blank")
		return
	}
	for _, f := range a.MissingFields() {
		errs.Add(prefix+"."+f, "can't be blank")
	}
}

func (v *Validator) payment(errs FieldErrors, o *order.Order, req payment.Request) {
	if req.MethodID == "" {
		errs.Add("payment_method_id", "can't be blank")
	}

	described := 0
	if req.NewSource != nil {
		described++
		if strings.TrimSpace(req.NewSource.GatewayToken) == "" {
			errs.Add("source.gateway_token", "can't be blank")
		}
	}
	if req.StoredSourceID != "" {
		described++
	}
	if req.ZeroAmount {
		described++
		if !o.IsZeroTotal() {
			errs.Add("amount", "must match the order total")
		}
	}
	if described > 1 {
		errs.Add("source", "only one payment source may be given")
	}
}
