package order

import "github.com/shopspring/decimal"

// Shipment groups the order's shippable items and carries the candidate
// shipping rates. At most one rate is selected at a time.
type Shipment struct {
	ID     string
	Number string
	Rates  []ShippingRate
}

// ShippingRate is the price of shipping a shipment with one method.
type ShippingRate struct {
	ID               string
	ShippingMethodID string
	Cost             decimal.Decimal
	Selected         bool
}

// SelectedRate returns the selected rate, or nil.
func (s *Shipment) SelectedRate() *ShippingRate {
	for i := range s.Rates {
		if s.Rates[i].Selected {
			return &s.Rates[i]
		}
	}
	return nil
}

// SelectRate marks the rate for methodID as the only selected rate, creating
// it when the shipment has no rate for that method yet. An existing rate has
// its cost refreshed. newID is used only when a rate is created.
func (s *Shipment) SelectRate(methodID string, cost decimal.Decimal, newID func() string) *ShippingRate {
	var target *ShippingRate
	for i := range s.Rates {
		r := &s.Rates[i]
		r.Selected = false
		if r.ShippingMethodID == methodID {
			target = r
		}
	}
	if target == nil {
		s.Rates = append(s.Rates, ShippingRate{
			ID:               newID(),
			ShippingMethodID: methodID,
		})
		target = &s.Rates[len(s.Rates)-1]
	}
	target.Cost = cost
	target.Selected = true
	return target
}
