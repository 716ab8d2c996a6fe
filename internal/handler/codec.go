package handler

import (
	"io"
	"maps"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// maxBodyBytes caps update request bodies.
const maxBodyBytes = 64 << 10

// decodeAttributes reads an update body. Unknown fields are skipped and an
// empty body yields zero Attributes.
func decodeAttributes(r io.Reader) (checkout.Attributes, error) {
	var attrs checkout.Attributes

	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return attrs, errors.Wrap(err, "read body")
	}
	if len(data) > maxBodyBytes {
		return attrs, errors.New("request body too large")
	}
	if len(data) == 0 {
		return attrs, nil
	}

	err = jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			attrs.Email, err = d.Str()
		case "bill_address":
			attrs.BillAddress, err = decodeAddress(d)
		case "ship_address":
			attrs.ShipAddress, err = decodeAddress(d)
		case "ship_to_billing":
			attrs.ShipToBilling, err = d.Bool()
		case "shipping_method_id":
			attrs.ShippingMethodID, err = d.Str()
		case "save_bill_address":
			attrs.SaveBillAddress, err = d.Bool()
		case "save_ship_address":
			attrs.SaveShipAddress, err = d.Bool()
		case "payment":
			err = decodePayment(d, &attrs.Payment)
		case "accept_terms":
			attrs.TermsAccepted, err = d.Bool()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return checkout.Attributes{}, errors.Wrap(err, "decode attributes")
	}
	return attrs, nil
}

func decodeAddress(d *jx.Decoder) (*order.Address, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var a order.Address
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "firstname":
			a.FirstName, err = d.Str()
		case "lastname":
			a.LastName, err = d.Str()
		case "address1":
			a.Address1, err = d.Str()
		case "address2":
			a.Address2, err = d.Str()
		case "city":
			a.City, err = d.Str()
		case "zipcode":
			a.Zipcode, err = d.Str()
		case "phone":
			a.Phone, err = d.Str()
		case "state_name":
			a.StateName, err = d.Str()
		case "country":
			a.CountryCode, err = d.Str()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func decodePayment(d *jx.Decoder, req *payment.Request) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "payment_method_id":
			req.MethodID, err = d.Str()
		case "source_id":
			req.StoredSourceID, err = d.Str()
		case "zero_amount":
			req.ZeroAmount, err = d.Bool()
		case "source":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.NewSource = &payment.SourceAttributes{}
			err = decodeSource(d, req.NewSource)
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
}

func decodeSource(d *jx.Decoder, s *payment.SourceAttributes) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "gateway_token":
			s.GatewayToken, err = d.Str()
		case "brand":
			s.Brand, err = d.Str()
		case "last_digits":
			s.LastDigits, err = d.Str()
		case "exp_month":
			s.ExpMonth, err = d.Int()
		case "exp_year":
			s.ExpYear, err = d.Int()
		case "save":
			s.Save, err = d.Bool()
		default:
			err = d.Skip()
		}
		return errors.Wrap(err, key)
	})
}

func encodeOutcome(e *jx.Encoder, out *checkout.Outcome) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(out.Kind)) })
		if out.Step != "" {
			e.Field("step", func(e *jx.Encoder) { e.Str(string(out.Step)) })
		}
		if out.Location != "" {
			e.Field("location", func(e *jx.Encoder) { e.Str(out.Location) })
		}
		if out.Message != "" {
			e.Field("message", func(e *jx.Encoder) { e.Str(out.Message) })
		}
		if len(out.Errors) > 0 {
			e.Field("errors", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					for _, field := range slices.Sorted(maps.Keys(out.Errors)) {
						e.Field(field, func(e *jx.Encoder) { e.Str(out.Errors[field]) })
					}
				})
			})
		}
		if out.Order != nil {
			e.Field("order", func(e *jx.Encoder) { encodeOrder(e, out.Order) })
		}
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("state", func(e *jx.Encoder) { e.Str(string(o.State)) })
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Email) })
		e.Field("bill_address", func(e *jx.Encoder) { encodeAddress(e, o.BillAddress) })
		e.Field("ship_address", func(e *jx.Encoder) { encodeAddress(e, o.ShipAddress) })
		e.Field("line_items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, li := range o.LineItems {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Int64(li.ID) })
						e.Field("variant_id", func(e *jx.Encoder) { e.Str(li.VariantID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, li.Price) })
						e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, li.Amount()) })
					})
				}
			})
		})
		e.Field("shipments", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, s := range o.Shipments {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
						e.Field("rates", func(e *jx.Encoder) {
							e.Arr(func(e *jx.Encoder) {
								for _, r := range s.Rates {
									e.Obj(func(e *jx.Encoder) {
										e.Field("shipping_method_id", func(e *jx.Encoder) { e.Str(r.ShippingMethodID) })
										e.Field("cost", func(e *jx.Encoder) { encodeMoney(e, r.Cost) })
										e.Field("selected", func(e *jx.Encoder) { e.Bool(r.Selected) })
									})
								}
							})
						})
					})
				}
			})
		})
		e.Field("payments", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, p := range o.Payments {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
						e.Field("payment_method_id", func(e *jx.Encoder) { e.Str(p.PaymentMethodID) })
						e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, p.Amount) })
						e.Field("state", func(e *jx.Encoder) { e.Str(string(p.State)) })
					})
				}
			})
		})
		e.Field("adjustments", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, a := range o.Adjustments {
					e.Obj(func(e *jx.Encoder) {
						e.Field("origin", func(e *jx.Encoder) { e.Str(string(a.Origin)) })
						e.Field("label", func(e *jx.Encoder) { e.Str(a.Label) })
						e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, a.Amount) })
					})
				}
			})
		})
		e.Field("item_total", func(e *jx.Encoder) { encodeMoney(e, o.ItemTotal) })
		e.Field("adjustment_total", func(e *jx.Encoder) { encodeMoney(e, o.AdjustmentTotal) })
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		e.Field("completed_at", func(e *jx.Encoder) { encodeTime(e, o.CompletedAt) })
	})
}

func encodeAddress(e *jx.Encoder, a *order.Address) {
	if a == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("firstname", func(e *jx.Encoder) { e.Str(a.FirstName) })
		e.Field("lastname", func(e *jx.Encoder) { e.Str(a.LastName) })
		e.Field("address1", func(e *jx.Encoder) { e.Str(a.Address1) })
		e.Field("address2", func(e *jx.Encoder) { e.Str(a.Address2) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("zipcode", func(e *jx.Encoder) { e.Str(a.Zipcode) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
		e.Field("state_name", func(e *jx.Encoder) { e.Str(a.StateName) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.CountryCode) })
	})
}

// encodeMoney writes amounts as fixed two-decimal strings.
func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeError(e *jx.Encoder, code int, message string) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})
}
