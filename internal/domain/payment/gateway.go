package payment

import (
	"context"
	"net/url"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// RedirectGateway builds hosted-payment-page URLs. The buyer is sent to
// BaseURL and the gateway sends them back to ReturnURL once confirmed.
type RedirectGateway struct {
	baseURL   *url.URL
	returnURL string
}

// NewRedirectGateway parses baseURL and returns a RedirectGateway.
func NewRedirectGateway(baseURL, returnURL string) (*RedirectGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse gateway base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("gateway base url %q must be absolute", baseURL)
	}
	return &RedirectGateway{baseURL: u, returnURL: returnURL}, nil
}

// RedirectURL returns the hosted page URL for p.
func (g *RedirectGateway) RedirectURL(_ context.Context, o *order.Order, p *order.Payment) (string, error) {
	u := *g.baseURL
	q := u.Query()
	q.Set("order", o.Number)
	q.Set("payment", p.ID)
	q.Set("amount", p.Amount.StringFixed(2))
	if g.returnURL != "" {
		q.Set("return_url", g.returnURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DeferredProcessor authorises card payments for later capture by the
// distributor. The payment is left pending.
type DeferredProcessor struct{}

// Process marks p pending when it has a source to capture from.
func (DeferredProcessor) Process(_ context.Context, _ *order.Order, p *order.Payment) error {
	if p.SourceID == "" {
		return errors.New("card payment without source")
	}
	p.State = order.PaymentPending
	return nil
}
