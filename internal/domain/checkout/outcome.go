package checkout

import (
	"net/http"
	"net/url"
	"path"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// FailureMessage is shown with every validation failure.
const FailureMessage = "Saving failed, please update the highlighted fields."

// OutcomeKind is the type of response a step request produces.
type OutcomeKind string

const (
	// OutcomeRender shows a step, with errors when validation failed.
	OutcomeRender OutcomeKind = "render"
	// OutcomeRedirect sends the buyer to a path inside the shop.
	OutcomeRedirect OutcomeKind = "redirect"
	// OutcomeExternal sends the buyer to an off-platform payment page.
	OutcomeExternal OutcomeKind = "external_redirect"
)

// Outcome is the result of a view or update request.
type Outcome struct {
	Kind OutcomeKind
	// Status is the HTTP status the caller should answer with.
	Status   int
	Step     Step
	Location string
	Errors   FieldErrors
	Message  string
	Order    *order.Order
}

func render(step Step, o *order.Order) *Outcome {
	return &Outcome{Kind: OutcomeRender, Status: http.StatusOK, Step: step, Order: o}
}

func renderErrors(step Step, o *order.Order, errs FieldErrors) *Outcome {
	return &Outcome{
		Kind:    OutcomeRender,
		Status:  http.StatusUnprocessableEntity,
		Step:    step,
		Errors:  errs,
		Message: FailureMessage,
		Order:   o,
	}
}

func redirect(location string) *Outcome {
	return &Outcome{Kind: OutcomeRedirect, Status: http.StatusFound, Location: location}
}

func external(location string) *Outcome {
	return &Outcome{Kind: OutcomeExternal, Status: http.StatusFound, Location: location}
}

// Paths builds the locations redirects point at.
type Paths struct {
	// Cart is where buyers go when the cart can no longer be checked out.
	Cart string
	// Orders prefixes the per-order checkout and confirmation paths.
	Orders string
}

// DefaultPaths matches the routes served by the HTTP handler.
var DefaultPaths = Paths{Cart: "/cart", Orders: "/api/orders"}

// Step returns the path of step for the order.
func (p Paths) Step(orderID string, step Step) string {
	return path.Join(p.Orders, url.PathEscape(orderID), "checkout", string(step))
}

// Confirmation returns the order confirmation path bound to the order id and
// its access token.
func (p Paths) Confirmation(o *order.Order) string {
	q := url.Values{"order_token": {o.Token}}
	return path.Join(p.Orders, url.PathEscape(o.ID)) + "?" + q.Encode()
}
