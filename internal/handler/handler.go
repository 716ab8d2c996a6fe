// Package handler exposes the checkout engine over HTTP.
package handler

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	submitlock "github.com/xenking/kart-checkout/internal/storage/redis"
)

// OrderTokenHeader carries the order access token. The order_token query
// parameter is accepted as well.
const OrderTokenHeader = "X-Order-Token"

// Engine runs checkout step requests.
type Engine interface {
	View(ctx context.Context, orderID string, step checkout.Step) (*checkout.Outcome, error)
	Update(ctx context.Context, orderID string, step checkout.Step, attrs checkout.Attributes) (*checkout.Outcome, error)
}

// OrderReader loads orders for the token guard and the confirmation view.
type OrderReader interface {
	Get(ctx context.Context, id string) (*order.Order, error)
}

// SubmitLock grants one in-flight update per order.
type SubmitLock interface {
	Acquire(ctx context.Context, orderID string) (release func(), err error)
}

// Handler serves the checkout API.
type Handler struct {
	engine Engine
	orders OrderReader
	lock   SubmitLock
}

// NewHandler constructs a Handler. A nil lock disables update serialization.
func NewHandler(engine Engine, orders OrderReader, lock SubmitLock) *Handler {
	if lock == nil {
		lock = submitlock.NoopLock{}
	}
	return &Handler{engine: engine, orders: orders, lock: lock}
}

// Mount registers the order routes on r, which is expected to be routed at
// the orders path prefix.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/{orderID}", func(r chi.Router) {
		r.Use(h.requireToken)
		r.Get("/", h.getOrder)
		r.Get("/checkout", h.viewCheckout)
		r.Get("/checkout/{step}", h.viewStep)
		r.Put("/checkout/{step}", h.updateStep)
	})
}

// requestError reports malformed request input.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return "bad request: " + e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

// errUnauthorized is returned for a missing or wrong order token.
var errUnauthorized = errors.New("invalid order token")

type orderKey struct{}

// requireToken loads the order and checks the caller's access token against
// it in constant time.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID := chi.URLParam(r, "orderID")

		o, err := h.orders.Get(ctx, orderID)
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		token := r.Header.Get(OrderTokenHeader)
		if token == "" {
			token = r.URL.Query().Get("order_token")
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(o.Token)) != 1 {
			writeError(ctx, w, errUnauthorized)
			return
		}

		ctx = zctx.With(ctx, zap.String("order_id", orderID))
		ctx = context.WithValue(ctx, orderKey{}, o)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o := r.Context().Value(orderKey{}).(*order.Order)

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) viewCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := h.engine.View(ctx, chi.URLParam(r, "orderID"), "")
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeOutcome(w, out)
}

func (h *Handler) viewStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	step, err := checkout.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	out, err := h.engine.View(ctx, chi.URLParam(r, "orderID"), step)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeOutcome(w, out)
}

func (h *Handler) updateStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "orderID")

	step, err := checkout.ParseStep(chi.URLParam(r, "step"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	attrs, err := decodeAttributes(r.Body)
	if err != nil {
		writeError(ctx, w, &requestError{err: err})
		return
	}

	release, err := h.lock.Acquire(ctx, orderID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	defer release()

	out, err := h.engine.Update(ctx, orderID, step, attrs)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeOutcome(w, out)
}

func writeOutcome(w http.ResponseWriter, out *checkout.Outcome) {
	if out.Location != "" {
		w.Header().Set("Location", out.Location)
	}
	var e jx.Encoder
	encodeOutcome(&e, out)
	writeJSON(w, out.Status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError maps domain errors to HTTP responses. Unmapped errors are
// logged and answered with 500.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	message := "internal server error"

	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		code, message = http.StatusBadRequest, reqErr.Error()
	case errors.Is(err, errUnauthorized):
		code, message = http.StatusUnauthorized, errUnauthorized.Error()
	case errors.Is(err, order.ErrNotFound):
		code, message = http.StatusNotFound, order.ErrNotFound.Error()
	case errors.Is(err, checkout.ErrInvalidStep):
		code, message = http.StatusNotFound, err.Error()
	case errors.Is(err, checkout.ErrStepMismatch):
		code, message = http.StatusBadRequest, checkout.ErrStepMismatch.Error()
	case errors.Is(err, checkout.ErrOrderComplete):
		code, message = http.StatusConflict, checkout.ErrOrderComplete.Error()
	case errors.Is(err, submitlock.ErrLocked):
		code, message = http.StatusConflict, submitlock.ErrLocked.Error()
	default:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
	}

	var e jx.Encoder
	encodeError(&e, code, message)
	writeJSON(w, code, e.Bytes())
}
