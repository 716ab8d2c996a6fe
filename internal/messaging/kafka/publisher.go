// Package kafka publishes checkout events to Kafka.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// EventOrderCompleted is the type of the event emitted when checkout
// completes an order.
const EventOrderCompleted = "order.completed"

// batchTimeout bounds how long a completed checkout waits for its event to
// be flushed.
const batchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes order events keyed by order id.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewPublisher returns a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
	})
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w, now: time.Now}
}

// OrderCompleted publishes an order.completed event for o. The current trace
// context travels in the message headers.
func (p *Publisher) OrderCompleted(ctx context.Context, o *order.Order) error {
	msg := kafka.Message{
		Key:   []byte(o.ID),
		Value: encodeOrderCompleted(o, p.now()),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventOrderCompleted)},
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(&msg.Headers))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event for order %s", EventOrderCompleted, o.ID)
	}
	return nil
}

// Ping dials the first reachable broker.
func Ping(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		return errors.New("no brokers configured")
	}
	return errors.Wrap(lastErr, "dial kafka")
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encodeOrderCompleted(o *order.Order, at time.Time) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(EventOrderCompleted) })
		e.Field("occurred_at", func(e *jx.Encoder) { e.Str(at.UTC().Format(time.RFC3339Nano)) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("distributor_id", func(e *jx.Encoder) { e.Str(o.DistributorID) })
		e.Field("order_cycle_id", func(e *jx.Encoder) { e.Str(o.OrderCycleID) })
		e.Field("customer_id", func(e *jx.Encoder) {
			if o.CustomerID == "" {
				e.Null()
				return
			}
			e.Str(o.CustomerID)
		})
		e.Field("email", func(e *jx.Encoder) { e.Str(o.Email) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("shipping_method_id", func(e *jx.Encoder) { e.Str(o.ShippingMethodID()) })
		e.Field("line_items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, li := range o.LineItems {
					e.Obj(func(e *jx.Encoder) {
						e.Field("variant_id", func(e *jx.Encoder) { e.Str(li.VariantID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(li.Quantity) })
						e.Field("price", func(e *jx.Encoder) { e.Str(li.Price.StringFixed(2)) })
					})
				}
			})
		})
	})
	return e.Bytes()
}

// headerCarrier adapts kafka headers to propagation.TextMapCarrier.
type headerCarrier []kafka.Header

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}

// NoopPublisher discards events.
type NoopPublisher struct{}

func (NoopPublisher) OrderCompleted(context.Context, *order.Order) error { return nil }
