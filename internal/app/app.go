package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/customer"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/shipping"
	"github.com/xenking/kart-checkout/internal/domain/stock"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/messaging/kafka"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	submitlock "github.com/xenking/kart-checkout/internal/storage/redis"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New(lg.Named("health"))
	healthSvc.Readiness("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	}, health.WithTimeout(5*time.Second))
	healthSvc.Liveness("goroutines", health.GoroutineCountCheck(10000))

	// Optional infrastructure.
	var lock handler.SubmitLock = submitlock.NoopLock{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer func() { _ = rdb.Close() }()
		lock = submitlock.NewSubmitLock(rdb, cfg.Redis.LockTTL)
		healthSvc.Readiness("redis", func(ctx context.Context) error {
			return submitlock.Ping(ctx, rdb)
		})
		lg.Info("Submit lock enabled", zap.String("redis", cfg.Redis.Addr))
	}

	var events checkout.EventPublisher = kafka.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close kafka publisher", zap.Error(err))
			}
		}()
		events = pub
		brokers := cfg.Kafka.Brokers
		healthSvc.Readiness("kafka", func(ctx context.Context) error {
			return kafka.Ping(ctx, brokers)
		}, health.WithTimeout(5*time.Second))
		lg.Info("Order events enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var gateway payment.Gateway = disabledGateway{}
	if cfg.Gateway.RedirectBaseURL != "" {
		gw, err := payment.NewRedirectGateway(cfg.Gateway.RedirectBaseURL, cfg.Gateway.ReturnURL)
		if err != nil {
			return errors.Wrap(err, "create payment gateway")
		}
		gateway = gw
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	variantRepo := postgres.NewVariantRepository(pool)
	shippingRepo := postgres.NewShippingMethodRepository(pool)
	paymentMethodRepo := postgres.NewPaymentMethodRepository(pool)
	paymentSourceRepo := postgres.NewPaymentSourceRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	voucherRepo := postgres.NewVoucherRepository(pool)

	// Domain services.
	engine, err := checkout.NewEngine(checkout.Deps{
		Orders:    orderRepo,
		Tx:        postgres.NewTxManager(pool),
		Stock:     stock.NewChecker(variantRepo),
		Shipping:  shipping.NewSelector(shippingRepo),
		Payments:  payment.NewApplicator(paymentMethodRepo, paymentSourceRepo, gateway, payment.DeferredProcessor{}),
		Vouchers:  voucher.NewRecalculator(voucherRepo),
		Addresses: customer.NewAddressBook(customerRepo),
		Events:    events,
	}, checkout.Options{
		Policy: checkout.Policy{TermsRequired: cfg.Checkout.TermsRequired},
		Paths: checkout.Paths{
			Cart:   cfg.Checkout.CartPath,
			Orders: cfg.Checkout.OrdersPath,
		},
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create checkout engine")
	}

	// HTTP handlers.
	h := handler.NewHandler(engine, orderRepo, lock)

	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Route(cfg.Checkout.OrdersPath, h.Mount)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			func(next http.Handler) http.Handler {
				return otelhttp.NewHandler(next, "checkout-api",
					otelhttp.WithTracerProvider(m.TracerProvider()),
					otelhttp.WithMeterProvider(m.MeterProvider()),
				)
			},
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// disabledGateway rejects external gateway payments when no hosted payment
// page is configured.
type disabledGateway struct{}

func (disabledGateway) RedirectURL(context.Context, *order.Order, *order.Payment) (string, error) {
	return "", errors.New("external payment gateway is not configured")
}
