package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/webhook"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/mercadopago"
	"github.com/xenking/storefront/internal/messaging"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Services are the infrastructure dependencies of the API handlers.
type Services struct {
	Pool           *pgxpool.Pool
	Gateway        payment.Gateway
	Tasks          notify.Publisher
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewHandler wires repositories and domain services into the API handler.
func NewHandler(cfg *Config, s Services) (*handler.Handler, error) {
	pool := s.Pool
	userRepo := repository.NewUserRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	cartRepo := repository.NewCartRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

	shipping, err := cfg.Checkout.ShippingPolicy()
	if err != nil {
		return nil, errors.Wrap(err, "shipping policy")
	}
	checkoutSvc, err := checkout.NewService(checkout.Deps{
		Carts:    cartRepo,
		Products: productRepo,
		Coupons:  couponRepo,
		Orders:   orderRepo,
		Payments: paymentRepo,
		Users:    userRepo,
		Gateway:  s.Gateway,
		Tasks:    s.Tasks,
	}, checkout.Config{
		Currency:    cfg.Checkout.Currency,
		APIURL:      cfg.URLs.API,
		FrontendURL: cfg.URLs.Frontend,
		WebhookPath: cfg.MercadoPago.WebhookPath,
		Sandbox:     cfg.MercadoPago.Sandbox,
		Shipping:    shipping,
	}, s.TracerProvider, s.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout service")
	}

	reconciler, err := webhook.NewReconciler(webhook.Deps{
		Events:   repository.NewWebhookEventRepository(pool),
		Gateway:  s.Gateway,
		Payments: paymentRepo,
		Orders:   orderRepo,
		Tasks:    s.Tasks,
	}, cfg.MercadoPago.WebhookSecret, s.TracerProvider, s.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create webhook reconciler")
	}

	return handler.NewHandler(handler.Deps{
		Carts:    cart.NewService(cartRepo, productRepo),
		Checkout: checkoutSvc,
		Orders:   order.NewService(orderRepo, paymentRepo, s.Tasks),
		Coupons:  coupon.NewService(couponRepo),
		Webhooks: reconciler,
		APIKeys:  repository.NewAPIKeyRepository(pool),
	}, handler.Config{
		WebhookPath:  cfg.MercadoPago.WebhookPath,
		APIKeyPepper: []byte(cfg.APIKeyPepper),
	}), nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the API server.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if !cfg.SkipMigrations {
		if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
			return errors.Wrap(err, "run migrations")
		}
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	if len(cfg.Kafka.Brokers) > 0 {
		healthSvc.AddReadinessCheck("kafka", 5*time.Second, health.DialCheck(cfg.Kafka.Brokers...))
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Add(health.Probe{
		Name:             "gc",
		Kind:             health.Liveness,
		Check:            health.GCMaxPauseCheck(time.Second),
		FailureThreshold: 5,
	})
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Outbound integrations.
	gateway := mercadopago.NewClient(mercadopago.Config{
		BaseURL:     cfg.MercadoPago.BaseURL,
		AccessToken: cfg.MercadoPago.AccessToken,
		Timeout:     cfg.MercadoPago.Timeout,
	}, m.TracerProvider())

	var tasks notify.Publisher = notify.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, m.TracerProvider())
		defer func() {
			if err := producer.Close(); err != nil {
				lg.Error("Close producer", zap.Error(err))
			}
		}()
		tasks = producer
	} else {
		lg.Warn("No Kafka brokers configured, notifications will only be logged")
	}
	if cfg.MercadoPago.WebhookSecret == "" {
		lg.Warn("Webhook secret is empty, signature verification is disabled")
	}

	h, err := NewHandler(cfg, Services{
		Pool:           pool,
		Gateway:        gateway,
		Tasks:          tasks,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	healthSvc.Register(mux)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Checkout waits on the payment gateway.
		WriteTimeout:   cfg.MercadoPago.Timeout + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.APIKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.APIKeyOrIP,
				Exempt:  httpmiddleware.ExemptPaths(cfg.MercadoPago.WebhookPath, health.LivePath, health.ReadyPath),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
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
