package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/brevo"
	"github.com/xenking/storefront/internal/messaging"
	"github.com/xenking/storefront/internal/repository"
	"github.com/xenking/storefront/internal/worker"
	"github.com/xenking/storefront/pkg/health"
)

// RunWorker consumes notification tasks until ctx is done. It serves health
// endpoints on cfg.Addr next to the consumer loop.
func RunWorker(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are required: set SHOP_KAFKA_BROKERS")
	}
	if cfg.Brevo.APIKey == "" {
		return errors.New("brevo API key is required: set SHOP_BREVO_API_KEY")
	}
	lg.Info("Initializing worker",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
	)

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("kafka", 5*time.Second, health.DialCheck(cfg.Kafka.Brokers...))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	mailer := brevo.NewClient(brevo.Config{
		BaseURL: cfg.Brevo.BaseURL,
		APIKey:  cfg.Brevo.APIKey,
		Timeout: cfg.Brevo.Timeout,
	}, m.TracerProvider())

	dispatcher := worker.NewDispatcher(worker.Deps{
		Orders:   repository.NewOrderRepository(pool),
		Users:    repository.NewUserRepository(pool),
		Payments: repository.NewPaymentRepository(pool),
		Mailer:   mailer,
	}, worker.Config{
		Templates: worker.Templates{
			OrderPlaced:   cfg.Brevo.Templates.OrderPlaced,
			PaymentStatus: cfg.Brevo.Templates.PaymentStatus,
			OrderStatus:   cfg.Brevo.Templates.OrderStatus,
		},
		FrontendURL: cfg.URLs.Frontend,
		MaxAttempts: cfg.Worker.MaxAttempts,
	})

	consumer := messaging.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, m.TracerProvider())

	mux := http.NewServeMux()
	healthSvc.Register(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		Addr:              cfg.Addr,
		Handler:           mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := consumer.Consume(zctx.Base(gctx, lg), dispatcher.Handle)
		if gctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "consume")
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Health server shutdown error", zap.Error(err))
		}
		if err := consumer.Close(); err != nil {
			lg.Error("Close consumer", zap.Error(err))
		}
		return nil
	})

	lg.Info("Worker started", zap.String("health_addr", cfg.Addr))
	return g.Wait()
}
