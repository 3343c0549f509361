package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-be/internal/checkout"
	"checkout-be/internal/config"
	"checkout-be/internal/db"
	"checkout-be/internal/logger"
	"checkout-be/internal/metrics"
	"checkout-be/internal/middleware"
	"checkout-be/internal/order"
	"checkout-be/internal/payment"
	httptransport "checkout-be/internal/transport/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	limiterCleanEvery = time.Minute
)

// strictRatePaths get the strict per-caller tier. Webhook deliveries stay on
// the general tier.
var strictRatePaths = []string{"/payment/checkout"}

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(srv *http.Server) error {
		return srv.ListenAndServe()
	}
)

type server struct {
	handler http.Handler
	sweeper *checkout.Sweeper
	limiter *middleware.RateLimiter
	closers []io.Closer
}

func (s *server) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			logger.L().Warn("close failed", zap.Error(err))
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	srv, err := newServer(cfg, database)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.L().Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := startServerFunc(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return srv.sweeper.Run(gctx)
	})

	g.Go(func() error {
		srv.limiter.Cleanup(gctx, limiterCleanEvery)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.L().Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newServer wires the checkout stack on top of database.
func newServer(cfg *config.Config, database *sql.DB) (*server, error) {
	srv := &server{}

	var store checkout.Store
	switch cfg.CheckoutStore {
	case config.StoreDriverBolt:
		bs, err := checkout.NewBoltStore(cfg.CheckoutBoltPath)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, bs)
		store = bs
	default:
		store = checkout.NewPostgresStore(database)
	}

	reg := metrics.NewRegistry()

	orderSvc := order.NewService(order.NewRepository(database))

	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:         cfg.StripeSecretKey,
		Currency:          cfg.PaymentCurrency,
		SuccessURL:        cfg.PaymentSuccessURL,
		CancelURL:         cfg.PaymentCancelURL,
		ProductImage:      cfg.PaymentProductImage,
		MaxNetworkRetries: 2,
	})
	verifier := payment.NewStripeVerifier(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance)

	checkouts := payment.NewCheckoutService(store, gateway, cfg.PaymentCurrency, reg)
	reconciler := payment.NewReconciler(verifier, store, orderSvc, payment.LogSink{}, cfg.CheckoutClaimLease, reg)

	srv.limiter = middleware.NewRateLimiter(cfg.InternalServiceKey, strictRatePaths...)
	srv.sweeper = checkout.NewSweeper(store, cfg.CheckoutTTL, cfg.CheckoutSweepInterval)

	handler := httptransport.NewHandler(checkouts, orderSvc, reconciler, reg)
	srv.handler = httptransport.NewRouter(handler, httptransport.RouterConfig{
		JWTSecret:  cfg.JWTSecret,
		ServiceKey: cfg.InternalServiceKey,
		Limiter:    srv.limiter,
	})

	logger.L().Info("checkout stack ready",
		zap.String("store", cfg.CheckoutStore),
		zap.String("currency", cfg.PaymentCurrency),
		zap.Duration("ttl", cfg.CheckoutTTL),
	)
	return srv, nil
}
