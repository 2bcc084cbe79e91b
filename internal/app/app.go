// Package app собирает сервис маркетплейса: хранилище, доменные сервисы, фоновые воркеры
// и три сервера (HTTP API, gRPC health, метрики).
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/fulfillment"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	httptransport "github.com/vladislavdragonenkov/marketplace/internal/transport/http"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

// grpcServiceName: имя сервиса в gRPC health протоколе.
const grpcServiceName = "marketplace.v1.Marketplace"

// ConfigureLogger выставляет формат и уровень logrus из конфигурации.
func ConfigureLogger(cfg Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// Run запускает приложение и блокируется до отмены ctx или падения сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := initTracing(cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.WithError(err).Warn("tracer provider shutdown failed")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	mx := metrics.NewMarketplaceMetrics()
	carts := cart.NewManager(deps.catalog, deps.carts,
		cart.WithLogger(log.WithField("component", "cart")),
		cart.WithMetrics(mx),
	)
	services := httptransport.Services{
		Carts: carts,
		Checkout: checkout.NewService(deps.tx, carts,
			checkout.WithLogger(log.WithField("component", "checkout")),
			checkout.WithMetrics(mx),
			checkout.WithCurrency(cfg.Currency),
		),
		Fulfillment: fulfillment.NewService(deps.tx,
			fulfillment.WithLogger(log.WithField("component", "fulfillment")),
			fulfillment.WithMetrics(mx),
		),
		Catalog:     catalog.NewService(deps.catalog, log.WithField("component", "catalog")),
		Orders:      orders.NewService(deps.orders, deps.timelineRepo),
		Idempotency: idempotency.NewGuard(deps.checkoutAttempts, cfg.IdempotencyTTL,
			idempotency.WithLogger(log.WithField("component", "idempotency")),
			idempotency.WithMetrics(mx),
		),
	}

	publishers := initOutboxPublishers(ctx, cfg, logger)
	defer publishers.close()

	// Воркеры останавливаются раньше, чем закрываются соединения с брокером.
	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()
	if publishers.main != nil {
		worker := outbox.NewWorker(deps.outboxRepo, publishers.main,
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(publishers.dlq),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		workers.Add(1)
		go func() {
			defer workers.Done()
			worker.Run(workersCtx)
		}()
	}

	sweeper := idempotency.NewSweeper(deps.checkoutAttempts, idempotency.SweeperConfig{
		Interval:   cfg.IdempotencyCleanupInterval,
		Batch:      cfg.IdempotencyCleanupBatchSize,
		StaleAfter: cfg.IdempotencyStaleAfter,
	}, log.WithField("component", "checkout-attempt-sweeper"), mx)
	workers.Add(1)
	go func() {
		defer workers.Done()
		sweeper.Run(workersCtx)
	}()

	healthHandler := health.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", health.NewSimpleChecker("storage", deps.ping))
	healthHandler.RegisterChecker("outbox", health.NewOutboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending, cfg.OutboxMaxPendingAge))

	grpcServer, grpcHealth := newGRPCServer(logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}
	metricsLis, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		_ = grpcLis.Close()
		_ = httpLis.Close()
		return err
	}

	apiServer := httptransport.NewServer(cfg.HTTPAddr, httptransport.NewRouter(services, httptransport.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         log.WithField("component", "http"),
	}))
	metricsServer := newMetricsServer(healthHandler)

	errCh := make(chan error, 3)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		errCh <- apiServer.Serve(httpLis)
	}()
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", metricsLis.Addr())
		errCh <- metricsServer.Serve(metricsLis)
	}()
	logger.WithField("version", version.String()).Info("marketplace started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcHealth.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiServer, cfg.ShutdownTimeout, logger)
	stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsServer, cfg.ShutdownTimeout, logger)
	return runErr
}

// newGRPCServer поднимает gRPC с health и reflection. Бизнес-API доступен только по HTTP.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_SERVING)
	return server, healthServer
}

// newMetricsServer отдаёт /metrics и liveness- и readiness-эндпоинты.
func newMetricsServer(healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	return &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}
