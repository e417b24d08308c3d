package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/agrosupply/backend/internal/application/billing"
	inventoryapp "github.com/agrosupply/backend/internal/application/inventory"
	"github.com/agrosupply/backend/internal/domain/billing"
	"github.com/agrosupply/backend/internal/infrastructure/cache"
	"github.com/agrosupply/backend/internal/infrastructure/config"
	"github.com/agrosupply/backend/internal/infrastructure/logger"
	"github.com/agrosupply/backend/internal/infrastructure/migration"
	"github.com/agrosupply/backend/internal/infrastructure/persistence"
	"github.com/agrosupply/backend/internal/infrastructure/telemetry"
	"github.com/agrosupply/backend/internal/interfaces/http/handler"
	"github.com/agrosupply/backend/internal/interfaces/http/middleware"
	"github.com/agrosupply/backend/internal/interfaces/http/router"
	"github.com/agrosupply/backend/migrations"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//	@title			Agro Supply Ledger API
//	@version		1.0
//	@description	Billing ledger and batch stock allocation for an agricultural supply shop
//	@BasePath		/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	defer shutdown(log, "logger provider", loggerProvider.Shutdown)
	log = loggerProvider.Bridge(log, logger.ParseLevel(cfg.Telemetry.LogsLevel))

	log.Info("Starting ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown(log, "tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer shutdown(log, "meter provider", meterProvider.Shutdown)
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileCPU:        true,
		ProfileAlloc:      true,
		ProfileInuse:      true,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() { _ = profiler.Stop() }()
	if profiler.IsEnabled() && cfg.Profiling.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	if cfg.Database.AutoMigrate {
		if err := migration.UpFromFS(cfg.Database.DSN(), migrations.FS, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meter, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.MetricsEnabled && cfg.Telemetry.DBMetricsEnabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	ledgerMetrics, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:           meter,
		Logger:          log,
		StockProvider:   telemetry.NewGormStockLevelProvider(db.DB),
		CollectInterval: cfg.Ledger.StockMetricsInterval,
	})
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}
	if meterProvider.IsEnabled() {
		ledgerMetrics.StartStockCollection(ctx)
	}
	defer ledgerMetrics.Stop()

	stores, err := cache.NewFactory(cfg.Redis, cache.WithLogger(log)).Create(ctx)
	if err != nil {
		log.Fatal("Failed to create cache", zap.Error(err))
	}
	defer func() { _ = stores.Close() }()

	productRepo := persistence.NewGormProductRepository(db.DB)
	batchRepo := persistence.NewGormBatchRepository(db.DB)
	billRepo := persistence.NewGormBillRepository(db.DB)
	installmentRepo := persistence.NewGormInstallmentRepository(db.DB)
	sequence := billing.NewYearlySequence(persistence.NewGormSequenceRepository(db.DB))
	billingScope := persistence.NewGormBillingTransactionScope(db.DB)

	batchService := inventoryapp.NewBatchService(batchRepo, productRepo,
		persistence.NewGormInventoryTransactionScope(db.DB),
		inventoryapp.WithCache(stores.Cache),
		inventoryapp.WithStockMetrics(ledgerMetrics),
		inventoryapp.WithLogger(log),
	)
	billingOpts := []billingapp.ServiceOption{
		billingapp.WithCache(stores.Cache),
		billingapp.WithMetrics(ledgerMetrics),
		billingapp.WithLogger(log),
		billingapp.WithHistoryTTL(cfg.Ledger.HistoryCacheTTL),
	}
	billService := billingapp.NewBillService(billRepo, installmentRepo, productRepo, batchService, sequence, billingScope, billingOpts...)
	installmentService := billingapp.NewInstallmentService(billRepo, installmentRepo, billingScope, billingOpts...)
	bulkService := billingapp.NewBulkPaymentService(billRepo, installmentRepo, sequence, billingScope, billingOpts...)

	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	cors.AllowMethods = cfg.HTTP.CORSAllowMethods
	cors.AllowHeaders = cfg.HTTP.CORSAllowHeaders

	engine, err := router.New(router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		CORS:           cors,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		HSTS:           cfg.App.IsProduction(),
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tracing:        tracerProvider.IsEnabled(),
		Profiling:      profiler.IsEnabled(),
		IdempotencyTTL: cfg.Ledger.IdempotencyTTL,
	}, router.Dependencies{
		Logger:      log,
		Meter:       meter,
		Idempotency: stores.Idempotency,
	}, router.Handlers{
		Bills:        handler.NewBillHandler(billService),
		Installments: handler.NewInstallmentHandler(installmentService, bulkService),
		Batches:      handler.NewBatchHandler(batchService),
		Health:       handler.NewHealthHandler(db, stores.Backend),
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("cache", stores.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

func shutdown(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
