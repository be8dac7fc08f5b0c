package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appfinance "github.com/erp/settlement/internal/application/finance"
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/currency"
	"github.com/erp/settlement/internal/infrastructure/event"
	"github.com/erp/settlement/internal/infrastructure/export"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/scheduler"
	"github.com/erp/settlement/internal/infrastructure/storage"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/erp/settlement/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

//	@title			Settlement API
//	@version		1.0
//	@description	Payment allocation, overdue balances and loan installment projection
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		Service:     cfg.App.Name,
		Environment: cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Settlement service stopped with error", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// run wires the service and blocks until ctx is cancelled
func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	serviceName := cfg.Telemetry.ServiceName
	if serviceName == "" {
		serviceName = cfg.App.Name
	}
	log.Info("Starting settlement service",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.HTTP.Port),
	)

	// Telemetry
	tracer, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	meters, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	logs, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       serviceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	// From here on log records also leave through the OTLP log exporter
	log = logs.Bridge(log, zapcore.InfoLevel)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeEndpoint,
		ApplicationName: serviceName,
	}, log)
	if err != nil {
		return err
	}
	if profiler.IsEnabled() {
		tracer.EnableSpanProfiles()
	}

	// Database
	db, err := persistence.NewDatabase(cfg.Database, log)
	if err != nil {
		return err
	}
	log.Info("Database connected successfully")
	meter := meters.Meter("settlement")
	if _, err := telemetry.RegisterDBPoolMetrics(meter, db.SQL()); err != nil {
		log.Warn("DB pool metrics unavailable", zap.Error(err))
	}

	var scopeOpts []persistence.TransactionScopeOption
	if cfg.Allocation.Isolation == config.IsolationSerializable {
		scopeOpts = append(scopeOpts, persistence.WithSerializableIsolation())
	}
	txScope := persistence.NewSettlementTransactionScope(db.DB, scopeOpts...)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	obligationRepo := persistence.NewGormObligationRepository(db.DB)
	allocationRepo := persistence.NewGormAllocationRepository(db.DB)
	loanRepo := persistence.NewGormLoanRepository(db.DB)
	rateRepo := persistence.NewGormExchangeRateRepository(db.DB)

	// Balance cache: Redis when configured, in-process otherwise
	balanceCache, err := cache.NewFactory(cfg.Redis, cache.WithLogger(log)).Create(ctx)
	if err != nil {
		return err
	}

	converters, err := newRateProvider(cfg.Currency, rateRepo, log)
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{Meter: meter, Logger: log})
	if err != nil {
		return err
	}

	// Application services
	balanceOpts := []appfinance.BalanceServiceOption{
		appfinance.WithBalanceCache(balanceCache, cfg.Cache.OverdueTTL),
		appfinance.WithReportRenderer(export.NewOverdueWorkbook()),
		appfinance.WithBalanceLogger(log),
	}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3ReportArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			return err
		}
		balanceOpts = append(balanceOpts, appfinance.WithReportArchive(archive))
	}
	balanceService := appfinance.NewBalanceService(obligationRepo, converters, balanceOpts...)

	eventBus := event.NewInMemoryEventBus(log)
	invalidator := appfinance.NewBalanceCacheInvalidator(balanceService, log)
	eventBus.Subscribe(invalidator, invalidator.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		return err
	}

	allocationService := appfinance.NewAllocationService(txScope, paymentRepo, obligationRepo, allocationRepo,
		appfinance.WithEventPublisher(eventBus),
		appfinance.WithAllocationStrategy(finance.NewFIFOAllocationStrategy()),
		appfinance.WithConflictRetries(cfg.Allocation.ConflictRetries),
		appfinance.WithAllocationMetrics(metrics),
		appfinance.WithAllocationLogger(log),
	)
	loanService := appfinance.NewLoanService(loanRepo, log)

	healthOpts := []handler.HealthOption{handler.WithServiceName(serviceName)}
	var alertScheduler *scheduler.OverdueAlertScheduler
	if cfg.Scheduler.Enabled {
		alerts := appfinance.NewOverdueAlertService(obligationRepo, balanceService, metrics, log)
		schedCfg := scheduler.DefaultOverdueAlertConfig()
		if cfg.Scheduler.OverdueAlertCron != "" {
			schedCfg.Schedule = cfg.Scheduler.OverdueAlertCron
		}
		if cfg.Scheduler.Timezone != "" {
			schedCfg.Timezone = cfg.Scheduler.Timezone
		}
		alertScheduler, err = scheduler.NewOverdueAlertScheduler(schedCfg, alerts, log)
		if err != nil {
			return err
		}
		if err := alertScheduler.Start(ctx); err != nil {
			return err
		}
		healthOpts = append(healthOpts, handler.WithComponentStatus("overdue_alerts", func() any {
			return alertScheduler.GetStatus()
		}))
	}

	var verifier *auth.TokenVerifier
	if cfg.JWT.Enabled {
		verifier = auth.NewTokenVerifier(cfg.JWT)
	}

	engine := router.NewEngine(router.EngineConfig{
		ServiceName:     serviceName,
		DefaultTenantID: cfg.App.DefaultTenantID,
		Verifier:        verifier,
		JWTRequired:     cfg.JWT.Enabled && cfg.App.DefaultTenantID == "",
		Tracing:         cfg.Telemetry.Enabled,
		Profiling:       profiler.IsEnabled(),
		Meter:           meters,
		Logger:          log,
	}, router.Handlers{
		Allocation: handler.NewAllocationHandler(allocationService),
		Balance:    handler.NewBalanceHandler(balanceService),
		Loan:       handler.NewLoanHandler(loanService),
		Health:     handler.NewHealthHandler(db.SQL(), healthOpts...),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.HTTP.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case runErr = <-serveErr:
		log.Error("HTTP server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop accepting work before tearing down what the handlers depend on
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if alertScheduler != nil {
		if err := alertScheduler.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping overdue alert scheduler", zap.Error(err))
		}
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping event bus", zap.Error(err))
	}
	if err := balanceCache.Close(); err != nil {
		log.Error("Error closing balance cache", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meters.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	// Last, so shutdown errors above still reach the collector
	if err := logs.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down log provider", zap.Error(err))
	}
	return runErr
}

// newRateProvider builds the converter source, attaching the static fallback
// table when enabled
func newRateProvider(cfg config.CurrencyConfig, rates finance.ExchangeRateRepository, log *zap.Logger) (*currency.RateProvider, error) {
	base, err := valueobject.ParseCurrency(cfg.Base)
	if err != nil {
		return nil, err
	}
	opts := []currency.ProviderOption{currency.WithLogger(log)}
	if cfg.FallbackEnabled && cfg.FallbackFile != "" {
		table, err := currency.LoadFallbackTable(cfg.FallbackFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, currency.WithFallbackTable(table))
	}
	return currency.NewRateProvider(rates, base, opts...)
}
