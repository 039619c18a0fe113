package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/aruvi/kot-gateway/api"
	"github.com/aruvi/kot-gateway/api/controllers"
	"github.com/aruvi/kot-gateway/api/routes"
	"github.com/aruvi/kot-gateway/internal/catalog"
	"github.com/aruvi/kot-gateway/internal/events"
	"github.com/aruvi/kot-gateway/internal/journal"
	"github.com/aruvi/kot-gateway/internal/kitchen"
	"github.com/aruvi/kot-gateway/internal/orders"
	"github.com/aruvi/kot-gateway/internal/printer"
	"github.com/aruvi/kot-gateway/internal/settings"
	"github.com/aruvi/kot-gateway/internal/tables"
	"github.com/aruvi/kot-gateway/internal/tickets"
	"github.com/aruvi/kot-gateway/internal/waiters"
	"github.com/aruvi/kot-gateway/pkg/apiclient"
	"github.com/aruvi/kot-gateway/pkg/config"
	"github.com/aruvi/kot-gateway/pkg/db"
	"github.com/aruvi/kot-gateway/pkg/logger"
	"github.com/aruvi/kot-gateway/pkg/metrics"
	"github.com/aruvi/kot-gateway/pkg/migrate"
	"github.com/aruvi/kot-gateway/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "kot-gateway"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "kot-gateway",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]string{"env": cfg.App.Env, "venue_id": cfg.Venue.ID},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	closeAll := func() {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i]())
		}
		if errs != nil {
			logg.Error(context.Background(), "error releasing resources", errs)
		}
	}
	fatal := func(msg string, err error) {
		logg.Error(ctx, msg, err)
		closeAll()
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fatal("failed to bootstrap database", err)
	}
	closers = append(closers, dbClient.Close)

	if err := migrate.MaybeAutoRun(ctx, cfg, logg, dbClient); err != nil {
		fatal("failed to run migrations", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			fatal("failed to bootstrap redis", err)
		}
		closers = append(closers, redisClient.Close)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	remoteMetrics := metrics.NewRemoteMetrics(registry)
	printerMetrics := metrics.NewPrinterMetrics(registry)

	var backend *apiclient.Client
	if cfg.OrderStore.BaseURL != "" {
		backend, err = apiclient.NewClient(cfg.OrderStore.BaseURL,
			apiclient.WithTimeout(cfg.OrderStore.Timeout),
			apiclient.WithObserver(remoteMetrics),
		)
		if err != nil {
			fatal("failed to build order store client", err)
		}
	}

	store, err := orderStore(cfg, backend)
	if err != nil {
		fatal("failed to build order store", err)
	}
	sessions, err := orders.NewRegistry(store, logg)
	if err != nil {
		fatal("failed to build order registry", err)
	}

	loc := cfg.Venue.Location()
	compiler := tickets.NewCompiler(tickets.Header{Name: cfg.Venue.Name, Lines: cfg.Venue.Header()}, cfg.Printer.PaperWidth)

	settingsStore, err := settingsStore(cfg, dbClient, redisClient)
	if err != nil {
		fatal("failed to build settings store", err)
	}
	settingsSvc, err := settings.NewService(settingsStore, printer.Endpoint{Host: cfg.Printer.DefaultHost, Port: cfg.Printer.DefaultPort}, logg)
	if err != nil {
		fatal("failed to build settings service", err)
	}

	printerMgr, err := printer.NewManager(settingsSvc, printer.Options{
		DialTimeout:  cfg.Printer.DialTimeout,
		WriteTimeout: cfg.Printer.WriteTimeout,
		Encoder:      printer.NewEncoder(cfg.Printer.Cut),
		Observer:     printerMetrics,
		Logger:       logg,
		Diagnostic:   func() string { return compiler.CompileTest(time.Now().In(loc)) },
	})
	if err != nil {
		fatal("failed to build printer manager", err)
	}
	closers = append(closers, printerMgr.Close)
	settingsSvc.OnChange(printerMgr.Invalidate)
	printerMgr.Initialize(ctx)

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.Enabled() {
		amqpPublisher, err := events.NewAMQPPublisher(ctx, cfg.Events.AMQPURL, cfg.Events.Exchange, logg)
		if err != nil {
			logg.Error(ctx, "kitchen events disabled: failed to connect to broker", err)
		} else {
			publisher = amqpPublisher
			closers = append(closers, amqpPublisher.Close)
		}
	}

	dispatcher, err := kitchen.NewDispatcher(kitchen.Config{
		Sessions:  sessions,
		Compiler:  compiler,
		Printer:   printerMgr,
		Journal:   journal.NewRepository(dbClient.DB()),
		Publisher: publisher,
		Logger:    logg,
		VenueID:   cfg.Venue.ID,
		Location:  loc,
	})
	if err != nil {
		fatal("failed to build kitchen dispatcher", err)
	}

	boardOpts := tables.Options{
		Orders:       store,
		Sessions:     sessions,
		VenueID:      cfg.Venue.ID,
		DefaultCount: cfg.Venue.TableCount,
		Logger:       logg,
	}
	if backend != nil {
		boardOpts.Client = backend
	}
	board, err := tables.NewBoard(boardOpts)
	if err != nil {
		fatal("failed to build table board", err)
	}

	params := routes.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Tables:   board,
		Sessions: sessions,
		Kitchen:  dispatcher,
		Printer:  printerMgr,
		Settings: settingsSvc,
	}
	if backend != nil {
		waiterSvc, err := waiters.NewService(backend, logg)
		if err != nil {
			fatal("failed to build waiter directory", err)
		}
		params.Waiters = waiterSvc

		catalogSvc, err := newCatalog(cfg, backend, redisClient, logg)
		if err != nil {
			fatal("failed to build catalog", err)
		}
		params.Catalog = catalogSvc
	} else {
		logg.Warn(ctx, "no order store url: waiter login and catalog disabled")
	}

	server := api.NewServer(":"+cfg.App.Port, routes.NewRouter(params))

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        server.Addr,
		"order_store": cfg.OrderStore.Mode,
		"settings":    cfg.Settings.Backend,
		"redis":       redisClient != nil,
	})
	logg.Info(logCtx, "starting kot gateway")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			fatal("api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down kot gateway")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(logCtx, "api server shutdown failed", err)
	}
	closeAll()
}

func orderStore(cfg *config.Config, backend *apiclient.Client) (orders.Store, error) {
	if cfg.OrderStore.Mode == config.OrderStoreModeMemory {
		return orders.NewMemoryStore(), nil
	}
	if backend == nil {
		return nil, errors.New("order store url is required in http mode")
	}
	return orders.NewHTTPStore(backend)
}

func settingsStore(cfg *config.Config, dbClient *db.Client, redisClient *redis.Client) (settings.Store, error) {
	if cfg.Settings.Backend == config.SettingsBackendRedis && redisClient != nil {
		return settings.NewRedisStore(redisClient)
	}
	return settings.NewDBStore(dbClient)
}

func newCatalog(cfg *config.Config, backend *apiclient.Client, redisClient *redis.Client, logg *logger.Logger) (controllers.CatalogService, error) {
	if redisClient == nil {
		return catalog.NewService(backend, nil, cfg.Catalog.CacheTTL, logg)
	}
	return catalog.NewService(backend, redisClient, cfg.Catalog.CacheTTL, logg)
}
