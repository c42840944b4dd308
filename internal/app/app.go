// Package app wires the order service together and runs its HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/order-service/db"
	"github.com/xenking/order-service/internal/cache"
	"github.com/xenking/order-service/internal/domain/auth"
	"github.com/xenking/order-service/internal/domain/order"
	"github.com/xenking/order-service/internal/domain/product"
	"github.com/xenking/order-service/internal/handler"
	"github.com/xenking/order-service/internal/notify"
	"github.com/xenking/order-service/internal/repository"
	"github.com/xenking/order-service/internal/repository/memstore"
	"github.com/xenking/order-service/pkg/health"
	"github.com/xenking/order-service/pkg/httpmiddleware"
)

const serviceName = "order-service"

// storage is the set of repositories backing the services.
type storage struct {
	tx       order.Transactor
	stock    product.StockStore
	products product.Repository
	orders   order.Repository
	keys     auth.Repository
	pinger   health.Pinger
	close    func()
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("notification_sink", cfg.Notification.Sink),
	)

	store, err := openStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	cacheStore, closeCache, err := openCache(cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	sink, sinkPinger, closeSink, err := openSink(lg, cfg.Notification)
	if err != nil {
		return err
	}
	defer closeSink()

	telemetry := order.Telemetry{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}

	// Notifications, then the background transitions that feed them. Deferred
	// closes run in reverse, so the processor drains into a live dispatcher.
	dispatcher, err := notify.NewDispatcher(sink, lg.Named("notify"), notify.Config{
		Workers:   cfg.Notification.Workers,
		QueueSize: cfg.Notification.QueueSize,
		Timeout:   cfg.Notification.Timeout,
	}, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}
	dispatcher.Start()
	defer dispatcher.Close()

	orderCaches := order.NewCaches(cacheStore)
	processor, err := order.NewProcessor(store.orders, orderCaches, dispatcher, lg.Named("fulfillment"), order.ProcessorConfig{
		Workers:       cfg.Fulfillment.Workers,
		QueueSize:     cfg.Fulfillment.QueueSize,
		Timeout:       cfg.Fulfillment.Timeout,
		SweepInterval: cfg.Fulfillment.SweepInterval,
	}, telemetry)
	if err != nil {
		return errors.Wrap(err, "create processor")
	}
	processor.Start()
	defer processor.Close()

	// Domain services.
	productCache := product.NewCache(cacheStore)
	products := product.NewService(store.products, productCache)
	ledger := product.NewLedger(store.stock, productCache)
	assembler, err := order.NewAssembler(store.tx, ledger, processor, telemetry)
	if err != nil {
		return errors.Wrap(err, "create assembler")
	}
	queries := order.NewQueryService(store.orders, orderCaches)
	authn := auth.NewAuthenticator(store.keys, []byte(cfg.APIKeyPepper))

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddLiveness(health.Check{
		Name:    "goroutines",
		Timeout: time.Second,
		Func:    health.GoroutineCountCheck(10000),
	})
	healthSvc.AddReadiness(health.Check{
		Name:    cfg.Storage.Driver,
		Timeout: 5 * time.Second,
		Func:    health.PingCheck(store.pinger),
	})
	healthSvc.AddReadiness(health.Check{
		Name:    "cache",
		Timeout: 2 * time.Second,
		Func:    health.PingCheck(cacheStore),
	})
	if sinkPinger != nil {
		healthSvc.AddReadiness(health.Check{
			Name:    "notifications",
			Timeout: 5 * time.Second,
			Func:    health.PingCheck(sinkPinger),
		})
	}
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(assembler, queries, products, authn).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
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

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	if cfg.Storage.Driver == StorageMemory {
		return openMemory(ctx, lg, cfg)
	}

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	s := repository.NewStore(pool)
	return &storage{
		tx:       s,
		stock:    repository.NewProductRepository(pool),
		products: repository.NewProductRepository(pool),
		orders:   repository.NewOrderRepository(pool),
		keys:     repository.NewAPIKeyRepository(pool),
		pinger:   s,
		close:    pool.Close,
	}, nil
}

// openMemory returns a process-local store seeded with the embedded catalog.
func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*storage, error) {
	s := memstore.New()

	seed, err := product.DecodeList(db.SeedProducts)
	if err != nil {
		return nil, errors.Wrap(err, "load seed catalog")
	}
	for i := range seed {
		if err := s.Products().Create(ctx, &seed[i]); err != nil {
			return nil, errors.Wrapf(err, "seed product %s", seed[i].ProductID)
		}
	}
	if cfg.AdminAPIKey != "" {
		s.APIKeys().Add(auth.APIKeyInfo{
			ID:      "admin",
			KeyHash: auth.Hash([]byte(cfg.APIKeyPepper), cfg.AdminAPIKey),
			Name:    "Default admin key",
			Scopes:  []string{auth.ScopeOrdersAdmin},
		})
	}
	lg.Warn("Using in-memory storage, data is lost on restart", zap.Int("products", len(seed)))

	return &storage{
		tx:       s,
		stock:    s,
		products: s.Products(),
		orders:   s.Orders(),
		keys:     s.APIKeys(),
		pinger:   s,
		close:    func() {},
	}, nil
}

func openCache(cfg CacheConfig) (cache.Store, func(), error) {
	if cfg.Driver != CacheRedis {
		return cache.NewMemory(cfg.MaxEntries), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	return cache.NewRedis(client, cfg.Prefix, cfg.TTL), func() { _ = client.Close() }, nil
}

// openSink returns the notification sink and, for remote sinks with a
// connectivity check, a pinger for the readiness probe.
func openSink(lg *zap.Logger, cfg NotificationConfig) (notify.Sink, health.Pinger, func(), error) {
	switch cfg.Sink {
	case SinkHTTP:
		return notify.NewHTTPSink(nil, cfg.Endpoint), nil, func() {}, nil
	case SinkKafka:
		s, err := notify.NewKafkaSink(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "create kafka sink")
		}
		return s, s, s.Close, nil
	default:
		return notify.NewLogSink(lg.Named("notify")), nil, func() {}, nil
	}
}
