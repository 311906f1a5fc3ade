package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-offline-sync/config"
	"github.com/fekuna/omnipos-offline-sync/internal/database/sqlite"
	"github.com/fekuna/omnipos-offline-sync/internal/events"
	"github.com/fekuna/omnipos-offline-sync/internal/lock"
	"github.com/fekuna/omnipos-offline-sync/internal/logger"
	"github.com/fekuna/omnipos-offline-sync/internal/remote"
	"github.com/fekuna/omnipos-offline-sync/internal/server"

	"github.com/fekuna/omnipos-offline-sync/internal/catalog"
	catCache "github.com/fekuna/omnipos-offline-sync/internal/catalog/cache"
	catH "github.com/fekuna/omnipos-offline-sync/internal/catalog/handler"
	catRepoPkg "github.com/fekuna/omnipos-offline-sync/internal/catalog/repository"
	catUCPkg "github.com/fekuna/omnipos-offline-sync/internal/catalog/usecase"

	stockH "github.com/fekuna/omnipos-offline-sync/internal/stock/handler"
	stockListenerPkg "github.com/fekuna/omnipos-offline-sync/internal/stock/listener"
	stockRepoPkg "github.com/fekuna/omnipos-offline-sync/internal/stock/repository"
	stockUCPkg "github.com/fekuna/omnipos-offline-sync/internal/stock/usecase"

	syncH "github.com/fekuna/omnipos-offline-sync/internal/syncer/handler"
	syncUCPkg "github.com/fekuna/omnipos-offline-sync/internal/syncer/usecase"

	"github.com/fekuna/omnipos-offline-sync/internal/syncqueue"
	queueRepoPkg "github.com/fekuna/omnipos-offline-sync/internal/syncqueue/repository"
	queueUCPkg "github.com/fekuna/omnipos-offline-sync/internal/syncqueue/usecase"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const producerName = "omnipos-offline-sync"

func main() {
	// 1. Load Configuration
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open local database
	db, err := sqlite.Open(ctx, &sqlite.Config{
		Path:         cfg.SQLite.Path,
		BusyTimeout:  time.Duration(cfg.SQLite.BusyTimeoutMs) * time.Millisecond,
		MaxOpenConns: cfg.SQLite.MaxOpenConns,
	})
	if err != nil {
		appLogger.Fatal("Could not open local database", zap.Error(err))
	}
	defer db.Close()
	if err := sqlite.Migrate(ctx, db); err != nil {
		appLogger.Fatal("Could not migrate local database", zap.Error(err))
	}
	appLogger.Info("Opened local database", zap.String("path", cfg.SQLite.Path))

	txm := sqlite.NewTxManager(db)
	bus := events.NewBus(appLogger)
	defer bus.Close()

	// 4. Remote side
	httpClient := &http.Client{Timeout: cfg.Sync.DispatchTimeout()}
	var oracle remote.Oracle = remote.NewPinger(cfg.Sync.RemoteBaseURL, cfg.Sync.PingPath, cfg.Sync.PingInterval(), httpClient)
	if cfg.Sync.ForceOffline {
		oracle = remote.NewStatic(false)
		appLogger.Warn("Forced offline mode, changes stay queued")
	}
	dispatcher := remote.NewHTTPDispatcher(cfg.Sync.RemoteBaseURL, httpClient, appLogger)
	gate := syncqueue.NewGate(oracle, cfg.Sync.EnqueuePolicy == config.EnqueueAlways)

	// 5. Initialize Repositories
	queueRepo := queueRepoPkg.NewSQLiteRepository(db)
	stockRepo := stockRepoPkg.NewSQLiteRepository(db)
	catRepo := catRepoPkg.NewSQLiteRepository(db)

	// 6. Initialize Redis (optional)
	var (
		redisClient *redis.Client
		locker      lock.Locker = lock.NewLocalLocker()
		listCache   *catCache.RedisListCache
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		locker = lock.NewRedisLocker(redisClient, appLogger)
		listCache = catCache.NewRedisListCache(redisClient, appLogger)
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 7. Initialize UseCases
	queueUC := queueUCPkg.NewSyncQueueUseCase(queueRepo, bus, appLogger)
	stockUC := stockUCPkg.NewStockUseCase(stockRepo, txm, locker, queueUC, gate, bus, appLogger)
	var productCache catalog.ListCache
	if listCache != nil {
		productCache = listCache
	}
	catUC := catUCPkg.NewCatalogUseCase(catRepo, txm, locker, stockUC, queueUC, gate, productCache, appLogger)
	syncUC := syncUCPkg.NewCoordinator(queueUC, dispatcher, oracle, bus, appLogger, syncUCPkg.Config{
		MaxAttempts:          cfg.Sync.MaxAttempts,
		DispatchTimeout:      cfg.Sync.DispatchTimeout(),
		DrainInterval:        cfg.Sync.DrainInterval(),
		ConnectivityInterval: cfg.Sync.PingInterval(),
	}, stockUC)

	// 8. Initialize Handlers
	router := server.NewRouter(appLogger, 30*time.Second,
		stockH.NewStockHandler(stockUC, appLogger),
		catH.NewProductHandler(catUC, appLogger),
		syncH.NewSyncHandler(syncUC, queueUC, appLogger),
	)
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 9. Bus subscribers attach before anything can publish.
	var cacheEvents <-chan events.Event
	if listCache != nil {
		sub, unsubscribe := bus.Subscribe(256)
		defer unsubscribe()
		cacheEvents = sub
	}

	var (
		forwarder     *events.KafkaForwarder
		salesListener *stockListenerPkg.SalesListener
	)
	if cfg.Kafka.Enabled() {
		writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, appLogger)
		forwarder = events.NewKafkaForwarder(writer, bus, producerName, appLogger)

		var dedup stockListenerPkg.Deduper
		if redisClient != nil {
			dedup = stockListenerPkg.NewRedisDeduper(redisClient, producerName)
		}
		reader := stockListenerPkg.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.SalesTopic)
		salesListener = stockListenerPkg.NewSalesListener(reader, stockUC, dedup, appLogger)
		appLogger.Info("Connected to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("events_topic", cfg.Kafka.EventsTopic),
			zap.String("sales_topic", cfg.Kafka.SalesTopic),
		)
	}

	// 10. Run
	g, gctx := errgroup.WithContext(ctx)

	if cacheEvents != nil {
		g.Go(func() error {
			listCache.Watch(gctx, cacheEvents)
			return nil
		})
	}
	if forwarder != nil {
		g.Go(func() error {
			return forwarder.Run(gctx)
		})
		g.Go(func() error {
			return salesListener.Start(gctx)
		})
	}

	g.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return syncUC.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", zap.Error(err))
		return
	}
	appLogger.Info("Server stopped")
}
