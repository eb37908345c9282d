package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib" //для goose миграций

	platformhealth "github.com/shestoi/vnpay-gateway/platform/health/http"
	platformkafka "github.com/shestoi/vnpay-gateway/platform/kafka"
	platformlogging "github.com/shestoi/vnpay-gateway/platform/logging"
	platformobservability "github.com/shestoi/vnpay-gateway/platform/observability"
	platformshutdown "github.com/shestoi/vnpay-gateway/platform/shutdown"

	httpapi "github.com/shestoi/vnpay-gateway/internal/api/http"
	"github.com/shestoi/vnpay-gateway/internal/clock"
	"github.com/shestoi/vnpay-gateway/internal/config"
	eventkafka "github.com/shestoi/vnpay-gateway/internal/event/kafka"
	"github.com/shestoi/vnpay-gateway/internal/provider"
	"github.com/shestoi/vnpay-gateway/internal/qr"
	"github.com/shestoi/vnpay-gateway/internal/reference"
	"github.com/shestoi/vnpay-gateway/internal/repository"
	"github.com/shestoi/vnpay-gateway/internal/repository/memory"
	"github.com/shestoi/vnpay-gateway/internal/repository/postgres"
	redisrepo "github.com/shestoi/vnpay-gateway/internal/repository/redis"
	"github.com/shestoi/vnpay-gateway/internal/service"
	"github.com/shestoi/vnpay-gateway/migrations"
)

// App содержит все зависимости для запуска и корректного shutdown шлюза
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
	readiness   func() bool
	wg          sync.WaitGroup
}

type storage struct {
	transactions repository.TransactionRepository
	orders       repository.PosOrderRepository
	sessions     repository.QRSessionRepository
}

// Build создаёт и настраивает все зависимости шлюза
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"
	ctx := context.Background()

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "vnpay",
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Building vnpay gateway", zap.String("op", op), zap.String("http_addr", cfg.HTTPAddr))

	// Создаём shutdown manager: функции выполняются в обратном порядке регистрации
	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	fail := func(err error) (*App, error) {
		_ = shutdownMgr.Shutdown()
		return nil, err
	}

	checks := map[string]platformhealth.Check{}

	store, err := buildStorage(ctx, cfg, logger, shutdownMgr, checks)
	if err != nil {
		return fail(err)
	}

	// Kafka или заглушка
	var publisher service.EventPublisher
	if cfg.KafkaEnabled {
		kafkaPublisher, err := eventkafka.NewTransactionPublisher(logger, platformkafka.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTransactionTopic,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to create kafka publisher: %w", err))
		}
		shutdownMgr.Add("kafka_writer", platformshutdown.Closer(kafkaPublisher))
		publisher = kafkaPublisher
		logger.Info("Kafka publisher enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTransactionTopic))
	} else {
		publisher = eventkafka.NewNoOpPublisher(logger)
	}

	// OpenTelemetry
	otelShutdown, err := platformobservability.Init(ctx, platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "vnpay",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to init observability: %w", err))
	}

	metrics, err := service.NewMetrics()
	if err != nil {
		return fail(fmt.Errorf("failed to create metrics: %w", err))
	}

	registry := provider.NewRegistry(cfg.Providers()...)
	realClock := clock.Real{}

	transactions := service.NewTransactionService(
		store.transactions,
		reference.NewGenerator(store.transactions, realClock),
		publisher,
		logger,
		cfg.ReferenceMaxAttempts,
	)

	// без настроенного VNPay-QR выпуск QR отвечает {"result": null}
	var provisioner service.QRProvisioner
	if cfg.VNPayQR.Enabled() {
		provisioner = qr.NewClient(cfg.QRMerchant(), cfg.VNPayQR.Timeout, logger)
	}

	handler := httpapi.NewHandler(
		service.NewCheckoutService(transactions, registry, realClock, cfg.BaseURL, cfg.VNPay.TmnCode, logger),
		service.NewWebhookService(transactions, registry, metrics, logger),
		service.NewQRService(service.QRServiceDeps{
			Transactions: transactions,
			Orders:       store.orders,
			Sessions:     store.sessions,
			Provisioner:  provisioner,
			Providers:    registry,
			Clock:        realClock,
			SessionTTL:   cfg.QRSessionTTL,
			Metrics:      metrics,
			Logger:       logger,
		}),
		logger,
	)

	readiness := platformhealth.Readiness(2*time.Second, checks)

	router := httpapi.NewRouter(handler, httpapi.RouterConfig{
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, readiness, logger)

	// Создаём HTTP сервер
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownMgr.Add("http_server", platformshutdown.HTTPServer(httpServer))
	shutdownMgr.Add("otel", otelShutdown)

	return &App{
		logger:      logger,
		httpServer:  httpServer,
		shutdownMgr: shutdownMgr,
		readiness:   readiness,
	}, nil
}

// buildStorage выбирает хранилища по STORAGE_BACKEND и QR_SESSION_BACKEND
func buildStorage(ctx context.Context, cfg config.Config, logger *zap.Logger, shutdownMgr *platformshutdown.Manager, checks map[string]platformhealth.Check) (storage, error) {
	var store storage

	switch cfg.StorageBackend {
	case config.BackendMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		store = storage{
			transactions: memory.NewTransactionRepository(),
			orders:       memory.NewPosOrderRepository(),
			sessions:     memory.NewQRSessionRepository(),
		}
	default:
		pool, err := connectPostgres(ctx, cfg, logger)
		if err != nil {
			return storage{}, err
		}
		shutdownMgr.Add("postgres_pool", platformshutdown.Pool(pool))
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }

		store = storage{
			transactions: postgres.NewTransactionRepository(pool),
			orders:       postgres.NewPosOrderRepository(pool),
			sessions:     postgres.NewQRSessionRepository(pool),
		}
	}

	if cfg.QRSessionBackend == config.BackendRedis {
		logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return storage{}, fmt.Errorf("failed to ping redis: %w", err)
		}
		shutdownMgr.Add("redis_client", platformshutdown.Closer(client))
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		store.sessions = redisrepo.NewQRSessionRepository(client, cfg.QRSessionRetention, logger)
	}

	return store, nil
}

// connectPostgres открывает pool, проверяет подключение и накатывает миграции
func connectPostgres(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger.Info("Connecting to PostgreSQL")

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres for migrations: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		return nil, err
	}
	logger.Info("Migrations applied")

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres pool: %w", err)
	}
	logger.Info("PostgreSQL connection established")
	return pool, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting vnpay gateway", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
			_ = a.shutdownMgr.Shutdown()
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	if err := a.shutdownMgr.Wait(); err != nil {
		a.logger.Warn("Shutdown finished with errors", zap.Error(err))
	}

	a.wg.Wait()
	a.logger.Info("vnpay gateway stopped")
	return nil
}
