package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ledgerapp "github.com/gamehub/backend/internal/application/ledger"
	partnerapp "github.com/gamehub/backend/internal/application/partner"
	transferapp "github.com/gamehub/backend/internal/application/transfer"
	"github.com/gamehub/backend/internal/infrastructure/auth"
	"github.com/gamehub/backend/internal/infrastructure/cache"
	"github.com/gamehub/backend/internal/infrastructure/config"
	"github.com/gamehub/backend/internal/infrastructure/event"
	"github.com/gamehub/backend/internal/infrastructure/logger"
	"github.com/gamehub/backend/internal/infrastructure/migration"
	"github.com/gamehub/backend/internal/infrastructure/persistence"
	"github.com/gamehub/backend/internal/infrastructure/scheduler"
	"github.com/gamehub/backend/internal/infrastructure/settlement"
	"github.com/gamehub/backend/internal/infrastructure/storage"
	"github.com/gamehub/backend/internal/infrastructure/telemetry"
	"github.com/gamehub/backend/internal/interfaces/http/handler"
	"github.com/gamehub/backend/internal/interfaces/http/middleware"
	"github.com/gamehub/backend/internal/interfaces/http/router"
	"github.com/gamehub/backend/migrations"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/gamehub/backend/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			GameHub Partner API
//	@version		1.0
//	@description	Reseller hierarchy, commission policy and balance transfers for the GameHub platform
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/gamehub/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultTimeFormat,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	// Telemetry first so the tee logger ships records to the collector
	providers, err := telemetry.Setup(rootCtx, cfg.Telemetry, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := providers.TeeLogger(baseLog)
	defer func() {
		_ = log.Sync()
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			baseLog.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()
	meter := providers.Meter("gamehub-backend")

	log.Info("Starting GameHub Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := telemetry.InstrumentDB(db.DB, cfg.Telemetry, meter, log); err != nil {
		log.Warn("Database instrumentation disabled", zap.Error(err))
	}

	sqlDB, err := db.SQL()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}
	migrator, err := migration.NewFromFS(sqlDB, migrations.FS, log)
	if err != nil {
		log.Fatal("Failed to load migrations", zap.Error(err))
	}
	if err := migrator.Up(); err != nil {
		log.Fatal("Failed to apply migrations", zap.Error(err))
	}

	// Redis backs token revocation, idempotency, rate limits and the balance feed
	redisClient := newRedisClient(rootCtx, cfg.Redis, log)
	if redisClient != nil {
		defer func() {
			_ = redisClient.Close()
		}()
	}

	var tokenBlacklist auth.TokenBlacklist
	if redisClient != nil {
		tokenBlacklist = auth.NewRedisTokenBlacklist(redisClient, "gamehub:jwt:")
	} else {
		tokenBlacklist = auth.NewInMemoryTokenBlacklist()
	}

	idempotencyStore := cache.NewIdempotencyStore(redisClient, log)
	defer func() {
		_ = idempotencyStore.Close()
	}()

	var balanceFeed event.BalanceFeed
	if redisClient != nil {
		balanceFeed = event.NewRedisBalanceFeed(redisClient, cfg.Redis.Channel, log)
	} else {
		balanceFeed = event.NewLocalBalanceFeed()
	}

	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(event.NewFeedHandler(balanceFeed, log))

	// Repositories
	partnerRepo := persistence.NewGormPartnerRepository(db.DB)
	endUserRepo := persistence.NewGormEndUserRepository(db.DB)
	entryRepo := persistence.NewGormEntryRepository(db.DB)
	unreconciledRepo := persistence.NewGormUnreconciledRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Aggregator
	gateway, err := settlement.NewClient(cfg.Settlement, settlement.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create settlement client", zap.Error(err))
	}

	transferMetrics, err := telemetry.NewTransferMetrics(telemetry.TransferMetricsConfig{Meter: meter})
	if err != nil {
		log.Fatal("Failed to create transfer metrics", zap.Error(err))
	}

	// Services
	jwtService := auth.NewJWTService(cfg.JWT)
	hierarchyService := partnerapp.NewHierarchyService(partnerRepo, endUserRepo, log)
	credentialResolver := partnerapp.NewCredentialResolver(partnerRepo, endUserRepo, partnerapp.SystemCredentials{
		Opcodes:   cfg.Settlement.SystemOpcodes,
		SecretKey: cfg.Settlement.SystemSecretKey,
		APIToken:  cfg.Settlement.SystemAPIToken,
	}, log)
	authService := partnerapp.NewAuthService(partnerRepo, jwtService, tokenBlacklist, log)
	partnerService := partnerapp.NewPartnerService(
		partnerRepo,
		endUserRepo,
		hierarchyService,
		credentialResolver,
		gateway,
		tokenBlacklist,
		eventBus,
		partnerapp.PartnerServiceConfig{
			AccountPrefix: cfg.Settlement.AccountPrefix,
			TokenTTL:      cfg.JWT.RefreshTokenExpiration,
		},
		log,
	)
	endUserService := partnerapp.NewEndUserService(
		partnerRepo,
		endUserRepo,
		hierarchyService,
		credentialResolver,
		gateway,
		cfg.Settlement.AccountPrefix,
		log,
	)

	ledgerService := ledgerapp.NewService(txScope, entryRepo, hierarchyService, log)
	reconciliationService := ledgerapp.NewReconciliationService(txScope, unreconciledRepo, log)
	statementService := ledgerapp.NewStatementService(
		entryRepo,
		newStatementStorage(rootCtx, cfg, log),
		hierarchyService,
		cfg.Storage.PresignExpiration,
		log,
	)

	orchestrator := transferapp.NewOrchestrator(
		partnerRepo,
		endUserRepo,
		hierarchyService,
		credentialResolver,
		gateway,
		ledgerService,
		reconciliationService,
		transferapp.Config{
			AccountPrefix:  cfg.Settlement.AccountPrefix,
			MaxAmount:      decimal.NewFromFloat(cfg.Transfer.MaxAmount),
			IdempotencyTTL: cfg.Transfer.IdempotencyTTL,
		},
		log,
	)
	orchestrator.SetIdempotencyStore(idempotencyStore)
	orchestrator.SetEventPublisher(eventBus)
	orchestrator.SetMetrics(transferMetrics)

	if cfg.Reconciliation.MonitorEnabled {
		monitor, err := scheduler.NewReconciliationMonitor(scheduler.MonitorConfig{
			Interval: cfg.Reconciliation.Interval,
		}, reconciliationService, transferMetrics, log)
		if err != nil {
			log.Fatal("Failed to create reconciliation monitor", zap.Error(err))
		}
		if err := monitor.Start(rootCtx); err != nil {
			log.Fatal("Failed to start reconciliation monitor", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = monitor.Stop(ctx)
		}()
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order:
	// 1. RequestID
	// 2. Recovery
	// 3. Tracing, so request logs carry the trace id
	// 4. Logger
	// 5. Metrics
	// 6. Security headers, CORS, body limit
	// 7. Rate limit
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))

	httpMetrics, err := middleware.HTTPMetrics(meter, "/api/v1/balances/stream")
	if err != nil {
		log.Warn("HTTP metrics disabled", zap.Error(err))
	} else {
		engine.Use(httpMetrics)
	}

	engine.Use(middleware.Secure(cfg.App.Env == "production"))
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfigFromHTTP(cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		engine.Use(middleware.RateLimit(
			newLimiter(redisClient, "gamehub:ratelimit:", cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow),
			middleware.KeyByClientIP,
			log,
		))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	var loginLimit gin.HandlerFunc
	if cfg.HTTP.AuthRateLimitEnabled {
		loginLimit = middleware.RateLimit(
			newLimiter(redisClient, "gamehub:ratelimit:auth:", cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow),
			middleware.KeyByClientIP,
			log,
		)
	}

	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.TokenBlacklist = tokenBlacklist
	jwtConfig.Logger = log
	jwtMiddleware := middleware.JWTAuthMiddlewareWithConfig(jwtConfig)

	if cfg.Swagger.Enabled {
		swaggerJWT := jwtConfig
		swaggerJWT.SkipPathPrefixes = nil
		engine.GET("/swagger/*any",
			middleware.SwaggerProtection(cfg.Swagger, middleware.JWTAuthMiddlewareWithConfig(swaggerJWT)),
			ginSwagger.WrapHandler(swaggerFiles.Handler),
		)
	}

	balanceStream := handler.NewBalanceStreamHandler(balanceFeed, hierarchyService, handler.WithStreamLogger(log))
	if err := balanceStream.Start(); err != nil {
		log.Fatal("Failed to start balance stream", zap.Error(err))
	}

	healthChecks := map[string]handler.HealthCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(
		jwtMiddleware,
		middleware.ActorSpanAttributes(),
		middleware.Profiling(cfg.Telemetry.ProfilingEnabled),
	)
	router.Mount(r, router.Handlers{
		Auth:           handler.NewAuthHandler(authService),
		Partners:       handler.NewPartnerHandler(partnerService, hierarchyService),
		EndUsers:       handler.NewEndUserHandler(endUserService),
		Transfers:      handler.NewTransferHandler(orchestrator),
		Ledger:         handler.NewLedgerHandler(ledgerService, statementService),
		Reconciliation: handler.NewReconciliationHandler(reconciliationService),
		Balances:       balanceStream,
		System:         handler.NewSystemHandler(cfg.App.Name, version, healthChecks, log),
	}, router.Guards{
		LoginLimit:  loginLimit,
		SystemAdmin: middleware.RequireSystemAdmin(),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// SSE connections never finish on their own
	balanceStream.Stop()
	stopRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newRedisClient returns a connected client, or nil when Redis is disabled
// or unreachable
func newRedisClient(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Info("Redis disabled, using in-process stores")
		return nil
	}
	client, err := cache.Connect(ctx, cfg)
	if err != nil {
		log.Warn("Redis unreachable, using in-process stores", zap.Error(err))
		return nil
	}
	log.Info("Redis connected", zap.String("addr", cfg.Addr()))
	return client
}

func newLimiter(client *redis.Client, prefix string, limit int, window time.Duration) middleware.Limiter {
	if client != nil {
		return middleware.NewRedisRateLimiter(client, prefix, limit, window)
	}
	return middleware.NewRateLimiter(limit, window)
}

// newStatementStorage uses S3 when a bucket is configured, otherwise an
// in-process store for local runs
func newStatementStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) ledgerapp.StatementStorage {
	if cfg.Storage.Bucket == "" {
		log.Warn("No statement bucket configured, statements are kept in memory")
		return storage.NewMemoryObjectStorage("http://localhost:" + cfg.App.Port + "/statements")
	}
	s3Storage, err := storage.NewS3ObjectStorage(&cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to create S3 storage", zap.Error(err))
	}
	if err := s3Storage.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to ensure statement bucket", zap.Error(err))
	}
	return s3Storage
}
