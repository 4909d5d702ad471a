package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bizhub/platform/platform-backend/internal/auth"
	"bizhub/platform/platform-backend/internal/config"
	"bizhub/platform/platform-backend/internal/notifications/websocket"
	"bizhub/platform/platform-backend/internal/onboarding"
	"bizhub/platform/platform-backend/internal/settings"
	"bizhub/platform/platform-backend/pkg/messaging"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Database
	var db *gorm.DB
	if cfg.NeedsDatabase() {
		db, err = openDatabase(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		logger.Info("Connected to database",
			zap.String("host", cfg.Database.Host),
			zap.String("db_name", cfg.Database.DBName))

		if cfg.Database.AutoMigrate {
			if err := onboarding.AutoMigrate(db); err != nil {
				logger.Fatal("Failed to migrate onboarding tables", zap.Error(err))
			}
			if err := settings.AutoMigrate(db); err != nil {
				logger.Fatal("Failed to migrate settings tables", zap.Error(err))
			}
		}
	}

	var awsCfg aws.Config
	awsNeeded := cfg.Store.Backend == config.StoreDynamoDB || cfg.AWS.SESFromAddress != "" || cfg.AWS.SNSTopicARN != ""
	if awsNeeded {
		awsCfg, err = loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			logger.Fatal("Failed to load AWS configuration", zap.Error(err))
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := onboarding.NewMetrics(registry)

	// Onboarding store
	var store onboarding.Store
	switch cfg.Store.Backend {
	case config.StoreMemory:
		store = onboarding.NewMemoryStore()
	case config.StorePostgres:
		store = onboarding.NewRepository(db)
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		redisStore := onboarding.NewRedisStore(client,
			onboarding.WithRedisPrefix(cfg.Redis.Prefix),
			onboarding.WithRedisTTL(cfg.Redis.TTL))
		defer redisStore.Close()
		store = redisStore
	case config.StoreDynamoDB:
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		store = onboarding.NewDynamoStore(client, cfg.AWS.DynamoTable)
	}
	logger.Info("Onboarding store selected", zap.String("backend", cfg.Store.Backend))

	// Settings
	var settingsRepo settings.Repository
	if db != nil {
		settingsRepo = settings.NewRepository(db)
	} else {
		settingsRepo = settings.NewMemoryRepository()
	}
	settingsService := settings.NewService(settingsRepo).WithDefaultTools(cfg.Onboarding.DefaultTools)
	settingsHandler := settings.NewHandler(settingsService)

	// Notifications
	wsManager := websocket.NewManager(logger, cfg.Server.AllowedOrigins)
	defer wsManager.Close()

	var mailer onboarding.Mailer
	if cfg.AWS.SESFromAddress != "" {
		mailer = messaging.NewSESMailer(sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		}), cfg.AWS.SESFromAddress)
	}
	var publisher onboarding.EventPublisher
	if cfg.AWS.SNSTopicARN != "" {
		publisher = messaging.NewSNSPublisher(sns.NewFromConfig(awsCfg, func(o *sns.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		}), cfg.AWS.SNSTopicARN)
	}

	// Onboarding
	dispatcher := onboarding.NewDispatcher(logger,
		onboarding.WithHookTimeout(cfg.Onboarding.HookTimeout),
		onboarding.WithDispatcherMetrics(metrics))
	onboarding.NewProvisioner(settingsService, mailer, publisher, wsManager, logger).Register(dispatcher)

	onboardingService := onboarding.NewService(store, onboarding.NewRegistry(), dispatcher, logger,
		onboarding.WithMetrics(metrics))
	onboardingHandler := onboarding.NewHandler(onboardingService, logger)

	resolver := auth.NewJWTResolver(cfg.Security.JWTSecret, cfg.Security.JWTIssuer)
	authHandler := auth.NewHandler()

	// Setup Router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(cfg.Server.AllowedOrigins))

	// Register Routes
	api := router.Group("/api/v1")
	api.Use(auth.Middleware(resolver), requestTimeout(cfg.Server.RequestTimeout))
	{
		auth.RegisterRoutes(api, authHandler)
		onboardingHandler.RegisterRoutes(api)
		settingsHandler.RegisterRoutes(api)
	}
	// The websocket route is long-lived and skips the request timeout.
	router.GET("/api/v1/ws/onboarding", auth.Middleware(resolver), wsManager.Handle)

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"store":     cfg.Store.Backend,
			"timestamp": time.Now(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	return db, nil
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		logger.Info("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CORS Middleware. An allowed Origin is echoed back so credentials can be
// sent; an empty list or "*" allows every origin.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && (allowAll || allowed[origin]):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && allowAll:
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
