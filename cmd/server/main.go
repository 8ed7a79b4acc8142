package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ledgerapp "github.com/wms/backend/internal/application/ledger"
	"github.com/wms/backend/internal/infrastructure/cache"
	"github.com/wms/backend/internal/infrastructure/config"
	"github.com/wms/backend/internal/infrastructure/event"
	"github.com/wms/backend/internal/infrastructure/logger"
	"github.com/wms/backend/internal/infrastructure/persistence"
	"github.com/wms/backend/internal/interfaces/http/handler"
	"github.com/wms/backend/internal/interfaces/http/middleware"
	"github.com/wms/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting WMS Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Transactional scope and post-commit collaborators
	txScope := persistence.NewGormTransactionScope(db.DB)
	lotNumbers := persistence.NewGormLotNumberGenerator(db.DB)

	ledgerService := ledgerapp.NewLedgerService(txScope, lotNumbers)
	ledgerService.SetLogger(log)

	if cfg.Ledger.AuditEnabled {
		ledgerService.SetAuditSink(persistence.NewGormAuditSink(db.DB))
	}

	// Cache invalidation is best-effort: a broken Redis keeps the ledger
	// running without eviction rather than blocking startup mutations.
	if cfg.Ledger.CacheInvalidationEnabled {
		invalidator, err := cache.NewRedisStockLevelInvalidator(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
			cache.WithInvalidatorKeyPrefix(cfg.Ledger.CacheKeyPrefix),
			cache.WithInvalidatorChannel(cfg.Ledger.CacheChannel),
			cache.WithInvalidatorLogger(log),
		)
		if err != nil {
			log.Warn("Redis unavailable, stock level cache invalidation disabled", zap.Error(err))
		} else {
			defer func() {
				if err := invalidator.Close(); err != nil {
					log.Error("Error closing cache invalidator", zap.Error(err))
				}
			}()
			ledgerService.SetCacheInvalidator(invalidator)
			log.Info("Stock level cache invalidation enabled",
				zap.String("channel", cfg.Ledger.CacheChannel))
		}
	}

	// Event bus and low-stock alert delivery
	eventBus := event.NewInMemoryEventBus(log)
	if cfg.Event.AlertsEnabled {
		alertHandler := ledgerapp.NewLowStockAlertHandler(log)
		eventBus.Subscribe(alertHandler)
		log.Info("Low stock alert handler registered",
			zap.Strings("event_types", alertHandler.EventTypes()))
	}
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()
	ledgerService.SetEventPublisher(eventBus)

	// HTTP handlers
	ledgerHandler := handler.NewLedgerHandler(ledgerService)

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

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	// Ledger routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	ledgerRoutes := router.NewDomainGroup("ledger", "/ledger")
	ledgerRoutes.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ledger service ready"})
	})

	// Stock operations
	ledgerRoutes.POST("/stock/add", ledgerHandler.AddStock)
	ledgerRoutes.POST("/stock/reserve", ledgerHandler.ReserveStock)
	ledgerRoutes.POST("/stock/release", ledgerHandler.ReleaseReservation)
	ledgerRoutes.POST("/stock/consume", ledgerHandler.ConsumeReservation)
	ledgerRoutes.POST("/stock/deduct", ledgerHandler.DeductStock)

	// Batch operations
	ledgerRoutes.POST("/stock/add/batch", ledgerHandler.BatchAddStock)
	ledgerRoutes.POST("/stock/reserve/batch", ledgerHandler.BatchReserveStock)
	ledgerRoutes.POST("/stock/consume/batch", ledgerHandler.BatchConsumeStock)
	ledgerRoutes.POST("/stock/deduct/batch", ledgerHandler.BatchDeductStock)

	// Level queries and thresholds
	ledgerRoutes.GET("/levels/lookup", ledgerHandler.GetStockLevel)
	ledgerRoutes.GET("/levels/alerts/low-stock", ledgerHandler.ListLowStockLevels)
	ledgerRoutes.PUT("/thresholds", ledgerHandler.ConfigureThresholds)

	// Lot and consumption queries
	ledgerRoutes.GET("/lots", ledgerHandler.ListLots)
	ledgerRoutes.GET("/lots/expiring", ledgerHandler.ListExpiringLots)
	ledgerRoutes.GET("/consumptions", ledgerHandler.ListConsumptionsByReference)
	ledgerRoutes.GET("/consumptions/history", ledgerHandler.ConsumptionHistory)

	r.Register(ledgerRoutes)
	r.Setup()

	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
