package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/veritaskey/arbiter/audit"
	"github.com/veritaskey/arbiter/config"
	"github.com/veritaskey/arbiter/controller"
	"github.com/veritaskey/arbiter/dao"
	"github.com/veritaskey/arbiter/db"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/model"
	"github.com/veritaskey/arbiter/pdp"
	"github.com/veritaskey/arbiter/router"
	"github.com/veritaskey/arbiter/service"
	"github.com/veritaskey/arbiter/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger(config.GetString("log.dir"))
	defer logger.Sync()

	// Initialize Neo4j
	if err := db.InitNeo4j(); err != nil {
		logger.Fatal("Failed to initialize Neo4j", zap.Error(err))
	}
	defer db.CloseNeo4j()

	// Initialize Redis
	if err := db.InitRedis(); err != nil {
		logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	defer db.CloseRedis()

	// Initialize EventBus
	eventBus := util.NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus.Start(ctx)

	// Initialize services and utilities
	validationUtil := util.NewValidationUtil()
	cacheService := util.NewCacheService()
	notificationService := util.NewNotificationService()

	auditRepository, err := audit.NewElasticsearchRepository(config.GetString("elasticsearch.url"))
	if err != nil {
		logger.Fatal("Failed to initialize Elasticsearch", zap.Error(err))
	}
	auditService := audit.NewService(auditRepository, config.GetInt("engine.auditQueueSize"))

	// Initialize the policy store
	policyStore, err := dao.NewNeo4jPolicyStore(db.Neo4jDriver)
	if err != nil {
		logger.Fatal("Failed to initialize policy store", zap.Error(err))
	}

	// Initialize the decision engine
	engine := pdp.NewEngine(policyStore, auditService, pdp.Options{
		CacheLoadTimeout: config.GetDuration("engine.cacheLoadTimeout"),
		StatsQueueSize:   config.GetInt("engine.statsQueueSize"),
		TopPolicies:      config.GetInt("engine.topPolicies"),
	})

	// Seed the protected core policies and warm the snapshot
	for _, corePolicyID := range model.CorePolicyIDs() {
		if _, err := engine.InitializeCorePolicy(ctx, corePolicyID, "system"); err != nil {
			logger.Fatal("Failed to initialize core policy",
				zap.Error(err),
				zap.String("policyID", corePolicyID))
		}
	}
	if err := engine.RefreshCache(ctx); err != nil {
		logger.Warn("Initial cache refresh failed, evaluations will fail closed until the store recovers", zap.Error(err))
	}

	// Initialize services
	services, err := service.InitializeServices(policyStore, validationUtil, cacheService, notificationService, eventBus)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	// Initialize controllers
	controllers := controller.InitializeControllers(services, engine, auditService)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	r := router.SetupRouter(
		controllers,
		policyStore,
		config.GetInt("server.rateLimitRequests"),
		config.GetDuration("server.rateLimitWindow"),
	)

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: r,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", config.GetString("server.port")))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	// Drain the stats and audit queues before the process exits
	engine.Close()

	logger.Info("Server exiting")
}
