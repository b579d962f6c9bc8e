// api/main.go
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

	"github.com/warden-net/warden/api/audit"
	"github.com/warden-net/warden/api/config"
	"github.com/warden-net/warden/api/controller"
	"github.com/warden-net/warden/api/db"
	"github.com/warden-net/warden/api/enforce"
	"github.com/warden-net/warden/api/events"
	logger "github.com/warden-net/warden/api/logging"
	"github.com/warden-net/warden/api/model"
	"github.com/warden-net/warden/api/pdp/engine"
	"github.com/warden-net/warden/api/router"
	"github.com/warden-net/warden/api/service"
	"github.com/warden-net/warden/api/telemetry"
	"github.com/warden-net/warden/api/util"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	// Initialize logger
	logger.InitLogger("logging")
	defer logger.Sync()

	telemetry.InitMetrics()

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

	// Audit trail
	auditRepository, err := audit.NewElasticsearchRepository(config.GetString("elasticsearch.url"))
	if err != nil {
		logger.Fatal("Failed to initialize audit repository", zap.Error(err))
	}
	auditService := audit.NewService(auditRepository)

	// Evaluation pipeline
	defaultAction := model.Action(config.GetString("policy.defaultAction"))
	if !defaultAction.Valid() {
		logger.Fatal("Invalid default action", zap.String("action", string(defaultAction)))
	}
	evaluator := engine.NewPolicyEvaluator(defaultAction)

	// Enforcement primitive and reconciler
	enforcer := enforce.NewIptablesEnforcer(
		config.GetString("enforcement.chain"),
		config.GetBool("enforcement.dryRun"),
	)
	if err := enforcer.EnsureChain(ctx); err != nil {
		logger.Fatal("Failed to set up enforcement chain", zap.Error(err))
	}
	reconciler := enforce.NewReconciler(
		enforcer,
		config.GetInt("enforcement.maxRetries"),
		config.GetDuration("enforcement.directiveTimeout"),
	)
	if err := reconciler.Resync(ctx); err != nil {
		logger.Warn("Failed to adopt existing enforcement state", zap.Error(err))
	}

	// Context signals from the event feed
	signals := events.NewSignalState(15*time.Minute, time.Hour)

	// Initialize services
	services, err := service.InitializeServices(
		ctx, db.Neo4jDriver, auditService, signals, evaluator, reconciler, eventBus)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	// Event feed workers
	feedHandler := events.NewHandler(
		events.WeightsFromConfig(),
		services.Scorer,
		services.Device,
		signals,
		eventBus,
	)
	feed := events.NewFeed(
		config.GetString("mqtt.broker"),
		config.GetString("mqtt.clientID"),
		config.GetString("mqtt.topicPrefix"),
		feedHandler,
		config.GetInt("events.workers"),
	)
	go func() {
		if err := feed.Start(ctx); err != nil {
			logger.Error("Event feed stopped", zap.Error(err))
		}
	}()

	// Periodic reconciliation
	if es, ok := services.Enforcement.(*service.EnforcementService); ok {
		go es.RunLoop(ctx, config.GetDuration("enforcement.reconcileInterval"))
	}

	// Periodic clean-streak trust reward
	if ts, ok := services.Trust.(*service.TrustService); ok {
		go ts.RunCleanStreakLoop(ctx,
			config.GetDuration("trust.cleanWeekInterval"),
			config.GetDuration("trust.cleanWeekWindow"),
			config.GetInt("trust.weights.cleanWeek"))
	}

	// Initialize controllers
	controllers := controller.InitializeControllers(services)

	// Set up Gin
	gin.SetMode(gin.ReleaseMode)
	engineRouter := router.SetupRouter(controllers, 100, time.Minute) // 100 requests per minute

	// Set up the server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", config.GetString("server.port")),
		Handler: engineRouter,
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

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
