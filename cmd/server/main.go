package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/pipelabs/pipegate/internal/backend"
	"github.com/pipelabs/pipegate/internal/config"
	"github.com/pipelabs/pipegate/internal/handler"
	"github.com/pipelabs/pipegate/internal/middleware"
	"github.com/pipelabs/pipegate/internal/pkg/logger"
	"github.com/pipelabs/pipegate/internal/pkg/ratelimit"
	"github.com/pipelabs/pipegate/internal/repository"
	"github.com/pipelabs/pipegate/internal/service"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	window := time.Duration(cfg.Limits.WindowSeconds) * time.Second

	// 2. Initialize Persistence
	// Shared state (Redis > Memory)
	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back to memory", "error", err)
			redisClient = nil
		}
	}

	var limiter ratelimit.Limiter
	var usage service.UsageTracker
	if redisClient != nil {
		limiter = ratelimit.NewRedis(redisClient.Client, window)
		usage = repository.NewRedisUsageTracker(redisClient)
	} else {
		limiter = ratelimit.NewInMemory(window)
		usage = service.NewMemoryUsageTracker()
	}

	// Durable records (Postgres > Redis > Memory)
	db := tryDB(cfg)
	var policyRepo service.PolicyRepo
	var clientStore service.ClientStore
	var auditRepo service.AuditRepo
	var idemStore middleware.IdempotencyStore
	if db != nil {
		policyRepo = repository.NewPostgresPolicyRepo(db)
		clientStore = repository.NewPostgresClientRepo(db)
		auditRepo = repository.NewPostgresAuditRepo(db)
		idemStore = repository.NewPostgresIdempotencyStore(db)
	} else {
		clientStore = repository.NewMemoryClientStore()
		if redisClient != nil {
			auditRepo = repository.NewRedisAuditRepo(redisClient, "", 0)
			idemStore = repository.NewRedisIdempotencyStore(redisClient, 0)
		} else {
			idemStore = middleware.NewInMemIdempotencyStore()
		}
	}

	// 3. Initialize Core Services
	identity := service.NewTokenRegistry(cfg)
	policyStore := service.NewPolicyStore(cfg.Policy, policyRepo)

	auditSvc, err := service.NewAuditService(cfg.Audit.Dir, cfg.Audit.BufferSize, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	tradingBackend := backend.NewClient(cfg.Backend)
	gateway := service.NewActionGateway(cfg, identity, policyStore, limiter, usage, auditSvc, tradingBackend, clientStore)

	// Fill stream keeps the rolling volume window honest about fills the
	// gateway did not place itself.
	var fills *backend.FillStream
	if cfg.Backend.FillStreamEnabled && cfg.Backend.FillStreamURL != "" {
		fills = backend.NewFillStream(cfg.Backend.FillStreamURL, cfg.Backend.APIKey, usage)
		fills.Start()
	}

	// 4. Initialize Handlers
	agentHandler := handler.NewAgentHandler(gateway)
	adminHandler := handler.NewAdminHandler(gateway, policyStore, clientStore)
	auditHandler := handler.NewAuditHandler(auditSvc)

	// 5. Setup Router
	r := gin.Default()

	edge := middleware.NewEdgeLimiter(cfg, identity)

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestID())
	r.Use(edge.Middleware())

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "pipegate"})
	})

	// Metrics Endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Agent surface: every route evaluates through the gateway, so no
	// auth middleware here; identity denials must reach the audit trail.
	agent := r.Group("/v1/agent")
	{
		agent.GET("/balance", agentHandler.GetBalance)
		agent.GET("/history", agentHandler.GetHistory)
		agent.POST("/orders", middleware.Idempotency(idemStore, identity), agentHandler.PlaceOrder)
		agent.DELETE("/orders/:id", agentHandler.CancelOrder)
	}

	admin := r.Group("/v1/admin")
	{
		// Gated actions, same reasoning as the agent surface.
		admin.POST("/clients", adminHandler.CreateClient)
		admin.POST("/clients/:id/pairs", adminHandler.CreatePair)
		admin.DELETE("/clients/:id/pairs", adminHandler.DeletePair)
		admin.PUT("/clients/:id/spread", adminHandler.SetSpread)
		admin.PUT("/clients/:id/volume-target", adminHandler.SetVolumeTarget)

		// Console routes configure the gateway rather than act through
		// it, so they authenticate at the edge.
		console := admin.Group("", middleware.Auth(identity), middleware.RequireAdmin())
		console.GET("/clients", adminHandler.ListClients)
		console.GET("/clients/:id/pairs", adminHandler.ListPairs)
		console.GET("/policies/:id", adminHandler.GetPolicy)
		console.PUT("/policies/:id", adminHandler.PutPolicy)
		console.GET("/audit", auditHandler.List)
	}

	// Retention sweep for the durable audit store.
	stopCleanup := startAuditCleanup(cfg, auditRepo)

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 PipeGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if fills != nil {
		fills.Stop()
	}
	if stopCleanup != nil {
		stopCleanup()
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	auditSvc.Close()
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exiting")
}

func tryDB(cfg *config.Config) *gorm.DB {
	if cfg.Database.DSN == "" {
		return nil
	}
	db, err := repository.NewDB(cfg)
	if err != nil {
		logger.Error("⚠️ Failed to connect to DB, records will not be durable", "error", err)
		return nil
	}
	logger.Info("✅ Connected to PostgreSQL")
	return db
}

// startAuditCleanup prunes expired audit records on the configured
// interval. Only the Postgres repo retains enough to need it.
func startAuditCleanup(cfg *config.Config, repo service.AuditRepo) func() {
	pg, ok := repo.(*repository.PostgresAuditRepo)
	if !ok || cfg.Database.AuditRetentionDays <= 0 {
		return nil
	}

	retention := time.Duration(cfg.Database.AuditRetentionDays) * 24 * time.Hour
	interval := time.Duration(cfg.Database.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := pg.Cleanup(ctx, retention); err != nil {
					logger.Error("audit cleanup failed", "error", err.Error())
				}
				cancel()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
