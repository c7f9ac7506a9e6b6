package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "dispatchconsole/api/swagger" // swagger docs
	"dispatchconsole/internal/config"
	"dispatchconsole/internal/database"
	"dispatchconsole/internal/handler"
	"dispatchconsole/internal/logger"
	"dispatchconsole/internal/metrics"
	"dispatchconsole/internal/middleware"
	"dispatchconsole/internal/model"
	"dispatchconsole/internal/notification"
	"dispatchconsole/internal/repository"
	"dispatchconsole/internal/service"
	"dispatchconsole/internal/websocket"
	"dispatchconsole/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Dispatch Console API
// @version         1.0
// @description     Machine approval workflow and sequence numbering for the dispatch console.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet.
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	logger.Info("connected to PostgreSQL")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// WebSocket hub and notification dispatch
	wsHub := websocket.NewHub()
	go wsHub.Run()

	pool, err := worker.New(ctx, cfg.Worker.PoolSize)
	if err != nil {
		logger.Fatal("worker pool init failed", zap.Error(err))
	}
	var notifier notification.Notifier = notification.Nop{}
	if cfg.Notification.Enabled {
		notifier = notification.NewDispatcher(pool, wsHub)
	}

	// Repository -> Service -> Handler
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	salesOrderRepo := repository.NewSalesOrderRepository(db)
	machineRepo := repository.NewMachineRepository(db)
	configRepo := repository.NewSequenceConfigRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)

	settings := service.ApprovalSettings{
		DefaultApproverRoles: cfg.Approval.DefaultApproverRoles,
		AdminRole:            cfg.Approval.AdminRole,
	}

	roleService := service.NewRoleService(roleRepo)
	if err := roleService.SeedDefaultRoles(ctx); err != nil {
		logger.Fatal("role seeding failed", zap.Error(err))
	}
	userService := service.NewUserService(userRepo, roleRepo, txManager, cfg.Auth.JWTSecret)
	auditService := service.NewAuditService(auditRepo)
	catalogService := service.NewCatalogService(categoryRepo, salesOrderRepo, auditRepo, txManager)
	sequenceService := service.NewSequenceService(configRepo, categoryRepo, machineRepo, auditRepo, txManager)
	approvalService := service.NewApprovalService(approvalRepo, machineRepo, salesOrderRepo, roleRepo, auditRepo,
		sequenceService, notifier, txManager, settings)
	machineService := service.NewMachineService(machineRepo, salesOrderRepo, approvalRepo, auditRepo,
		approvalService, sequenceService, txManager, settings)
	statisticsService := service.NewStatisticsService(db)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), metrics.PrometheusMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, []byte(cfg.Auth.JWTSecret))
	})

	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret)
	api := router.Group("/api", auth.RequireAuth())
	handler.NewSequenceHandler(sequenceService, cfg.Approval.AdminRole).RegisterRoutes(api)
	handler.NewApprovalHandler(approvalService).RegisterRoutes(api)
	handler.NewMachineHandler(machineService).RegisterRoutes(api)
	handler.NewCatalogHandler(catalogService, cfg.Approval.AdminRole).RegisterRoutes(api)
	handler.NewAuditHandler(auditService, cfg.Approval.AdminRole, model.RoleManager).RegisterRoutes(api)
	handler.NewUserHandler(userService, cfg.Approval.AdminRole).RegisterRoutes(api)
	handler.NewRoleHandler(roleService).RegisterRoutes(api)
	handler.NewStatisticsHandler(statisticsService, cfg.Approval.AdminRole, model.RoleManager).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	pool.Shutdown(5 * time.Second)
	wsHub.Stop()
}
