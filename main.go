package main

//go:generate swag init --output docs --outputTypes json,yaml

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learnedge/api"
	"learnedge/cache"
	"learnedge/config"
	"learnedge/db"
	"learnedge/logger"
	"learnedge/payment"
	"learnedge/progress"
	"learnedge/purchase"

	"github.com/gin-gonic/gin"
)

// @title           LearnEdge API
// @version         1.0.0

// @description     ## LearnEdge API
// @description
// @description     LearnEdge is a course marketplace. Instructors publish courses made of sections and lectures,
// @description     students browse the catalog, buy courses through a payment processor and track their progress.
// @description
// @description     **Roles:** accounts are either `user` (students) or `instructor`. `/instructor/*` routes need the instructor role.
// @description
// @description     **Purchasing:**
// @description     1.  `POST /student/order/create` with a `course_id` returns an `approve_url`.
// @description     2.  The buyer approves the payment with the processor and is sent back to the client.
// @description     3.  `POST /student/order/capture` with the `order_id`, `payment_id` and `payer_id` grants the course.
// @description
// @description     **Responses:** every body is `{"success": bool, "message": string, "data": any}`.

// @license.name  MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		stdlog.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}

	// --- Logging ---
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		stdlog.Fatalf("CRITICAL: Failed to initialize logger: %v", err)
	}
	defer log.Sync()
	for _, warning := range cfg.Warnings {
		log.Warn(warning)
	}
	log.Info("configuration loaded", cfg.Fields()...)

	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Error("CRITICAL: "+err.Error(), "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Database ---
	store, err := db.Open(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing store failed", "error", err)
		}
	}()

	// --- Payments ---
	gateway, err := payment.NewGateway(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize payment gateway: %w", err)
	}

	// --- Entitlement cache ---
	entitlements := cache.NewDirect(store)
	if cfg.RedisAddr != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		entitlements = cache.NewRedis(rdb, store, cfg.EntitlementTTL, log)
		log.Info("entitlement cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.EntitlementTTL)
	}

	router := api.NewRouter(&api.Deps{
		Store:        store,
		Config:       cfg,
		Log:          log,
		Entitlements: entitlements,
		Purchases:    purchase.NewService(store, gateway, entitlements, cfg, log),
		Progress:     progress.NewService(store, entitlements, log),
	})

	// --- Start Server ---
	listenAddr := net.JoinHostPort(cfg.ListenAddress, cfg.ListenPort)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "address", listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
