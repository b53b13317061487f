package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docsync-api/internal/auth"
	"docsync-api/internal/config"
	"docsync-api/internal/database"
	"docsync-api/internal/handlers"
	"docsync-api/internal/logging"
	"docsync-api/internal/realtime"
	"docsync-api/internal/routes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	logger, err := logging.Init(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	} else if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Init database
	if err := database.InitDB(cfg.DBPath, database.LogLevel(cfg.LogLevel)); err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	verifier := auth.NewVerifier(tokens, cfg.IdentityCacheTTL)
	go verifier.Run(ctx)

	broker := realtime.NewBroker(logger.Named("broker"), cfg.SendBuffer)

	// Setup the routes (public and protected routes)
	ginRoutes := routes.SetupRoutes(routes.Deps{
		Broker:   broker,
		Verifier: verifier,
		WS: handlers.WSOptions{
			HeartbeatTimeout: cfg.HeartbeatTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			MaxMessageBytes:  cfg.MaxMessageBytes,
		},
		Log: logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           ginRoutes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppEnv),
			zap.Strings("endpoints", []string{
				"POST   /api/login",
				"GET    /api/me",
				"GET    /api/documents",
				"POST   /api/documents",
				"GET    /api/documents/:id",
				"DELETE /api/documents/:id",
				"POST   /api/rooms",
				"GET    /api/rooms/:code/members",
				"GET    /ws?token=",
				"GET    /stats",
				"GET    /metrics",
				"GET    /health",
			}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// stop accepting upgrades first; hijacked websockets are then closed by the broker
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	broker.Shutdown()
	logger.Info("Server exited")
}
