// Command server runs the feed API: posts, likes, comments, preferences
// and the websocket event stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sujalbistaa/feedsync/internal/config"
	"github.com/sujalbistaa/feedsync/internal/db"
	routes "github.com/sujalbistaa/feedsync/internal/http"
	"github.com/sujalbistaa/feedsync/internal/logging"
	"github.com/sujalbistaa/feedsync/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// A missing .env is normal in production.
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Debug("no .env file found, reading from environment")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server exiting")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	database, err := db.Open(cfg.Server.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	logger.Info("running database migrations")
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := ws.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	if cfg.Server.AdminToken == "" {
		logger.Warn("server.admin_token is not set, admin routes are disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	routes.SetupRoutes(ctx, router, routes.Options{
		DB:          database,
		Hub:         hub,
		Logger:      logger.Named("http"),
		Metrics:     routes.NewMetrics(),
		CORSOrigin:  cfg.Server.CORSOrigin,
		AdminToken:  cfg.Server.AdminToken,
		CreateRPS:   cfg.Server.CreateRPS,
		CreateBurst: cfg.Server.CreateBurst,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}
