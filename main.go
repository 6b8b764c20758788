package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/estofados/storefront/internal/api"
	"github.com/estofados/storefront/internal/app"
	"github.com/estofados/storefront/internal/logger"
	"github.com/estofados/storefront/internal/metrics"
	"github.com/estofados/storefront/internal/tokenstore"
	"github.com/estofados/storefront/pkg/config"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogLevel)

	// Initialize OpenTelemetry metrics
	ctx := context.Background()
	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("error shutting down meter provider", slog.String("error", err.Error()))
		}
	}()

	// Durable token storage
	store, closeStore, err := tokenstore.Open(ctx, cfg, appMetrics, meterProvider)
	if err != nil {
		log.Error("failed to open token store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("error closing token store", slog.String("error", err.Error()))
		}
	}()

	// Application state
	core := app.New(cfg, store, appMetrics, log)
	bootTimeout := 2 * cfg.StoreAPITimeout
	if bootTimeout <= 0 {
		bootTimeout = 30 * time.Second
	}
	bootCtx, cancelBoot := context.WithTimeout(ctx, bootTimeout)
	core.Bootstrap(bootCtx)
	cancelBoot()

	// Setup router
	router := mux.NewRouter()
	api.NewApp(core).SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GetAppPortInt()),
		Handler:      otelhttp.NewHandler(router, "storefront-gateway"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting",
			slog.String("port", cfg.AppPort),
			slog.String("store_api", cfg.StoreAPIURL),
			slog.String("token_store", cfg.TokenStore),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	log.Info("server exited")
}
