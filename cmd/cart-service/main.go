package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clynova/cantabria-cart/internal/api"
	"github.com/clynova/cantabria-cart/internal/cart"
	"github.com/clynova/cantabria-cart/internal/config"
	cartHttp "github.com/clynova/cantabria-cart/internal/handler/http"
	"github.com/clynova/cantabria-cart/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Info().Msg("Starting cart-service...")

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	store, err := storage.NewBoltStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local storage")
	}

	client := api.NewClient(api.Config{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.RemoteTimeout(),
		Token:   func() string { return cfg.Remote.Token },
	})

	engine := cart.New(cart.Config{
		API:         client,
		Store:       store,
		SettleDelay: cfg.SettleDelay(),
	})

	// Establish the initial cart state for the session.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Reconcile(startupCtx, cfg.Remote.Token != ""); err != nil {
		log.Warn().Err(err).Msg("Initial cart reconciliation failed")
	}
	cancelStartup()

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	cartHttp.NewCartHandler(engine, client).RegisterRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown failed")
	}

	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close local storage")
	}

	log.Info().Msg("Cart-service stopped gracefully.")
}
