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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storefront/internal/backend"
	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/events"
	"storefront/internal/httpserver"
	"storefront/internal/logging"
	"storefront/internal/session"
	"storefront/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	db, err := store.Open(cfg.StateDB)
	if err != nil {
		log.Fatalf("state db init error: %v", err)
	}

	var publisher events.Publisher = events.Nop{}
	var kafkaProd *events.KafkaProducer
	if cfg.KafkaAddress != "" {
		kafkaProd = events.NewKafkaProducer(cfg.KafkaAddress)
		publisher = kafkaProd
	}

	// The client reads the token through the session store, which is built
	// right after it.
	var sessions *session.Store
	client := backend.NewClient(cfg.BackendURL, func() string { return sessions.Token() })

	repo := &store.SessionRepo{DB: db}
	sessions = session.New(client, repo, publisher)
	cartStore := cart.New(client, sessions, publisher)
	workflow := checkout.New(cartStore, client, publisher)

	startCtx, startCancel := context.WithTimeout(logging.IntoContext(context.Background(), logger), 10*time.Second)
	if err := sessions.Hydrate(startCtx); err != nil {
		logger.Error("session hydration failed, starting logged out", "error", err)
	}
	if sessions.Authenticated() {
		if err := cartStore.Refresh(startCtx); err != nil {
			logger.Error("initial cart refresh failed", "error", err)
		}
	}
	startCancel()

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(logging.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		Backend:  client,
		Sessions: sessions,
		Cart:     cartStore,
		Checkout: workflow,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	logger.Info("storefront listening", "addr", cfg.ListenAddr, "backend", cfg.BackendURL)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if kafkaProd != nil {
		if err := kafkaProd.Close(); err != nil {
			log.Printf("kafka close error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
