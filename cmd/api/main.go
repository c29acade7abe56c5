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

	"fundiplus/auth"
	"fundiplus/config"
	"fundiplus/db"
	"fundiplus/logger"
	"fundiplus/professional"
	"fundiplus/rating"
	"fundiplus/servicerequest"
	"fundiplus/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fundiplus api: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting fundiplus api", "addr", cfg.HTTPAddr, "log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		version, err := db.Migrate(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		logger.Info("database migrated", "version", version)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	docs, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	professionals := professional.NewService(professional.NewRepository(pool), docs)
	server := &Server{
		authService:         auth.NewService(auth.NewRepository(pool), cfg.JWTSecret).WithTokenTTL(cfg.TokenTTL),
		professionalService: professionals,
		requestService: servicerequest.NewManager(
			servicerequest.NewStore(pool),
			professionals,
			rating.NewLedger(pool),
		),
		db:             pool,
		maxUploadBytes: cfg.MaxUploadBytes,
		requestTimeout: cfg.RequestTimeout,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
