// Package main запускает HTTP-сервер сервиса голд-леджер.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swedenfix/goldledger/internal/config"
	"github.com/swedenfix/goldledger/internal/events"
	"github.com/swedenfix/goldledger/internal/handler"
	"github.com/swedenfix/goldledger/internal/middleware"
	"github.com/swedenfix/goldledger/internal/notify"
	"github.com/swedenfix/goldledger/internal/repository"
	"github.com/swedenfix/goldledger/internal/service"
	"github.com/swedenfix/goldledger/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var notifier notify.Notifier = notify.NewNopNotifier(logger)
	if cfg.GatewayAddress != "" {
		notifier = notify.NewGatewayClient(cfg.GatewayAddress, logger)
	}

	var sessions session.Store = session.NewMemoryStore(cfg.SessionTTL)
	if cfg.RedisAddress != "" {
		rdb, err := session.Connect(ctx, cfg.RedisAddress)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
	}

	var publisher *events.Publisher
	if cfg.NatsURL != "" {
		nc, err := events.Connect(cfg.NatsURL)
		if err != nil {
			sugar.Fatalw("NATS initialization error", "error", err.Error())
		}
		defer nc.Close()
		publisher = events.NewPublisher(nc, logger)
	}

	svc := service.NewService(repo, notifier, publisher, cfg.AdminIDs, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, sessions)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting goldledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
