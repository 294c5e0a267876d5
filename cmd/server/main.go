package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/harune/notify/internal/config"
	"github.com/harune/notify/internal/domain"
	"github.com/harune/notify/internal/handler"
	"github.com/harune/notify/internal/repository"
	"github.com/harune/notify/internal/sender"
	"github.com/harune/notify/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connected")

	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	readStateRepo := repository.NewReadStateRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	deliveryRepo := repository.NewDeliveryLogRepository(db)

	senders := map[domain.Channel]service.Sender{
		domain.ChannelEmail: sender.NewEmailSender(sender.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}),
		domain.ChannelPush: sender.NewPushSender(cfg.PushGatewayURL),
	}
	if cfg.SMSProviderURL != "" {
		senders[domain.ChannelSMS] = sender.NewSMSSender(cfg.SMSProviderURL, cfg.SMSAPIKey)
	}

	dispatcher := service.NewDispatcher(userRepo, preferenceRepo, deliveryRepo, notificationRepo, senders)
	reaper := service.NewReaper(notificationRepo)
	notificationSvc := service.NewNotificationService(notificationRepo, readStateRepo, deliveryRepo, dispatcher)
	preferenceSvc := service.NewPreferenceService(preferenceRepo)

	go dispatcher.Run(ctx, cfg.RetryInterval, cfg.RetryBatchLimit)
	go reaper.Run(ctx, cfg.ReapInterval)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewAppValidator()
	e.Use(echomw.RequestID())
	e.Use(handler.RequestLogger())
	e.Use(echomw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return handler.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api/v1", handler.JWTAuth([]byte(cfg.JWTSecret)))
	handler.NewNotificationHandler(notificationSvc, reaper).Register(api)
	handler.NewPreferenceHandler(preferenceSvc).Register(api)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port)
		errCh <- e.Start(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
