package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zoranhorsy/reboul-checkout/config"
	"github.com/zoranhorsy/reboul-checkout/internal/catalog"
	"github.com/zoranhorsy/reboul-checkout/internal/database"
	"github.com/zoranhorsy/reboul-checkout/internal/handlers"
	"github.com/zoranhorsy/reboul-checkout/internal/jobs"
	"github.com/zoranhorsy/reboul-checkout/internal/logging"
	"github.com/zoranhorsy/reboul-checkout/internal/middleware"
	"github.com/zoranhorsy/reboul-checkout/internal/payments"
	"github.com/zoranhorsy/reboul-checkout/internal/services"
	"github.com/zoranhorsy/reboul-checkout/internal/telemetry"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.IsDevelopment())

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logging.Logger().Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	if err := middleware.InitMetrics(); err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize metrics")
	}

	db, err := database.Connect(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to run database migrations")
	}

	redisAddr := parseRedisAddr(cfg.RedisURL)
	jobClient, err := jobs.NewClient(redisAddr)
	if err != nil {
		logging.Logger().Fatal().Err(err).Msg("failed to create job client")
	}
	defer jobClient.Close()

	provider := payments.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	catalogClient := catalog.NewClient(cfg.CatalogURL, cfg.CornerCatalogURL)
	classifier := services.NewStoreClassifier(catalogClient, cfg.StoreCacheTTL)

	checkoutService := services.NewCheckoutService(db, provider, classifier, cfg.AppURL, cfg.Currency, cfg.CornerAccountID)
	stockService := services.NewStockService(db, cfg.ReservationTTL)
	settlementService := services.NewSettlementService(db, provider, cfg.CornerAccountID, cfg.Currency)
	notificationService := services.NewNotificationService(db, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailFrom)
	webhookService := services.NewWebhookService(db, jobClient)

	healthHandler := handlers.NewHealthHandler(db, redisAddr)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	stockHandler := handlers.NewStockHandler(stockService)
	paymentHandler := handlers.NewPaymentHandler(settlementService)
	orderHandler := handlers.NewOrderHandler(notificationService)
	webhookHandler := handlers.NewWebhookHandler(provider, webhookService)

	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(otelecho.Middleware(cfg.OTelServiceName, otelecho.WithSkipper(func(c echo.Context) bool {
		return c.Path() == "/api/health"
	})))
	e.Use(middleware.Metrics())
	e.HTTPErrorHandler = middleware.ErrorHandler

	if cfg.IsDevelopment() {
		e.Use(echomiddleware.Logger())
	}

	api := e.Group("/api")

	api.GET("/health", healthHandler.Check)

	api.POST("/checkout/create-multi-store-session", checkoutHandler.CreateMultiStoreSession)
	api.GET("/checkout/session/:id", checkoutHandler.GetSession)

	api.POST("/stock/reserve", stockHandler.Reserve)
	api.DELETE("/stock/reserve", stockHandler.Release)
	api.POST("/stock/commit", stockHandler.Commit)

	api.POST("/payment/capture", paymentHandler.Capture)
	api.POST("/payment/transfer", paymentHandler.Transfer)

	api.POST("/orders/send-email", orderHandler.SendEmail)

	api.POST("/webhooks/stripe", webhookHandler.Receive)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		logging.Logger().Info().Str("port", cfg.Port).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logging.Logger().Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger().Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logging.Logger().Error().Err(err).Msg("failed to shutdown server")
	}
}

func parseRedisAddr(redisURL string) string {
	if len(redisURL) > 8 && redisURL[:8] == "redis://" {
		return redisURL[8:]
	}
	return redisURL
}
