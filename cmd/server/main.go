package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/saukimart/internal/config"
	"github.com/example/saukimart/internal/database"
	"github.com/example/saukimart/internal/handlers"
	"github.com/example/saukimart/internal/routes"
	"github.com/example/saukimart/internal/services"
)

func main() {
	cfg := config.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	catalogCache := services.NoopCatalogCache()
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisCache, err := services.NewRedisCatalogCache(ctx, cfg.RedisURL, cfg.CatalogCacheTTL)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, catalog cache disabled", "error", err)
		} else {
			defer redisCache.Close()
			catalogCache = redisCache
		}
	}

	payments := services.NewFlutterwaveClient(
		cfg.FlutterwaveBaseURL,
		cfg.FlutterwaveSecretKey,
		cfg.CustomerEmail,
		cfg.VirtualAccountName,
		cfg.PaymentGatewayTimeout,
		log,
	)
	delivery, err := services.NewAmigoClient(cfg.AmigoBaseURL, cfg.AmigoAPIKey, cfg.OutboundProxyURL, cfg.DeliveryGatewayTimeout, log)
	if err != nil {
		log.Error("delivery gateway setup failed", "error", err)
		os.Exit(1)
	}
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, log)

	transactions := services.NewGormTransactionStore(db)
	catalog := services.NewCatalogStore(db, catalogCache, log)
	reconciler := services.NewReconciler(services.ReconcilerConfig{
		Store:         transactions,
		Plans:         catalog,
		Payments:      payments,
		Delivery:      delivery,
		Notifier:      telegram,
		Logger:        log.With("component", "reconciler"),
		RetryCooldown: cfg.DeliveryRetryCooldown,
	})

	app := fiber.New(fiber.Config{
		AppName:      "SaukiMart Backend",
		ErrorHandler: handlers.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, routes.Dependencies{
		Config:       cfg,
		Logger:       log,
		Transactions: transactions,
		Catalog:      catalog,
		Initiator:    services.NewPaymentInitiator(transactions, catalog, payments, log),
		Reconciler:   reconciler,
		Topups:       services.NewManualTopupService(transactions, catalog, delivery, telegram, log),
		Payments:     payments,
	})

	sweeper := services.NewPendingSweeper(transactions, reconciler, cfg.SweepMinAge, cfg.SweepMaxAge, log)
	if cfg.SweepInterval > 0 {
		if err := sweeper.Start(cfg.SweepInterval); err != nil {
			log.Error("pending sweep not started", "error", err)
		}
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		if err := sweeper.Shutdown(); err != nil {
			log.Warn("sweeper shutdown", "error", err)
		}
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Warn("http shutdown", "error", err)
		}
	}()

	log.Info("starting server", "port", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Error("fiber.Listen error", "error", err)
		os.Exit(1)
	}
}
