package routes

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/example/saukimart/internal/config"
	"github.com/example/saukimart/internal/handlers"
	"github.com/example/saukimart/internal/middleware"
	"github.com/example/saukimart/internal/services"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Config       *config.Config
	Logger       *slog.Logger
	Transactions *services.GormTransactionStore
	Catalog      *services.CatalogStore
	Initiator    *services.PaymentInitiator
	Reconciler   services.TransactionReconciler
	Topups       *services.ManualTopupService
	Payments     *services.FlutterwaveClient
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Dependencies) {
	cfg := deps.Config

	transactionHandler := handlers.NewTransactionHandler(deps.Initiator, deps.Reconciler, deps.Transactions, deps.Logger)
	webhookHandler := handlers.NewWebhookHandler(deps.Reconciler, deps.Logger)
	adminHandler := handlers.NewAdminHandler(deps.Transactions, deps.Reconciler, deps.Topups, deps.Payments, deps.Logger)
	catalogHandler := handlers.NewCatalogHandler(deps.Catalog)

	admin := middleware.AdminAuthMiddleware(cfg)

	api := app.Group("/api")

	// Storefront payments
	api.Post("/data/initiate-payment", transactionHandler.InitiateDataPayment)
	api.Post("/ecommerce/initiate-payment", transactionHandler.InitiateEcommercePayment)
	api.Post("/transactions/verify", verifyLimiter(cfg.VerifyRateLimit), transactionHandler.Verify)
	api.Get("/transactions/track", transactionHandler.Track)

	api.Post("/webhook/:gateway",
		middleware.WebhookSignatureMiddleware(cfg.FlutterwaveWebhookSecret, deps.Logger),
		webhookHandler.Handle,
	)

	// Catalog
	api.Get("/data-plans", catalogHandler.ListDataPlans)
	api.Post("/data-plans", admin, catalogHandler.CreateDataPlan)
	api.Put("/data-plans/:id", admin, catalogHandler.UpdateDataPlan)
	api.Delete("/data-plans/:id", admin, catalogHandler.DeleteDataPlan)

	api.Get("/products", catalogHandler.ListProducts)
	api.Post("/products", admin, catalogHandler.CreateProduct)
	api.Put("/products/:id", admin, catalogHandler.UpdateProduct)
	api.Delete("/products/:id", admin, catalogHandler.DeleteProduct)

	api.Get("/system/message", catalogHandler.GetSystemMessage)
	api.Post("/system/message", admin, catalogHandler.PublishSystemMessage)

	// Admin
	adminGroup := api.Group("/admin", admin)
	adminGroup.Post("/auth", adminHandler.Auth)
	adminGroup.Get("/transactions", adminHandler.ListTransactions)
	adminGroup.Post("/transactions/retry", adminHandler.Retry)
	adminGroup.Post("/transactions/unlock", adminHandler.Unlock)
	adminGroup.Post("/transactions/update", adminHandler.UpdateStatus)
	adminGroup.Post("/manual-topup", adminHandler.ManualTopup)
	adminGroup.Post("/console/flutterwave", adminHandler.FlutterwaveConsole)
}

// verifyLimiter bounds status polling per client.
func verifyLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many status checks, slow down")
		},
	})
}
