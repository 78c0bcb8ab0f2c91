// Package routes defines the API routing configuration.
// It sets up the HTTP routes of both services and their middleware.
package routes

import (
	"time"

	"wallettx/internal/handlers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// AppConfig tunes the shared fiber app.
type AppConfig struct {
	Name         string
	AllowOrigins string
	// AccessLog enables fiber's request logger.
	AccessLog bool
}

// NewApp creates the fiber app with the middleware every service uses.
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
	})

	origins := cfg.AllowOrigins
	if origins == "" {
		origins = "http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD",
	}))

	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	return app
}

// TransactionRoutes are the handlers of the transaction service.
type TransactionRoutes struct {
	Transfers *handlers.TransferHandler
	Health    *handlers.HealthHandler
	Auth      fiber.Handler
}

func SetupTransactionRoutes(app *fiber.App, r TransactionRoutes) {
	app.Get("/health", r.Health.HealthCheck)

	api := app.Group("/api", r.Auth)

	transfers := api.Group("/transfers")
	transfers.Post("/", limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	}), r.Transfers.Create)
	transfers.Get("/", r.Transfers.List)
	transfers.Get("/:id", r.Transfers.Get)
}

// WalletRoutes are the handlers of the wallet service.
type WalletRoutes struct {
	Wallets     *handlers.WalletHandler
	Accounts    *handlers.AccountHandler
	Health      *handlers.HealthHandler
	Auth        fiber.Handler
	ServiceAuth fiber.Handler
}

func SetupWalletRoutes(app *fiber.App, r WalletRoutes) {
	app.Get("/health", r.Health.HealthCheck)

	internal := app.Group("/internal", r.ServiceAuth)
	internal.Get("/accounts/resolve", r.Accounts.Resolve)

	api := app.Group("/api", r.Auth)
	api.Get("/wallets/me", r.Wallets.GetWallet)
	api.Get("/wallets/me/entries", r.Wallets.GetEntries)
}
