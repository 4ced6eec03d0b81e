package routes

import (
	"time"

	"github.com/avdeevsm/blogger-backend/internal/config"
	"github.com/avdeevsm/blogger-backend/internal/handlers"
	"github.com/avdeevsm/blogger-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Auth endpoints carry a stricter limit: 20 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               20,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh-token", authHandler.Refresh)
	auth.Post("/logout", authHandler.Logout)
	auth.Get("/me", middleware.JWTProtected(cfg), authHandler.Me)

	auth.Post("/registration", authHandler.Register)
	auth.Post("/registration-confirmation", authHandler.ConfirmRegistration)
	auth.Post("/registration-email-resending", authHandler.ResendConfirmation)
	auth.Post("/password-recovery", authHandler.PasswordRecovery)
	auth.Post("/new-password", authHandler.NewPassword)
}
