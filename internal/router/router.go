package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-messenger/internal/config"
	"github.com/noah-isme/gema-messenger/internal/handler"
	"github.com/noah-isme/gema-messenger/internal/middleware"
	"github.com/noah-isme/gema-messenger/internal/observability"
)

// Operator roles allowed to trigger maintenance routes.
var operatorRoles = []string{"admin", "operator"}

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	DB                  *gorm.DB
	Redis               *redis.Client
	Gatherer            prometheus.Gatherer
	ConversationHandler *handler.ConversationHandler
	MessageHandler      *handler.MessageHandler
	PollHandler         *handler.PollHandler
	ScheduledHandler    *handler.ScheduledHandler
	RealtimeHandler     *handler.RealtimeHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler(deps.Gatherer))

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.DB, deps.Redis))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.ConversationHandler != nil {
		sendLimiter := middleware.RateLimit("message_send", cfg.MessagesPerSecond, time.Second)
		deps.ConversationHandler.Register(api.Group("/conversations", jwtMiddleware), sendLimiter)
	}

	if deps.MessageHandler != nil {
		deps.MessageHandler.Register(api.Group("/messages", jwtMiddleware))
	}

	if deps.PollHandler != nil {
		deps.PollHandler.Register(api.Group("/polls", jwtMiddleware))
	}

	if deps.ScheduledHandler != nil {
		deps.ScheduledHandler.Register(api.Group("/scheduled", jwtMiddleware))
		deps.ScheduledHandler.RegisterOps(api.Group("/ops", jwtMiddleware), middleware.RequireRole(operatorRoles...))
	}

	if deps.RealtimeHandler != nil {
		deps.RealtimeHandler.Register(api.Group("/realtime", jwtMiddleware))
		deps.RealtimeHandler.RegisterPresence(api.Group("/presence", jwtMiddleware))
	}
}
