package api

import (
	"github.com/fathima-sithara/conversation-service/internal/metrics"
	"github.com/fathima-sithara/conversation-service/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

type Options struct {
	AllowedOrigins   string
	AccessLog        bool
	TypingLimiter    Limiter
	HeartbeatLimiter Limiter
}

func NewServer(h *Handlers, wsrv *ws.Server, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(logger.New())
	}
	if opts.AllowedOrigins == "" {
		opts.AllowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if wsrv != nil {
		app.Use("/ws", h.requireWSAuth)
		app.Get("/ws", websocket.New(wsrv.HandleWS))
	}

	api := app.Group("/v1", h.requireAuth)

	api.Get("/me", h.getMe)
	api.Put("/me", h.putMe)
	api.Get("/users", h.searchUsers)

	api.Get("/conversations", h.listConversations)
	api.Post("/conversations/direct", h.openOrCreateDirect)
	api.Get("/conversations/:id", h.openConversation)
	api.Get("/conversations/:id/members", h.listMembers)
	api.Post("/conversations/:id/read", h.markRead)
	api.Get("/conversations/:id/messages", h.listMessages)
	api.Post("/conversations/:id/messages", h.sendMessage)

	typing := []fiber.Handler{}
	if opts.TypingLimiter != nil {
		typing = append(typing, rateLimit(opts.TypingLimiter, "typing", h.log))
	}
	api.Put("/conversations/:id/typing", append(typing, h.setTyping)...)
	api.Get("/conversations/:id/typing", h.listTypingUsers)

	beat := []fiber.Handler{}
	if opts.HeartbeatLimiter != nil {
		beat = append(beat, rateLimit(opts.HeartbeatLimiter, "heartbeat", h.log))
	}
	api.Post("/presence/heartbeat", append(beat, h.heartbeat)...)
	api.Get("/presence", h.onlineStatus)

	return app
}
