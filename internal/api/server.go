package api

import (
	"context"

	"github.com/fathima-sithara/mailbox-service/internal/auth"
	"github.com/fathima-sithara/mailbox-service/internal/metrics"
	"github.com/fathima-sithara/mailbox-service/internal/presence"
	"github.com/fathima-sithara/mailbox-service/internal/redis"
	"github.com/fathima-sithara/mailbox-service/internal/service"
	"github.com/fathima-sithara/mailbox-service/internal/storage"
	"github.com/fathima-sithara/mailbox-service/internal/utils"
	"github.com/fathima-sithara/mailbox-service/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// PresenceReader answers for users connected to other replicas.
type PresenceReader interface {
	GetPresence(ctx context.Context, user string) (redis.Presence, error)
}

type Deps struct {
	Service   *service.MessageService
	Validator *auth.JWTValidator
	WS        *ws.Server
	Registry  *presence.Registry
	Mirror    PresenceReader
	Files     storage.FileStore
	LocalDir  string
	Gatherer  prometheus.Gatherer
	BodyLimit int
	Limiter   *UserRateLimiter
	Log       *zap.SugaredLogger
}

func NewServer(d Deps) *fiber.App {
	limit := d.BodyLimit
	if limit <= 0 {
		limit = 32 * 1024 * 1024
	}
	app := fiber.New(fiber.Config{BodyLimit: limit, DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New())

	h := NewHandlers(d.Service, d.Registry, d.Mirror, d.Files, d.Log)

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(d.Gatherer)))
	}
	if d.LocalDir != "" {
		app.Static("/files", d.LocalDir)
	}

	v1 := app.Group("/v1", authMiddleware(d.Validator))

	if d.WS != nil {
		v1.Get("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		}, websocket.New(d.WS.Handler()))
	}

	throttle := func(c *fiber.Ctx) error { return c.Next() }
	if d.Limiter != nil {
		throttle = d.Limiter.Handler()
	}
	v1.Post("/messages/send/:id", throttle, h.sendMessage)
	v1.Post("/messages/upload/:id", throttle, h.uploadImages)
	v1.Get("/messages/:id", h.getMessages)
	v1.Delete("/messages/:msgId", h.deleteMessages)
	v1.Get("/conversations", h.conversations)
	v1.Post("/block/:id", h.block)
	v1.Put("/fcm/register", h.registerToken)
	v1.Delete("/fcm/token", h.deleteToken)
	v1.Get("/presence/:id", h.presence)
	v1.Get("/files/+", h.fileURL)

	return app
}

// authMiddleware accepts a bearer header, or a token query parameter for
// websocket clients that cannot set headers.
func authMiddleware(jv *auth.JWTValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if hdr := c.Get(fiber.HeaderAuthorization); hdr != "" {
			t, err := auth.ParseBearerToken(hdr)
			if err != nil {
				return utils.JSONError(c, fiber.StatusUnauthorized, err.Error())
			}
			token = t
		}
		if token == "" {
			return utils.JSONError(c, fiber.StatusUnauthorized, "missing auth")
		}
		sub, err := jv.Validate(token)
		if err != nil {
			return utils.JSONError(c, fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals("user_id", sub)
		return c.Next()
	}
}
