package api

import (
	"context"
	"fmt"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/auth"
	"github.com/fathima-sithara/chat-sync/internal/cache"
	"github.com/fathima-sithara/chat-sync/internal/chat"
	"github.com/fathima-sithara/chat-sync/internal/config"
	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/query"
	"github.com/fathima-sithara/chat-sync/internal/store"
)

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	log      *zap.SugaredLogger
	store    store.Store
	query    *query.Layer
	chat     *chat.Service
	provider auth.Provider
	tokens   *auth.TokenManager
	cache    *cache.Client
}

func NewServer(cfg *config.Config, log *zap.SugaredLogger, st store.Store, qry *query.Layer,
	chatSvc *chat.Service, provider auth.Provider, tokens *auth.TokenManager, presence *cache.Client) *Server {

	s := &Server{
		app:      fiber.New(),
		cfg:      cfg,
		log:      log,
		store:    st,
		query:    qry,
		chat:     chatSvc,
		provider: provider,
		tokens:   tokens,
		cache:    presence,
	}

	s.app.Use(recover.New())
	s.app.Use(fiberlogger.New())

	v1 := s.app.Group("/v1")
	v1.Post("/auth/signup", s.signUp)
	v1.Post("/auth/signin", s.signIn)

	// ws authenticates from its token query param, ahead of the bearer
	// middleware
	v1.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	v1.Get("/ws", websocket.New(s.handleWS))

	v1.Use(AuthMiddleware(tokens))

	v1.Post("/auth/signout", s.signOut)
	v1.Get("/users", s.listUsers)
	v1.Get("/users/:user_id/messages", s.listUserMessages)
	v1.Post("/rooms", s.createRoom)
	v1.Get("/rooms", s.listMyRooms)
	v1.Get("/rooms/public", s.listPublicRooms)
	v1.Post("/rooms/direct", s.startDirectChat)
	v1.Get("/rooms/:room_id", s.getRoom)
	v1.Get("/rooms/:room_id/messages", s.listRoomMessages)
	v1.Post("/messages", s.sendMessage)

	// operational side-channel, not part of the runtime contract
	s.app.Post("/admin/indexes", s.provisionIndexes)
	if cfg.App.EnablePrometheus {
		s.app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}

	return s
}

func (s *Server) Listen() error {
	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.App.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
