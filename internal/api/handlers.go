package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/chat-sync/internal/auth"
	"github.com/fathima-sithara/chat-sync/internal/chat"
	"github.com/fathima-sithara/chat-sync/internal/model"
)

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) signUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email, password and display_name are required"})
	}
	id, err := s.provider.SignUp(c.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		s.log.Errorw("sign up", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sign up failed"})
	}
	return s.tokenResponse(c, id)
}

func (s *Server) signIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	id, err := s.provider.SignIn(c.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		s.log.Errorw("sign in", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sign in failed"})
	}
	if s.cache != nil {
		_ = s.cache.TouchLastSeen(c.Context(), id.UID)
	}
	return s.tokenResponse(c, id)
}

func (s *Server) tokenResponse(c *fiber.Ctx, id *auth.Identity) error {
	access, exp, err := s.tokens.GenerateAccess(id.UID)
	if err != nil {
		s.log.Errorw("issue access token", "user_id", id.UID, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "token issue failed"})
	}
	return c.JSON(fiber.Map{
		"user":         id,
		"access_token": access,
		"expires_at":   exp,
	})
}

func (s *Server) signOut(c *fiber.Ctx) error {
	if err := s.provider.SignOut(c.Context()); err != nil {
		s.log.Errorw("sign out", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sign out failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	users, err := s.query.GetAllUsers(c.Context())
	if err != nil {
		s.log.Errorw("list users", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "fetch failed"})
	}
	return c.JSON(fiber.Map{"users": users})
}

type createRoomRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
	IsPrivate   bool     `json:"is_private"`
}

func (s *Server) createRoom(c *fiber.Ctx) error {
	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	id, err := s.chat.CreateRoom(c.Context(), chat.RoomSpec{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   userID(c),
		Members:     req.Members,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		s.log.Errorw("create room", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "create failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"room_id": id})
}

func (s *Server) listMyRooms(c *fiber.Ctx) error {
	rooms, err := s.query.GetRoomsByMember(c.Context(), userID(c))
	if err != nil {
		s.log.Errorw("list rooms", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "fetch failed"})
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

func (s *Server) listPublicRooms(c *fiber.Ctx) error {
	rooms, err := s.query.GetPublicRooms(c.Context())
	if err != nil {
		s.log.Errorw("list public rooms", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "fetch failed"})
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

type directChatRequest struct {
	PeerID string `json:"peer_id"`
	Name   string `json:"name"`
}

func (s *Server) startDirectChat(c *fiber.Ctx) error {
	var req directChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.PeerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "peer_id is required"})
	}
	id, err := s.chat.StartDirectChat(c.Context(), userID(c), req.PeerID, req.Name)
	if err != nil {
		s.log.Errorw("start direct chat", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "create failed"})
	}
	return c.JSON(fiber.Map{"room_id": id})
}

func (s *Server) getRoom(c *fiber.Ctx) error {
	room, err := s.query.GetRoomByID(c.Context(), c.Params("room_id"))
	if err != nil {
		s.log.Errorw("get room", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "fetch failed"})
	}
	if room == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
	}
	return c.JSON(room)
}

func (s *Server) listRoomMessages(c *fiber.Ctx) error {
	msgs, err := s.query.GetMessagesByRoom(c.Context(), c.Params("room_id"), s.messageLimit(c))
	if err != nil {
		s.log.Errorw("list room messages", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "fetch failed"})
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) listUserMessages(c *fiber.Ctx) error {
	msgs, err := s.query.GetMessagesByUser(c.Context(), c.Params("user_id"), s.messageLimit(c))
	if err != nil {
		s.log.Errorw("list user messages", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "fetch failed"})
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

type sendMessageRequest struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	Type    string `json:"type"`
	FileURL string `json:"file_url"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.RoomID == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "room_id and content are required"})
	}
	id, err := s.chat.SendMessage(c.Context(), req.RoomID, userID(c), req.Content, req.Type, req.FileURL)
	if err != nil {
		s.log.Errorw("send message", "room_id", req.RoomID, "message_id", id, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "send failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message_id": id})
}

// provisionIndexes triggers the out-of-band build of the composite indexes
// the ordered message queries want. Until this has run, those queries serve
// through the unordered fallback.
func (s *Server) provisionIndexes(c *fiber.Ctx) error {
	for _, fields := range [][]string{
		{"room_id", "created_at"},
		{"sender_id", "created_at"},
	} {
		if err := s.store.ProvisionIndex(c.Context(), model.CollectionMessages, fields...); err != nil {
			s.log.Errorw("provision index", "fields", fields, "err", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"error":   "failed to create indexes",
			})
		}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "index creation triggered",
	})
}

func (s *Server) messageLimit(c *fiber.Ctx) int64 {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return int64(s.cfg.Query.MessageLimit)
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}
