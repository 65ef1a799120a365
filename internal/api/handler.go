package api

import (
	"context"
	"strings"
	"time"

	"github.com/fathima-sithara/conversation-service/internal/auth"
	"github.com/fathima-sithara/conversation-service/internal/service"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

type Handlers struct {
	svc      *service.Service
	verifier *auth.Verifier
	log      *zap.Logger
}

func NewHandlers(svc *service.Service, v *auth.Verifier, log *zap.Logger) *Handlers {
	return &Handlers{svc: svc, verifier: v, log: log}
}

func (h *Handlers) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

func (h *Handlers) getMe(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	u, err := h.svc.Me(ctx, currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": u})
}

func (h *Handlers) putMe(c *fiber.Ctx) error {
	var req service.Profile
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	id, err := h.svc.UpsertProfile(ctx, currentIdentity(c), req)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "user_id": id})
}

func (h *Handlers) searchUsers(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	users, err := h.svc.SearchUsers(ctx, currentUser(c), c.Query("search"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": users})
}

func (h *Handlers) listConversations(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	convs, err := h.svc.ListConversations(ctx, currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": convs})
}

func (h *Handlers) openOrCreateDirect(c *fiber.Ctx) error {
	var req struct {
		OtherUserID string `json:"other_user_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.OtherUserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "other_user_id required"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	id, err := h.svc.OpenOrCreateDirect(ctx, currentUser(c), req.OtherUserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "conversation_id": id})
}

func (h *Handlers) openConversation(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	view, err := h.svc.OpenConversation(ctx, c.Params("id"), currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": view})
}

func (h *Handlers) listMembers(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	members, err := h.svc.ListMembers(ctx, c.Params("id"), currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": members})
}

func (h *Handlers) markRead(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.svc.MarkRead(ctx, c.Params("id"), currentUser(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) listMessages(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	msgs, err := h.svc.ListMessages(ctx, c.Params("id"), currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": msgs})
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	msg, err := h.svc.SendMessage(ctx, c.Params("id"), currentUser(c), req.Body)
	if err != nil {
		return h.fail(c, err)
	}
	if msg == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "ok", "data": msg})
}

func (h *Handlers) setTyping(c *fiber.Ctx) error {
	var req struct {
		Typing bool  `json:"typing"`
		TTLMs  int64 `json:"ttl_ms"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	var err error
	if req.Typing {
		err = h.svc.SetTyping(ctx, c.Params("id"), currentUser(c), time.Duration(req.TTLMs)*time.Millisecond)
	} else {
		err = h.svc.ClearTyping(ctx, c.Params("id"), currentUser(c))
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) listTypingUsers(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	ids, err := h.svc.ListTypingUsers(ctx, c.Params("id"), currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": ids})
}

func (h *Handlers) heartbeat(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	id, err := h.svc.Heartbeat(ctx, currentUser(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "presence_id": id})
}

func (h *Handlers) onlineStatus(c *fiber.Ctx) error {
	ids := []string{}
	for _, id := range strings.Split(c.Query("user_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	st, err := h.svc.OnlineStatus(ctx, currentUser(c), ids)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok", "data": st})
}
