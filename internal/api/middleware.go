package api

import (
	"github.com/fathima-sithara/conversation-service/internal/auth"
	"github.com/fathima-sithara/conversation-service/internal/domain"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	localUserID   = "user_id"
	localIdentity = "identity"
)

func currentUser(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

func currentIdentity(c *fiber.Ctx) *domain.Identity {
	ident, _ := c.Locals(localIdentity).(*domain.Identity)
	return ident
}

// authenticate verifies the token, resolves the caller to a user record and
// stores both in Locals.
func (h *Handlers) authenticate(token string, c *fiber.Ctx) error {
	ident, err := h.verifier.Verify(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	u, err := h.svc.ResolveUser(c.UserContext(), ident)
	if err != nil {
		return h.fail(c, err)
	}
	c.Locals(localIdentity, ident)
	c.Locals(localUserID, u.ID)
	return c.Next()
}

func (h *Handlers) requireAuth(c *fiber.Ctx) error {
	hdr := c.Get("Authorization")
	if hdr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth"})
	}
	token, ok := auth.BearerToken(hdr)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid auth"})
	}
	return h.authenticate(token, c)
}

// requireWSAuth guards the upgrade. Browsers cannot set headers on a
// websocket handshake, so the token may also come from the query string.
func (h *Handlers) requireWSAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		t, ok := auth.BearerToken(c.Get("Authorization"))
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth"})
		}
		token = t
	}
	return h.authenticate(token, c)
}
