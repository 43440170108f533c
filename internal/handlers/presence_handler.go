package handlers

import (
	"strconv"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/httpx"
	"github.com/aledz7/df-graficas-sub017/internal/service"
	"github.com/gofiber/fiber/v2"
)

// PresenceHandler serves read state, notifications and typing signals.
type PresenceHandler struct {
	chat *service.ChatService
}

func NewPresenceHandler(chat *service.ChatService) *PresenceHandler {
	return &PresenceHandler{chat: chat}
}

type markReadRequest struct {
	At *time.Time `json:"at"`
}

type typingRequest struct {
	ThreadID uint `json:"thread_id"`
	IsTyping bool `json:"is_typing"`
}

func (h *PresenceHandler) MarkRead(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	var req markReadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
		}
	}
	if err := h.chat.MarkRead(tenantID, userID, threadID, req.At); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PresenceHandler) ThreadUnread(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	n, err := h.chat.UnreadCount(tenantID, userID, threadID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"thread_id": threadID, "unread_count": n})
}

func (h *PresenceHandler) UnreadAll(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	summary, err := h.chat.UnreadCountAll(tenantID, userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(summary)
}

func (h *PresenceHandler) RecentUnread(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	minutes := 0
	if raw := c.Query("since_minutes"); raw != "" {
		minutes, err = strconv.Atoi(raw)
		if err != nil || minutes < 0 {
			return httpx.Validation(c, "since_minutes", "since_minutes must be a non-negative integer")
		}
	}
	feed, err := h.chat.RecentUnread(tenantID, userID, minutes)
	if err != nil {
		return httpx.FromError(c, err)
	}
	if feed == nil {
		feed = []service.Notification{}
	}
	return c.JSON(fiber.Map{"notifications": feed})
}

func (h *PresenceHandler) SetTyping(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var req typingRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if req.ThreadID == 0 {
		return httpx.Validation(c, "thread_id", "thread_id is required")
	}
	if err := h.chat.SetTyping(tenantID, userID, req.ThreadID, req.IsTyping); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PresenceHandler) Typing(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	users, err := h.chat.TypingUsers(tenantID, userID, threadID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"thread_id": threadID, "users": users})
}
