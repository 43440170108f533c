package handlers

import (
	"strconv"
	"strings"

	"github.com/aledz7/df-graficas-sub017/internal/httpx"
	"github.com/aledz7/df-graficas-sub017/internal/service"
	"github.com/gofiber/fiber/v2"
)

// Handlers groups the chat endpoints that share the authenticated /api
// router.
type Handlers struct {
	Threads     *ThreadHandler
	Messages    *MessageHandler
	Presence    *PresenceHandler
	Attachments *AttachmentHandler
}

func New(chat *service.ChatService) Handlers {
	return Handlers{
		Threads:     NewThreadHandler(chat),
		Messages:    NewMessageHandler(chat),
		Presence:    NewPresenceHandler(chat),
		Attachments: NewAttachmentHandler(chat),
	}
}

// Register mounts the member-facing routes. uploadGuards run in front of the
// multipart upload (rate limiting).
func (h Handlers) Register(r fiber.Router, uploadGuards ...fiber.Handler) {
	r.Get("/threads", h.Threads.List)
	r.Post("/threads/direct", h.Threads.Direct)
	r.Post("/threads/group", h.Threads.Group)
	r.Post("/threads/linked", h.Threads.Linked)
	r.Get("/threads/:id", h.Threads.Get)
	r.Post("/threads/:id/members", h.Threads.AddMember)
	r.Delete("/threads/:id/members/:userId", h.Threads.RemoveMember)
	r.Post("/threads/:id/archive", h.Threads.Archive)
	r.Get("/threads/:id/messages", h.Messages.List)
	r.Post("/threads/:id/read", h.Presence.MarkRead)
	r.Get("/threads/:id/unread-count", h.Presence.ThreadUnread)
	r.Get("/threads/:id/typing", h.Presence.Typing)

	r.Post("/messages", h.Messages.Send)
	upload := append(append([]fiber.Handler{}, uploadGuards...), h.Messages.Upload)
	r.Post("/messages/upload", upload...)
	r.Patch("/messages/:id", h.Messages.Edit)
	r.Delete("/messages/:id", h.Messages.Delete)
	r.Get("/search", h.Messages.Search)

	r.Get("/unread-count", h.Presence.UnreadAll)
	r.Get("/recent-unread", h.Presence.RecentUnread)
	r.Post("/typing", h.Presence.SetTyping)

	r.Get("/attachments/:id", h.Attachments.Download)
}

// identity returns the tenant and user established by AuthRequired.
func identity(c *fiber.Ctx) (uint, uint, error) {
	tenantID, err := httpx.LocalUint(c, "tenantID")
	if err != nil {
		return 0, 0, err
	}
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return 0, 0, err
	}
	return tenantID, userID, nil
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
