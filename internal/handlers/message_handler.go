package handlers

import (
	"strconv"
	"strings"

	"github.com/aledz7/df-graficas-sub017/internal/httpx"
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/service"
	"github.com/gofiber/fiber/v2"
)

type MessageHandler struct {
	chat *service.ChatService
}

func NewMessageHandler(chat *service.ChatService) *MessageHandler {
	return &MessageHandler{chat: chat}
}

type sendMessageRequest struct {
	ThreadID uint `json:"thread_id"`
	service.AppendInput
}

type editMessageRequest struct {
	Body string `json:"body"`
}

func (h *MessageHandler) List(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}

	q := service.ListQuery{Before: c.Query("before"), After: c.Query("after")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return httpx.Validation(c, "limit", "limit must be a positive integer")
		}
		q.Limit = limit
	}

	page, err := h.chat.ListMessages(tenantID, userID, threadID, q)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(page)
}

func (h *MessageHandler) Send(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	if req.ThreadID == 0 {
		return httpx.Validation(c, "thread_id", "thread_id is required")
	}

	msg, err := h.chat.SendMessage(tenantID, userID, req.ThreadID, req.AppendInput)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg.ToResponse())
}

// Upload accepts multipart/form-data with a "file" part plus the same
// optional fields as Send.
func (h *MessageHandler) Upload(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	threadID, err := strconv.ParseUint(strings.TrimSpace(c.FormValue("thread_id")), 10, 32)
	if err != nil || threadID == 0 {
		return httpx.Validation(c, "thread_id", "thread_id is required")
	}
	input := service.AppendInput{
		Body:        c.FormValue("body"),
		IsImportant: parseBool(c.FormValue("is_important")),
		IsUrgent:    parseBool(c.FormValue("is_urgent")),
	}
	if raw := strings.TrimSpace(c.FormValue("reply_to_id")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return httpx.Validation(c, "reply_to_id", "reply_to_id must be a message id")
		}
		replyTo := uint(v)
		input.ReplyToID = &replyTo
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return httpx.Validation(c, "file", "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return httpx.BadRequest(c, "invalid_file", "Invalid file")
	}
	defer f.Close()

	msg, err := h.chat.SendAttachment(c.Context(), tenantID, userID, uint(threadID), service.Upload{
		FileName: fh.Filename,
		Size:     fh.Size,
		Body:     f,
	}, input)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg.ToResponse())
}

func (h *MessageHandler) Edit(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	messageID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}
	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	msg, err := h.chat.EditMessage(tenantID, userID, messageID, req.Body)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(msg.ToResponse())
}

func (h *MessageHandler) Delete(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	messageID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_message_id", "Invalid message id")
	}
	msg, err := h.chat.DeleteMessage(tenantID, userID, messageID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(msg.ToResponse())
}

func (h *MessageHandler) Search(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	results, err := h.chat.Search(tenantID, userID, c.Query("q"))
	if err != nil {
		return httpx.FromError(c, err)
	}
	if results == nil {
		results = []models.MessageResponse{}
	}
	return c.JSON(fiber.Map{"messages": results, "count": len(results)})
}
