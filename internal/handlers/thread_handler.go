package handlers

import (
	"github.com/aledz7/df-graficas-sub017/internal/httpx"
	"github.com/aledz7/df-graficas-sub017/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ThreadHandler struct {
	chat *service.ChatService
}

func NewThreadHandler(chat *service.ChatService) *ThreadHandler {
	return &ThreadHandler{chat: chat}
}

type directRequest struct {
	OtherUserID uint `json:"other_user_id"`
}

type memberRequest struct {
	UserID uint `json:"user_id"`
}

func (h *ThreadHandler) List(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threads, err := h.chat.ListThreads(tenantID, userID, parseBool(c.Query("archived")))
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"threads": threads})
}

func (h *ThreadHandler) Direct(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var req directRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	thread, err := h.chat.GetOrCreateDirect(tenantID, userID, req.OtherUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(thread)
}

func (h *ThreadHandler) Group(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var input service.CreateGroupInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	thread, err := h.chat.CreateGroup(tenantID, userID, input)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(thread)
}

func (h *ThreadHandler) Linked(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var input service.LinkedThreadInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	thread, err := h.chat.GetOrCreateLinked(tenantID, userID, input)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(thread)
}

func (h *ThreadHandler) Get(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	thread, err := h.chat.GetThread(tenantID, userID, threadID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(thread)
}

func (h *ThreadHandler) AddMember(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	var req memberRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	member, err := h.chat.AddMember(tenantID, userID, threadID, req.UserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(member)
}

func (h *ThreadHandler) RemoveMember(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	memberID, ok := paramID(c, "userId")
	if !ok {
		return httpx.BadRequest(c, "invalid_user_id", "Invalid user id")
	}
	if err := h.chat.RemoveMember(tenantID, userID, threadID, memberID); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ThreadHandler) Archive(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	threadID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_thread_id", "Invalid thread id")
	}
	thread, err := h.chat.Archive(tenantID, userID, threadID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(thread)
}
