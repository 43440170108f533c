package httpx

import (
	"errors"
	"fmt"
	"log"

	"github.com/aledz7/df-graficas-sub017/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusBadRequest, code, message)
}

func Unauthorized(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusUnauthorized, code, message)
}

func Forbidden(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusForbidden, code, message)
}

func NotFound(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusNotFound, code, message)
}

func Conflict(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusConflict, code, message)
}

func Internal(c *fiber.Ctx, code string) error {
	return Error(c, fiber.StatusInternalServerError, code, "Internal server error")
}

// Validation reports a rejected field.
func Validation(c *fiber.Ctx, field string, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:     message,
		Code:      "validation_failed",
		Field:     field,
		RequestID: requestID(c),
	})
}

// FromError maps service errors onto responses. Anything unrecognised is
// logged and reported as a generic server error.
func FromError(c *fiber.Ctx, err error) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return Validation(c, verr.Field, verr.Message)
	case errors.Is(err, service.ErrNotFound):
		return NotFound(c, "not_found", "Not found")
	case errors.Is(err, service.ErrForbidden):
		return Forbidden(c, "forbidden", "You are not a member of this thread")
	case errors.Is(err, service.ErrThreadArchived):
		return Conflict(c, "thread_archived", "Thread is archived")
	case errors.Is(err, service.ErrMessageDeleted):
		return Conflict(c, "message_deleted", "Message was deleted")
	case errors.Is(err, service.ErrConflict):
		return Conflict(c, "conflict", "Request conflicted with a concurrent change")
	case errors.Is(err, service.ErrStorageNotConfigured):
		return Error(c, fiber.StatusServiceUnavailable, "storage_not_configured", "File storage is not configured")
	}
	log.Printf("[http] %s %s request_id=%s: %v", c.Method(), c.Path(), requestID(c), err)
	return Internal(c, "internal_error")
}

func LocalUint(c *fiber.Ctx, key string) (uint, error) {
	v := c.Locals(key)
	if v == nil {
		return 0, fmt.Errorf("missing local %s", key)
	}
	u, ok := v.(uint)
	if !ok {
		return 0, fmt.Errorf("invalid local %s", key)
	}
	return u, nil
}
