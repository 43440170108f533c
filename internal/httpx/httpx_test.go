package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/aledz7/df-graficas-sub017/internal/service"
	"github.com/gofiber/fiber/v2"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"Validation", &service.ValidationError{Field: "name", Message: "is required"}, 400, "validation_failed", "name"},
		{"Wrapped not found", fmt.Errorf("load: %w", service.ErrNotFound), 404, "not_found", ""},
		{"Forbidden", service.ErrForbidden, 403, "forbidden", ""},
		{"Archived", service.ErrThreadArchived, 409, "thread_archived", ""},
		{"Storage", service.ErrStorageNotConfigured, 503, "storage_not_configured", ""},
		{"Unknown", errors.New("connection reset"), 500, "internal_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return FromError(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.wantCode || body.Field != tt.wantField {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestLocalUint(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if _, err := LocalUint(c, "userID"); err == nil {
			t.Error("missing local accepted")
		}
		c.Locals("userID", uint(7))
		v, err := LocalUint(c, "userID")
		if err != nil || v != 7 {
			t.Errorf("LocalUint() = %d, %v", v, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	if _, err := app.Test(httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
}
