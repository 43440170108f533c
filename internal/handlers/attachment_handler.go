package handlers

import (
	"bufio"
	"io"
	"log"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/httpx"
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/service"
	"github.com/gofiber/fiber/v2"
)

type AttachmentHandler struct {
	chat *service.ChatService
}

func NewAttachmentHandler(chat *service.ChatService) *AttachmentHandler {
	return &AttachmentHandler{chat: chat}
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, "\"")
	return v
}

// Download streams an attachment to a member of its thread. ?thumbnail=1
// serves the JPEG preview of an image instead.
func (h *AttachmentHandler) Download(c *fiber.Ctx) error {
	tenantID, userID, err := identity(c)
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	attachmentID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_attachment_id", "Invalid attachment id")
	}

	att, err := h.chat.LookupAttachment(tenantID, userID, attachmentID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	thumbnail := parseBool(c.Query("thumbnail"))

	obj, st, err := h.chat.OpenAttachment(c.Context(), att, thumbnail)
	if err != nil {
		return httpx.FromError(c, err)
	}

	etag := st.ETag
	if etag == "" {
		etag = att.ETag
	}
	if etag != "" {
		c.Set("ETag", "\""+normalizeETag(etag)+"\"")
		if inm := normalizeETag(c.Get("If-None-Match")); inm != "" && inm == normalizeETag(etag) {
			_ = obj.Close()
			return c.SendStatus(fiber.StatusNotModified)
		}
	}
	if !st.LastModified.IsZero() {
		c.Set("Last-Modified", st.LastModified.UTC().Format(time.RFC1123))
	}

	// Keys are immutable; a new upload always gets a new key.
	c.Set("Cache-Control", "private, max-age=31536000, immutable")
	switch {
	case thumbnail:
		c.Type("jpg")
	case st.ContentType != "":
		c.Set(fiber.HeaderContentType, st.ContentType)
	default:
		c.Set(fiber.HeaderContentType, att.ContentType)
	}
	if !thumbnail {
		c.Set(fiber.HeaderContentDisposition, contentDisposition(att))
	}
	if st.Size > 0 {
		c.Set("Content-Length", strconv.FormatInt(st.Size, 10))
	}

	key := att.StorageKey
	if thumbnail {
		key = att.ThumbnailKey
	}
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			_ = obj.Close()
		}()

		n, copyErr := io.Copy(w, obj)
		flushErr := w.Flush()

		if copyErr != nil {
			log.Printf("[attachments] stream error key=%q copied=%d err=%v", key, n, copyErr)
			return
		}
		if flushErr != nil {
			log.Printf("[attachments] stream flush error key=%q copied=%d err=%v", key, n, flushErr)
		}
	})
	return nil
}

func contentDisposition(att *models.Attachment) string {
	disposition := "attachment"
	if att.Category == models.CategoryImage {
		disposition = "inline"
	}
	if v := mime.FormatMediaType(disposition, map[string]string{"filename": att.FileName}); v != "" {
		return v
	}
	return disposition
}

// Reconcile runs the orphan sweep on demand. ?older_than accepts a Go
// duration and defaults to grace.
func (h *AttachmentHandler) Reconcile(grace time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		olderThan := grace
		if raw := c.Query("older_than"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d < 0 {
				return httpx.Validation(c, "older_than", "older_than must be a duration such as 1h")
			}
			olderThan = d
		}
		report, err := h.chat.ReconcileAttachments(c.Context(), olderThan)
		if err != nil {
			return httpx.FromError(c, err)
		}
		log.Printf("[attachments] manual reconcile scanned=%d removed=%d missing=%d", report.Scanned, report.Removed, len(report.MissingObjects))
		return c.JSON(report)
	}
}
