package models

import (
	"fmt"
	"time"
)

type AttachmentCategory string

const (
	CategoryImage    AttachmentCategory = "image"
	CategoryDocument AttachmentCategory = "document"
	CategoryMedia    AttachmentCategory = "media"
	CategoryArchive  AttachmentCategory = "archive"
)

// Attachment is created in the same transaction as its message.
type Attachment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	TenantID  uint `gorm:"not null;index" json:"tenant_id"`
	ThreadID  uint `gorm:"not null;index" json:"thread_id"`
	MessageID uint `gorm:"not null;index" json:"message_id"`

	FileName    string             `gorm:"size:255;not null" json:"file_name"`
	ContentType string             `gorm:"size:120;not null" json:"content_type"`
	Category    AttachmentCategory `gorm:"type:varchar(20);not null" json:"category"`
	SizeBytes   int64              `gorm:"not null" json:"size_bytes"`

	StorageKey   string `gorm:"size:255;not null;uniqueIndex" json:"-"`
	ThumbnailKey string `gorm:"size:255" json:"-"`
	ETag         string `gorm:"size:80" json:"-"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

type AttachmentResponse struct {
	ID           uint               `json:"id"`
	FileName     string             `json:"file_name"`
	ContentType  string             `json:"content_type"`
	Category     AttachmentCategory `json:"category"`
	SizeBytes    int64              `json:"size_bytes"`
	URL          string             `json:"url"`
	HasThumbnail bool               `json:"has_thumbnail"`
	Width        int                `json:"width,omitempty"`
	Height       int                `json:"height,omitempty"`
}

func (a *Attachment) ToResponse() AttachmentResponse {
	return AttachmentResponse{
		ID:           a.ID,
		FileName:     a.FileName,
		ContentType:  a.ContentType,
		Category:     a.Category,
		SizeBytes:    a.SizeBytes,
		URL:          fmt.Sprintf("/api/attachments/%d", a.ID),
		HasThumbnail: a.ThumbnailKey != "",
		Width:        a.Width,
		Height:       a.Height,
	}
}
