package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type MessageKind string

const (
	TextMessage MessageKind = "text"
	CardMessage MessageKind = "card"
	FileMessage MessageKind = "file"
)

// Card references an external business record for display. The chat core
// never stores the record's business fields.
type Card struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Label      string `json:"label,omitempty"`
}

// Message is append-only: after creation only Body/EditedAt (edit) and
// DeletedAt (tombstone) change. DeletedAt is deliberately not gorm.DeletedAt
// so tombstones stay visible to queries.
type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_thread_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID uint `gorm:"not null;index" json:"tenant_id"`
	ThreadID uint `gorm:"not null;index:idx_messages_thread_created,priority:1" json:"thread_id"`
	SenderID uint `gorm:"not null;index" json:"sender_id"`

	Body      string         `gorm:"type:text;not null;default:''" json:"body"`
	Kind      MessageKind    `gorm:"type:varchar(20);default:'text'" json:"kind"`
	Card      datatypes.JSON `json:"card,omitempty"`
	ReplyToID *uint          `gorm:"index" json:"reply_to_id"`

	IsImportant bool `gorm:"default:false" json:"is_important"`
	IsUrgent    bool `gorm:"default:false" json:"is_urgent"`

	EditedAt  *time.Time `json:"edited_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at"`

	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// CardData decodes the card payload; ok is false when the message has none.
func (m *Message) CardData() (Card, bool) {
	var c Card
	if len(m.Card) == 0 {
		return c, false
	}
	if err := json.Unmarshal(m.Card, &c); err != nil || c.EntityID == "" {
		return Card{}, false
	}
	return c, true
}

func (m *Message) SetCard(c Card) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	m.Card = datatypes.JSON(data)
	return nil
}

type MessageResponse struct {
	ID          uint                 `json:"id"`
	ThreadID    uint                 `json:"thread_id"`
	SenderID    uint                 `json:"sender_id"`
	Body        string               `json:"body"`
	Kind        MessageKind          `json:"kind"`
	Card        *Card                `json:"card,omitempty"`
	ReplyToID   *uint                `json:"reply_to_id"`
	IsImportant bool                 `json:"is_important"`
	IsUrgent    bool                 `json:"is_urgent"`
	Attachments []AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time            `json:"created_at"`
	EditedAt    *time.Time           `json:"edited_at"`
	Deleted     bool                 `json:"deleted"`
}

// ToResponse is the client-facing view. Tombstoned messages keep their
// position in the history but expose no content.
func (m *Message) ToResponse() MessageResponse {
	resp := MessageResponse{
		ID:          m.ID,
		ThreadID:    m.ThreadID,
		SenderID:    m.SenderID,
		Body:        m.Body,
		Kind:        m.Kind,
		ReplyToID:   m.ReplyToID,
		IsImportant: m.IsImportant,
		IsUrgent:    m.IsUrgent,
		Attachments: []AttachmentResponse{},
		CreatedAt:   m.CreatedAt,
		EditedAt:    m.EditedAt,
		Deleted:     m.IsDeleted(),
	}
	if m.IsDeleted() {
		resp.Body = ""
		return resp
	}
	if c, ok := m.CardData(); ok {
		resp.Card = &c
	}
	for i := range m.Attachments {
		resp.Attachments = append(resp.Attachments, m.Attachments[i].ToResponse())
	}
	return resp
}
