package models

import (
	"fmt"
	"time"
)

type ThreadKind string

const (
	DirectThread ThreadKind = "direct"
	GroupThread  ThreadKind = "group"
	LinkedThread ThreadKind = "linked"
)

type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Thread is a tenant-scoped conversation. Kind-specific fields are optional:
// UniqueKey is set for direct and linked threads and backs the
// (tenant_id, unique_key) uniqueness constraint.
type Thread struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID    uint       `gorm:"not null;index;uniqueIndex:idx_threads_tenant_key,priority:1" json:"tenant_id"`
	Kind        ThreadKind `gorm:"type:varchar(20);not null" json:"kind"`
	Name        string     `gorm:"size:100" json:"name"`
	Description string     `gorm:"size:255" json:"description"`
	CreatorID   uint       `gorm:"not null" json:"creator_id"`
	IsPrivate   bool       `gorm:"default:false" json:"is_private"`
	Department  string     `gorm:"size:60;index" json:"department,omitempty"`

	// Linked business record (e.g. an order). Opaque to the chat core.
	EntityType string `gorm:"size:40" json:"entity_type,omitempty"`
	EntityID   string `gorm:"size:64" json:"entity_id,omitempty"`

	UniqueKey *string `gorm:"size:120;uniqueIndex:idx_threads_tenant_key,priority:2" json:"-"`

	LastActivityAt time.Time  `gorm:"index" json:"last_activity_at"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`

	Members []ThreadMember `gorm:"foreignKey:ThreadID" json:"members,omitempty"`
}

// ThreadMember carries the per-member role and read watermark.
// LastReadAt only moves forward.
type ThreadMember struct {
	ThreadID   uint       `gorm:"primaryKey" json:"thread_id"`
	UserID     uint       `gorm:"primaryKey;index" json:"user_id"`
	Role       MemberRole `gorm:"type:varchar(20);default:'member'" json:"role"`
	JoinedAt   time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LastReadAt *time.Time `json:"last_read_at"`
}

func (t *Thread) IsArchived() bool {
	return t.ArchivedAt != nil
}

// DirectKey is the unordered-pair key of a direct thread.
func DirectKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("direct:%d:%d", a, b)
}

// EntityKey is the key of the thread owned by a linked business record.
func EntityKey(entityType, entityID string) string {
	return fmt.Sprintf("entity:%s:%s", entityType, entityID)
}

// OtherMember returns the first member that is not userID, or 0.
func (t *Thread) OtherMember(userID uint) uint {
	for _, m := range t.Members {
		if m.UserID != userID {
			return m.UserID
		}
	}
	return 0
}

func (t *Thread) Member(userID uint) (*ThreadMember, bool) {
	for i := range t.Members {
		if t.Members[i].UserID == userID {
			return &t.Members[i], true
		}
	}
	return nil, false
}
