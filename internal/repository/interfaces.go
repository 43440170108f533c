package repository

import (
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/models"
)

// UserRepositoryInterface reads the tenant's user directory.
type UserRepositoryInterface interface {
	FindByID(tenantID, id uint) (*models.User, error)
	FindByIDs(tenantID uint, ids []uint) ([]models.User, error)
}

// ThreadRepositoryInterface defines the contract for thread directory operations.
// Every lookup is tenant scoped.
type ThreadRepositoryInterface interface {
	CreateWithMembers(thread *models.Thread, members []models.ThreadMember) error
	FindByID(tenantID, id uint) (*models.Thread, error)
	FindByUniqueKey(tenantID uint, key string) (*models.Thread, error)
	GetMember(threadID, userID uint) (*models.ThreadMember, error)
	AddMember(member *models.ThreadMember) error
	RemoveMember(threadID, userID uint) error
	Archive(tenantID, threadID uint, at time.Time) error
	ListSummaries(tenantID, userID uint, includeArchived bool) ([]ThreadSummaryRow, error)
}

// ReadStateRepositoryInterface defines the contract for per-member read watermarks.
type ReadStateRepositoryInterface interface {
	AdvanceWatermark(threadID, userID uint, at time.Time) error
	CountUnread(tenantID, threadID, userID uint) (int64, error)
	CountUnreadByThread(tenantID, userID uint) (map[uint]int64, error)
}

// MessageRepositoryInterface defines the contract for the append-only message store.
type MessageRepositoryInterface interface {
	Create(message *models.Message) error
	FindByID(tenantID, id uint) (*models.Message, error)
	FindPage(threadID uint, q PageQuery) ([]models.Message, error)
	Search(tenantID, userID uint, query string, limit int) ([]models.Message, error)
	UpdateBody(id uint, body string, editedAt time.Time) error
	MarkDeleted(id uint, at time.Time) error
	FindRecentUnread(tenantID, userID uint, since time.Time, limit int) ([]RecentUnreadRow, error)
}

// AttachmentRepositoryInterface defines the contract for attachment metadata.
type AttachmentRepositoryInterface interface {
	FindByID(tenantID, id uint) (*models.Attachment, error)
	ReferencedKeys(keys []string) (map[string]bool, error)
	ListAfter(afterID uint, limit int) ([]models.Attachment, error)
}

// Cursor is a position in a thread's (created_at, id) ordering.
type Cursor struct {
	CreatedAt time.Time
	ID        uint
}

// PageQuery selects a window of a thread. With After set the window starts
// just after the cursor; otherwise it ends just before Before (or now).
// Rows always come back oldest first.
type PageQuery struct {
	Before *Cursor
	After  *Cursor
	Limit  int
}
