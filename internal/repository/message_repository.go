package repository

import (
	"strings"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/models"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create appends the message and its attachments and bumps the thread's
// last activity, all in one transaction.
func (r *MessageRepository) Create(message *models.Message) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		return tx.Model(&models.Thread{}).
			Where("id = ? AND last_activity_at < ?", message.ThreadID, message.CreatedAt).
			Update("last_activity_at", message.CreatedAt).Error
	})
}

func (r *MessageRepository) FindByID(tenantID, id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Preload("Attachments").
		Where("tenant_id = ?", tenantID).
		First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) FindPage(threadID uint, q PageQuery) ([]models.Message, error) {
	var messages []models.Message
	tx := r.db.Preload("Attachments").Where("thread_id = ?", threadID)

	if q.After != nil {
		err := tx.Where("(created_at > ? OR (created_at = ? AND id > ?))", q.After.CreatedAt, q.After.CreatedAt, q.After.ID).
			Order("created_at ASC, id ASC").
			Limit(q.Limit).
			Find(&messages).Error
		return messages, err
	}

	if q.Before != nil {
		tx = tx.Where("(created_at < ? OR (created_at = ? AND id < ?))", q.Before.CreatedAt, q.Before.CreatedAt, q.Before.ID)
	}
	err := tx.Order("created_at DESC, id DESC").
		Limit(q.Limit).
		Find(&messages).Error

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, err
}

// Search matches message bodies in threads the user currently belongs to.
// Postgres uses full-text search over idx_messages_body_fts and matches whole
// words only ("bo" does not find "bom"). Other dialects fall back to a
// case-insensitive substring LIKE.
func (r *MessageRepository) Search(tenantID, userID uint, query string, limit int) ([]models.Message, error) {
	var messages []models.Message
	tx := r.db.Preload("Attachments").
		Table("messages").
		Select("messages.*").
		Joins("JOIN thread_members tm ON tm.thread_id = messages.thread_id AND tm.user_id = ?", userID).
		Where("messages.tenant_id = ? AND messages.deleted_at IS NULL", tenantID)

	if isPostgres(r.db) {
		tx = tx.Where("to_tsvector('simple', messages.body) @@ plainto_tsquery('simple', ?)", query)
	} else {
		tx = tx.Where("LOWER(messages.body) LIKE ? ESCAPE '\\'", "%"+strings.ToLower(escapeLike(query))+"%")
	}

	err := tx.Order("messages.created_at DESC, messages.id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// UpdateBody rewrites a live message. It returns gorm.ErrRecordNotFound when
// the row is missing or was tombstoned after the caller loaded it.
func (r *MessageRepository) UpdateBody(id uint, body string, editedAt time.Time) error {
	result := r.db.Model(&models.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]interface{}{
			"body":      body,
			"edited_at": editedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *MessageRepository) MarkDeleted(id uint, at time.Time) error {
	return r.db.Model(&models.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at).Error
}

// RecentUnreadRow is a message preview for toast notifications.
type RecentUnreadRow struct {
	MessageID   uint      `gorm:"column:message_id"`
	ThreadID    uint      `gorm:"column:thread_id"`
	ThreadKind  string    `gorm:"column:thread_kind"`
	ThreadName  string    `gorm:"column:thread_name"`
	SenderID    uint      `gorm:"column:sender_id"`
	Body        string    `gorm:"column:body"`
	Kind        string    `gorm:"column:kind"`
	IsImportant bool      `gorm:"column:is_important"`
	IsUrgent    bool      `gorm:"column:is_urgent"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// FindRecentUnread lists unseen messages created after since across the
// user's threads, urgent first, then important, then newest.
func (r *MessageRepository) FindRecentUnread(tenantID, userID uint, since time.Time, limit int) ([]RecentUnreadRow, error) {
	var rows []RecentUnreadRow
	err := r.db.Table("messages AS m").
		Select(`m.id AS message_id, m.thread_id, t.kind AS thread_kind, t.name AS thread_name,
			m.sender_id, m.body, m.kind, m.is_important, m.is_urgent, m.created_at`).
		Joins("JOIN thread_members tm ON tm.thread_id = m.thread_id AND tm.user_id = ?", userID).
		Joins("JOIN threads t ON t.id = m.thread_id AND t.archived_at IS NULL").
		Where("m.tenant_id = ? AND m.created_at > ?", tenantID, since).
		Where("m.sender_id <> ? AND m.deleted_at IS NULL", userID).
		Where("(tm.last_read_at IS NULL OR m.created_at > tm.last_read_at)").
		Order("m.is_urgent DESC, m.is_important DESC, m.created_at DESC, m.id DESC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
