package repository

import (
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/models"
	"gorm.io/gorm"
)

// ReadStateRepository owns thread_members.last_read_at.
type ReadStateRepository struct {
	db *gorm.DB
}

func NewReadStateRepository(db *gorm.DB) *ReadStateRepository {
	return &ReadStateRepository{db: db}
}

// AdvanceWatermark is a max-merge: the row only changes when at is later
// than the stored watermark, so concurrent or reordered calls commute.
func (r *ReadStateRepository) AdvanceWatermark(threadID, userID uint, at time.Time) error {
	return r.db.Model(&models.ThreadMember{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Where("(last_read_at IS NULL OR last_read_at < ?)", at).
		Update("last_read_at", at).Error
}

// CountUnread walks idx_messages_thread_created from the watermark forward.
func (r *ReadStateRepository) CountUnread(tenantID, threadID, userID uint) (int64, error) {
	var count int64
	err := r.db.Table("messages AS m").
		Joins("JOIN thread_members tm ON tm.thread_id = m.thread_id AND tm.user_id = ?", userID).
		Where("m.tenant_id = ? AND m.thread_id = ?", tenantID, threadID).
		Where("m.sender_id <> ? AND m.deleted_at IS NULL", userID).
		Where("(tm.last_read_at IS NULL OR m.created_at > tm.last_read_at)").
		Count(&count).Error
	return count, err
}

type threadCount struct {
	ThreadID uint  `gorm:"column:thread_id"`
	Count    int64 `gorm:"column:unread_count"`
}

func (r *ReadStateRepository) CountUnreadByThread(tenantID, userID uint) (map[uint]int64, error) {
	var rows []threadCount
	err := r.db.Table("messages AS m").
		Select("m.thread_id, COUNT(*) AS unread_count").
		Joins("JOIN thread_members tm ON tm.thread_id = m.thread_id AND tm.user_id = ?", userID).
		Joins("JOIN threads t ON t.id = m.thread_id AND t.archived_at IS NULL").
		Where("m.tenant_id = ?", tenantID).
		Where("m.sender_id <> ? AND m.deleted_at IS NULL", userID).
		Where("(tm.last_read_at IS NULL OR m.created_at > tm.last_read_at)").
		Group("m.thread_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]int64, len(rows))
	for _, row := range rows {
		out[row.ThreadID] = row.Count
	}
	return out, nil
}
