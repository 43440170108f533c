package repository

import (
	"strings"
	"time"
)

// ThreadSummaryRow is one entry of a member's thread list: the thread, the
// caller's membership, the latest message and the caller's unread count.
type ThreadSummaryRow struct {
	ThreadID       uint       `gorm:"column:thread_id"`
	Kind           string     `gorm:"column:kind"`
	Name           string     `gorm:"column:name"`
	IsPrivate      bool       `gorm:"column:is_private"`
	Department     string     `gorm:"column:department"`
	EntityType     string     `gorm:"column:entity_type"`
	EntityID       string     `gorm:"column:entity_id"`
	LastActivityAt time.Time  `gorm:"column:last_activity_at"`
	ArchivedAt     *time.Time `gorm:"column:archived_at"`

	Role       string     `gorm:"column:role"`
	LastReadAt *time.Time `gorm:"column:last_read_at"`
	PeerID     *uint      `gorm:"column:peer_id"`

	UnreadCount int64 `gorm:"column:unread_count"`

	LastMessageID        *uint      `gorm:"column:last_message_id"`
	LastMessageSenderID  *uint      `gorm:"column:last_message_sender_id"`
	LastMessageBody      *string    `gorm:"column:last_message_body"`
	LastMessageKind      *string    `gorm:"column:last_message_kind"`
	LastMessageCreatedAt *time.Time `gorm:"column:last_message_created_at"`
	LastMessageDeletedAt *time.Time `gorm:"column:last_message_deleted_at"`
}

// ListSummaries returns every thread the user belongs to, newest activity
// first, in a single query: a window function picks the latest message per
// thread and the unread count follows the watermark rule
// (created_at > last_read_at, sender <> user, not deleted).
func (r *ThreadRepository) ListSummaries(tenantID, userID uint, includeArchived bool) ([]ThreadSummaryRow, error) {
	archivedFilter := "AND t.archived_at IS NULL"
	if includeArchived {
		archivedFilter = ""
	}

	query := strings.TrimSpace(`
WITH mine AS (
	SELECT tm.thread_id, tm.role, tm.last_read_at
	FROM thread_members tm
	JOIN threads t ON t.id = tm.thread_id
	WHERE tm.user_id = ? AND t.tenant_id = ? ` + archivedFilter + `
),
latest AS (
	SELECT
		m.thread_id,
		m.id,
		m.sender_id,
		m.body,
		m.kind,
		m.created_at,
		m.deleted_at,
		ROW_NUMBER() OVER (PARTITION BY m.thread_id ORDER BY m.created_at DESC, m.id DESC) AS rn
	FROM messages m
	JOIN mine ON mine.thread_id = m.thread_id
),
unread AS (
	SELECT m.thread_id, COUNT(*) AS unread_count
	FROM messages m
	JOIN mine ON mine.thread_id = m.thread_id
	WHERE m.sender_id <> ?
		AND m.deleted_at IS NULL
		AND (mine.last_read_at IS NULL OR m.created_at > mine.last_read_at)
	GROUP BY m.thread_id
)
SELECT
	t.id AS thread_id,
	t.kind,
	t.name,
	t.is_private,
	t.department,
	t.entity_type,
	t.entity_id,
	t.last_activity_at,
	t.archived_at,
	mine.role,
	mine.last_read_at,
	(SELECT p.user_id FROM thread_members p WHERE p.thread_id = t.id AND p.user_id <> ? ORDER BY p.user_id LIMIT 1) AS peer_id,
	COALESCE(u.unread_count, 0) AS unread_count,
	l.id AS last_message_id,
	l.sender_id AS last_message_sender_id,
	l.body AS last_message_body,
	l.kind AS last_message_kind,
	l.created_at AS last_message_created_at,
	l.deleted_at AS last_message_deleted_at
FROM mine
JOIN threads t ON t.id = mine.thread_id
LEFT JOIN latest l ON l.thread_id = t.id AND l.rn = 1
LEFT JOIN unread u ON u.thread_id = t.id
ORDER BY t.last_activity_at DESC, t.id DESC
`)

	var rows []ThreadSummaryRow
	if err := r.db.Raw(query, userID, tenantID, userID, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
