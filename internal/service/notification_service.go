package service

import (
	"sort"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
)

const (
	recentUnreadLimit = 20
	maxRecentWindow   = 24 * time.Hour
)

// NotificationService decides who is alerted for a message and builds the
// toast feed. The feed is a read projection over messages and watermarks;
// nothing here is stored.
type NotificationService struct {
	messageRepo repository.MessageRepositoryInterface
	userRepo    repository.UserRepositoryInterface
	window      time.Duration
	now         func() time.Time
}

func NewNotificationService(messageRepo repository.MessageRepositoryInterface, userRepo repository.UserRepositoryInterface, window time.Duration) *NotificationService {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &NotificationService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		window:      window,
		now:         systemClock,
	}
}

type Notification struct {
	MessageID   uint               `json:"message_id"`
	ThreadID    uint               `json:"thread_id"`
	ThreadKind  models.ThreadKind  `json:"thread_kind"`
	ThreadName  string             `json:"thread_name"`
	SenderID    uint               `json:"sender_id"`
	SenderName  string             `json:"sender_name"`
	Preview     string             `json:"preview"`
	Kind        models.MessageKind `json:"kind"`
	IsImportant bool               `json:"is_important"`
	IsUrgent    bool               `json:"is_urgent"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Recipients is every member of the thread except the author. Urgency
// never narrows it.
func (s *NotificationService) Recipients(thread *models.Thread, authorID uint) []uint {
	out := make([]uint, 0, len(thread.Members))
	for _, m := range thread.Members {
		if m.UserID != authorID {
			out = append(out, m.UserID)
		}
	}
	return out
}

// RecentUnread lists unseen messages from the last sinceMinutes (the
// configured window when zero), urgent first, then important, then newest.
func (s *NotificationService) RecentUnread(tenantID, userID uint, sinceMinutes int) ([]Notification, error) {
	window := s.window
	if sinceMinutes > 0 {
		// Clamp before multiplying: a large count would overflow Duration.
		window = maxRecentWindow
		if sinceMinutes < int(maxRecentWindow/time.Minute) {
			window = time.Duration(sinceMinutes) * time.Minute
		}
	}
	if window > maxRecentWindow {
		window = maxRecentWindow
	}

	rows, err := s.messageRepo.FindRecentUnread(tenantID, userID, s.now().Add(-window), recentUnreadLimit)
	if err != nil {
		return nil, err
	}
	rankRecentUnread(rows)

	var senders []uint
	for _, row := range rows {
		senders = append(senders, row.SenderID)
	}
	names := map[uint]string{}
	if len(senders) > 0 {
		users, err := s.userRepo.FindByIDs(tenantID, senders)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.DisplayName
		}
	}

	out := make([]Notification, 0, len(rows))
	for _, row := range rows {
		n := Notification{
			MessageID:   row.MessageID,
			ThreadID:    row.ThreadID,
			ThreadKind:  models.ThreadKind(row.ThreadKind),
			ThreadName:  row.ThreadName,
			SenderID:    row.SenderID,
			SenderName:  names[row.SenderID],
			Preview:     truncate(row.Body, previewLength),
			Kind:        models.MessageKind(row.Kind),
			IsImportant: row.IsImportant,
			IsUrgent:    row.IsUrgent,
			CreatedAt:   row.CreatedAt,
		}
		if n.ThreadKind == models.DirectThread {
			n.ThreadName = n.SenderName
		}
		out = append(out, n)
	}
	return out, nil
}

func rankRecentUnread(rows []repository.RecentUnreadRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.IsUrgent != b.IsUrgent {
			return a.IsUrgent
		}
		if a.IsImportant != b.IsImportant {
			return a.IsImportant
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.MessageID > b.MessageID
	})
}
