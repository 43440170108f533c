package service

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/cache"
	"github.com/aledz7/df-graficas-sub017/internal/metrics"
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
	"github.com/aledz7/df-graficas-sub017/internal/validation"
	"gorm.io/gorm"
)

const (
	MaxPageSize      = 100
	searchResultSize = 50
)

type MessageService struct {
	threads     *ThreadService
	messageRepo repository.MessageRepositoryInterface
	notifier    *NotificationService
	unread      cache.UnreadStore
	maxLength   int
	pageSize    int
	now         func() time.Time
}

func NewMessageService(threads *ThreadService, messageRepo repository.MessageRepositoryInterface, notifier *NotificationService, unread cache.UnreadStore, maxLength, pageSize int) *MessageService {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = 50
	}
	return &MessageService{
		threads:     threads,
		messageRepo: messageRepo,
		notifier:    notifier,
		unread:      unread,
		maxLength:   maxLength,
		pageSize:    pageSize,
		now:         systemClock,
	}
}

type AppendInput struct {
	Body        string             `json:"body"`
	Kind        models.MessageKind `json:"kind"`
	Card        *models.Card       `json:"card"`
	ReplyToID   *uint              `json:"reply_to_id"`
	IsImportant bool               `json:"is_important"`
	IsUrgent    bool               `json:"is_urgent"`
}

type ListQuery struct {
	Before string
	After  string
	Limit  int
}

// MessagePage is one window of a thread, oldest first. OlderCursor and
// NewerCursor continue the walk in either direction; HasMore refers to the
// direction the page was requested in.
type MessagePage struct {
	Messages    []models.MessageResponse `json:"messages"`
	OlderCursor string                   `json:"older_cursor,omitempty"`
	NewerCursor string                   `json:"newer_cursor,omitempty"`
	HasMore     bool                     `json:"has_more"`
}

// Append validates and persists a message together with any attachments
// already written to storage, then bumps the thread's activity. The caller
// owns cleanup of stored objects when Append fails.
func (s *MessageService) Append(tenantID, threadID, authorID uint, input AppendInput, attachments []models.Attachment) (*models.Message, error) {
	thread, _, err := s.threads.Authorize(tenantID, threadID, authorID)
	if err != nil {
		return nil, err
	}
	if thread.IsArchived() {
		return nil, ErrThreadArchived
	}

	body := strings.TrimSpace(input.Body)
	if validation.ExceedsLength(body, s.maxLength) {
		return nil, invalid("body", "must be at most %d characters", s.maxLength)
	}

	kind, err := resolveKind(input.Kind, input.Card, len(attachments))
	if err != nil {
		return nil, err
	}
	if body == "" && input.Card == nil && len(attachments) == 0 {
		return nil, invalid("body", "a message needs a body, a card or an attachment")
	}

	message := &models.Message{
		TenantID:    tenantID,
		ThreadID:    thread.ID,
		SenderID:    authorID,
		Body:        body,
		Kind:        kind,
		IsImportant: input.IsImportant,
		IsUrgent:    input.IsUrgent,
		CreatedAt:   s.now(),
	}
	if input.Card != nil {
		card := models.Card{
			EntityType: strings.TrimSpace(input.Card.EntityType),
			EntityID:   strings.TrimSpace(input.Card.EntityID),
			Label:      validation.TrimAndLimit(input.Card.Label, validation.MaxGroupNameLength),
		}
		if !validation.ValidateEntityType(card.EntityType) || !validation.ValidateEntityID(card.EntityID) {
			return nil, invalid("card", "entity_type and entity_id are required")
		}
		if err := message.SetCard(card); err != nil {
			return nil, err
		}
	}

	if input.ReplyToID != nil {
		target, err := s.messageRepo.FindByID(tenantID, *input.ReplyToID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, invalid("reply_to_id", "message not found")
			}
			return nil, err
		}
		if target.ThreadID != thread.ID {
			return nil, invalid("reply_to_id", "must reference a message in the same thread")
		}
		message.ReplyToID = &target.ID
	}

	for i := range attachments {
		attachments[i].TenantID = tenantID
		attachments[i].ThreadID = thread.ID
	}
	message.Attachments = attachments

	if err := s.messageRepo.Create(message); err != nil {
		return nil, err
	}
	metrics.MessagesAppended.WithLabelValues(string(kind)).Inc()

	recipients := s.notifier.Recipients(thread, authorID)
	metrics.Deliveries.Add(float64(len(recipients)))
	if err := s.unread.Invalidate(tenantID, recipients...); err != nil {
		log.Printf("[chat] unread cache invalidate failed: %v", err)
	}
	return message, nil
}

func resolveKind(kind models.MessageKind, card *models.Card, attachments int) (models.MessageKind, error) {
	switch kind {
	case "":
		switch {
		case attachments > 0:
			return models.FileMessage, nil
		case card != nil:
			return models.CardMessage, nil
		}
		return models.TextMessage, nil
	case models.TextMessage:
		if card != nil || attachments > 0 {
			return "", invalid("kind", "text messages carry no card or attachment")
		}
	case models.CardMessage:
		if card == nil {
			return "", invalid("card", "is required for card messages")
		}
	case models.FileMessage:
		if attachments == 0 {
			return "", invalid("kind", "file messages need an attachment")
		}
	default:
		return "", invalid("kind", "unknown message kind %q", kind)
	}
	return kind, nil
}

// List returns one page of the thread. Without cursors it is the newest
// page; Before walks backward and After walks forward. Each call is
// independent, so a client can restart from any cursor it holds.
func (s *MessageService) List(tenantID, threadID, userID uint, q ListQuery) (*MessagePage, error) {
	thread, _, err := s.threads.Authorize(tenantID, threadID, userID)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	before, err := DecodeCursor("before", q.Before)
	if err != nil {
		return nil, err
	}
	after, err := DecodeCursor("after", q.After)
	if err != nil {
		return nil, err
	}
	if before != nil && after != nil {
		return nil, invalid("cursor", "use either before or after, not both")
	}

	// One extra row tells whether the walk can continue.
	messages, err := s.messageRepo.FindPage(thread.ID, repository.PageQuery{Before: before, After: after, Limit: limit + 1})
	if err != nil {
		return nil, err
	}

	page := &MessagePage{}
	if len(messages) > limit {
		page.HasMore = true
		if after != nil {
			messages = messages[:limit]
		} else {
			messages = messages[len(messages)-limit:]
		}
	}

	page.Messages = make([]models.MessageResponse, 0, len(messages))
	for i := range messages {
		page.Messages = append(page.Messages, messages[i].ToResponse())
	}
	if len(messages) > 0 {
		page.OlderCursor = cursorOf(&messages[0])
		page.NewerCursor = cursorOf(&messages[len(messages)-1])
	} else if after != nil {
		page.NewerCursor = q.After
	}
	return page, nil
}

func (s *MessageService) Search(tenantID, userID uint, query string) ([]models.MessageResponse, error) {
	q, ok := validation.NormalizeSearchQuery(query)
	if !ok {
		return nil, invalid("q", "must be at least %d characters", validation.MinSearchQueryLength)
	}
	messages, err := s.messageRepo.Search(tenantID, userID, q, searchResultSize)
	if err != nil {
		return nil, err
	}
	out := make([]models.MessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, messages[i].ToResponse())
	}
	return out, nil
}

// loadForMember fetches a message and checks the caller still belongs to
// its thread.
func (s *MessageService) loadForMember(tenantID, userID, messageID uint) (*models.Message, *models.Thread, *models.ThreadMember, error) {
	message, err := s.messageRepo.FindByID(tenantID, messageID)
	if err != nil {
		return nil, nil, nil, notFound(err)
	}
	thread, member, err := s.threads.Authorize(tenantID, message.ThreadID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	return message, thread, member, nil
}

// Edit replaces the body of the caller's own message.
func (s *MessageService) Edit(tenantID, userID, messageID uint, body string) (*models.Message, error) {
	message, _, _, err := s.loadForMember(tenantID, userID, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != userID {
		return nil, ErrForbidden
	}
	if message.IsDeleted() {
		return nil, ErrMessageDeleted
	}

	body = strings.TrimSpace(body)
	if validation.ExceedsLength(body, s.maxLength) {
		return nil, invalid("body", "must be at most %d characters", s.maxLength)
	}
	if body == "" && len(message.Card) == 0 && len(message.Attachments) == 0 {
		return nil, invalid("body", "is required")
	}

	editedAt := s.now()
	if err := s.messageRepo.UpdateBody(message.ID, body, editedAt); err != nil {
		// Deleted between the load above and the update.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageDeleted
		}
		return nil, err
	}
	message.Body = body
	message.EditedAt = &editedAt
	return message, nil
}

// Delete tombstones a message. The author and thread admins may delete;
// the stored body is kept for audit.
func (s *MessageService) Delete(tenantID, userID, messageID uint) (*models.Message, error) {
	message, thread, member, err := s.loadForMember(tenantID, userID, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != userID && member.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if message.IsDeleted() {
		return message, nil
	}

	deletedAt := s.now()
	if err := s.messageRepo.MarkDeleted(message.ID, deletedAt); err != nil {
		return nil, err
	}
	message.DeletedAt = &deletedAt

	// A tombstone no longer counts as unread for anyone.
	recipients := s.notifier.Recipients(thread, message.SenderID)
	if err := s.unread.Invalidate(tenantID, recipients...); err != nil {
		log.Printf("[chat] unread cache invalidate failed: %v", err)
	}
	return message, nil
}
