package service

import (
	"context"
	"io"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/cache"
	"github.com/aledz7/df-graficas-sub017/internal/config"
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
	"github.com/aledz7/df-graficas-sub017/internal/storage"
)

type Repositories struct {
	Users       repository.UserRepositoryInterface
	Threads     repository.ThreadRepositoryInterface
	ReadState   repository.ReadStateRepositoryInterface
	Messages    repository.MessageRepositoryInterface
	Attachments repository.AttachmentRepositoryInterface
}

// ChatService is the single entry point used by the HTTP layer. Every call
// carries the tenant and the caller resolved by authentication.
type ChatService struct {
	users         repository.UserRepositoryInterface
	threads       *ThreadService
	readState     *ReadStateService
	messages      *MessageService
	typing        *TypingService
	notifications *NotificationService
	attachments   *AttachmentService
}

// A nil unread store disables the aggregate cache.
func NewChatService(repos Repositories, typing cache.TypingStore, unread cache.UnreadStore, objects storage.ObjectStore, cfg config.Config) *ChatService {
	if unread == nil {
		unread = cache.NewUnreadCache(nil)
	}
	threads := NewThreadService(repos.Threads, repos.Users, unread)
	notifications := NewNotificationService(repos.Messages, repos.Users, cfg.Chat.RecentUnreadWindow.Std())
	return &ChatService{
		users:         repos.Users,
		threads:       threads,
		readState:     NewReadStateService(threads, repos.ReadState, unread),
		messages:      NewMessageService(threads, repos.Messages, notifications, unread, cfg.Chat.MaxMessageLength, cfg.Chat.PageSize),
		typing:        NewTypingService(threads, typing, cfg.Chat.TypingTTL.Std(), cfg.Chat.TypingMinInterval.Std()),
		notifications: notifications,
		attachments:   NewAttachmentService(objects, repos.Attachments, threads, cfg.Attachments.MaxSize.Int64(), cfg.Attachments.AllowedTypes),
	}
}

func (c *ChatService) Attachments() *AttachmentService {
	return c.attachments
}

func (c *ChatService) ListThreads(tenantID, userID uint, includeArchived bool) ([]ThreadSummary, error) {
	return c.threads.ListThreads(tenantID, userID, includeArchived)
}

func (c *ChatService) GetOrCreateDirect(tenantID, userID, otherID uint) (*models.Thread, error) {
	return c.threads.GetOrCreateDirect(tenantID, userID, otherID)
}

func (c *ChatService) CreateGroup(tenantID, userID uint, input CreateGroupInput) (*models.Thread, error) {
	return c.threads.CreateGroup(tenantID, userID, input)
}

func (c *ChatService) GetOrCreateLinked(tenantID, userID uint, input LinkedThreadInput) (*models.Thread, error) {
	return c.threads.GetOrCreateLinked(tenantID, userID, input)
}

func (c *ChatService) GetThread(tenantID, userID, threadID uint) (*models.Thread, error) {
	return c.threads.GetThread(tenantID, userID, threadID)
}

func (c *ChatService) AddMember(tenantID, actorID, threadID, userID uint) (*models.ThreadMember, error) {
	return c.threads.AddMember(tenantID, actorID, threadID, userID)
}

func (c *ChatService) RemoveMember(tenantID, actorID, threadID, userID uint) error {
	return c.threads.RemoveMember(tenantID, actorID, threadID, userID)
}

func (c *ChatService) Archive(tenantID, actorID, threadID uint) (*models.Thread, error) {
	return c.threads.Archive(tenantID, actorID, threadID)
}

func (c *ChatService) ListMessages(tenantID, userID, threadID uint, q ListQuery) (*MessagePage, error) {
	return c.messages.List(tenantID, threadID, userID, q)
}

func (c *ChatService) SendMessage(tenantID, userID, threadID uint, input AppendInput) (*models.Message, error) {
	return c.messages.Append(tenantID, threadID, userID, input, nil)
}

// SendAttachment stores the file and then appends the message carrying it.
// If the message cannot be written the stored objects are removed again, so
// a failed send leaves neither a dangling message nor a stray file.
func (c *ChatService) SendAttachment(ctx context.Context, tenantID, userID, threadID uint, file Upload, input AppendInput) (*models.Message, error) {
	thread, _, err := c.threads.Authorize(tenantID, threadID, userID)
	if err != nil {
		return nil, err
	}
	if thread.IsArchived() {
		return nil, ErrThreadArchived
	}

	att, err := c.attachments.Store(ctx, tenantID, thread.ID, file)
	if err != nil {
		return nil, err
	}
	message, err := c.messages.Append(tenantID, thread.ID, userID, input, []models.Attachment{*att})
	if err != nil {
		c.attachments.Discard(ctx, att)
		return nil, err
	}
	return message, nil
}

func (c *ChatService) EditMessage(tenantID, userID, messageID uint, body string) (*models.Message, error) {
	return c.messages.Edit(tenantID, userID, messageID, body)
}

func (c *ChatService) DeleteMessage(tenantID, userID, messageID uint) (*models.Message, error) {
	return c.messages.Delete(tenantID, userID, messageID)
}

func (c *ChatService) Search(tenantID, userID uint, query string) ([]models.MessageResponse, error) {
	return c.messages.Search(tenantID, userID, query)
}

func (c *ChatService) MarkRead(tenantID, userID, threadID uint, at *time.Time) error {
	return c.readState.MarkRead(tenantID, threadID, userID, at)
}

func (c *ChatService) UnreadCount(tenantID, userID, threadID uint) (int64, error) {
	return c.readState.UnreadCount(tenantID, threadID, userID)
}

func (c *ChatService) UnreadCountAll(tenantID, userID uint) (*UnreadSummary, error) {
	return c.readState.UnreadCountAll(tenantID, userID)
}

func (c *ChatService) RecentUnread(tenantID, userID uint, sinceMinutes int) ([]Notification, error) {
	return c.notifications.RecentUnread(tenantID, userID, sinceMinutes)
}

func (c *ChatService) SetTyping(tenantID, userID, threadID uint, isTyping bool) error {
	return c.typing.SetTyping(tenantID, threadID, userID, isTyping)
}

// TypingUsers lists the other members currently typing, with their profile.
func (c *ChatService) TypingUsers(tenantID, userID, threadID uint) ([]models.UserResponse, error) {
	ids, err := c.typing.TypingUsers(tenantID, threadID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserResponse, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := c.users.FindByIDs(tenantID, ids)
	if err != nil {
		return nil, err
	}
	for i := range users {
		out = append(out, users[i].ToResponse())
	}
	return out, nil
}

// LookupAttachment returns the attachment metadata for a member of its thread.
func (c *ChatService) LookupAttachment(tenantID, userID, attachmentID uint) (*models.Attachment, error) {
	return c.attachments.Lookup(tenantID, userID, attachmentID)
}

// OpenAttachment streams a looked-up attachment or its thumbnail.
func (c *ChatService) OpenAttachment(ctx context.Context, att *models.Attachment, thumbnail bool) (io.ReadCloser, storage.ObjectStat, error) {
	return c.attachments.Open(ctx, att, thumbnail)
}

func (c *ChatService) ReconcileAttachments(ctx context.Context, olderThan time.Duration) (*ReconcileReport, error) {
	return c.attachments.Reconcile(ctx, olderThan)
}
