package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aledz7/df-graficas-sub017/internal/cache"
	"github.com/aledz7/df-graficas-sub017/internal/metrics"
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
	"github.com/aledz7/df-graficas-sub017/internal/validation"
	"gorm.io/gorm"
)

const (
	previewLength   = 120
	unknownPeerName = "Unknown user"
)

type ThreadService struct {
	threadRepo repository.ThreadRepositoryInterface
	userRepo   repository.UserRepositoryInterface
	unread     cache.UnreadStore
	now        func() time.Time
}

func NewThreadService(threadRepo repository.ThreadRepositoryInterface, userRepo repository.UserRepositoryInterface, unread cache.UnreadStore) *ThreadService {
	return &ThreadService{
		threadRepo: threadRepo,
		userRepo:   userRepo,
		unread:     unread,
		now:        systemClock,
	}
}

type CreateGroupInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberIDs   []uint `json:"member_ids"`
	IsPrivate   bool   `json:"is_private"`
	Department  string `json:"department"`
}

type LinkedThreadInput struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Label      string `json:"label"`
	MemberIDs  []uint `json:"member_ids"`
}

// MessagePreview is the short form of a message shown in thread lists.
type MessagePreview struct {
	ID        uint               `json:"id"`
	SenderID  uint               `json:"sender_id"`
	Body      string             `json:"body"`
	Kind      models.MessageKind `json:"kind"`
	CreatedAt time.Time          `json:"created_at"`
	Deleted   bool               `json:"deleted"`
}

type ThreadSummary struct {
	ID             uint              `json:"id"`
	Kind           models.ThreadKind `json:"kind"`
	Name           string            `json:"name"`
	IsPrivate      bool              `json:"is_private"`
	Department     string            `json:"department,omitempty"`
	EntityType     string            `json:"entity_type,omitempty"`
	EntityID       string            `json:"entity_id,omitempty"`
	PeerID         *uint             `json:"peer_id,omitempty"`
	Role           models.MemberRole `json:"role"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	LastReadAt     *time.Time        `json:"last_read_at"`
	Archived       bool              `json:"archived"`
	UnreadCount    int64             `json:"unread_count"`
	LastMessage    *MessagePreview   `json:"last_message"`
}

// GetOrCreateDirect returns the one direct thread of the pair, creating it on
// first contact. Concurrent callers race on the (tenant, unique_key) index;
// the loser re-reads the winner's row.
func (s *ThreadService) GetOrCreateDirect(tenantID, userID, otherID uint) (*models.Thread, error) {
	if otherID == 0 {
		return nil, invalid("other_user_id", "is required")
	}
	if otherID == userID {
		return nil, invalid("other_user_id", "cannot start a direct thread with yourself")
	}
	if _, err := s.userRepo.FindByID(tenantID, otherID); err != nil {
		return nil, notFound(err)
	}

	key := models.DirectKey(userID, otherID)
	thread, _, err := s.getOrCreateUnique(tenantID, key, models.DirectThread, func(now time.Time) (*models.Thread, []models.ThreadMember) {
		thread := &models.Thread{
			TenantID:       tenantID,
			Kind:           models.DirectThread,
			CreatorID:      userID,
			IsPrivate:      true,
			UniqueKey:      &key,
			LastActivityAt: now,
		}
		members := []models.ThreadMember{
			{UserID: userID, Role: models.RoleMember, JoinedAt: now},
			{UserID: otherID, Role: models.RoleMember, JoinedAt: now},
		}
		return thread, members
	})
	if err != nil {
		return nil, err
	}
	if err := s.nameDirect(tenantID, userID, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// GetOrCreateLinked returns the thread owned by a business record. The
// caller must already be a member when the thread exists.
func (s *ThreadService) GetOrCreateLinked(tenantID, creatorID uint, input LinkedThreadInput) (*models.Thread, error) {
	entityType := strings.TrimSpace(input.EntityType)
	entityID := strings.TrimSpace(input.EntityID)
	if !validation.ValidateEntityType(entityType) {
		return nil, invalid("entity_type", "must be a lowercase identifier")
	}
	if !validation.ValidateEntityID(entityID) {
		return nil, invalid("entity_id", "must be 1-64 letters, digits, '-' or '_'")
	}

	memberIDs := validation.DedupeIDs(input.MemberIDs, creatorID)
	if err := s.requireUsers(tenantID, memberIDs); err != nil {
		return nil, err
	}

	label := validation.TrimAndLimit(validation.NormalizeName(input.Label), validation.MaxGroupNameLength)
	if label == "" {
		label = fmt.Sprintf("%s %s", entityType, entityID)
	}

	key := models.EntityKey(entityType, entityID)
	thread, created, err := s.getOrCreateUnique(tenantID, key, models.LinkedThread, func(now time.Time) (*models.Thread, []models.ThreadMember) {
		thread := &models.Thread{
			TenantID:       tenantID,
			Kind:           models.LinkedThread,
			Name:           label,
			CreatorID:      creatorID,
			EntityType:     entityType,
			EntityID:       entityID,
			UniqueKey:      &key,
			LastActivityAt: now,
		}
		members := []models.ThreadMember{{UserID: creatorID, Role: models.RoleAdmin, JoinedAt: now}}
		for _, id := range memberIDs {
			members = append(members, models.ThreadMember{UserID: id, Role: models.RoleMember, JoinedAt: now})
		}
		return thread, members
	})
	if err != nil {
		return nil, err
	}
	if !created {
		if _, ok := thread.Member(creatorID); !ok {
			return nil, ErrForbidden
		}
	}
	return thread, nil
}

func (s *ThreadService) getOrCreateUnique(tenantID uint, key string, kind models.ThreadKind, build func(now time.Time) (*models.Thread, []models.ThreadMember)) (*models.Thread, bool, error) {
	existing, err := s.threadRepo.FindByUniqueKey(tenantID, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	thread, members := build(s.now())
	err = s.threadRepo.CreateWithMembers(thread, members)
	if err == nil {
		return thread, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}

	// Lost the race: someone else inserted the same key.
	metrics.UniqueThreadConflicts.WithLabelValues(string(kind)).Inc()
	existing, err = s.threadRepo.FindByUniqueKey(tenantID, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrConflict
		}
		return nil, false, err
	}
	return existing, false, nil
}

// CreateGroup makes the creator admin and every listed user a member.
func (s *ThreadService) CreateGroup(tenantID, creatorID uint, input CreateGroupInput) (*models.Thread, error) {
	name := validation.NormalizeName(input.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if !validation.ValidateGroupName(name) {
		return nil, invalid("name", "must be at most %d characters", validation.MaxGroupNameLength)
	}

	memberIDs := validation.DedupeIDs(input.MemberIDs, creatorID)
	if len(memberIDs) == 0 {
		return nil, invalid("member_ids", "at least one other member is required")
	}
	if err := s.requireUsers(tenantID, memberIDs); err != nil {
		return nil, err
	}

	now := s.now()
	thread := &models.Thread{
		TenantID:       tenantID,
		Kind:           models.GroupThread,
		Name:           name,
		Description:    validation.TrimAndLimit(input.Description, validation.MaxDescriptionLength),
		CreatorID:      creatorID,
		IsPrivate:      input.IsPrivate,
		Department:     validation.TrimAndLimit(input.Department, 60),
		LastActivityAt: now,
	}
	members := []models.ThreadMember{{UserID: creatorID, Role: models.RoleAdmin, JoinedAt: now}}
	for _, id := range memberIDs {
		members = append(members, models.ThreadMember{UserID: id, Role: models.RoleMember, JoinedAt: now})
	}

	if err := s.threadRepo.CreateWithMembers(thread, members); err != nil {
		return nil, err
	}
	log.Printf("[chat] tenant=%d group thread %d created by %d with %d members", tenantID, thread.ID, creatorID, len(members))
	return thread, nil
}

func (s *ThreadService) requireUsers(tenantID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	users, err := s.userRepo.FindByIDs(tenantID, ids)
	if err != nil {
		return err
	}
	if len(users) != len(ids) {
		found := make(map[uint]bool, len(users))
		for _, u := range users {
			found[u.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return invalid("member_ids", "unknown user %d", id)
			}
		}
	}
	return nil
}

// Authorize loads the thread and the caller's membership. It runs before
// any read or write of thread data.
func (s *ThreadService) Authorize(tenantID, threadID, userID uint) (*models.Thread, *models.ThreadMember, error) {
	thread, err := s.threadRepo.FindByID(tenantID, threadID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	member, ok := thread.Member(userID)
	if !ok {
		return nil, nil, ErrForbidden
	}
	return thread, member, nil
}

func (s *ThreadService) GetThread(tenantID, userID, threadID uint) (*models.Thread, error) {
	thread, _, err := s.Authorize(tenantID, threadID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.nameDirect(tenantID, userID, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// nameDirect shows a direct thread under the other participant's name, as
// ListThreads does. The stored row has no name of its own.
func (s *ThreadService) nameDirect(tenantID, viewerID uint, thread *models.Thread) error {
	if thread.Kind != models.DirectThread {
		return nil
	}
	thread.Name = unknownPeerName
	peerID := thread.OtherMember(viewerID)
	if peerID == 0 {
		return nil
	}
	peer, err := s.userRepo.FindByID(tenantID, peerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	thread.Name = peer.DisplayName
	return nil
}

// ListThreads returns the caller's threads, most recent activity first.
func (s *ThreadService) ListThreads(tenantID, userID uint, includeArchived bool) ([]ThreadSummary, error) {
	rows, err := s.threadRepo.ListSummaries(tenantID, userID, includeArchived)
	if err != nil {
		return nil, err
	}

	var peers []uint
	for _, row := range rows {
		if models.ThreadKind(row.Kind) == models.DirectThread && row.PeerID != nil {
			peers = append(peers, *row.PeerID)
		}
	}
	names := map[uint]string{}
	if len(peers) > 0 {
		users, err := s.userRepo.FindByIDs(tenantID, peers)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			names[u.ID] = u.DisplayName
		}
	}

	out := make([]ThreadSummary, 0, len(rows))
	for _, row := range rows {
		summary := ThreadSummary{
			ID:             row.ThreadID,
			Kind:           models.ThreadKind(row.Kind),
			Name:           row.Name,
			IsPrivate:      row.IsPrivate,
			Department:     row.Department,
			EntityType:     row.EntityType,
			EntityID:       row.EntityID,
			Role:           models.MemberRole(row.Role),
			LastActivityAt: row.LastActivityAt,
			LastReadAt:     row.LastReadAt,
			Archived:       row.ArchivedAt != nil,
			UnreadCount:    row.UnreadCount,
		}
		if summary.Kind == models.DirectThread {
			summary.PeerID = row.PeerID
			summary.Name = unknownPeerName
			if row.PeerID != nil {
				if name, ok := names[*row.PeerID]; ok {
					summary.Name = name
				}
			}
		}
		if row.LastMessageID != nil {
			preview := &MessagePreview{ID: *row.LastMessageID}
			if row.LastMessageSenderID != nil {
				preview.SenderID = *row.LastMessageSenderID
			}
			if row.LastMessageKind != nil {
				preview.Kind = models.MessageKind(*row.LastMessageKind)
			}
			if row.LastMessageCreatedAt != nil {
				preview.CreatedAt = *row.LastMessageCreatedAt
			}
			preview.Deleted = row.LastMessageDeletedAt != nil
			if !preview.Deleted && row.LastMessageBody != nil {
				preview.Body = truncate(*row.LastMessageBody, previewLength)
			}
			summary.LastMessage = preview
		}
		out = append(out, summary)
	}
	return out, nil
}

// AddMember lets a group or linked-thread admin add a user. Adding an
// existing member is a no-op.
func (s *ThreadService) AddMember(tenantID, actorID, threadID, userID uint) (*models.ThreadMember, error) {
	thread, actor, err := s.Authorize(tenantID, threadID, actorID)
	if err != nil {
		return nil, err
	}
	if thread.Kind == models.DirectThread {
		return nil, invalid("thread_id", "direct threads have fixed membership")
	}
	if actor.Role != models.RoleAdmin {
		return nil, ErrForbidden
	}
	if thread.IsArchived() {
		return nil, ErrThreadArchived
	}
	if existing, ok := thread.Member(userID); ok {
		return existing, nil
	}
	if _, err := s.userRepo.FindByID(tenantID, userID); err != nil {
		return nil, notFound(err)
	}

	member := &models.ThreadMember{ThreadID: thread.ID, UserID: userID, Role: models.RoleMember, JoinedAt: s.now()}
	if err := s.threadRepo.AddMember(member); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.threadRepo.GetMember(thread.ID, userID)
		}
		return nil, err
	}
	s.invalidateUnread(tenantID, userID)
	return member, nil
}

// RemoveMember is allowed for admins and for members leaving on their own.
// The thread and its history stay even when nobody is left.
func (s *ThreadService) RemoveMember(tenantID, actorID, threadID, userID uint) error {
	thread, actor, err := s.Authorize(tenantID, threadID, actorID)
	if err != nil {
		return err
	}
	if thread.Kind == models.DirectThread {
		return invalid("thread_id", "direct threads have fixed membership")
	}
	if actorID != userID && actor.Role != models.RoleAdmin {
		return ErrForbidden
	}
	if _, ok := thread.Member(userID); !ok {
		return ErrNotFound
	}
	if err := s.threadRepo.RemoveMember(thread.ID, userID); err != nil {
		return err
	}
	s.invalidateUnread(tenantID, userID)
	return nil
}

// Archive hides the thread from default listings and closes it for new
// messages. Admins and the creator may archive; archiving twice is a no-op.
func (s *ThreadService) Archive(tenantID, actorID, threadID uint) (*models.Thread, error) {
	thread, actor, err := s.Authorize(tenantID, threadID, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && thread.CreatorID != actorID {
		return nil, ErrForbidden
	}
	if thread.IsArchived() {
		return thread, nil
	}
	now := s.now()
	if err := s.threadRepo.Archive(tenantID, thread.ID, now); err != nil {
		return nil, err
	}
	thread.ArchivedAt = &now

	ids := make([]uint, 0, len(thread.Members))
	for _, m := range thread.Members {
		ids = append(ids, m.UserID)
	}
	s.invalidateUnread(tenantID, ids...)
	return thread, nil
}

func (s *ThreadService) invalidateUnread(tenantID uint, userIDs ...uint) {
	if err := s.unread.Invalidate(tenantID, userIDs...); err != nil {
		log.Printf("[chat] unread cache invalidate failed: %v", err)
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}
