package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
	"github.com/aledz7/df-graficas-sub017/internal/storage"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the database shared by the mock
// repositories below. A single mutex serialises access so concurrent tests
// behave like a database with a unique index.
type memStore struct {
	mu          sync.Mutex
	users       map[uint]models.User
	threads     map[uint]*models.Thread
	members     map[uint]map[uint]*models.ThreadMember
	messages    map[uint]*models.Message
	attachments map[uint]*models.Attachment

	nextThread     uint
	nextMessage    uint
	nextAttachment uint

	// failMessageCreate makes the next message insert fail.
	failMessageCreate error
	// afterUnreadCount and beforeBodyUpdate run once, outside the lock, to
	// interleave another request with a read or an edit.
	afterUnreadCount func()
	beforeBodyUpdate func()
}

func takeHook(hook *func()) func() {
	fn := *hook
	*hook = nil
	return fn
}

func newMemStore() *memStore {
	return &memStore{
		users:          make(map[uint]models.User),
		threads:        make(map[uint]*models.Thread),
		members:        make(map[uint]map[uint]*models.ThreadMember),
		messages:       make(map[uint]*models.Message),
		attachments:    make(map[uint]*models.Attachment),
		nextThread:     1,
		nextMessage:    1,
		nextAttachment: 1,
	}
}

func (s *memStore) addUser(tenantID, id uint, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = models.User{ID: id, TenantID: tenantID, DisplayName: name, IsActive: true}
}

func (s *memStore) repositories() Repositories {
	return Repositories{
		Users:       &MockUserRepository{s: s},
		Threads:     &MockThreadRepository{s: s},
		ReadState:   &MockReadStateRepository{s: s},
		Messages:    &MockMessageRepository{s: s},
		Attachments: &MockAttachmentRepository{s: s},
	}
}

func (s *memStore) threadCount(kind models.ThreadKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.threads {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memStore) attachmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attachments)
}

// copyThread must be called with s.mu held.
func (s *memStore) copyThread(t *models.Thread) *models.Thread {
	out := *t
	out.Members = nil
	ids := make([]uint, 0, len(s.members[t.ID]))
	for id := range s.members[t.ID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out.Members = append(out.Members, *s.members[t.ID][id])
	}
	return &out
}

func copyMessage(m *models.Message) models.Message {
	out := *m
	out.Attachments = append([]models.Attachment(nil), m.Attachments...)
	return out
}

func orderedBefore(a, b *models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// unreadFor must be called with s.mu held.
func (s *memStore) unreadFor(m *models.Message, userID uint) bool {
	member, ok := s.members[m.ThreadID][userID]
	if !ok || m.SenderID == userID || m.DeletedAt != nil {
		return false
	}
	return member.LastReadAt == nil || m.CreatedAt.After(*member.LastReadAt)
}

type MockUserRepository struct {
	s *memStore
}

func (r *MockUserRepository) FindByID(tenantID, id uint) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.TenantID != tenantID || !u.IsActive {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *MockUserRepository) FindByIDs(tenantID uint, ids []uint) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[uint]bool{}
	var out []models.User
	for _, id := range ids {
		u, ok := r.s.users[id]
		if !ok || seen[id] || u.TenantID != tenantID || !u.IsActive {
			continue
		}
		seen[id] = true
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type MockThreadRepository struct {
	s *memStore
}

func (r *MockThreadRepository) CreateWithMembers(thread *models.Thread, members []models.ThreadMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if thread.UniqueKey != nil {
		for _, t := range r.s.threads {
			if t.TenantID == thread.TenantID && t.UniqueKey != nil && *t.UniqueKey == *thread.UniqueKey {
				return gorm.ErrDuplicatedKey
			}
		}
	}
	thread.ID = r.s.nextThread
	r.s.nextThread++
	stored := *thread
	stored.Members = nil
	r.s.threads[thread.ID] = &stored

	r.s.members[thread.ID] = make(map[uint]*models.ThreadMember)
	for i := range members {
		members[i].ThreadID = thread.ID
		m := members[i]
		r.s.members[thread.ID][m.UserID] = &m
	}
	thread.Members = members
	return nil
}

func (r *MockThreadRepository) FindByID(tenantID, id uint) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.threads[id]
	if !ok || t.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	return r.s.copyThread(t), nil
}

func (r *MockThreadRepository) FindByUniqueKey(tenantID uint, key string) (*models.Thread, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.threads {
		if t.TenantID == tenantID && t.UniqueKey != nil && *t.UniqueKey == key {
			return r.s.copyThread(t), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MockThreadRepository) GetMember(threadID, userID uint) (*models.ThreadMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[threadID][userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *m
	return &out, nil
}

func (r *MockThreadRepository) AddMember(member *models.ThreadMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.members[member.ThreadID][member.UserID]; ok {
		return gorm.ErrDuplicatedKey
	}
	m := *member
	r.s.members[member.ThreadID][member.UserID] = &m
	return nil
}

func (r *MockThreadRepository) RemoveMember(threadID, userID uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.members[threadID], userID)
	return nil
}

func (r *MockThreadRepository) Archive(tenantID, threadID uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.threads[threadID]
	if !ok || t.TenantID != tenantID {
		return gorm.ErrRecordNotFound
	}
	t.ArchivedAt = &at
	return nil
}

func (r *MockThreadRepository) ListSummaries(tenantID, userID uint, includeArchived bool) ([]repository.ThreadSummaryRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []repository.ThreadSummaryRow
	for _, t := range r.s.threads {
		member, ok := r.s.members[t.ID][userID]
		if !ok || t.TenantID != tenantID || (!includeArchived && t.ArchivedAt != nil) {
			continue
		}
		row := repository.ThreadSummaryRow{
			ThreadID:       t.ID,
			Kind:           string(t.Kind),
			Name:           t.Name,
			IsPrivate:      t.IsPrivate,
			Department:     t.Department,
			EntityType:     t.EntityType,
			EntityID:       t.EntityID,
			LastActivityAt: t.LastActivityAt,
			ArchivedAt:     t.ArchivedAt,
			Role:           string(member.Role),
			LastReadAt:     member.LastReadAt,
		}
		for id := range r.s.members[t.ID] {
			if id != userID && (row.PeerID == nil || id < *row.PeerID) {
				peer := id
				row.PeerID = &peer
			}
		}
		var latest *models.Message
		for _, m := range r.s.messages {
			if m.ThreadID != t.ID {
				continue
			}
			if r.s.unreadFor(m, userID) {
				row.UnreadCount++
			}
			if latest == nil || orderedBefore(latest, m) {
				latest = m
			}
		}
		if latest != nil {
			body, kind := latest.Body, string(latest.Kind)
			row.LastMessageID = &latest.ID
			row.LastMessageSenderID = &latest.SenderID
			row.LastMessageBody = &body
			row.LastMessageKind = &kind
			row.LastMessageCreatedAt = &latest.CreatedAt
			row.LastMessageDeletedAt = latest.DeletedAt
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].LastActivityAt.Equal(rows[j].LastActivityAt) {
			return rows[i].LastActivityAt.After(rows[j].LastActivityAt)
		}
		return rows[i].ThreadID > rows[j].ThreadID
	})
	return rows, nil
}

type MockReadStateRepository struct {
	s *memStore
}

func (r *MockReadStateRepository) AdvanceWatermark(threadID, userID uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.members[threadID][userID]
	if !ok {
		return nil
	}
	if m.LastReadAt == nil || m.LastReadAt.Before(at) {
		t := at
		m.LastReadAt = &t
	}
	return nil
}

func (r *MockReadStateRepository) CountUnread(tenantID, threadID, userID uint) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.TenantID == tenantID && m.ThreadID == threadID && r.s.unreadFor(m, userID) {
			n++
		}
	}
	return n, nil
}

func (r *MockReadStateRepository) CountUnreadByThread(tenantID, userID uint) (map[uint]int64, error) {
	r.s.mu.Lock()
	out := map[uint]int64{}
	for _, m := range r.s.messages {
		t := r.s.threads[m.ThreadID]
		if m.TenantID != tenantID || t.ArchivedAt != nil || !r.s.unreadFor(m, userID) {
			continue
		}
		out[m.ThreadID]++
	}
	hook := takeHook(&r.s.afterUnreadCount)
	r.s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

type MockMessageRepository struct {
	s *memStore
}

func (r *MockMessageRepository) Create(message *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failMessageCreate; err != nil {
		r.s.failMessageCreate = nil
		return err
	}
	message.ID = r.s.nextMessage
	r.s.nextMessage++
	for i := range message.Attachments {
		message.Attachments[i].ID = r.s.nextAttachment
		r.s.nextAttachment++
		message.Attachments[i].MessageID = message.ID
		a := message.Attachments[i]
		r.s.attachments[a.ID] = &a
	}
	stored := copyMessage(message)
	r.s.messages[message.ID] = &stored
	if t, ok := r.s.threads[message.ThreadID]; ok && t.LastActivityAt.Before(message.CreatedAt) {
		t.LastActivityAt = message.CreatedAt
	}
	return nil
}

func (r *MockMessageRepository) FindByID(tenantID, id uint) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	out := copyMessage(m)
	return &out, nil
}

func (r *MockMessageRepository) FindPage(threadID uint, q repository.PageQuery) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*models.Message
	for _, m := range r.s.messages {
		if m.ThreadID == threadID {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return orderedBefore(all[i], all[j]) })

	cursorMsg := func(c *repository.Cursor) *models.Message {
		return &models.Message{CreatedAt: c.CreatedAt, ID: c.ID}
	}
	var out []models.Message
	if q.After != nil {
		c := cursorMsg(q.After)
		for _, m := range all {
			if orderedBefore(c, m) && len(out) < q.Limit {
				out = append(out, copyMessage(m))
			}
		}
		return out, nil
	}
	var window []*models.Message
	for _, m := range all {
		if q.Before == nil || orderedBefore(m, cursorMsg(q.Before)) {
			window = append(window, m)
		}
	}
	if len(window) > q.Limit {
		window = window[len(window)-q.Limit:]
	}
	for _, m := range window {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (r *MockMessageRepository) Search(tenantID, userID uint, query string, limit int) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Message
	for _, m := range r.s.messages {
		if m.TenantID != tenantID || m.DeletedAt != nil {
			continue
		}
		if _, ok := r.s.members[m.ThreadID][userID]; !ok {
			continue
		}
		if strings.Contains(strings.ToLower(m.Body), strings.ToLower(query)) {
			out = append(out, copyMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return orderedBefore(&out[j], &out[i]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockMessageRepository) UpdateBody(id uint, body string, editedAt time.Time) error {
	r.s.mu.Lock()
	hook := takeHook(&r.s.beforeBodyUpdate)
	r.s.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok || m.DeletedAt != nil {
		return gorm.ErrRecordNotFound
	}
	m.Body = body
	m.EditedAt = &editedAt
	return nil
}

func (r *MockMessageRepository) MarkDeleted(id uint, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.DeletedAt = &at
	return nil
}

func (r *MockMessageRepository) FindRecentUnread(tenantID, userID uint, since time.Time, limit int) ([]repository.RecentUnreadRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var rows []repository.RecentUnreadRow
	for _, m := range r.s.messages {
		t := r.s.threads[m.ThreadID]
		if m.TenantID != tenantID || t.ArchivedAt != nil || !m.CreatedAt.After(since) || !r.s.unreadFor(m, userID) {
			continue
		}
		rows = append(rows, repository.RecentUnreadRow{
			MessageID:   m.ID,
			ThreadID:    m.ThreadID,
			ThreadKind:  string(t.Kind),
			ThreadName:  t.Name,
			SenderID:    m.SenderID,
			Body:        m.Body,
			Kind:        string(m.Kind),
			IsImportant: m.IsImportant,
			IsUrgent:    m.IsUrgent,
			CreatedAt:   m.CreatedAt,
		})
	}
	// Map iteration order is random; the service must rank on its own.
	if len(rows) > limit {
		rankRecentUnread(rows)
		rows = rows[:limit]
	}
	return rows, nil
}

type MockAttachmentRepository struct {
	s *memStore
}

func (r *MockAttachmentRepository) FindByID(tenantID, id uint) (*models.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.attachments[id]
	if !ok || a.TenantID != tenantID {
		return nil, gorm.ErrRecordNotFound
	}
	out := *a
	return &out, nil
}

func (r *MockAttachmentRepository) ReferencedKeys(keys []string) (map[string]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := map[string]bool{}
	for _, k := range keys {
		want[k] = true
	}
	out := map[string]bool{}
	for _, a := range r.s.attachments {
		if want[a.StorageKey] {
			out[a.StorageKey] = true
		}
		if a.ThumbnailKey != "" && want[a.ThumbnailKey] {
			out[a.ThumbnailKey] = true
		}
	}
	return out, nil
}

func (r *MockAttachmentRepository) ListAfter(afterID uint, limit int) ([]models.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Attachment
	for _, a := range r.s.attachments {
		if a.ID > afterID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// memObjectStore implements storage.ObjectStore in memory.
type memObjectStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	now     func() time.Time
	failPut error
}

func newMemObjectStore(now func() time.Time) *memObjectStore {
	return &memObjectStore{objects: make(map[string]memObject), now: now}
}

func (m *memObjectStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return storage.ObjectStat{}, m.failPut
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectStat{}, err
	}
	m.objects[key] = memObject{data: data, contentType: contentType, lastModified: m.now()}
	return storage.ObjectStat{ETag: "etag-" + key, Size: int64(len(data)), ContentType: contentType, LastModified: m.now()}, nil
}

func (m *memObjectStore) GetObject(ctx context.Context, key string) (io.ReadCloser, storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), storage.ObjectStat{ETag: "etag-" + key, Size: int64(len(obj.data)), ContentType: obj.contentType, LastModified: obj.lastModified}, nil
}

func (m *memObjectStore) StatObject(ctx context.Context, key string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{ETag: "etag-" + key, Size: int64(len(obj.data)), ContentType: obj.contentType, LastModified: obj.lastModified}, nil
}

func (m *memObjectStore) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjectStore) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.lastModified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memObjectStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *memObjectStore) setModified(key string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj := m.objects[key]
	obj.lastModified = at
	m.objects[key] = obj
}

var errDatabaseDown = errors.New("database unavailable")
