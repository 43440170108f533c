package service

import (
	"sync"
	"testing"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/cache"
	"github.com/aledz7/df-graficas-sub017/internal/config"
	"github.com/aledz7/df-graficas-sub017/internal/models"
)

const (
	tenantA = uint(1)
	tenantB = uint(2)

	alice = uint(10)
	bruno = uint(11)
	carla = uint(12)
	diego = uint(13)
	// outsider belongs to tenantB.
	outsider = uint(20)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	chat    *ChatService
	store   *memStore
	objects *memObjectStore
	typing  *cache.MemoryTypingStore
	unreads *cache.MemoryUnreadStore
	clock   *fakeClock
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Chat.TypingTTL = config.Duration(5 * time.Second)
	cfg.Chat.TypingMinInterval = config.Duration(time.Second)
	cfg.Chat.PageSize = 5
	cfg.Chat.MaxMessageLength = 200
	cfg.Attachments.MaxSize = config.SizeBytes(64 * 1024)
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig(), true)
}

func newTestEnvWithConfig(t *testing.T, cfg config.Config, withStorage bool) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   newMemStore(),
		typing:  cache.NewMemoryTypingStore(),
		unreads: cache.NewMemoryUnreadStore(),
		clock:   newFakeClock(),
	}
	env.store.addUser(tenantA, alice, "Alice")
	env.store.addUser(tenantA, bruno, "Bruno")
	env.store.addUser(tenantA, carla, "Carla")
	env.store.addUser(tenantA, diego, "Diego")
	env.store.addUser(tenantB, outsider, "Otto")

	var objects *memObjectStore
	if withStorage {
		objects = newMemObjectStore(env.clock.Now)
		env.objects = objects
		env.chat = NewChatService(env.store.repositories(), env.typing, env.unreads, objects, cfg)
	} else {
		env.chat = NewChatService(env.store.repositories(), env.typing, env.unreads, nil, cfg)
	}

	now := env.clock.Now
	env.chat.threads.now = now
	env.chat.readState.now = now
	env.chat.messages.now = now
	env.chat.typing.now = now
	env.chat.notifications.now = now
	env.chat.attachments.now = now
	return env
}

func (e *testEnv) group(t *testing.T, name string, creator uint, members ...uint) *models.Thread {
	t.Helper()
	thread, err := e.chat.CreateGroup(tenantA, creator, CreateGroupInput{Name: name, MemberIDs: members})
	if err != nil {
		t.Fatalf("CreateGroup(%q) error = %v", name, err)
	}
	return thread
}

func (e *testEnv) send(t *testing.T, threadID, author uint, body string) *models.Message {
	t.Helper()
	msg, err := e.chat.SendMessage(tenantA, author, threadID, AppendInput{Body: body})
	if err != nil {
		t.Fatalf("SendMessage(%q) error = %v", body, err)
	}
	return msg
}

func (e *testEnv) unread(t *testing.T, threadID, userID uint) int64 {
	t.Helper()
	n, err := e.chat.UnreadCount(tenantA, userID, threadID)
	if err != nil {
		t.Fatalf("UnreadCount(user %d) error = %v", userID, err)
	}
	return n
}
