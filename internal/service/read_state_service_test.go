package service

import (
	"errors"
	"testing"
	"time"
)

func TestEquipeScenario(t *testing.T) {
	env := newTestEnv(t)
	equipe := env.group(t, "Equipe", alice, bruno, carla)

	env.clock.Advance(time.Second)
	env.send(t, equipe.ID, alice, "Bom dia")

	if n := env.unread(t, equipe.ID, bruno); n != 1 {
		t.Fatalf("B unread = %d, want 1", n)
	}
	env.clock.Advance(time.Second)
	if err := env.chat.MarkRead(tenantA, bruno, equipe.ID, nil); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if n := env.unread(t, equipe.ID, bruno); n != 0 {
		t.Errorf("B unread after markRead = %d, want 0", n)
	}
	if n := env.unread(t, equipe.ID, carla); n != 1 {
		t.Errorf("C unread = %d, want 1", n)
	}
	if n := env.unread(t, equipe.ID, alice); n != 0 {
		t.Errorf("author unread = %d, want 0", n)
	}
}

func TestUnreadStaysZeroUntilAnotherMemberWrites(t *testing.T) {
	env := newTestEnv(t)
	thread := env.group(t, "Equipe", alice, bruno)

	env.clock.Advance(time.Second)
	env.send(t, thread.ID, alice, "um")
	env.clock.Advance(time.Second)
	if err := env.chat.MarkRead(tenantA, bruno, thread.ID, nil); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	env.clock.Advance(time.Second)
	env.send(t, thread.ID, bruno, "minha resposta")
	if n := env.unread(t, thread.ID, bruno); n != 0 {
		t.Errorf("own message counted: unread = %d", n)
	}

	env.clock.Advance(time.Second)
	env.send(t, thread.ID, alice, "dois")
	if n := env.unread(t, thread.ID, bruno); n != 1 {
		t.Errorf("unread = %d, want 1 after a new message", n)
	}
}

func TestMarkReadIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	thread := env.group(t, "Equipe", alice, bruno)

	env.clock.Advance(time.Second)
	first := env.send(t, thread.ID, alice, "um")
	env.clock.Advance(time.Minute)
	env.send(t, thread.ID, alice, "dois")
	env.clock.Advance(time.Second)

	if err := env.chat.MarkRead(tenantA, bruno, thread.ID, nil); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	earlier := first.CreatedAt
	if err := env.chat.MarkRead(tenantA, bruno, thread.ID, &earlier); err != nil {
		t.Fatalf("MarkRead(earlier) error = %v", err)
	}

	if n := env.unread(t, thread.ID, bruno); n != 0 {
		t.Errorf("watermark moved backward: unread = %d", n)
	}
	member, _ := env.store.repositories().Threads.GetMember(thread.ID, bruno)
	if member.LastReadAt == nil || !member.LastReadAt.Equal(env.clock.Now()) {
		t.Errorf("last_read_at = %v, want %v", member.LastReadAt, env.clock.Now())
	}
}

func TestMarkReadAtPartialWatermark(t *testing.T) {
	env := newTestEnv(t)
	thread := env.group(t, "Equipe", alice, bruno)

	env.clock.Advance(time.Second)
	first := env.send(t, thread.ID, alice, "um")
	env.clock.Advance(time.Second)
	env.send(t, thread.ID, alice, "dois")

	at := first.CreatedAt
	if err := env.chat.MarkRead(tenantA, bruno, thread.ID, &at); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if n := env.unread(t, thread.ID, bruno); n != 1 {
		t.Errorf("unread = %d, want 1", n)
	}
}

func TestMarkReadClampsFutureTimestamps(t *testing.T) {
	env := newTestEnv(t)
	thread := env.group(t, "Equipe", alice, bruno)

	future := env.clock.Now().Add(time.Hour)
	if err := env.chat.MarkRead(tenantA, bruno, thread.ID, &future); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}

	env.clock.Advance(time.Minute)
	env.send(t, thread.ID, alice, "depois")
	if n := env.unread(t, thread.ID, bruno); n != 1 {
		t.Errorf("unread = %d, want 1; future watermark hid a new message", n)
	}
}

func TestMarkReadRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	thread := env.group(t, "Equipe", alice, bruno)

	if err := env.chat.MarkRead(tenantA, diego, thread.ID, nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-member MarkRead = %v, want ErrForbidden", err)
	}
	if _, err := env.chat.UnreadCount(tenantA, diego, thread.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-member UnreadCount = %v, want ErrForbidden", err)
	}
}

func TestDeletedMessagesAreNotUnread(t *testing.T) {
	env := newTestEnv(t)
	thread := env.group(t, "Equipe", alice, bruno)

	env.clock.Advance(time.Second)
	msg := env.send(t, thread.ID, alice, "ops")
	if _, err := env.chat.DeleteMessage(tenantA, alice, msg.ID); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	if n := env.unread(t, thread.ID, bruno); n != 0 {
		t.Errorf("unread = %d, want 0 for a tombstone", n)
	}
}

func TestUnreadCountAll(t *testing.T) {
	env := newTestEnv(t)
	equipe := env.group(t, "Equipe", alice, bruno, carla)
	vendas := env.group(t, "Vendas", carla, bruno)
	archived := env.group(t, "Antigo", alice, bruno)

	env.clock.Advance(time.Second)
	env.send(t, equipe.ID, alice, "um")
	env.send(t, equipe.ID, carla, "dois")
	env.send(t, vendas.ID, carla, "três")
	env.send(t, archived.ID, alice, "quatro")
	if _, err := env.chat.Archive(tenantA, alice, archived.ID); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	summary, err := env.chat.UnreadCountAll(tenantA, bruno)
	if err != nil {
		t.Fatalf("UnreadCountAll() error = %v", err)
	}
	if summary.Total != 3 {
		t.Errorf("total = %d, want 3", summary.Total)
	}
	if summary.ByThread[equipe.ID] != 2 || summary.ByThread[vendas.ID] != 1 {
		t.Errorf("by thread = %v", summary.ByThread)
	}
	if _, ok := summary.ByThread[archived.ID]; ok {
		t.Errorf("archived thread counted")
	}
	// Opening an archived thread still shows what was left unread there.
	if n := env.unread(t, archived.ID, bruno); n != 1 {
		t.Errorf("archived thread unread = %d, want 1", n)
	}
}

func TestUnreadCountAllIgnoresCountRacingMarkRead(t *testing.T) {
	env := newTestEnv(t)
	thread := env.group(t, "Equipe", alice, bruno)
	env.clock.Advance(time.Second)
	env.send(t, thread.ID, alice, "Bom dia")
	env.clock.Advance(time.Second)

	// Bruno reads the thread after the aggregate was counted but before it
	// is written to the cache.
	env.store.afterUnreadCount = func() {
		if err := env.chat.MarkRead(tenantA, bruno, thread.ID, nil); err != nil {
			t.Errorf("MarkRead() error = %v", err)
		}
	}
	summary, err := env.chat.UnreadCountAll(tenantA, bruno)
	if err != nil {
		t.Fatalf("UnreadCountAll() error = %v", err)
	}
	if summary.Total != 1 {
		t.Fatalf("total = %d, want 1 as counted", summary.Total)
	}

	summary, err = env.chat.UnreadCountAll(tenantA, bruno)
	if err != nil {
		t.Fatalf("UnreadCountAll() error = %v", err)
	}
	if summary.Total != 0 {
		t.Errorf("total after markRead = %d, want 0", summary.Total)
	}
}

func TestUnreadCountAllIgnoresCountRacingSend(t *testing.T) {
	env := newTestEnv(t)
	thread := env.group(t, "Equipe", alice, bruno)

	env.store.afterUnreadCount = func() {
		env.clock.Advance(time.Second)
		env.send(t, thread.ID, alice, "Bom dia")
	}
	summary, err := env.chat.UnreadCountAll(tenantA, bruno)
	if err != nil {
		t.Fatalf("UnreadCountAll() error = %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("total = %d, want 0 as counted", summary.Total)
	}

	summary, err = env.chat.UnreadCountAll(tenantA, bruno)
	if err != nil {
		t.Fatalf("UnreadCountAll() error = %v", err)
	}
	if summary.Total != 1 {
		t.Errorf("total after send = %d, want 1", summary.Total)
	}
	// Served from the cache now.
	if cached, ok := env.unreads.Get(tenantA, bruno); !ok || cached.Total != 1 {
		t.Errorf("cached = %+v, %v; want total 1", cached, ok)
	}
}
