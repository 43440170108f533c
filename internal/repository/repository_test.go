package repository_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
	"github.com/aledz7/df-graficas-sub017/internal/testutil"
	"gorm.io/gorm"
)

var base = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func directThread(a, b uint) (*models.Thread, []models.ThreadMember) {
	key := models.DirectKey(a, b)
	thread := &models.Thread{
		TenantID:       1,
		Kind:           models.DirectThread,
		CreatorID:      a,
		IsPrivate:      true,
		UniqueKey:      &key,
		LastActivityAt: base,
	}
	members := []models.ThreadMember{
		{UserID: a, Role: models.RoleMember},
		{UserID: b, Role: models.RoleMember},
	}
	return thread, members
}

func TestCreateWithMembersRejectsDuplicateKey(t *testing.T) {
	db := testutil.NewDB(t)
	threads := repository.NewThreadRepository(db)

	first, members := directThread(1, 2)
	if err := threads.CreateWithMembers(first, members); err != nil {
		t.Fatalf("CreateWithMembers() error = %v", err)
	}

	second, members := directThread(2, 1)
	err := threads.CreateWithMembers(second, members)
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("duplicate create error = %v, want gorm.ErrDuplicatedKey", err)
	}

	found, err := threads.FindByUniqueKey(1, models.DirectKey(1, 2))
	if err != nil {
		t.Fatalf("FindByUniqueKey() error = %v", err)
	}
	if found.ID != first.ID || len(found.Members) != 2 {
		t.Errorf("found = %+v", found)
	}
	if _, err := threads.FindByUniqueKey(2, models.DirectKey(1, 2)); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("other tenant lookup error = %v, want not found", err)
	}
}

func TestWatermarkAndUnreadCount(t *testing.T) {
	db := testutil.NewDB(t)
	threads := repository.NewThreadRepository(db)
	messages := repository.NewMessageRepository(db)
	readState := repository.NewReadStateRepository(db)

	thread, members := directThread(1, 2)
	if err := threads.CreateWithMembers(thread, members); err != nil {
		t.Fatalf("CreateWithMembers() error = %v", err)
	}
	for i := 1; i <= 3; i++ {
		msg := &models.Message{
			TenantID:  1,
			ThreadID:  thread.ID,
			SenderID:  1,
			Body:      "oi",
			Kind:      models.TextMessage,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := messages.Create(msg); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if n, err := readState.CountUnread(1, thread.ID, 2); err != nil || n != 3 {
		t.Fatalf("CountUnread() = %d, %v; want 3", n, err)
	}
	if err := readState.AdvanceWatermark(thread.ID, 2, base.Add(2*time.Second)); err != nil {
		t.Fatalf("AdvanceWatermark() error = %v", err)
	}
	// An older watermark never moves it back.
	if err := readState.AdvanceWatermark(thread.ID, 2, base); err != nil {
		t.Fatalf("AdvanceWatermark(older) error = %v", err)
	}
	if n, err := readState.CountUnread(1, thread.ID, 2); err != nil || n != 1 {
		t.Errorf("CountUnread() = %d, %v; want 1", n, err)
	}
	if n, err := readState.CountUnread(1, thread.ID, 1); err != nil || n != 0 {
		t.Errorf("author CountUnread() = %d, %v; want 0", n, err)
	}

	reloaded, err := threads.FindByID(1, thread.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if !reloaded.LastActivityAt.Equal(base.Add(3 * time.Second)) {
		t.Errorf("last_activity_at = %v", reloaded.LastActivityAt)
	}
}

func TestFindPageOrdersByCreatedAtThenID(t *testing.T) {
	db := testutil.NewDB(t)
	threads := repository.NewThreadRepository(db)
	messages := repository.NewMessageRepository(db)

	thread, members := directThread(1, 2)
	if err := threads.CreateWithMembers(thread, members); err != nil {
		t.Fatalf("CreateWithMembers() error = %v", err)
	}
	var ids []uint
	for i := 0; i < 4; i++ {
		// Two messages per timestamp.
		msg := &models.Message{
			TenantID:  1,
			ThreadID:  thread.ID,
			SenderID:  1,
			Body:      "m",
			Kind:      models.TextMessage,
			CreatedAt: base.Add(time.Duration(i/2) * time.Second),
		}
		if err := messages.Create(msg); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, msg.ID)
	}

	latest, err := messages.FindPage(thread.ID, repository.PageQuery{Limit: 2})
	if err != nil {
		t.Fatalf("FindPage() error = %v", err)
	}
	if len(latest) != 2 || latest[0].ID != ids[2] || latest[1].ID != ids[3] {
		t.Fatalf("latest page = %v", pageIDs(latest))
	}

	older, err := messages.FindPage(thread.ID, repository.PageQuery{
		Before: &repository.Cursor{CreatedAt: latest[0].CreatedAt, ID: latest[0].ID},
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("FindPage(before) error = %v", err)
	}
	if got := pageIDs(older); len(got) != 2 || got[0] != ids[0] || got[1] != ids[1] {
		t.Errorf("older page = %v, want %v", got, ids[:2])
	}

	newer, err := messages.FindPage(thread.ID, repository.PageQuery{
		After: &repository.Cursor{CreatedAt: older[1].CreatedAt, ID: older[1].ID},
		Limit: 1,
	})
	if err != nil {
		t.Fatalf("FindPage(after) error = %v", err)
	}
	if got := pageIDs(newer); len(got) != 1 || got[0] != ids[2] {
		t.Errorf("newer page = %v, want [%d]", got, ids[2])
	}
}

func TestUpdateBodySkipsTombstones(t *testing.T) {
	db := testutil.NewDB(t)
	threads := repository.NewThreadRepository(db)
	messages := repository.NewMessageRepository(db)

	thread, members := directThread(1, 2)
	if err := threads.CreateWithMembers(thread, members); err != nil {
		t.Fatalf("CreateWithMembers() error = %v", err)
	}
	msg := &models.Message{TenantID: 1, ThreadID: thread.ID, SenderID: 1, Body: "Bom dai", Kind: models.TextMessage, CreatedAt: base}
	if err := messages.Create(msg); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := messages.UpdateBody(msg.ID, "Bom dia", base.Add(time.Second)); err != nil {
		t.Fatalf("UpdateBody() error = %v", err)
	}
	if err := messages.MarkDeleted(msg.ID, base.Add(2*time.Second)); err != nil {
		t.Fatalf("MarkDeleted() error = %v", err)
	}
	err := messages.UpdateBody(msg.ID, "de novo", base.Add(3*time.Second))
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("UpdateBody() on tombstone error = %v, want gorm.ErrRecordNotFound", err)
	}

	stored, err := messages.FindByID(1, msg.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if stored.Body != "Bom dia" {
		t.Errorf("stored body = %q, want Bom dia", stored.Body)
	}
}

func TestSearchFallbackMatchesSubstrings(t *testing.T) {
	db := testutil.NewDB(t)
	// Migrate runs once in NewDB; a second run must be harmless.
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("Migrate() again error = %v", err)
	}
	threads := repository.NewThreadRepository(db)
	messages := repository.NewMessageRepository(db)

	thread, members := directThread(1, 2)
	if err := threads.CreateWithMembers(thread, members); err != nil {
		t.Fatalf("CreateWithMembers() error = %v", err)
	}
	for i, body := range []string{"Bom dia", "100% pronto", "Boa tarde"} {
		msg := &models.Message{TenantID: 1, ThreadID: thread.ID, SenderID: 1, Body: body, Kind: models.TextMessage, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := messages.Create(msg); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	found, err := messages.Search(1, 2, "bo", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(found) != 2 || found[0].Body != "Boa tarde" || found[1].Body != "Bom dia" {
		t.Errorf("Search(bo) = %v", found)
	}
	found, err = messages.Search(1, 2, "0%", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(found) != 1 || found[0].Body != "100% pronto" {
		t.Errorf("Search(0%%) = %v", found)
	}
	if found, _ := messages.Search(1, 3, "bo", 10); len(found) != 0 {
		t.Errorf("non-member found %d messages", len(found))
	}
}

func pageIDs(msgs []models.Message) []uint {
	out := make([]uint, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
