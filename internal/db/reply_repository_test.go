package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mrrp-bot/mrrp/internal/models"
)

func newReply(notificationID, account string, createdAt time.Time) *models.Reply {
	return &models.Reply{
		NotificationID: notificationID,
		StatusID:       "status-" + notificationID,
		ReplyStatusID:  "reply-" + notificationID,
		Account:        account,
		Visibility:     models.VisibilityUnlisted,
		Text:           "@" + account + " meow mrrp",
		WordCount:      2,
		CreatedAt:      createdAt,
	}
}

func TestReplyRepositoryCreateAndExists(t *testing.T) {
	ctx := context.Background()

	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()

	repo := NewReplyRepository(database)

	exists, err := repo.Exists(ctx, "n1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected no reply before create")
	}

	reply := newReply("n1", "luna@lunar.place", time.Time{})
	if err := repo.Create(ctx, reply); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if reply.ID == "" || reply.CreatedAt.IsZero() {
		t.Fatal("expected ID and CreatedAt to be set")
	}

	exists, err = repo.Exists(ctx, "n1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected reply to exist")
	}

	got, err := repo.GetByNotification(ctx, "n1")
	if err != nil {
		t.Fatalf("GetByNotification: %v", err)
	}
	if got.Text != reply.Text || got.Visibility != models.VisibilityUnlisted || got.ReplyStatusID != "reply-n1" {
		t.Errorf("unexpected reply: %+v", got)
	}
}

func TestReplyRepositoryDuplicate(t *testing.T) {
	ctx := context.Background()

	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()

	repo := NewReplyRepository(database)
	if err := repo.Create(ctx, newReply("n1", "luna", time.Time{})); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err = repo.Create(ctx, newReply("n1", "luna", time.Time{}))
	if !errors.Is(err, ErrReplyExists) {
		t.Fatalf("expected ErrReplyExists, got %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reply, got %d", count)
	}
}

func TestReplyRepositoryValidation(t *testing.T) {
	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()

	repo := NewReplyRepository(database)
	if err := repo.Create(context.Background(), &models.Reply{StatusID: "s1"}); err == nil {
		t.Fatal("expected error for missing notification id")
	}
	if err := repo.Create(context.Background(), &models.Reply{NotificationID: "n1"}); err == nil {
		t.Fatal("expected error for missing status id")
	}
}

func TestReplyRepositoryList(t *testing.T) {
	ctx := context.Background()

	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()

	repo := NewReplyRepository(database)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	accounts := []string{"luna", "mia", "luna"}
	for i, account := range accounts {
		reply := newReply(string(rune('a'+i)), account, base.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(ctx, reply); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	all, err := repo.List(ctx, models.ReplyQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(all))
	}
	if all[0].NotificationID != "c" {
		t.Fatalf("expected newest first, got %q", all[0].NotificationID)
	}

	luna := "luna"
	filtered, err := repo.List(ctx, models.ReplyQuery{Account: &luna, Limit: 1})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].NotificationID != "c" {
		t.Fatalf("unexpected filtered replies: %+v", filtered)
	}

	since := base.Add(90 * time.Second)
	recent, err := repo.List(ctx, models.ReplyQuery{Since: &since})
	if err != nil {
		t.Fatalf("List since: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 reply since cutoff, got %d", len(recent))
	}
}
