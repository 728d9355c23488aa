package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/leaseline/lease-chat-backend/internal/domain"
	"github.com/leaseline/lease-chat-backend/internal/repo"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedRoom creates a lease and enrolls the given users, returning the lease id.
func seedRoom(t *testing.T, db *gorm.DB, name string, userIDs ...string) string {
	t.Helper()
	ctx := context.Background()
	l, err := repo.CreateLease(ctx, db, name)
	if err != nil {
		t.Fatalf("create lease: %v", err)
	}
	for _, uid := range userIDs {
		if _, err := repo.AddLeaseMember(ctx, db, l.ID, uid); err != nil {
			t.Fatalf("add member %s: %v", uid, err)
		}
	}
	return l.ID
}

func TestChatService_Authorize(t *testing.T) {
	db := newSvcDB(t)
	svc := NewChatService(db)
	leaseID := seedRoom(t, db, "Harbor Street 12", "alice")

	if err := svc.Authorize(context.Background(), leaseID, "alice"); err != nil {
		t.Fatalf("expected member to be authorized, got %v", err)
	}
	if err := svc.Authorize(context.Background(), leaseID, "mallory"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-member, got %v", err)
	}
	if err := svc.Authorize(context.Background(), "no-such-lease", "alice"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unknown lease, got %v", err)
	}
}

func TestChatService_Post_ValidationAndAuthorization(t *testing.T) {
	db := newSvcDB(t)
	svc := NewChatService(db)
	leaseID := seedRoom(t, db, "Harbor Street 12", "alice")
	ctx := context.Background()

	if _, err := svc.Post(ctx, leaseID, "alice", "   \t\n "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	svc.MaxContentRunes = 5
	if _, err := svc.Post(ctx, leaseID, "alice", "this is too long"); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
	// Rune count, not byte count: five multi-byte runes must pass.
	if _, err := svc.Post(ctx, leaseID, "alice", "héllö"); err != nil {
		t.Fatalf("expected five-rune content to pass, got %v", err)
	}
	svc.MaxContentRunes = 0
	if _, err := svc.Post(ctx, leaseID, "alice", strings.Repeat("x", 10000)); err != nil {
		t.Fatalf("expected cap disabled at zero, got %v", err)
	}

	// Membership is re-checked at send time.
	if _, err := svc.Post(ctx, leaseID, "mallory", "hi"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-member sender, got %v", err)
	}
}

func TestChatService_Post_PersistsAndReturnsView(t *testing.T) {
	db := newSvcDB(t)
	svc := NewChatService(db)
	leaseID := seedRoom(t, db, "Harbor Street 12", "alice")
	ctx := context.Background()

	if err := db.Create(&domain.User{ID: "alice", DisplayName: "Alice A."}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	v, err := svc.Post(ctx, leaseID, "alice", "  hello room  ")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if v.Content != "hello room" {
		t.Fatalf("expected trimmed content, got %q", v.Content)
	}
	if v.ID == "" || v.LeaseID != leaseID || v.SenderID != "alice" {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Sender.DisplayName != "Alice A." {
		t.Fatalf("expected sender display fields, got %+v", v.Sender)
	}
	if v.ReadReceipts == nil || len(v.ReadReceipts) != 0 {
		t.Fatalf("expected empty (non-nil) receipts on a fresh message, got %+v", v.ReadReceipts)
	}

	// Durable before return.
	var count int64
	if err := db.Model(&domain.Message{}).Where("lease_id = ?", leaseID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 persisted message, got %d", count)
	}
}

func TestChatService_History_WindowAndAssembly(t *testing.T) {
	db := newSvcDB(t)
	svc := NewChatService(db)
	leaseID := seedRoom(t, db, "Harbor Street 12", "alice", "bob")
	ctx := context.Background()

	if err := db.Create(&domain.User{ID: "bob", DisplayName: "Bob B."}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	var views []*MessageView
	for i := 0; i < 5; i++ {
		v, err := svc.Post(ctx, leaseID, "alice", fmt.Sprintf("msg-%d", i))
		if err != nil {
			t.Fatalf("Post %d: %v", i, err)
		}
		views = append(views, v)
	}

	// Bob reads the second message.
	if _, err := svc.MarkRead(ctx, leaseID, "bob", views[1].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	svc.HistoryLimit = 3
	got, err := svc.History(ctx, leaseID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected window of 3, got %d", len(got))
	}
	// Most recent suffix, still chronological.
	for i, want := range []string{"msg-2", "msg-3", "msg-4"} {
		if got[i].Content != want {
			t.Fatalf("window[%d]: expected %q, got %q", i, want, got[i].Content)
		}
	}

	svc.HistoryLimit = 0
	full, err := svc.History(ctx, leaseID)
	if err != nil {
		t.Fatalf("History (uncapped): %v", err)
	}
	if len(full) != 5 {
		t.Fatalf("expected all 5 with cap disabled, got %d", len(full))
	}
	// The receipt rides on its message with the reader's display fields;
	// alice has no directory record so her view degrades to the bare id.
	if full[0].Sender.DisplayName != "" || full[0].Sender.ID != "alice" {
		t.Fatalf("expected bare-id sender view, got %+v", full[0].Sender)
	}
	rs := full[1].ReadReceipts
	if len(rs) != 1 || rs[0].UserID != "bob" || rs[0].User.DisplayName != "Bob B." {
		t.Fatalf("expected bob's receipt on msg-1, got %+v", rs)
	}
	for i, v := range full {
		if i == 1 {
			continue
		}
		if len(v.ReadReceipts) != 0 {
			t.Fatalf("unexpected receipts on %q: %+v", v.Content, v.ReadReceipts)
		}
	}
}

func TestChatService_History_EmptyRoom(t *testing.T) {
	db := newSvcDB(t)
	svc := NewChatService(db)
	leaseID := seedRoom(t, db, "Harbor Street 12", "alice")

	got, err := svc.History(context.Background(), leaseID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty (non-nil) history, got %+v", got)
	}
}

func TestChatService_HistoryPage(t *testing.T) {
	db := newSvcDB(t)
	svc := NewChatService(db)
	leaseID := seedRoom(t, db, "Harbor Street 12", "alice")
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := svc.Post(ctx, leaseID, "alice", fmt.Sprintf("p-%d", i)); err != nil {
			t.Fatalf("Post %d: %v", i, err)
		}
	}

	views, total, err := svc.HistoryPage(ctx, leaseID, 2, 3)
	if err != nil {
		t.Fatalf("HistoryPage: %v", err)
	}
	if total != 7 {
		t.Fatalf("expected total 7, got %d", total)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 rows on page 2, got %d", len(views))
	}
	for i, want := range []string{"p-3", "p-4", "p-5"} {
		if views[i].Content != want {
			t.Fatalf("page[%d]: expected %q, got %q", i, want, views[i].Content)
		}
	}

	// Out-of-range pages and invalid inputs degrade gracefully.
	views, total, err = svc.HistoryPage(ctx, leaseID, 99, 3)
	if err != nil || total != 7 || len(views) != 0 {
		t.Fatalf("expected empty out-of-range page, got views=%d total=%d err=%v", len(views), total, err)
	}
	views, total, err = svc.HistoryPage(ctx, "no-such-lease", 0, -1)
	if err != nil || total != 0 || len(views) != 0 {
		t.Fatalf("expected empty result for unknown room, got views=%d total=%d err=%v", len(views), total, err)
	}
}

func TestChatService_Stats(t *testing.T) {
	db := newSvcDB(t)
	svc := NewChatService(db)
	leaseID := seedRoom(t, db, "Harbor Street 12", "alice")
	ctx := context.Background()

	count, maxTS, err := svc.Stats(ctx, leaseID)
	if err != nil || count != 0 || maxTS != nil {
		t.Fatalf("expected empty stats, got count=%d maxTS=%v err=%v", count, maxTS, err)
	}

	if _, err := svc.Post(ctx, leaseID, "alice", "one"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	last, err := svc.Post(ctx, leaseID, "alice", "two")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	count, maxTS, err = svc.Stats(ctx, leaseID)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
	if maxTS == nil {
		t.Fatalf("expected non-nil newest timestamp")
	}
	if d := maxTS.Sub(last.CreatedAt); d > time.Second || d < -time.Second {
		t.Fatalf("expected newest timestamp near %v, got %v", last.CreatedAt, maxTS)
	}
}

func TestChatService_MarkRead(t *testing.T) {
	db := newSvcDB(t)
	svc := NewChatService(db)
	leaseID := seedRoom(t, db, "Harbor Street 12", "alice", "bob")
	otherID := seedRoom(t, db, "Dockside 3", "alice")
	ctx := context.Background()

	v, err := svc.Post(ctx, leaseID, "alice", "read me")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if _, err := svc.MarkRead(ctx, leaseID, "bob", "no-such-message"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
	if _, err := svc.MarkRead(ctx, otherID, "alice", v.ID); !errors.Is(err, ErrRoomMismatch) {
		t.Fatalf("expected ErrRoomMismatch, got %v", err)
	}

	first, err := svc.MarkRead(ctx, leaseID, "bob", v.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if first.MessageID != v.ID || first.UserID != "bob" {
		t.Fatalf("unexpected receipt %+v", first)
	}
	if first.User.ID != "bob" {
		t.Fatalf("expected reader view, got %+v", first.User)
	}

	// Second read is an overwrite, not a second receipt.
	second, err := svc.MarkRead(ctx, leaseID, "bob", v.ID)
	if err != nil {
		t.Fatalf("MarkRead (repeat): %v", err)
	}
	if second.ReadAt.Before(first.ReadAt) {
		t.Fatalf("expected ReadAt to advance, first=%v second=%v", first.ReadAt, second.ReadAt)
	}
	var count int64
	if err := db.Model(&domain.ReadReceipt{}).
		Where("message_id = ? AND user_id = ?", v.ID, "bob").
		Count(&count).Error; err != nil {
		t.Fatalf("count receipts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 receipt row, got %d", count)
	}

	// And history renders it once.
	history, err := svc.History(ctx, leaseID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || len(history[0].ReadReceipts) != 1 {
		t.Fatalf("expected one message with one receipt, got %+v", history)
	}
}
