package repo

import (
	"context"
	"testing"
	"time"

	"github.com/leaseline/lease-chat-backend/internal/domain"
)

func TestRoomStats_EmptyRoom(t *testing.T) {
	db := newRepoDB(t, &domain.Message{})

	count, maxAt, err := RoomStats(context.Background(), db, "lease-empty")
	if err != nil {
		t.Fatalf("RoomStats: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected count 0, got %d", count)
	}
	if maxAt != nil {
		t.Fatalf("expected nil maxCreatedAt for empty room, got %v", maxAt)
	}
}

func TestRoomStats_CountAndNewestTimestamp(t *testing.T) {
	db := newRepoDB(t, &domain.Message{})

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	seedMessage(t, db, "lease-a", "alice", "s1", base)
	seedMessage(t, db, "lease-a", "bob", "s2", base.Add(2*time.Minute))
	newest := seedMessage(t, db, "lease-a", "alice", "s3", base.Add(5*time.Minute))

	// A different room must not leak into the aggregate.
	seedMessage(t, db, "lease-b", "carol", "other", base.Add(time.Hour))

	count, maxAt, err := RoomStats(context.Background(), db, "lease-a")
	if err != nil {
		t.Fatalf("RoomStats: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
	if maxAt == nil {
		t.Fatalf("expected non-nil maxCreatedAt")
	}
	if !maxAt.Equal(newest.CreatedAt) {
		t.Fatalf("expected maxCreatedAt %v, got %v", newest.CreatedAt, maxAt)
	}
}

func TestRoomStats_Error_NoTable(t *testing.T) {
	db := newRepoDB(t /* no migrations */)

	if _, _, err := RoomStats(context.Background(), db, "lease-a"); err == nil {
		t.Fatalf("expected error without messages table")
	}
}
