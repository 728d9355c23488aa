// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: the append-only message store and its room-scoped queries.
//
// Ordering contract: within a room, messages are totally ordered by
// (CreatedAt ASC, Seq ASC). Seq is assigned by the store on insert and is
// monotonic, so concurrent senders are serialized by insertion order and a
// replay never contains gaps or duplicates.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leaseline/lease-chat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// AppendMessage inserts a new immutable message row for the given room.
// The message id is a randomly generated UUID, CreatedAt is server-assigned
// in UTC, and Seq is assigned by the store. The row is durable when the call
// returns without error; callers must not broadcast a message before then.
func AppendMessage(db *gorm.DB, leaseID, senderID, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		LeaseID:   leaseID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListRoomMessages returns messages for a room ordered (CreatedAt ASC, Seq ASC).
// A limit > 0 caps the result to the most recent limit messages while keeping
// ascending order, so a capped replay is always a contiguous suffix of the
// room's history.
func ListRoomMessages(ctx context.Context, db *gorm.DB, leaseID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("lease_id = ?", leaseID).
		Order("created_at DESC, seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	// Fetched newest-first to apply the cap; flip back to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListRoomMessagesPage returns a paginated slice ordered (CreatedAt ASC, Seq ASC).
// Used by the REST backfill endpoint; the live gateway replays via ListRoomMessages.
func ListRoomMessagesPage(ctx context.Context, db *gorm.DB, leaseID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("lease_id = ?", leaseID).
		Order("created_at ASC, seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountRoomMessages uses a raw COUNT so a missing table surfaces as an error.
func CountRoomMessages(ctx context.Context, db *gorm.DB, leaseID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE lease_id = ?", leaseID).
		Scan(&total).Error
	return total, err
}

// GetMessage fetches a message by its opaque wire id.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}
