// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ReadReceipt
// model.
//
// Error semantics:
//   - UpsertReceipt never fails on a duplicate (message_id, user_id) pair;
//     the existing row's read_at is overwritten (last write wins by arrival
//     order, relying on the unique index plus an ON CONFLICT clause).
//   - On other DB errors (connectivity, constraints, etc.), the raw gorm
//     error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leaseline/lease-chat-backend/internal/domain"
)

// UpsertReceipt writes the acknowledgment that userID has observed messageID.
// The (message_id, user_id) pair is unique: a second write for the same pair
// overwrites read_at in place, so repeated markRead calls collapse to a
// single record. The stored row is returned (with the original row's id when
// the write was an overwrite).
func UpsertReceipt(ctx context.Context, db *gorm.DB, messageID, userID string, readAt time.Time) (*domain.ReadReceipt, error) {
	rc := &domain.ReadReceipt{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    readAt,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"read_at": readAt}),
		}).
		Create(rc).Error
	if err != nil {
		return nil, err
	}

	// Re-read so an overwrite returns the canonical stored row.
	var stored domain.ReadReceipt
	err = db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// ListReceiptsByMessageIDs returns all receipts for the given message ids,
// grouped by message id. Messages without receipts are absent from the map.
// Used when assembling history so replayed messages carry their existing
// receipts.
func ListReceiptsByMessageIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string][]domain.ReadReceipt, error) {
	out := make(map[string][]domain.ReadReceipt, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.ReadReceipt
	err := db.WithContext(ctx).
		Where("message_id IN ?", ids).
		Order("read_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.MessageID] = append(out[r.MessageID], r)
	}
	return out, nil
}
