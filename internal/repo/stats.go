// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/leaseline/lease-chat-backend/internal/domain"
)

// RoomStats returns aggregate metadata for a room's messages: the total
// number of rows and the maximum CreatedAt timestamp among those rows.
// Messages are immutable, so (count, maxCreatedAt) changes exactly when the
// room's history changes, which makes the pair a cheap ETag source for the
// REST history endpoint.
//
// Return values:
//   - count:        total messages for leaseID
//   - maxCreatedAt: pointer to the greatest CreatedAt, or nil if no rows
//   - err:          database error, if any
func RoomStats(ctx context.Context, db *gorm.DB, leaseID string) (count int64, maxCreatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("lease_id = ?", leaseID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
