// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the membership
// directory: leases, lease memberships, and user display records.
//
// The directory answers the single question the chat core depends on —
// "is user U a member of lease L?" — plus the admin operations that keep it
// populated. All functions are context-aware and accept a *gorm.DB handle,
// making them safe for use within transactions.
//
// Error semantics:
//   - When a lease or user is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - Duplicate memberships rely on the database unique constraint and are
//     returned as the raw DB error; the service layer translates them.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leaseline/lease-chat-backend/internal/domain"
)

// IsLeaseMember reports whether userID belongs to leaseID.
func IsLeaseMember(ctx context.Context, db *gorm.DB, leaseID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.LeaseMembership{}).
		Where("lease_id = ? AND user_id = ?", leaseID, userID).
		Count(&n).Error
	return n > 0, err
}

// CreateLease inserts a new Lease row with the given display name.
func CreateLease(ctx context.Context, db *gorm.DB, name string) (*domain.Lease, error) {
	l := &domain.Lease{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(l).Error; err != nil {
		return nil, err
	}
	return l, nil
}

// GetLease fetches a lease by id, or ErrNotFound if missing.
func GetLease(ctx context.Context, db *gorm.DB, id string) (*domain.Lease, error) {
	var l domain.Lease
	if err := db.WithContext(ctx).Where("id = ?", id).First(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

// AddLeaseMember links userID to leaseID. The (lease_id, user_id) pair must
// be unique; a duplicate surfaces as the driver's unique-constraint error.
func AddLeaseMember(ctx context.Context, db *gorm.DB, leaseID, userID string) (*domain.LeaseMembership, error) {
	m := &domain.LeaseMembership{
		ID:        uuid.NewString(),
		LeaseID:   leaseID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListLeaseMembers returns the user ids linked to leaseID, oldest first.
func ListLeaseMembers(ctx context.Context, db *gorm.DB, leaseID string) ([]domain.LeaseMembership, error) {
	var out []domain.LeaseMembership
	err := db.WithContext(ctx).
		Where("lease_id = ?", leaseID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CreateUser inserts a user display record mirrored from the external
// directory. The id may be supplied (to match the external identity) or left
// empty to generate one.
func CreateUser(ctx context.Context, db *gorm.DB, id, displayName, avatarURL string) (*domain.User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	u := &domain.User{
		ID:          id,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user display record by id, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsersByIDs returns the users whose ids are in ids, keyed by id.
// Unknown ids are simply absent from the map; callers fall back to a bare
// identifier view for them.
func ListUsersByIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.User, error) {
	out := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.User
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}
