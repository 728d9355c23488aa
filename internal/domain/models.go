// Package domain defines the persistence models for the lease chat service:
// users, leases, lease memberships, chat messages, and read receipts. These
// types are mapped with GORM and form the core data layer of the application.
//
// A chat "room" is deliberately not modeled as a table. It is a virtual
// partition keyed by the lease identifier: a room exists whenever messages
// carry that lease id or a live session is joined to it. Modeling it this way
// removes the need for any room lifecycle management.
package domain

import "time"

// User holds the display fields attached to broadcast messages and read
// receipts. Account management (registration, credentials) lives outside this
// service; rows here mirror the external user directory.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - DisplayName: name rendered next to messages.
//   - AvatarURL: optional avatar location.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	DisplayName string    `json:"displayName" gorm:"type:varchar(255);not null"`
	AvatarURL   string    `json:"avatarUrl,omitempty" gorm:"type:varchar(512)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Lease is the tenancy record that scopes a chat room. Only the metadata
// needed to label and authorize the room lives here; the full housing record
// (unit, documents, billing) is owned by the surrounding application.
type Lease struct {
	ID        string    `json:"id"   gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Lease.
func (Lease) TableName() string { return "leases" }

// LeaseMembership links a user to a lease. The membership directory is the
// authority consulted before a session may join a room or post into it.
// A user appears at most once per lease (enforced by unique index).
type LeaseMembership struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	LeaseID   string    `json:"lease_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_lease_member"`
	UserID    string    `json:"user_id"  gorm:"type:varchar(64);not null;index;uniqueIndex:ux_lease_member"`
	CreatedAt time.Time `json:"created_at"`

	// Lease is the parent tenancy record. Memberships are cascade-deleted
	// if the lease is removed.
	Lease Lease `json:"-" gorm:"foreignKey:LeaseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for LeaseMembership.
func (LeaseMembership) TableName() string { return "lease_memberships" }

// Message is a single chat message within a lease room. Messages are
// immutable once persisted and are never deleted by this service.
//
// Ordering within a room is by CreatedAt with ties broken by Seq, the
// store-assigned insertion sequence. Seq is the integer primary key so
// SQLite assigns it monotonically on insert, which gives every room a
// gap-free, duplicate-free total order regardless of sender interleaving.
//
// Fields:
//   - Seq: store-assigned monotonic insertion sequence (primary key).
//   - ID: opaque UUID exposed on the wire (unique).
//   - LeaseID: the room partition key (indexed with CreatedAt).
//   - SenderID: user that authored the message; must be a lease member
//     at send time (checked against the membership directory).
//   - Content: message text.
//   - CreatedAt: server-assigned timestamp.
type Message struct {
	Seq       int64     `json:"-"         gorm:"primaryKey;autoIncrement"`
	ID        string    `json:"id"        gorm:"type:char(36);not null;uniqueIndex"`
	LeaseID   string    `json:"leaseId"   gorm:"type:char(36);not null;index:idx_lease_msgs,priority:1"`
	SenderID  string    `json:"senderId"  gorm:"type:varchar(64);not null;index"`
	Content   string    `json:"content"   gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_lease_msgs,priority:2"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// ReadReceipt records that a user has observed a message. There is exactly
// one logical receipt per (message, user) pair: writing a second receipt for
// the same pair overwrites ReadAt (last write wins by arrival order).
// Receipts are never deleted.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - MessageID: the observed message (unique per user).
//   - UserID: the observing user (unique per message).
//   - ReadAt: server-assigned acknowledgment time.
type ReadReceipt struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	MessageID string    `json:"messageId" gorm:"type:char(36);not null;index;uniqueIndex:ux_receipt_message_user"`
	UserID    string    `json:"userId"    gorm:"type:varchar(64);not null;index;uniqueIndex:ux_receipt_message_user"`
	ReadAt    time.Time `json:"readAt"`

	// Message is the observed message. Receipts are cascade-deleted if the
	// underlying message is removed out-of-band.
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ReadReceipt.
func (ReadReceipt) TableName() string { return "read_receipts" }
