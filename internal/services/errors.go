// Package services defines the business logic for the lease chat service.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service and gateway
// layers; translation into wire error codes or HTTP status codes is performed
// at the transport layer.
package services

import "errors"

var (
	// ErrForbidden indicates that the user is not a member of the lease whose
	// room they are trying to join or post into.
	ErrForbidden = errors.New("not a member of this lease")

	// ErrNotInRoom is returned when an action requires an active room
	// membership that the session does not hold.
	ErrNotInRoom = errors.New("no active room membership")

	// ErrEmptyMessage is returned when a sendMessage carries no content after
	// normalization.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when message content exceeds the maximum
	// configured rune length.
	ErrTooLong = errors.New("message too long")

	// ErrMessageNotFound indicates that the referenced message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrRoomMismatch is returned when a markRead references a message that
	// exists but belongs to a different room than the session's.
	ErrRoomMismatch = errors.New("message belongs to a different room")

	// ErrLeaseNotFound indicates that the requested lease does not exist.
	ErrLeaseNotFound = errors.New("lease not found")

	// ErrDuplicateMember is returned when a user is added to a lease they
	// already belong to.
	ErrDuplicateMember = errors.New("membership already exists")
)
