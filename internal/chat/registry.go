// Package chat – Registry
//
// The Registry is the process-wide map from room id to the set of sessions
// currently joined. It has no persistent existence: it is created at server
// start, rebuilt from nothing on restart, and torn down at shutdown by
// closing every session.
//
// Locking discipline: a small registry-level mutex guards only the room map;
// each room carries its own mutex guarding its member set. Membership changes
// and broadcasts for one room are mutually exclusive (a broadcast sees a
// consistent membership snapshot), while different rooms never contend. Lock
// order is always registry → room.
package chat

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// room is one live partition: its member set and the mutex serializing
// membership changes against broadcasts.
type room struct {
	mu      sync.Mutex
	members map[*Session]struct{}
}

// Registry tracks which sessions are joined to which room. Safe for
// concurrent use. It must be created with NewRegistry and closed at shutdown.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	log   zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// Add registers a session under roomID. A session holds at most one room at
// a time: any prior membership is removed first, so joining a new room
// implicitly leaves the old one.
//
// The registry lock is held across the member insertion. Releasing it after
// the map lookup would open a window for a concurrent Remove to drain the
// room and drop its entry, leaving the joiner inside an unreachable room
// object that Broadcast can no longer find.
func (r *Registry) Add(roomID string, s *Session) {
	r.Remove(s)

	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[*Session]struct{})}
		r.rooms[roomID] = rm
	}
	rm.mu.Lock()
	rm.members[s] = struct{}{}
	rm.mu.Unlock()
	r.mu.Unlock()

	s.setRoom(roomID)
}

// Remove deregisters a session from whichever room it is in. No-op when the
// session holds no room; safe to call repeatedly.
func (r *Registry) Remove(s *Session) {
	roomID := s.Room()
	if roomID == "" {
		return
	}

	r.mu.Lock()
	rm := r.rooms[roomID]
	r.mu.Unlock()

	if rm != nil {
		rm.mu.Lock()
		delete(rm.members, s)
		rm.mu.Unlock()
	}
	s.setRoom("")

	r.dropIfEmpty(roomID)
}

// Broadcast delivers env to every session in roomID except exclude (pass nil
// to reach everyone). Delivery is best-effort per recipient: a full or
// closing session is skipped, never retried, and never fails the caller.
func (r *Registry) Broadcast(roomID string, env Envelope, exclude *Session) {
	raw, err := json.Marshal(env)
	if err != nil {
		r.log.Error().Err(err).Str("event", env.Type).Msg("broadcast marshal failed")
		return
	}

	r.mu.Lock()
	rm := r.rooms[roomID]
	r.mu.Unlock()
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	for member := range rm.members {
		if member == exclude {
			continue
		}
		if !member.trySend(raw) {
			broadcastDrops.Inc()
			r.log.Warn().
				Str("room_id", roomID).
				Str("event", env.Type).
				Str("session_id", member.id).
				Msg("broadcast delivery dropped")
		}
	}
	broadcastsTotal.WithLabelValues(env.Type).Inc()
}

// Count returns the number of sessions currently joined to roomID.
func (r *Registry) Count(roomID string) int {
	r.mu.Lock()
	rm := r.rooms[roomID]
	r.mu.Unlock()
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.members)
}

// Close tears down the registry at shutdown: every joined session is closed,
// which unwinds its read loop and triggers normal disconnect cleanup.
func (r *Registry) Close() {
	r.mu.Lock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.rooms = make(map[string]*room)
	r.mu.Unlock()

	for _, rm := range rooms {
		rm.mu.Lock()
		for member := range rm.members {
			member.close()
		}
		rm.members = make(map[*Session]struct{})
		rm.mu.Unlock()
	}
}

// dropIfEmpty deletes the room entry when its member set has drained. The
// recheck runs under both locks so a concurrent Add cannot be lost.
func (r *Registry) dropIfEmpty(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[roomID]
	if rm == nil {
		return
	}
	rm.mu.Lock()
	empty := len(rm.members) == 0
	rm.mu.Unlock()
	if empty {
		delete(r.rooms, roomID)
	}
}
