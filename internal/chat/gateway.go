// Package chat – Gateway
//
// The Gateway is the coordination layer between live connections and the
// application services. It owns the read loop of every session: decoding
// client envelopes, validating payloads, invoking the chat service, and
// fanning results out through the Registry.
//
// Ordering guarantees enforced here:
//   - join: membership verified → session registered → history delivered,
//     so a joiner can never miss a message (it is either in the replay or
//     arrives as a broadcast; clients de-duplicate by message id).
//   - sendMessage: the message is durably persisted (service returns) before
//     any broadcast is issued; a failed persist is surfaced to the sender
//     only and nothing is broadcast.
//   - markRead: the receipt is upserted before the readReceipt event is
//     broadcast to the room, reader included.
//
// Rejected operations are answered with an error envelope on the same
// connection; only a failed connection-time authentication drops the socket
// (that happens upstream, before the upgrade reaches the gateway).
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/leaseline/lease-chat-backend/internal/services"
)

// ChatBackend is the application-service contract the gateway depends on.
// Implementations must be safe for concurrent use and honor the provided
// context for cancellation.
type ChatBackend interface {
	// Authorize verifies lease membership; services.ErrForbidden when absent.
	Authorize(ctx context.Context, leaseID, userID string) error
	// History returns the room's replay window in chronological order.
	History(ctx context.Context, leaseID string) ([]services.MessageView, error)
	// Post persists a message; it is durable when the call returns.
	Post(ctx context.Context, leaseID, senderID, content string) (*services.MessageView, error)
	// MarkRead upserts a read receipt for (messageID, user).
	MarkRead(ctx context.Context, leaseID, userID, messageID string) (*services.ReceiptView, error)
}

// Gateway accepts authenticated connections and routes chat events. Create
// one per process with NewGateway; it is safe for concurrent use.
type Gateway struct {
	svc      ChatBackend
	registry *Registry
	cfg      SocketConfig
	validate *validator.Validate
	log      zerolog.Logger
}

// NewGateway wires a gateway to its service and registry.
func NewGateway(svc ChatBackend, registry *Registry, cfg SocketConfig, log zerolog.Logger) *Gateway {
	return &Gateway{
		svc:      svc,
		registry: registry,
		cfg:      cfg.withDefaults(),
		validate: validator.New(),
		log:      log.With().Str("component", "gateway").Logger(),
	}
}

// HandleConn runs the session lifecycle for an upgraded connection whose
// identity was established by the transport layer. It blocks until the
// connection closes and always leaves the registry clean: disconnect removes
// the session from its room and is idempotent.
func (g *Gateway) HandleConn(ctx context.Context, conn *websocket.Conn, userID string) {
	s := newSession(conn, userID, g.cfg, g.log)
	sessionsActive.Inc()
	s.log.Info().Msg("session connected")

	defer func() {
		g.registry.Remove(s)
		s.close()
		sessionsActive.Dec()
		s.log.Info().Msg("session disconnected")
	}()

	go s.writePump()
	g.readLoop(ctx, s)
}

// readLoop is the sole reader of the connection. A read error (close, idle
// timeout past PongWait, oversized frame) ends the session.
func (g *Gateway) readLoop(ctx context.Context, s *Session) {
	s.conn.SetReadLimit(g.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("session read failed")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			g.reject(s, "", CodeBadPayload, "malformed envelope")
			continue
		}

		switch env.Type {
		case EventJoinLeaseChat:
			g.handleJoin(ctx, s, env)
		case EventSendMessage:
			g.handleSend(ctx, s, env)
		case EventMarkRead:
			g.handleMarkRead(ctx, s, env)
		default:
			g.reject(s, env.Type, CodeBadPayload, "unknown event type")
		}
	}
}

// handleJoin verifies membership, registers the session (evicting any prior
// room), and replies with the room's history.
func (g *Gateway) handleJoin(ctx context.Context, s *Session, env Envelope) {
	var p JoinPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.reject(s, env.Type, CodeBadPayload, "malformed payload")
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.reject(s, env.Type, CodeBadPayload, "leaseId is required")
		return
	}

	if err := g.svc.Authorize(ctx, p.LeaseID, s.UserID()); err != nil {
		g.rejectErr(s, env.Type, err)
		return
	}

	g.registry.Add(p.LeaseID, s)

	history, err := g.svc.History(ctx, p.LeaseID)
	if err != nil {
		g.rejectErr(s, env.Type, err)
		return
	}
	g.deliver(s, NewEnvelope(EventChatHistory, HistoryPayload{
		LeaseID:  p.LeaseID,
		Messages: history,
	}))
	eventsTotal.WithLabelValues(env.Type, "ok").Inc()
	s.log.Info().Str("lease_id", p.LeaseID).Int("history", len(history)).Msg("joined room")
}

// handleSend persists the message, then broadcasts it to every other member
// of the sender's room. The sender gets no echo; it rendered the content
// locally and the persisted id arrives with the next history replay.
func (g *Gateway) handleSend(ctx context.Context, s *Session, env Envelope) {
	roomID := s.Room()
	if roomID == "" {
		g.reject(s, env.Type, CodeNotInRoom, "join a lease chat first")
		return
	}

	var p SendPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.reject(s, env.Type, CodeBadPayload, "malformed payload")
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.reject(s, env.Type, CodeBadPayload, "content is required")
		return
	}

	msg, err := g.svc.Post(ctx, roomID, s.UserID(), p.Content)
	if err != nil {
		g.rejectErr(s, env.Type, err)
		return
	}

	g.registry.Broadcast(roomID, NewEnvelope(EventNewMessage, msg), s)
	eventsTotal.WithLabelValues(env.Type, "ok").Inc()
}

// handleMarkRead upserts the receipt, then broadcasts it to the whole room —
// reader included, so every client converges on the same receipt state.
func (g *Gateway) handleMarkRead(ctx context.Context, s *Session, env Envelope) {
	roomID := s.Room()
	if roomID == "" {
		g.reject(s, env.Type, CodeNotInRoom, "join a lease chat first")
		return
	}

	var p MarkReadPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.reject(s, env.Type, CodeBadPayload, "malformed payload")
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.reject(s, env.Type, CodeBadPayload, "messageId is required")
		return
	}

	rc, err := g.svc.MarkRead(ctx, roomID, s.UserID(), p.MessageID)
	if err != nil {
		g.rejectErr(s, env.Type, err)
		return
	}

	g.registry.Broadcast(roomID, NewEnvelope(EventReadReceipt, rc), nil)
	eventsTotal.WithLabelValues(env.Type, "ok").Inc()
}

// deliver queues an envelope for this session only.
func (g *Gateway) deliver(s *Session, env Envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		s.log.Error().Err(err).Str("event", env.Type).Msg("envelope marshal failed")
		return
	}
	if !s.trySend(raw) {
		broadcastDrops.Inc()
		s.log.Warn().Str("event", env.Type).Msg("direct delivery dropped")
	}
}

// reject answers a client event with an error envelope; the connection stays
// open.
func (g *Gateway) reject(s *Session, event, code, msg string) {
	eventsTotal.WithLabelValues(orUnknown(event), code).Inc()
	g.deliver(s, NewEnvelope(EventError, ErrorPayload{Event: event, Code: code, Message: msg}))
}

// rejectErr maps a service error onto the wire taxonomy. Anything outside
// the known sentinels is a store failure: logged server-side, surfaced to the
// caller, never partially broadcast.
func (g *Gateway) rejectErr(s *Session, event string, err error) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		g.reject(s, event, CodeForbidden, "not a member of this lease")
	case errors.Is(err, services.ErrNotInRoom):
		g.reject(s, event, CodeNotInRoom, "join a lease chat first")
	case errors.Is(err, services.ErrMessageNotFound):
		g.reject(s, event, CodeNotFound, "message not found")
	case errors.Is(err, services.ErrRoomMismatch):
		g.reject(s, event, CodeRoomMismatch, "message belongs to a different room")
	case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrTooLong):
		g.reject(s, event, CodeBadPayload, err.Error())
	default:
		s.log.Error().Err(err).Str("event", event).Msg("store operation failed")
		g.reject(s, event, CodeStoreUnavailable, "temporary storage failure, retry")
	}
}

func orUnknown(event string) string {
	if event == "" {
		return "unknown"
	}
	return event
}
