// Package services – ChatService
//
// This file implements ChatService, the application-level component that owns
// the chat semantics independent of transport: membership authorization,
// history replay assembly, message persistence, and read-receipt upserts.
// The realtime gateway (internal/chat) and the REST backfill endpoint both
// drive this service; neither touches the repositories directly.
//
// Ordering: a message is durable in the store before Post returns, so the
// caller may only broadcast messages this service has handed back. History is
// assembled in (CreatedAt, Seq) order and each message carries the receipts
// that existed at assembly time, keyed per user (an upsert map, not a list
// append), so a receipt written twice never shows up twice.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// lease/user identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/leaseline/lease-chat-backend/internal/domain"
	"github.com/leaseline/lease-chat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

//
// Wire views
//

// UserView carries the display fields nested in broadcast events. When the
// directory has no record for an id, the view degrades to the bare id.
type UserView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// ReceiptView is a read receipt annotated with the reader's display fields.
type ReceiptView struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	User      UserView  `json:"user"`
	ReadAt    time.Time `json:"readAt"`
}

// MessageView is a message annotated with sender display fields and the
// receipts known for it. It is the unit of both chatHistory and newMessage.
type MessageView struct {
	ID           string        `json:"id"`
	LeaseID      string        `json:"leaseId"`
	SenderID     string        `json:"senderId"`
	Sender       UserView      `json:"sender"`
	Content      string        `json:"content"`
	CreatedAt    time.Time     `json:"createdAt"`
	ReadReceipts []ReceiptView `json:"readReceipts"`
}

//
// Service
//

// ChatService coordinates chat persistence and history assembly. It is safe
// for concurrent use; every method is context-aware.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// HistoryLimit caps the number of messages replayed on join. Zero or
	// negative means no cap. When the cap applies, the most recent window is
	// returned, still in chronological order; older messages remain reachable
	// through the paginated REST endpoint.
	HistoryLimit int

	// MaxContentRunes caps message content by rune length. Zero or negative
	// disables the check.
	MaxContentRunes int
}

// NewChatService constructs a ChatService with sane defaults.
func NewChatService(db *gorm.DB) *ChatService {
	return &ChatService{
		DB:              db,
		HistoryLimit:    200,
		MaxContentRunes: 4000,
	}
}

// Authorize verifies that userID is a member of the lease identified by
// leaseID. It returns ErrForbidden when the membership directory has no such
// link; any other error is a store failure. Client-declared lease ids are
// never trusted: every join and every post re-verifies here.
func (s *ChatService) Authorize(ctx context.Context, leaseID, userID string) error {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Authorize",
		trace.WithAttributes(
			attribute.String("lease.id", leaseID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	ok, err := repo.IsLeaseMember(ctx, s.DB, leaseID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// History returns the replay window for a room in chronological order, each
// message annotated with its sender display fields and the receipts that
// exist at assembly time. The caller is responsible for authorization
// (see Authorize); History itself only reads.
func (s *ChatService) History(ctx context.Context, leaseID string) ([]MessageView, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(attribute.String("lease.id", leaseID)),
	)
	defer span.End()

	msgs, err := repo.ListRoomMessages(ctx, s.DB, leaseID, s.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, msgs)
}

// HistoryPage returns a page of a room's history (oldest first) plus the
// total message count, for cursorless backfill beyond the replay window.
func (s *ChatService) HistoryPage(ctx context.Context, leaseID string, page, pageSize int) ([]MessageView, int64, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "HistoryPage",
		trace.WithAttributes(
			attribute.String("lease.id", leaseID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountRoomMessages(ctx, s.DB, leaseID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []MessageView{}, 0, nil
	}

	msgs, err := repo.ListRoomMessagesPage(ctx, s.DB, leaseID, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	views, err := s.assemble(ctx, msgs)
	if err != nil {
		return nil, 0, err
	}
	return views, total, nil
}

// Stats returns the room's message count and the newest CreatedAt among its
// messages (nil when empty). Messages are immutable, so the pair changes
// exactly when the history changes; the REST layer derives its conditional
// response validator from it.
func (s *ChatService) Stats(ctx context.Context, leaseID string) (int64, *time.Time, error) {
	return repo.RoomStats(ctx, s.DB, leaseID)
}

// Post validates, persists, and returns a new message for the room. The
// sender's membership is re-verified at send time (membership can be revoked
// between join and send). The returned view is durable: broadcasting it can
// never race ahead of a history replay that would miss it.
func (s *ChatService) Post(ctx context.Context, leaseID, senderID, content string) (*MessageView, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Post",
		trace.WithAttributes(
			attribute.String("lease.id", leaseID),
			attribute.String("user.id", senderID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrTooLong
	}

	if err := s.Authorize(ctx, leaseID, senderID); err != nil {
		return nil, err
	}

	m, err := repo.AppendMessage(s.DB.WithContext(ctx), leaseID, senderID, content)
	if err != nil {
		return nil, err
	}

	return &MessageView{
		ID:           m.ID,
		LeaseID:      m.LeaseID,
		SenderID:     m.SenderID,
		Sender:       s.userView(ctx, m.SenderID),
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
		ReadReceipts: []ReceiptView{},
	}, nil
}

// MarkRead records that userID has observed messageID within the given room.
// The referenced message must exist (ErrMessageNotFound) and belong to
// leaseID (ErrRoomMismatch). Receipts are last-write-wins per (message, user)
// pair, so repeated calls are idempotent overwrites of ReadAt. The message
// existence check and the upsert run in one transaction, which preserves the
// invariant that a receipt never references an unpersisted message.
func (s *ChatService) MarkRead(ctx context.Context, leaseID, userID, messageID string) (*ReceiptView, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("lease.id", leaseID),
			attribute.String("user.id", userID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	var stored *domain.ReadReceipt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(tx, messageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if msg.LeaseID != leaseID {
			return ErrRoomMismatch
		}
		stored, err = repo.UpsertReceipt(ctx, tx, messageID, userID, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	return &ReceiptView{
		MessageID: stored.MessageID,
		UserID:    stored.UserID,
		User:      s.userView(ctx, stored.UserID),
		ReadAt:    stored.ReadAt,
	}, nil
}

// assemble joins messages with their receipts and display users. Receipts are
// collapsed into a per-user map for each message before rendering, so at most
// one receipt per (message, user) survives even if the store ever held more.
func (s *ChatService) assemble(ctx context.Context, msgs []domain.Message) ([]MessageView, error) {
	if len(msgs) == 0 {
		return []MessageView{}, nil
	}

	ids := lo.Map(msgs, func(m domain.Message, _ int) string { return m.ID })
	receipts, err := repo.ListReceiptsByMessageIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	// One directory lookup for every id we will render.
	userIDs := lo.Map(msgs, func(m domain.Message, _ int) string { return m.SenderID })
	for _, rs := range receipts {
		for _, r := range rs {
			userIDs = append(userIDs, r.UserID)
		}
	}
	users, err := repo.ListUsersByIDs(ctx, s.DB, lo.Uniq(userIDs))
	if err != nil {
		return nil, err
	}

	view := func(id string) UserView {
		if u, ok := users[id]; ok {
			return UserView{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
		}
		return UserView{ID: id}
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		byUser := make(map[string]domain.ReadReceipt, len(receipts[m.ID]))
		for _, r := range receipts[m.ID] {
			byUser[r.UserID] = r
		}
		rvs := make([]ReceiptView, 0, len(byUser))
		for _, r := range byUser {
			rvs = append(rvs, ReceiptView{
				MessageID: r.MessageID,
				UserID:    r.UserID,
				User:      view(r.UserID),
				ReadAt:    r.ReadAt,
			})
		}
		out = append(out, MessageView{
			ID:           m.ID,
			LeaseID:      m.LeaseID,
			SenderID:     m.SenderID,
			Sender:       view(m.SenderID),
			Content:      m.Content,
			CreatedAt:    m.CreatedAt,
			ReadReceipts: rvs,
		})
	}
	return out, nil
}

// userView fetches display fields for a single user, degrading to the bare
// id when the directory has no record. Lookup failures are not fatal to the
// triggering operation.
func (s *ChatService) userView(ctx context.Context, id string) UserView {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		return UserView{ID: id}
	}
	return UserView{ID: u.ID, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}
