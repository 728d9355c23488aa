// Lease HTTP handlers.
//
// This file exposes REST endpoints for the lease directory and message history:
//   - POST /leases                 (create a lease room)
//   - POST /users                  (mirror a user record)
//   - POST /leases/{id}/members    (grant a user membership)
//   - GET  /leases/{id}/members    (list lease members)
//   - GET  /leases/{id}/messages   (paginated history, ETag support)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
// Real-time traffic does not pass through here; it rides the websocket gateway.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/leaseline/lease-chat-backend/internal/domain"
	"github.com/leaseline/lease-chat-backend/internal/services"
	"github.com/leaseline/lease-chat-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// DirectoryService defines lease and membership administration operations
// consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type DirectoryService interface {
	// CreateLease registers a new lease room.
	CreateLease(ctx context.Context, req services.CreateLeaseRequest) (*domain.Lease, error)
	// CreateUser mirrors a user record for display-name resolution.
	CreateUser(ctx context.Context, req services.CreateUserRequest) (*domain.User, error)
	// AddMember grants userID membership of leaseID.
	AddMember(ctx context.Context, leaseID, userID string) (*domain.LeaseMembership, error)
	// Members lists the memberships of a lease.
	Members(ctx context.Context, leaseID string) ([]domain.LeaseMembership, error)
}

// HistoryService defines the read side of the message store consumed by the
// REST history endpoint. The same concrete service backs the websocket
// gateway, so REST reads and live replay share one view of ordering.
type HistoryService interface {
	// Authorize reports whether userID may read leaseID's room.
	Authorize(ctx context.Context, leaseID, userID string) error
	// HistoryPage returns a page of fully-assembled messages and the total count.
	HistoryPage(ctx context.Context, leaseID string, page, pageSize int) ([]services.MessageView, int64, error)
	// Stats returns the room's message count and newest timestamp; the history
	// endpoint derives its ETag validator from the pair.
	Stats(ctx context.Context, leaseID string) (int64, *time.Time, error)
}

//
// Handler wiring
//

// Handlers groups the REST endpoints for leases, users, and message history.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	dirSvc  DirectoryService
	histSvc HistoryService
}

// New constructs a Handlers instance bound to the given services.
func New(dirSvc DirectoryService, histSvc HistoryService) *Handlers {
	return &Handlers{dirSvc: dirSvc, histSvc: histSvc}
}

// userID extracts the authenticated user id from Gin context (set by the JWT
// middleware upstream). It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

//
// DTOs
//

// AddMemberRequest is the JSON payload for granting lease membership.
type AddMemberRequest struct {
	// UserID identifies the user to admit to the lease room.
	UserID string `json:"userId" binding:"required,min=1,max=64"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMembersResponse wraps the memberships of a lease.
type ListMembersResponse struct {
	LeaseID string                   `json:"leaseId"`
	Members []domain.LeaseMembership `json:"members"`
}

// ListMessagesResponse contains a page of room messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []services.MessageView `json:"messages"`
	Pagination Pagination             `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 200
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// isValidation reports whether err came from payload validation rather than
// the store.
func isValidation(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

//
// Handlers
//

// CreateLease creates a lease room and returns the lease resource.
//
// Responds 201 with the created lease, 400 on an invalid payload, and 500 when
// the store rejects the write.
func (h *Handlers) CreateLease(c *gin.Context) {
	var req services.CreateLeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	lease, err := h.dirSvc.CreateLease(c.Request.Context(), req)
	if err != nil {
		if isValidation(err) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1-255 chars)")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, lease)
}

// CreateUser mirrors a user record so chat payloads can resolve display names.
//
// The ID is optional; a UUID is minted when absent. Responds 201 with the
// stored user.
func (h *Handlers) CreateUser(c *gin.Context) {
	var req services.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	u, err := h.dirSvc.CreateUser(c.Request.Context(), req)
	if err != nil {
		if isValidation(err) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "displayName required; id must be a UUID when set")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, u)
}

// AddMember grants a user membership of the lease room.
//
// Responds 201 with the membership, 404 when the lease does not exist, and
// 409 when the user is already a member.
func (h *Handlers) AddMember(c *gin.Context) {
	leaseID := c.Param("id")

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "userId required")
		return
	}

	m, err := h.dirSvc.AddMember(c.Request.Context(), leaseID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLeaseNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "lease not found")
		case errors.Is(err, services.ErrDuplicateMember):
			fail(c, http.StatusConflict, ErrCodeConflict, "user is already a member")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, m)
}

// ListMembers returns the memberships of a lease.
func (h *Handlers) ListMembers(c *gin.Context) {
	leaseID := c.Param("id")

	members, err := h.dirSvc.Members(c.Request.Context(), leaseID)
	if err != nil {
		if errors.Is(err, services.ErrLeaseNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "lease not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMembersResponse{LeaseID: leaseID, Members: members})
}

// ListMessages returns a paginated, ascending page of a lease room's history.
//
// The caller must be a member of the lease. Supports weak ETags via
// If-None-Match and may return 304; the validator covers (message count,
// newest timestamp) so any append invalidates cached pages.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	leaseID := c.Param("id")
	uid := userID(c)

	if err := h.histSvc.Authorize(ctx, leaseID, uid); err != nil {
		if errors.Is(err, services.ErrForbidden) {
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a member of this lease")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	// ETag pre-check (best effort; a stats failure just skips the validator).
	if count, maxTS, err := h.histSvc.Stats(ctx, leaseID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, leaseID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.histSvc.HistoryPage(ctx, leaseID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
