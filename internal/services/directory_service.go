// Package services – DirectoryService
//
// This file implements DirectoryService, the admin surface over the
// membership directory: creating leases, mirroring user display records, and
// linking users to leases. The chat core only ever reads the directory
// (through ChatService.Authorize); writes arrive here from the surrounding
// housing application.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leaseline/lease-chat-backend/internal/domain"
	"github.com/leaseline/lease-chat-backend/internal/repo"
)

// validate is the process-wide validator instance for directory payloads.
var validate = validator.New()

// CreateLeaseRequest is the validated payload for creating a lease.
type CreateLeaseRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// CreateUserRequest is the validated payload for mirroring a user record.
type CreateUserRequest struct {
	ID          string `json:"id" validate:"omitempty,uuid4"`
	DisplayName string `json:"displayName" validate:"required,min=1,max=255"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url,max=512"`
}

// DirectoryService provides lease and membership administration. It enforces
// name rules and uniqueness constraints; persistence goes through the repo
// package.
type DirectoryService struct {
	// DB is the GORM handle used for all directory operations.
	DB *gorm.DB

	// NameMaxLen caps stored lease names by rune length.
	NameMaxLen int
	// NameLocale selects the casing rules used when normalizing lease names.
	NameLocale language.Tag
}

// NewDirectoryService constructs a DirectoryService with sane defaults.
func NewDirectoryService(db *gorm.DB) *DirectoryService {
	return &DirectoryService{
		DB:         db,
		NameMaxLen: 120,
		NameLocale: language.English,
	}
}

// CreateLease validates and persists a new lease. Names are whitespace
// normalized, clipped, and title-cased when supplied in all lowercase.
func (s *DirectoryService) CreateLease(ctx context.Context, req CreateLeaseRequest) (*domain.Lease, error) {
	req.Name = normalizeName(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return repo.CreateLease(ctx, s.DB, s.clip(s.caseName(req.Name)))
}

// CreateUser validates and persists a mirrored user display record.
func (s *DirectoryService) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	req.DisplayName = normalizeName(req.DisplayName)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	return repo.CreateUser(ctx, s.DB, req.ID, req.DisplayName, req.AvatarURL)
}

// AddMember links userID to leaseID. The lease must exist
// (ErrLeaseNotFound); adding an existing member yields ErrDuplicateMember.
func (s *DirectoryService) AddMember(ctx context.Context, leaseID, userID string) (*domain.LeaseMembership, error) {
	if _, err := repo.GetLease(ctx, s.DB, leaseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeaseNotFound
		}
		return nil, err
	}
	m, err := repo.AddLeaseMember(ctx, s.DB, leaseID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
			return nil, ErrDuplicateMember
		}
		return nil, err
	}
	return m, nil
}

// Members returns the memberships of leaseID (oldest first). The lease must
// exist (ErrLeaseNotFound).
func (s *DirectoryService) Members(ctx context.Context, leaseID string) ([]domain.LeaseMembership, error) {
	if _, err := repo.GetLease(ctx, s.DB, leaseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeaseNotFound
		}
		return nil, err
	}
	return repo.ListLeaseMembers(ctx, s.DB, leaseID)
}

// clip truncates a lease name to the configured maximum rune length.
func (s *DirectoryService) clip(name string) string {
	if s.NameMaxLen > 0 && utf8.RuneCountInString(name) > s.NameMaxLen {
		return string([]rune(name)[:s.NameMaxLen])
	}
	return name
}

// caseName title-cases a lease name that was supplied in all lowercase
// ("12 harbor street" -> "12 Harbor Street"); mixed-case input is kept as-is.
func (s *DirectoryService) caseName(name string) string {
	for _, r := range name {
		if unicode.IsUpper(r) {
			return name
		}
	}
	tag := s.NameLocale
	if tag == language.Und {
		tag = language.English
	}
	return cases.Title(tag).String(name)
}

// normalizeName trims whitespace and collapses internal runs to one space.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
