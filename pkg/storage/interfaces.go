package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("storage: record not found")
	// ErrConflict reports a uniqueness violation (member email, username).
	ErrConflict = errors.New("storage: unique constraint violated")
)

type UserRecord struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

type MemberRecord struct {
	ID          string
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type SortField string

const (
	SortByCreatedAt   SortField = "createdAt"
	SortByUpdatedAt   SortField = "updatedAt"
	SortByFirstName   SortField = "firstName"
	SortByLastName    SortField = "lastName"
	SortByEmail       SortField = "email"
	SortByDateOfBirth SortField = "dateOfBirth"
)

var sortColumns = map[SortField]string{
	SortByCreatedAt:   "created_at",
	SortByUpdatedAt:   "updated_at",
	SortByFirstName:   "first_name",
	SortByLastName:    "last_name",
	SortByEmail:       "email",
	SortByDateOfBirth: "date_of_birth",
}

// Column returns the SQL column for a sort field; ok is false for unknown fields.
func (f SortField) Column() (string, bool) {
	column, ok := sortColumns[f]
	return column, ok
}

// MemberFilter selects a page of members. Name filters are case-insensitive
// substring matches; empty filters match everything.
type MemberFilter struct {
	FirstName  string
	LastName   string
	Offset     int
	Limit      int
	SortBy     SortField
	Descending bool
}

type MemberPage struct {
	Members []MemberRecord
	Total   int
}

type UserStore interface {
	FindByUsername(ctx context.Context, username string) (UserRecord, error)
	CreateUser(ctx context.Context, record UserRecord) error
}

type MemberStore interface {
	GetMember(ctx context.Context, id string) (MemberRecord, error)
	// PutMember inserts or replaces the member with record.ID.
	PutMember(ctx context.Context, record MemberRecord) error
	// UpdateMember replaces the mutable fields of an existing member. It returns
	// ErrNotFound when record.ID is absent and never inserts.
	UpdateMember(ctx context.Context, record MemberRecord) error
	DeleteMember(ctx context.Context, id string) error
	ListMembers(ctx context.Context, filter MemberFilter) (MemberPage, error)
	// EmailTaken reports whether another member (not excludeID) owns email.
	EmailTaken(ctx context.Context, email string, excludeID string) (bool, error)
	Ping(ctx context.Context) error
}

type Store interface {
	UserStore
	MemberStore
}
