package memberdir

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/porthorian/memberdir/pkg/authz"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/storage"
)

const (
	DateLayout      = "2006-01-02"
	DefaultPageSize = 20
	MaxPageSize     = 100
	TokenType       = "Bearer"
)

type LoginInput struct {
	Username string
	Password string
}

type LoginResult struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
	Principal authz.Principal
}

// Authenticator checks a username and password. Unknown users and wrong passwords
// fail with distinct codes; callers that face clients must not tell them apart.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, password string) (authz.Principal, error)
}

// MemberInput is the client-supplied part of a member. DateOfBirth is YYYY-MM-DD.
type MemberInput struct {
	FirstName   string
	LastName    string
	DateOfBirth string
	Email       string
}

type memberFields struct {
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Email       string
}

func (i LoginInput) Normalize() LoginInput {
	return LoginInput{
		Username: strings.TrimSpace(i.Username),
		Password: i.Password,
	}
}

func (i LoginInput) validate() error {
	fields := map[string]string{}
	if i.Username == "" {
		fields["username"] = "must not be blank"
	}
	if strings.TrimSpace(i.Password) == "" {
		fields["password"] = "must not be blank"
	}
	if len(fields) > 0 {
		return oerrors.Invalid("Validation failed", fields)
	}
	return nil
}

func (i MemberInput) Normalize() MemberInput {
	return MemberInput{
		FirstName:   strings.TrimSpace(i.FirstName),
		LastName:    strings.TrimSpace(i.LastName),
		DateOfBirth: strings.TrimSpace(i.DateOfBirth),
		Email:       strings.ToLower(strings.TrimSpace(i.Email)),
	}
}

// validate expects a normalized input.
func (i MemberInput) validate(now time.Time) (memberFields, error) {
	fields := map[string]string{}

	if i.FirstName == "" {
		fields["firstName"] = "must not be blank"
	}
	if i.LastName == "" {
		fields["lastName"] = "must not be blank"
	}

	var dob time.Time
	if i.DateOfBirth == "" {
		fields["dateOfBirth"] = "must not be null"
	} else if parsed, err := time.Parse(DateLayout, i.DateOfBirth); err != nil {
		fields["dateOfBirth"] = "must be a date in YYYY-MM-DD format"
	} else if !parsed.Before(now.UTC()) {
		fields["dateOfBirth"] = "must be a past date"
	} else {
		dob = parsed
	}

	if i.Email == "" {
		fields["email"] = "must not be blank"
	} else if !validEmail(i.Email) {
		fields["email"] = "must be a well-formed email address"
	}

	if len(fields) > 0 {
		return memberFields{}, oerrors.Invalid("Validation failed", fields)
	}
	return memberFields{
		FirstName:   i.FirstName,
		LastName:    i.LastName,
		DateOfBirth: dob,
		Email:       i.Email,
	}, nil
}

// validEmail accepts a bare addr-spec only; display names are rejected.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && addr.Name == ""
}

// ListQuery selects a page of members. Sort is "field" or "field,asc|desc".
type ListQuery struct {
	FirstName string
	LastName  string
	Page      int
	Size      int
	Sort      string
}

type MemberList struct {
	Members       []storage.MemberRecord
	Page          int
	Size          int
	TotalElements int
	TotalPages    int
}

func (q ListQuery) filter() (storage.MemberFilter, int, error) {
	fields := map[string]string{}

	if q.Page < 0 {
		fields["page"] = "must not be negative"
	}

	size := q.Size
	switch {
	case size == 0:
		size = DefaultPageSize
	case size < 0:
		fields["size"] = "must be positive"
	case size > MaxPageSize:
		size = MaxPageSize
	}

	// page*size becomes the store offset; keep it within int32
	if q.Page > 0 && size > 0 && q.Page > math.MaxInt32/size {
		fields["page"] = "is too large"
	}

	sortBy, descending, err := parseSort(q.Sort)
	if err != nil {
		fields["sort"] = err.Error()
	}

	if len(fields) > 0 {
		return storage.MemberFilter{}, 0, oerrors.Invalid("Invalid list parameters", fields)
	}

	return storage.MemberFilter{
		FirstName:  strings.TrimSpace(q.FirstName),
		LastName:   strings.TrimSpace(q.LastName),
		Offset:     q.Page * size,
		Limit:      size,
		SortBy:     sortBy,
		Descending: descending,
	}, size, nil
}

func parseSort(value string) (storage.SortField, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return storage.SortByCreatedAt, true, nil
	}

	field, direction, hasDirection := strings.Cut(value, ",")
	sortBy := storage.SortField(strings.TrimSpace(field))
	if _, ok := sortBy.Column(); !ok {
		return "", false, fmt.Errorf("unknown sort field %q", field)
	}
	if !hasDirection {
		return sortBy, false, nil
	}

	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "asc":
		return sortBy, false, nil
	case "desc":
		return sortBy, true, nil
	default:
		return "", false, errors.New("sort direction must be asc or desc")
	}
}
