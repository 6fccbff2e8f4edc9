package memberdir

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/porthorian/memberdir/pkg/cache"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/session"
	"github.com/porthorian/memberdir/pkg/storage"
)

type tokenIssuer interface {
	session.Issuer
	ExpiresAt(now time.Time) time.Time
}

type AuthService struct {
	authenticator Authenticator
	issuer        tokenIssuer
	now           func() time.Time
	logger        logr.Logger
}

func NewAuthService(authenticator Authenticator, issuer tokenIssuer, now func() time.Time, logger logr.Logger) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		authenticator: authenticator,
		issuer:        issuer,
		now:           now,
		logger:        resolveLogger(logger).WithName("auth"),
	}
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	input = input.Normalize()
	if err := input.validate(); err != nil {
		return LoginResult{}, err
	}

	principal, err := s.authenticator.Authenticate(ctx, input.Username, input.Password)
	if err != nil {
		if oerrors.IsCode(err, oerrors.CodeUserNotFound) || oerrors.IsCode(err, oerrors.CodeBadCredentials) {
			s.logger.Info("login rejected", "username", input.Username, "reason", oerrors.CodeOf(err))
		}
		return LoginResult{}, err
	}

	now := s.now()
	token, err := s.issuer.Issue(principal.Subject, principal.Roles, now)
	if err != nil {
		return LoginResult{}, oerrors.Wrap(oerrors.CodeUnknown, "failed to issue token", err)
	}

	s.logger.V(1).Info("login succeeded", "username", principal.Subject)
	return LoginResult{
		Token:     token,
		TokenType: TokenType,
		ExpiresAt: s.issuer.ExpiresAt(now),
		Principal: principal,
	}, nil
}

// MemberService owns member validation. Single-member reads and writes go through
// the Directory; listings read the store directly.
type MemberService struct {
	store     storage.MemberStore
	directory *cache.Directory
	now       func() time.Time
	newID     func() string
	logger    logr.Logger
}

func NewMemberService(store storage.MemberStore, directory *cache.Directory, now func() time.Time, logger logr.Logger) *MemberService {
	if now == nil {
		now = time.Now
	}
	return &MemberService{
		store:     store,
		directory: directory,
		now:       now,
		newID:     uuid.NewString,
		logger:    resolveLogger(logger).WithName("members"),
	}
}

func (s *MemberService) Create(ctx context.Context, input MemberInput) (storage.MemberRecord, error) {
	fields, err := input.Normalize().validate(s.now())
	if err != nil {
		return storage.MemberRecord{}, err
	}

	if err := s.ensureEmailFree(ctx, fields.Email, ""); err != nil {
		return storage.MemberRecord{}, err
	}

	now := s.timestamp()
	record := storage.MemberRecord{
		ID:          s.newID(),
		FirstName:   fields.FirstName,
		LastName:    fields.LastName,
		DateOfBirth: fields.DateOfBirth,
		Email:       fields.Email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.directory.Write(ctx, record); err != nil {
		return storage.MemberRecord{}, s.translate(err, "failed to create member")
	}

	s.logger.Info("member created", "id", record.ID)
	return record, nil
}

func (s *MemberService) Get(ctx context.Context, id string) (storage.MemberRecord, error) {
	id, err := parseID(id)
	if err != nil {
		return storage.MemberRecord{}, err
	}

	record, err := s.directory.Read(ctx, id)
	if err != nil {
		return storage.MemberRecord{}, s.translate(err, "failed to load member")
	}
	return record, nil
}

// Update replaces every client-supplied field. CreatedAt is kept.
func (s *MemberService) Update(ctx context.Context, id string, input MemberInput) (storage.MemberRecord, error) {
	id, err := parseID(id)
	if err != nil {
		return storage.MemberRecord{}, err
	}
	fields, err := input.Normalize().validate(s.now())
	if err != nil {
		return storage.MemberRecord{}, err
	}

	existing, err := s.directory.Read(ctx, id)
	if err != nil {
		return storage.MemberRecord{}, s.translate(err, "failed to load member")
	}

	if err := s.ensureEmailFree(ctx, fields.Email, id); err != nil {
		return storage.MemberRecord{}, err
	}

	record := storage.MemberRecord{
		ID:          existing.ID,
		FirstName:   fields.FirstName,
		LastName:    fields.LastName,
		DateOfBirth: fields.DateOfBirth,
		Email:       fields.Email,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   s.timestamp(),
	}

	if err := s.directory.Update(ctx, record); err != nil {
		return storage.MemberRecord{}, s.translate(err, "failed to update member")
	}

	s.logger.Info("member updated", "id", record.ID)
	return record, nil
}

func (s *MemberService) Delete(ctx context.Context, id string) error {
	id, err := parseID(id)
	if err != nil {
		return err
	}

	if err := s.directory.Invalidate(ctx, id); err != nil {
		return s.translate(err, "failed to delete member")
	}

	s.logger.Info("member deleted", "id", id)
	return nil
}

func (s *MemberService) List(ctx context.Context, query ListQuery) (MemberList, error) {
	filter, size, err := query.filter()
	if err != nil {
		return MemberList{}, err
	}

	page, err := s.store.ListMembers(ctx, filter)
	if err != nil {
		return MemberList{}, s.translate(err, "failed to list members")
	}

	return MemberList{
		Members:       page.Members,
		Page:          query.Page,
		Size:          size,
		TotalElements: page.Total,
		TotalPages:    (page.Total + size - 1) / size,
	}, nil
}

func (s *MemberService) ensureEmailFree(ctx context.Context, email string, excludeID string) error {
	taken, err := s.store.EmailTaken(ctx, email, excludeID)
	if err != nil {
		return s.translate(err, "failed to check member email")
	}
	if taken {
		return oerrors.New(oerrors.CodeConflict, "Email already exists")
	}
	return nil
}

// timestamp is truncated to what every store can round-trip, so cached and stored
// copies of a record compare equal.
func (s *MemberService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *MemberService) translate(err error, message string) error {
	var typed *oerrors.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return oerrors.New(oerrors.CodeNotFound, "Member not found")
	case errors.Is(err, storage.ErrConflict):
		return oerrors.New(oerrors.CodeConflict, "Email already exists")
	default:
		return oerrors.Wrap(oerrors.CodeStorageUnavailable, message, err)
	}
}

// parseID returns the canonical lower-case form of a member id.
func parseID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", oerrors.Invalid("Invalid member id", map[string]string{"id": "must be a valid UUID"})
	}
	return parsed.String(), nil
}
