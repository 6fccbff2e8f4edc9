package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/porthorian/memberdir/pkg/storage"
)

// Store keeps users and members in process memory. It backs storage.backend=memory
// and the package tests of everything above the storage layer.
type Store struct {
	mu      sync.RWMutex
	users   map[string]storage.UserRecord
	members map[string]storage.MemberRecord
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:   map[string]storage.UserRecord{},
		members: map[string]storage.MemberRecord{},
	}
}

func (s *Store) FindByUsername(ctx context.Context, username string) (storage.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return storage.UserRecord{}, storage.ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *Store) CreateUser(ctx context.Context, record storage.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[record.Username]; ok {
		return storage.ErrConflict
	}
	s.users[record.Username] = cloneUser(record)
	return nil
}

func (s *Store) GetMember(ctx context.Context, id string) (storage.MemberRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.members[id]
	if !ok {
		return storage.MemberRecord{}, storage.ErrNotFound
	}
	return member, nil
}

func (s *Store) PutMember(ctx context.Context, record storage.MemberRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.members {
		if id != record.ID && existing.Email == record.Email {
			return storage.ErrConflict
		}
	}
	s.members[record.ID] = record
	return nil
}

func (s *Store) UpdateMember(ctx context.Context, record storage.MemberRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.members[record.ID]
	if !ok {
		return storage.ErrNotFound
	}
	for id, other := range s.members {
		if id != record.ID && other.Email == record.Email {
			return storage.ErrConflict
		}
	}
	record.CreatedAt = existing.CreatedAt
	s.members[record.ID] = record
	return nil
}

func (s *Store) DeleteMember(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.members, id)
	return nil
}

func (s *Store) ListMembers(ctx context.Context, filter storage.MemberFilter) (storage.MemberPage, error) {
	firstName := strings.ToLower(filter.FirstName)
	lastName := strings.ToLower(filter.LastName)

	s.mu.RLock()
	matched := make([]storage.MemberRecord, 0, len(s.members))
	for _, member := range s.members {
		if firstName != "" && !strings.Contains(strings.ToLower(member.FirstName), firstName) {
			continue
		}
		if lastName != "" && !strings.Contains(strings.ToLower(member.LastName), lastName) {
			continue
		}
		matched = append(matched, member)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b storage.MemberRecord) int {
		c := compareMembers(a, b, filter.SortBy)
		if filter.Descending {
			c = -c
		}
		if c == 0 {
			return cmp.Compare(a.ID, b.ID)
		}
		return c
	})

	page := storage.MemberPage{Total: len(matched)}
	if filter.Offset >= len(matched) {
		page.Members = []storage.MemberRecord{}
		return page, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	page.Members = matched[filter.Offset:end]
	return page, nil
}

func (s *Store) EmailTaken(ctx context.Context, email string, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, member := range s.members {
		if id != excludeID && member.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func compareMembers(a, b storage.MemberRecord, field storage.SortField) int {
	switch field {
	case storage.SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case storage.SortByFirstName:
		return cmp.Compare(a.FirstName, b.FirstName)
	case storage.SortByLastName:
		return cmp.Compare(a.LastName, b.LastName)
	case storage.SortByEmail:
		return cmp.Compare(a.Email, b.Email)
	case storage.SortByDateOfBirth:
		return a.DateOfBirth.Compare(b.DateOfBirth)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cloneUser(user storage.UserRecord) storage.UserRecord {
	user.Roles = slices.Clone(user.Roles)
	return user
}
