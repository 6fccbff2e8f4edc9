// Package testsuite holds behavioral contract tests shared by every storage backend.
package testsuite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/memberdir/pkg/storage"
)

// Factory returns an empty store; cleanup is registered on t.
type Factory func(t *testing.T) storage.Store

func RunStoreContract(t *testing.T, newStore Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("member crud", func(t *testing.T) { testMemberCRUD(t, newStore(t)) })
	t.Run("member email uniqueness", func(t *testing.T) { testEmailUniqueness(t, newStore(t)) })
	t.Run("member listing", func(t *testing.T) { testListing(t, newStore(t)) })
	t.Run("ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

var baseTime = time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)

func NewMember(first, last, email string, created time.Time) storage.MemberRecord {
	return storage.MemberRecord{
		ID:          uuid.NewString(),
		FirstName:   first,
		LastName:    last,
		DateOfBirth: time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
		Email:       email,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func testUsers(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, err := store.FindByUsername(ctx, "admin")
	require.ErrorIs(t, err, storage.ErrNotFound)

	admin := storage.UserRecord{
		ID:           uuid.NewString(),
		Username:     "admin",
		PasswordHash: "pbkdf2$sha256$1000$c2FsdA$a2V5",
		Roles:        []string{"ADMIN", "USER"},
		CreatedAt:    baseTime,
	}
	require.NoError(t, store.CreateUser(ctx, admin))

	got, err := store.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
	assert.Equal(t, admin.PasswordHash, got.PasswordHash)
	assert.ElementsMatch(t, admin.Roles, got.Roles)

	dup := admin
	dup.ID = uuid.NewString()
	require.ErrorIs(t, store.CreateUser(ctx, dup), storage.ErrConflict)

	_, err = store.FindByUsername(ctx, "Admin")
	require.ErrorIs(t, err, storage.ErrNotFound, "usernames are case-exact")
}

func testMemberCRUD(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, err := store.GetMember(ctx, uuid.NewString())
	require.ErrorIs(t, err, storage.ErrNotFound)

	member := NewMember("Ada", "Lovelace", "ada@example.com", baseTime)
	require.NoError(t, store.PutMember(ctx, member))

	got, err := store.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assertMemberEqual(t, member, got)

	member.LastName = "King"
	member.UpdatedAt = baseTime.Add(time.Hour)
	require.NoError(t, store.PutMember(ctx, member))

	got, err = store.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assertMemberEqual(t, member, got)

	member.FirstName = "Augusta"
	member.UpdatedAt = baseTime.Add(2 * time.Hour)
	require.NoError(t, store.UpdateMember(ctx, member))

	got, err = store.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assertMemberEqual(t, member, got)

	require.NoError(t, store.DeleteMember(ctx, member.ID))
	_, err = store.GetMember(ctx, member.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, store.DeleteMember(ctx, member.ID), storage.ErrNotFound)

	require.ErrorIs(t, store.UpdateMember(ctx, member), storage.ErrNotFound)
	_, err = store.GetMember(ctx, member.ID)
	require.ErrorIs(t, err, storage.ErrNotFound, "update must not recreate a deleted member")
}

func testEmailUniqueness(t *testing.T, store storage.Store) {
	ctx := context.Background()

	first := NewMember("Grace", "Hopper", "grace@example.com", baseTime)
	require.NoError(t, store.PutMember(ctx, first))

	taken, err := store.EmailTaken(ctx, "grace@example.com", "")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = store.EmailTaken(ctx, "grace@example.com", first.ID)
	require.NoError(t, err)
	assert.False(t, taken, "a member does not conflict with itself")

	second := NewMember("Grace", "Brewster", "grace@example.com", baseTime)
	require.ErrorIs(t, store.PutMember(ctx, second), storage.ErrConflict)

	_, err = store.GetMember(ctx, second.ID)
	require.ErrorIs(t, err, storage.ErrNotFound, "a rejected put must not be visible")

	third := NewMember("Grace", "Murray", "murray@example.com", baseTime)
	require.NoError(t, store.PutMember(ctx, third))
	third.Email = "grace@example.com"
	require.ErrorIs(t, store.UpdateMember(ctx, third), storage.ErrConflict)
}

func testListing(t *testing.T, store storage.Store) {
	ctx := context.Background()

	names := [][2]string{
		{"Alice", "Smith"},
		{"alicia", "Jones"},
		{"Bob", "Smithers"},
		{"Carol", "Ng"},
		{"Dave", "Blacksmith"},
	}
	ids := make([]string, len(names))
	for i, name := range names {
		m := NewMember(name[0], name[1], fmt.Sprintf("m%d@example.com", i), baseTime.Add(time.Duration(i)*time.Minute))
		ids[i] = m.ID
		require.NoError(t, store.PutMember(ctx, m))
	}

	page, err := store.ListMembers(ctx, storage.MemberFilter{SortBy: storage.SortByCreatedAt, Descending: true, Limit: 20})
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Len(t, page.Members, 5)
	assert.Equal(t, ids[4], page.Members[0].ID, "newest first")
	assert.Equal(t, ids[0], page.Members[4].ID)

	page, err = store.ListMembers(ctx, storage.MemberFilter{FirstName: "ALI", SortBy: storage.SortByFirstName, Limit: 20})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	assert.Equal(t, "Alice", page.Members[0].FirstName)
	assert.Equal(t, "alicia", page.Members[1].FirstName)

	page, err = store.ListMembers(ctx, storage.MemberFilter{LastName: "smith", SortBy: storage.SortByCreatedAt, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, err = store.ListMembers(ctx, storage.MemberFilter{FirstName: "a", LastName: "smith", SortBy: storage.SortByCreatedAt, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "filters combine")

	page, err = store.ListMembers(ctx, storage.MemberFilter{SortBy: storage.SortByCreatedAt, Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Members, 2)
	assert.Equal(t, ids[2], page.Members[0].ID)
	assert.Equal(t, ids[3], page.Members[1].ID)

	page, err = store.ListMembers(ctx, storage.MemberFilter{SortBy: storage.SortByCreatedAt, Offset: 10, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Empty(t, page.Members)

	page, err = store.ListMembers(ctx, storage.MemberFilter{FirstName: "zzz", SortBy: storage.SortByCreatedAt, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Members)
}

func assertMemberEqual(t *testing.T, want, got storage.MemberRecord) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.FirstName, got.FirstName)
	assert.Equal(t, want.LastName, got.LastName)
	assert.Equal(t, want.Email, got.Email)
	assert.True(t, want.DateOfBirth.Equal(got.DateOfBirth), "date of birth %s != %s", want.DateOfBirth, got.DateOfBirth)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at %s != %s", want.UpdatedAt, got.UpdatedAt)
}
