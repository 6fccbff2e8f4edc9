package memberdir

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/porthorian/memberdir/pkg/authz"
	oerrors "github.com/porthorian/memberdir/pkg/errors"
	"github.com/porthorian/memberdir/pkg/storage"
)

func seededApp(t *testing.T) (*App, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
	app := newTestApp(t, clock)

	_, err := app.CreateUser(context.Background(), "admin", "admin-pass", []authz.Role{authz.RoleAdmin})
	require.NoError(t, err)
	_, err = app.CreateUser(context.Background(), "viewer", "viewer-pass", []authz.Role{authz.RoleUser})
	require.NoError(t, err)
	return app, clock
}

func validInput(email string) MemberInput {
	return MemberInput{
		FirstName:   "Katherine",
		LastName:    "Johnson",
		DateOfBirth: "1918-08-26",
		Email:       email,
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	app, clock := seededApp(t)

	result, err := app.Auth().Login(ctx, LoginInput{Username: " admin ", Password: "admin-pass"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.Equal(t, clock.now.Add(time.Hour), result.ExpiresAt)
	assert.NotEmpty(t, result.Token)

	_, err = app.Auth().Login(ctx, LoginInput{Username: "admin", Password: "wrong"})
	assert.True(t, oerrors.IsCode(err, oerrors.CodeBadCredentials), "got %v", err)

	_, err = app.Auth().Login(ctx, LoginInput{Username: "nobody", Password: "wrong"})
	assert.True(t, oerrors.IsCode(err, oerrors.CodeUserNotFound), "got %v", err)
}

func TestLoginFailuresShareMessage(t *testing.T) {
	ctx := context.Background()
	app, _ := seededApp(t)

	_, unknownUser := app.Auth().Login(ctx, LoginInput{Username: "nobody", Password: "x"})
	_, wrongPassword := app.Auth().Login(ctx, LoginInput{Username: "admin", Password: "x"})
	require.Error(t, unknownUser)
	require.Error(t, wrongPassword)
	assert.Equal(t, unknownUser.Error(), wrongPassword.Error())
}

func TestLoginRejectsBlankFields(t *testing.T) {
	app, _ := seededApp(t)

	_, err := app.Auth().Login(context.Background(), LoginInput{Username: "   ", Password: ""})
	require.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
}

func TestMemberLifecycle(t *testing.T) {
	ctx := context.Background()
	app, clock := seededApp(t)
	members := app.Members()

	created, err := members.Create(ctx, validInput("  Katherine@NASA.gov "))
	require.NoError(t, err)
	assert.Equal(t, "katherine@nasa.gov", created.Email)
	assert.Equal(t, clock.now, created.CreatedAt)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Equal(t, time.Date(1918, 8, 26, 0, 0, 0, 0, time.UTC), created.DateOfBirth)

	got, err := members.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	clock.now = clock.now.Add(time.Minute)
	input := validInput("kj@nasa.gov")
	input.FirstName = "Kathy"
	updated, err := members.Update(ctx, created.ID, input)
	require.NoError(t, err)
	assert.Equal(t, "Kathy", updated.FirstName)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, clock.now, updated.UpdatedAt)

	got, err = members.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got, "reads observe the latest write")

	require.NoError(t, members.Delete(ctx, created.ID))
	_, err = members.Get(ctx, created.ID)
	assert.True(t, oerrors.IsCode(err, oerrors.CodeNotFound))

	err = members.Delete(ctx, created.ID)
	assert.True(t, oerrors.IsCode(err, oerrors.CodeNotFound))
}

func TestMemberEmailConflicts(t *testing.T) {
	ctx := context.Background()
	app, _ := seededApp(t)
	members := app.Members()

	first, err := members.Create(ctx, validInput("one@example.com"))
	require.NoError(t, err)
	second, err := members.Create(ctx, validInput("two@example.com"))
	require.NoError(t, err)

	_, err = members.Create(ctx, validInput("ONE@example.com"))
	require.True(t, oerrors.IsCode(err, oerrors.CodeConflict))
	assert.Equal(t, "Email already exists", err.Error())

	_, err = members.Update(ctx, second.ID, validInput("one@example.com"))
	require.True(t, oerrors.IsCode(err, oerrors.CodeConflict))

	// keeping your own email is not a conflict
	_, err = members.Update(ctx, first.ID, validInput("one@example.com"))
	require.NoError(t, err)

	got, err := members.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "two@example.com", got.Email)
}

func TestMemberValidation(t *testing.T) {
	ctx := context.Background()
	app, clock := seededApp(t)
	members := app.Members()

	cases := map[string]struct {
		input MemberInput
		field string
	}{
		"blank first name": {MemberInput{LastName: "L", DateOfBirth: "1990-01-01", Email: "a@example.com"}, "firstName"},
		"blank last name":  {MemberInput{FirstName: "F", DateOfBirth: "1990-01-01", Email: "a@example.com"}, "lastName"},
		"missing dob":      {MemberInput{FirstName: "F", LastName: "L", Email: "a@example.com"}, "dateOfBirth"},
		"bad dob":          {MemberInput{FirstName: "F", LastName: "L", DateOfBirth: "01/02/1990", Email: "a@example.com"}, "dateOfBirth"},
		"future dob":       {MemberInput{FirstName: "F", LastName: "L", DateOfBirth: clock.now.AddDate(0, 0, 1).Format(DateLayout), Email: "a@example.com"}, "dateOfBirth"},
		"blank email":      {MemberInput{FirstName: "F", LastName: "L", DateOfBirth: "1990-01-01"}, "email"},
		"bad email":        {MemberInput{FirstName: "F", LastName: "L", DateOfBirth: "1990-01-01", Email: "not-an-email"}, "email"},
		"display name":     {MemberInput{FirstName: "F", LastName: "L", DateOfBirth: "1990-01-01", Email: "Bob <bob@example.com>"}, "email"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := members.Create(ctx, tc.input)
			require.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput), "got %v", err)

			var typed *oerrors.Error
			require.ErrorAs(t, err, &typed)
			assert.Contains(t, typed.Fields, tc.field)
		})
	}
}

func TestMemberRejectsMalformedID(t *testing.T) {
	ctx := context.Background()
	app, _ := seededApp(t)

	_, err := app.Members().Get(ctx, "not-a-uuid")
	assert.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
	err = app.Members().Delete(ctx, "42")
	assert.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
	_, err = app.Members().Update(ctx, "", validInput("x@example.com"))
	assert.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
}

func TestMemberUpdateMissing(t *testing.T) {
	app, _ := seededApp(t)

	_, err := app.Members().Update(context.Background(), "0b8a7c55-3b4e-4e39-9a43-5f0f0c6c1d11", validInput("x@example.com"))
	assert.True(t, oerrors.IsCode(err, oerrors.CodeNotFound))
}

func TestMemberUpdateDoesNotRecreateDeletedMember(t *testing.T) {
	ctx := context.Background()
	app, _ := seededApp(t)
	members := app.Members()

	created, err := members.Create(ctx, validInput("kj@example.com"))
	require.NoError(t, err)
	_, err = members.Get(ctx, created.ID)
	require.NoError(t, err)

	// the row goes away after Update has loaded the cached copy
	require.NoError(t, app.store.DeleteMember(ctx, created.ID))

	_, err = members.Update(ctx, created.ID, validInput("kj2@example.com"))
	assert.True(t, oerrors.IsCode(err, oerrors.CodeNotFound), "got %v", err)

	_, err = app.store.GetMember(ctx, created.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = members.Get(ctx, created.ID)
	assert.True(t, oerrors.IsCode(err, oerrors.CodeNotFound), "stale entry is evicted, got %v", err)
}

func TestMemberList(t *testing.T) {
	ctx := context.Background()
	app, clock := seededApp(t)
	members := app.Members()

	names := []struct{ first, last string }{
		{"Ada", "Lovelace"},
		{"Alan", "Turing"},
		{"Grace", "Hopper"},
		{"Adele", "Goldberg"},
	}
	for i, name := range names {
		clock.now = clock.now.Add(time.Second)
		input := validInput(name.first + "@example.com")
		input.FirstName = name.first
		input.LastName = name.last
		_, err := members.Create(ctx, input)
		require.NoError(t, err, "member %d", i)
	}

	list, err := members.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, list.TotalElements)
	assert.Equal(t, 1, list.TotalPages)
	assert.Equal(t, DefaultPageSize, list.Size)
	require.Len(t, list.Members, 4)
	assert.Equal(t, "Adele", list.Members[0].FirstName, "default sort is newest first")

	list, err = members.List(ctx, ListQuery{FirstName: "ad", Sort: "firstName"})
	require.NoError(t, err)
	require.Len(t, list.Members, 2)
	assert.Equal(t, "Ada", list.Members[0].FirstName)
	assert.Equal(t, "Adele", list.Members[1].FirstName)

	list, err = members.List(ctx, ListQuery{Page: 1, Size: 3, Sort: "lastName,desc"})
	require.NoError(t, err)
	assert.Equal(t, 4, list.TotalElements)
	assert.Equal(t, 2, list.TotalPages)
	require.Len(t, list.Members, 1)
	assert.Equal(t, "Goldberg", list.Members[0].LastName)

	list, err = members.List(ctx, ListQuery{Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, list.Size)

	_, err = members.List(ctx, ListQuery{Sort: "password"})
	assert.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
	_, err = members.List(ctx, ListQuery{Sort: "email,sideways"})
	assert.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
	_, err = members.List(ctx, ListQuery{Page: -1})
	assert.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
	_, err = members.List(ctx, ListQuery{Page: math.MaxInt / 2})
	assert.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))
	_, err = members.List(ctx, ListQuery{Page: math.MaxInt32/MaxPageSize + 1, Size: MaxPageSize})
	assert.True(t, oerrors.IsCode(err, oerrors.CodeInvalidInput))

	list, err = members.List(ctx, ListQuery{Page: math.MaxInt32 / MaxPageSize, Size: MaxPageSize})
	require.NoError(t, err)
	assert.Empty(t, list.Members)
	assert.Equal(t, 4, list.TotalElements)
}

func TestParseSort(t *testing.T) {
	field, desc, err := parseSort("")
	require.NoError(t, err)
	assert.Equal(t, storage.SortByCreatedAt, field)
	assert.True(t, desc)

	field, desc, err = parseSort("email")
	require.NoError(t, err)
	assert.Equal(t, storage.SortByEmail, field)
	assert.False(t, desc)

	field, desc, err = parseSort("dateOfBirth,DESC")
	require.NoError(t, err)
	assert.Equal(t, storage.SortByDateOfBirth, field)
	assert.True(t, desc)
}
