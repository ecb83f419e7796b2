package service

import (
	"errors"
	"testing"
	"time"

	"github.com/joeyave/bookclub/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_RegisterLoginLogout(t *testing.T) {
	f := newFixture(t)

	user, err := f.users.Register(f.ctx, RegisterInput{Name: " Ana ", Email: "Ana@Example.com", Password: "secret1"}, imageUpload())
	require.NoError(t, err)
	assert.Equal(t, "Ana", user.Name)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Empty(t, user.Password)
	assert.True(t, f.assets.has(user.Photo))

	_, err = f.users.Login(f.ctx, "ana@example.com", "wrong-password")
	requireKind(t, err, KindUnauthenticated)

	res, err := f.users.Login(f.ctx, "ANA@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Empty(t, res.User.Password)

	caller, err := f.auth.Authenticate(f.ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, caller.ID)

	require.NoError(t, f.users.Logout(f.ctx, res.Token))

	_, err = f.auth.Authenticate(f.ctx, res.Token)
	requireKind(t, err, KindUnauthenticated)
	assert.Contains(t, err.Error(), "session expired")
}

func TestUserService_Register(t *testing.T) {
	tests := []struct {
		name  string
		in    RegisterInput
		photo bool
		kind  ErrorKind
	}{
		{name: "missing photo", in: RegisterInput{Name: "Bo", Email: "bo@example.com", Password: "secret1"}, kind: KindValidation},
		{name: "bad email", in: RegisterInput{Name: "Bo", Email: "bo", Password: "secret1"}, photo: true, kind: KindValidation},
		{name: "short password", in: RegisterInput{Name: "Bo", Email: "bo@example.com", Password: "123"}, photo: true, kind: KindValidation},
		{name: "taken email", in: RegisterInput{Name: "Bo", Email: "taken@example.com", Password: "secret1"}, photo: true, kind: KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.user(t, "Taken")

			var photo *Upload
			if tt.photo {
				photo = imageUpload()
			}
			_, err := f.users.Register(f.ctx, tt.in, photo)
			requireKind(t, err, tt.kind)
			assert.Zero(t, f.assets.count())
		})
	}
}

func TestUserService_Update(t *testing.T) {
	f := newFixture(t)

	user, err := f.users.Register(f.ctx, RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret1"}, imageUpload())
	require.NoError(t, err)
	other := f.user(t, "Bo")

	newName := "Ana Maria"
	_, err = f.users.Update(f.ctx, other, user.ID, UserUpdate{Name: &newName}, nil)
	requireKind(t, err, KindUnauthorized)

	_, err = f.users.Update(f.ctx, user, user.ID, UserUpdate{NewPassword: "another1"}, nil)
	requireKind(t, err, KindValidation)

	_, err = f.users.Update(f.ctx, user, user.ID, UserUpdate{CurrentPassword: "nope", NewPassword: "another1"}, nil)
	requireKind(t, err, KindUnauthenticated)

	oldPhoto := user.Photo
	updated, err := f.users.Update(f.ctx, user, user.ID, UserUpdate{Name: &newName, CurrentPassword: "secret1", NewPassword: "another1"}, imageUpload())
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.False(t, f.assets.has(oldPhoto))
	assert.True(t, f.assets.has(updated.Photo))

	_, err = f.users.Login(f.ctx, "ana@example.com", "another1")
	require.NoError(t, err)

	taken := "bo@example.com"
	_, err = f.users.Update(f.ctx, user, user.ID, UserUpdate{Email: &taken}, nil)
	requireKind(t, err, KindConflict)
}

func TestUserService_UpdateDiscardsPhotoOnFailure(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "Ana")
	f.user(t, "Bo")

	taken := "bo@example.com"
	_, err := f.users.Update(f.ctx, user, user.ID, UserUpdate{Email: &taken}, imageUpload())
	requireKind(t, err, KindConflict)
	assert.Zero(t, f.assets.count())
}

func TestUserService_UpdateReportsCleanupFailure(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "Ana")
	f.user(t, "Bo")
	f.assets.failClean = errors.New("disk gone")

	taken := "bo@example.com"
	_, err := f.users.Update(f.ctx, user, user.ID, UserUpdate{Email: &taken}, imageUpload())
	requireKind(t, err, KindConflict)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.EqualError(t, e.Cleanup, "disk gone")
}

func TestUserService_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	ana := f.user(t, "Ana")
	bo := f.user(t, "Bo")

	owned := f.club(t, ana, "Ana's readers", bo)
	book := f.book(t, bo, "Dune")
	f.meet(t, ana, owned, book)
	joined := f.club(t, bo, "Bo's readers", ana)

	_, err := f.users.Delete(f.ctx, bo, ana.ID)
	requireKind(t, err, KindUnauthorized)

	res, err := f.users.Delete(f.ctx, ana, ana.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedClubs)

	_, err = f.store.Clubs().FindOneByID(f.ctx, owned.ID)
	assert.Error(t, err)

	n, err := f.store.Meets().Count(f.ctx, entity.MeetFilter{ClubID: &owned.ID})
	require.NoError(t, err)
	assert.Zero(t, n)

	club, err := f.store.Clubs().FindOneByID(f.ctx, joined.ID)
	require.NoError(t, err)
	assert.False(t, club.IsMember(ana.ID))
	assert.Equal(t, 1, club.MembersCount)

	bo = f.reload(t, bo)
	assert.NotContains(t, bo.MemberClubs, owned.ID)
	assert.False(t, f.assets.has(owned.Banner))
}

func TestAuthService_Authenticate(t *testing.T) {
	f := newFixture(t)
	user := f.user(t, "Ana")

	token, _, err := f.auth.Issue(user)
	require.NoError(t, err)

	other := NewAuthService(f.store.Users(), f.store.Tokens(), "another-secret-0123456", time.Hour, 4)
	forged, _, err := other.Issue(user)
	require.NoError(t, err)

	expiring := NewAuthService(f.store.Users(), f.store.Tokens(), "test-secret-0123456789", time.Hour, 4)
	expiring.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := expiring.Issue(user)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		message string
	}{
		{name: "empty", token: "", message: "unauthenticated"},
		{name: "malformed", token: "not-a-token", message: "malformed token"},
		{name: "wrong secret", token: forged, message: "invalid token signature"},
		{name: "expired", token: expired, message: "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Authenticate(f.ctx, tt.token)
			requireKind(t, err, KindUnauthenticated)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	caller, err := f.auth.Authenticate(f.ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, caller.ID)

	_, err = f.users.Delete(f.ctx, caller, caller.ID)
	require.NoError(t, err)
	_, err = f.auth.Authenticate(f.ctx, token)
	requireKind(t, err, KindUnauthenticated)
}
