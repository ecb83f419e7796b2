package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/repository/memory"
	"github.com/joeyave/bookclub/storage"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

type fakeAssets struct {
	mu        sync.Mutex
	seq       int
	stored    map[string]bool
	failSave  error
	failClean error
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{stored: map[string]bool{}}
}

func (a *fakeAssets) Save(_ context.Context, folder, label string, r io.Reader) (string, error) {
	if a.failSave != nil {
		return "", a.failSave
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", storage.ErrEmptyFile
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	url := fmt.Sprintf("http://assets.test/%s/%s-%d.png", folder, strings.ToLower(label), a.seq)
	a.stored[url] = true
	return url, nil
}

func (a *fakeAssets) Delete(_ context.Context, url string) error {
	if a.failClean != nil {
		return a.failClean
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.stored, url)
	return nil
}

func (a *fakeAssets) has(url string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stored[url]
}

func (a *fakeAssets) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.stored)
}

var testNow = time.Date(2030, time.March, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx    context.Context
	store  *memory.Store
	assets *fakeAssets
	auth   *AuthService
	users  *UserService
	books  *BookService
	clubs  *ClubService
	meets  *MeetService
	repair *RepairService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	assets := newFakeAssets()
	auth := NewAuthService(store.Users(), store.Tokens(), "test-secret-0123456789", time.Hour, bcrypt.MinCost)
	meets := NewMeetService(store, store.Meets(), store.Clubs(), store.Books(), store.Users(), "en-US")
	meets.now = func() time.Time { return testNow }

	return &fixture{
		ctx:    context.Background(),
		store:  store,
		assets: assets,
		auth:   auth,
		users:  NewUserService(store, store.Users(), store.Clubs(), store.Meets(), auth, assets),
		books:  NewBookService(store, store.Books(), store.Users()),
		clubs:  NewClubService(store, store.Clubs(), store.Users(), store.Meets(), assets, "en-US"),
		meets:  meets,
		repair: NewRepairService(store, store.Users(), store.Clubs(), store.Tokens()),
	}
}

func imageUpload() *Upload {
	return &Upload{Filename: "cover.png", Content: strings.NewReader("\x89PNG fake image")}
}

// user inserts a user directly and returns a fresh copy of it.
func (f *fixture) user(t *testing.T, name string) *entity.User {
	t.Helper()
	u := &entity.User{
		Name:  name,
		Email: strings.ToLower(name) + "@example.com",
		Photo: "http://assets.test/users/" + strings.ToLower(name) + ".png",
	}
	require.NoError(t, f.store.Users().InsertOne(f.ctx, u))
	return f.reload(t, u)
}

func (f *fixture) reload(t *testing.T, u *entity.User) *entity.User {
	t.Helper()
	fresh, err := f.store.Users().FindOneByID(f.ctx, u.ID)
	require.NoError(t, err)
	return fresh
}

func (f *fixture) club(t *testing.T, admin *entity.User, name string, members ...*entity.User) *entity.Club {
	t.Helper()
	club, err := f.clubs.Create(f.ctx, admin, ClubInput{Name: name, Description: "A club about " + name}, imageUpload())
	require.NoError(t, err)
	for _, m := range members {
		_, err := f.clubs.Join(f.ctx, m, club.ID)
		require.NoError(t, err)
	}
	fresh, err := f.store.Clubs().FindOneByID(f.ctx, club.ID)
	require.NoError(t, err)
	return fresh
}

func (f *fixture) book(t *testing.T, creator *entity.User, title string) *entity.BookDetails {
	t.Helper()
	book, err := f.books.Create(f.ctx, creator, BookInput{Title: title, Author: "Someone"})
	require.NoError(t, err)
	return book
}

func (f *fixture) meet(t *testing.T, admin *entity.User, club *entity.Club, book *entity.BookDetails) *entity.MeetDetails {
	t.Helper()
	meet, err := f.meets.Create(f.ctx, admin, MeetInput{
		ClubID:      club.ID.Hex(),
		BookID:      book.ID.Hex(),
		Title:       "First chapters",
		Description: "We discuss the first five chapters",
		Datetime:    testNow.Add(48 * time.Hour).Format(time.RFC3339),
	}, "en-US")
	require.NoError(t, err)
	return meet
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e), "expected *Error, got %T: %v", err, err)
	require.Equal(t, kind, e.Kind, e.Message)
}

var missingID = bson.NewObjectID()
