// Package memory is a process-local implementation of the repositories,
// used for local development without MongoDB and in tests.
package memory

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/joeyave/bookclub/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

type txKey struct{}

// Store holds every collection in maps. Transactions are serialized and
// roll back to a snapshot taken when they began. Writes outside a
// transaction wait for running transactions to finish.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	users   map[bson.ObjectID]*entity.User
	books   map[bson.ObjectID]*entity.Book
	clubs   map[bson.ObjectID]*entity.Club
	meets   map[bson.ObjectID]*entity.Meet
	revoked map[string]time.Time

	Now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:   map[bson.ObjectID]*entity.User{},
		books:   map[bson.ObjectID]*entity.Book{},
		clubs:   map[bson.ObjectID]*entity.Club{},
		meets:   map[bson.ObjectID]*entity.Meet{},
		revoked: map[string]time.Time{},
		Now:     time.Now,
	}
}

func (s *Store) Users() *UserRepository   { return &UserRepository{s: s} }
func (s *Store) Books() *BookRepository   { return &BookRepository{s: s} }
func (s *Store) Clubs() *ClubRepository   { return &ClubRepository{s: s} }
func (s *Store) Meets() *MeetRepository   { return &MeetRepository{s: s} }
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := s.snapshot()
	s.mu.RUnlock()

	err := fn(context.WithValue(ctx, txKey{}, true))
	if err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
	}
	return err
}

func (s *Store) write(ctx context.Context, fn func() error) error {
	if ctx.Value(txKey{}) == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) read(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

type snapshot struct {
	users   map[bson.ObjectID]*entity.User
	books   map[bson.ObjectID]*entity.Book
	clubs   map[bson.ObjectID]*entity.Club
	meets   map[bson.ObjectID]*entity.Meet
	revoked map[string]time.Time
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:   make(map[bson.ObjectID]*entity.User, len(s.users)),
		books:   make(map[bson.ObjectID]*entity.Book, len(s.books)),
		clubs:   make(map[bson.ObjectID]*entity.Club, len(s.clubs)),
		meets:   make(map[bson.ObjectID]*entity.Meet, len(s.meets)),
		revoked: make(map[string]time.Time, len(s.revoked)),
	}
	for id, u := range s.users {
		snap.users[id] = cloneUser(u)
	}
	for id, b := range s.books {
		snap.books[id] = cloneBook(b)
	}
	for id, c := range s.clubs {
		snap.clubs[id] = cloneClub(c)
	}
	for id, m := range s.meets {
		snap.meets[id] = cloneMeet(m)
	}
	for k, v := range s.revoked {
		snap.revoked[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.books = snap.books
	s.clubs = snap.clubs
	s.meets = snap.meets
	s.revoked = snap.revoked
}

func cloneUser(u *entity.User) *entity.User {
	c := *u
	c.MemberClubs = slices.Clone(u.MemberClubs)
	c.AdminClubs = slices.Clone(u.AdminClubs)
	return &c
}

func cloneBook(b *entity.Book) *entity.Book {
	c := *b
	return &c
}

func cloneClub(club *entity.Club) *entity.Club {
	c := *club
	c.Members = slices.Clone(club.Members)
	c.Meets = slices.Clone(club.Meets)
	c.Rules = slices.Clone(club.Rules)
	return &c
}

func cloneMeet(m *entity.Meet) *entity.Meet {
	c := *m
	c.Discussions = slices.Clone(m.Discussions)
	c.PinnedMessages = slices.Clone(m.PinnedMessages)
	return &c
}

func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}

func compareIDs(a, b bson.ObjectID) int {
	return bytes.Compare(a[:], b[:])
}

// sortPage orders items with cmp (ties broken by id), then applies skip and
// limit.
func sortPage[T any](items []T, opts entity.ListOptions, cmp func(a, b T) int) []T {
	slices.SortStableFunc(items, func(a, b T) int {
		c := cmp(a, b)
		if opts.SortDesc {
			c = -c
		}
		return c
	})

	if opts.Skip >= int64(len(items)) {
		return []T{}
	}
	if opts.Skip > 0 {
		items = items[opts.Skip:]
	}
	if opts.Limit > 0 && int64(len(items)) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

func remove(ids []bson.ObjectID, id bson.ObjectID) []bson.ObjectID {
	return slices.DeleteFunc(ids, func(x bson.ObjectID) bool { return x == id })
}

func addToSet(ids []bson.ObjectID, id bson.ObjectID) []bson.ObjectID {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
