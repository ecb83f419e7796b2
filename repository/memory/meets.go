package memory

import (
	"context"
	"strings"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

type MeetRepository struct {
	s *Store
}

var meetOrder = map[string]func(a, b *entity.MeetDetails) int{
	"datetime":  func(a, b *entity.MeetDetails) int { return a.Datetime.Compare(b.Datetime) },
	"createdAt": func(a, b *entity.MeetDetails) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"title":     func(a, b *entity.MeetDetails) int { return strings.Compare(a.Title, b.Title) },
}

func (r *MeetRepository) FindOneByID(_ context.Context, id bson.ObjectID) (*entity.Meet, error) {
	var meet *entity.Meet
	r.s.read(func() {
		if m, ok := r.s.meets[id]; ok {
			meet = cloneMeet(m)
		}
	})
	if meet == nil {
		return nil, repository.ErrNotFound
	}
	return meet, nil
}

func (r *MeetRepository) FindDetails(_ context.Context, id bson.ObjectID) (*entity.MeetDetails, error) {
	var details *entity.MeetDetails
	r.s.read(func() {
		if m, ok := r.s.meets[id]; ok {
			details = r.details(m, false)
		}
	})
	if details == nil {
		return nil, repository.ErrNotFound
	}
	return details, nil
}

func (r *MeetRepository) Find(_ context.Context, filter entity.MeetFilter, opts entity.ListOptions) ([]*entity.MeetDetails, error) {
	var meets []*entity.MeetDetails
	r.s.read(func() {
		for _, m := range r.s.meets {
			if matchMeet(m, filter) {
				meets = append(meets, r.details(m, true))
			}
		}
	})

	order, ok := meetOrder[opts.SortField]
	if !ok {
		order = meetOrder["datetime"]
	}
	return sortPage(meets, opts, func(a, b *entity.MeetDetails) int {
		if c := order(a, b); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	}), nil
}

func (r *MeetRepository) Count(_ context.Context, filter entity.MeetFilter) (int64, error) {
	var n int64
	r.s.read(func() {
		for _, m := range r.s.meets {
			if matchMeet(m, filter) {
				n++
			}
		}
	})
	return n, nil
}

func matchMeet(m *entity.Meet, f entity.MeetFilter) bool {
	if f.ClubID != nil && m.ClubID != *f.ClubID {
		return false
	}
	if f.BookID != nil && m.BookID != *f.BookID {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.Search != "" && !contains(m.Title, f.Search) && !contains(m.Description, f.Search) {
		return false
	}
	return true
}

func (r *MeetRepository) details(m *entity.Meet, summary bool) *entity.MeetDetails {
	d := &entity.MeetDetails{Meet: *cloneMeet(m)}
	if summary {
		d.Discussions = nil
		d.PinnedMessages = nil
	}
	if b, ok := r.s.books[m.BookID]; ok {
		d.Book = &entity.Book{ID: b.ID, Title: b.Title, Author: b.Author}
	}
	if u, ok := r.s.users[m.CreatedBy]; ok {
		d.Organizer = &entity.UserSummary{ID: u.ID, Name: u.Name, Photo: u.Photo}
	}
	if c, ok := r.s.clubs[m.ClubID]; ok {
		d.Club = &entity.ClubSummary{ID: c.ID, Name: c.Name}
	}
	return d
}

func (r *MeetRepository) InsertOne(ctx context.Context, meet *entity.Meet) error {
	return r.s.write(ctx, func() error {
		if meet.ID.IsZero() {
			meet.ID = bson.NewObjectID()
		}
		if _, ok := r.s.meets[meet.ID]; ok {
			return repository.ErrDuplicate
		}
		now := r.s.Now()
		meet.CreatedAt, meet.UpdatedAt = now, now
		if meet.Discussions == nil {
			meet.Discussions = []entity.Message{}
		}
		if meet.PinnedMessages == nil {
			meet.PinnedMessages = []bson.ObjectID{}
		}
		r.s.meets[meet.ID] = cloneMeet(meet)
		return nil
	})
}

func (r *MeetRepository) UpdateOne(ctx context.Context, id bson.ObjectID, upd entity.MeetUpdate) (*entity.Meet, error) {
	return r.update(ctx, id, func(m *entity.Meet) error {
		upd.Apply(m)
		m.UpdatedAt = r.s.Now()
		return nil
	})
}

func (r *MeetRepository) DeleteOneByID(ctx context.Context, id bson.ObjectID) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.meets[id]; !ok {
			return repository.ErrNotFound
		}
		delete(r.s.meets, id)
		return nil
	})
}

func (r *MeetRepository) DeleteManyByClubID(ctx context.Context, clubID bson.ObjectID) (int64, error) {
	var n int64
	err := r.s.write(ctx, func() error {
		for id, m := range r.s.meets {
			if m.ClubID == clubID {
				delete(r.s.meets, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *MeetRepository) PushMessage(ctx context.Context, meetID bson.ObjectID, msg entity.Message) error {
	_, err := r.update(ctx, meetID, func(m *entity.Meet) error {
		m.Discussions = append(m.Discussions, msg)
		return nil
	})
	return err
}

func (r *MeetRepository) PullMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error) {
	return r.update(ctx, meetID, func(m *entity.Meet) error {
		if _, ok := m.Message(msgID); !ok {
			return repository.ErrNotFound
		}
		m.Discussions = slices.DeleteFunc(m.Discussions, func(msg entity.Message) bool { return msg.ID == msgID })
		m.PinnedMessages = remove(m.PinnedMessages, msgID)
		return nil
	})
}

func (r *MeetRepository) PinMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error) {
	meet, err := r.update(ctx, meetID, func(m *entity.Meet) error {
		if _, ok := m.Message(msgID); !ok || len(m.PinnedMessages) >= entity.MaxPinnedMessages {
			return repository.ErrNotFound
		}
		m.PinnedMessages = addToSet(m.PinnedMessages, msgID)
		return nil
	})
	if err == repository.ErrNotFound {
		return nil, repository.ErrConflict
	}
	return meet, err
}

func (r *MeetRepository) UnpinMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error) {
	return r.update(ctx, meetID, func(m *entity.Meet) error {
		m.PinnedMessages = remove(m.PinnedMessages, msgID)
		return nil
	})
}

func (r *MeetRepository) update(ctx context.Context, id bson.ObjectID, fn func(m *entity.Meet) error) (*entity.Meet, error) {
	var updated *entity.Meet
	err := r.s.write(ctx, func() error {
		stored, ok := r.s.meets[id]
		if !ok {
			return repository.ErrNotFound
		}
		m := cloneMeet(stored)
		if err := fn(m); err != nil {
			return err
		}
		r.s.meets[id] = m
		updated = cloneMeet(m)
		return nil
	})
	return updated, err
}
