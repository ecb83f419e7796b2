package memory

import (
	"cmp"
	"context"
	"strings"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

type ClubRepository struct {
	s *Store
}

var clubOrder = map[string]func(a, b *entity.ClubDetails) int{
	"createdAt":    func(a, b *entity.ClubDetails) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"name":         func(a, b *entity.ClubDetails) int { return strings.Compare(a.Name, b.Name) },
	"membersCount": func(a, b *entity.ClubDetails) int { return cmp.Compare(a.MembersCount, b.MembersCount) },
}

func (r *ClubRepository) FindOneByID(_ context.Context, id bson.ObjectID) (*entity.Club, error) {
	var club *entity.Club
	r.s.read(func() {
		if c, ok := r.s.clubs[id]; ok {
			club = cloneClub(c)
		}
	})
	if club == nil {
		return nil, repository.ErrNotFound
	}
	return club, nil
}

func (r *ClubRepository) FindAll(context.Context) ([]*entity.Club, error) {
	return r.filter(func(*entity.Club) bool { return true }), nil
}

func (r *ClubRepository) FindManyByAdminID(_ context.Context, userID bson.ObjectID) ([]*entity.Club, error) {
	return r.filter(func(c *entity.Club) bool { return c.Admin == userID }), nil
}

func (r *ClubRepository) filter(keep func(c *entity.Club) bool) []*entity.Club {
	var clubs []*entity.Club
	r.s.read(func() {
		for _, c := range r.s.clubs {
			if keep(c) {
				clubs = append(clubs, cloneClub(c))
			}
		}
	})
	slices.SortFunc(clubs, func(a, b *entity.Club) int { return compareIDs(a.ID, b.ID) })
	return clubs
}

func (r *ClubRepository) Find(_ context.Context, filter entity.ClubFilter, opts entity.ListOptions) ([]*entity.ClubDetails, error) {
	var clubs []*entity.ClubDetails
	r.s.read(func() {
		for _, c := range r.s.clubs {
			if !matchClub(c, filter) {
				continue
			}
			d := &entity.ClubDetails{Club: *cloneClub(c)}
			if u, ok := r.s.users[c.Admin]; ok {
				d.AdminUser = u.Summary()
			}
			clubs = append(clubs, d)
		}
	})

	order, ok := clubOrder[opts.SortField]
	if !ok {
		order = clubOrder["createdAt"]
	}
	return sortPage(clubs, opts, func(a, b *entity.ClubDetails) int {
		if c := order(a, b); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	}), nil
}

func (r *ClubRepository) Count(_ context.Context, filter entity.ClubFilter) (int64, error) {
	var n int64
	r.s.read(func() {
		for _, c := range r.s.clubs {
			if matchClub(c, filter) {
				n++
			}
		}
	})
	return n, nil
}

func matchClub(c *entity.Club, f entity.ClubFilter) bool {
	return f.Search == "" || contains(c.Name, f.Search) || contains(c.Description, f.Search)
}

func (r *ClubRepository) InsertOne(ctx context.Context, club *entity.Club) error {
	return r.s.write(ctx, func() error {
		if club.ID.IsZero() {
			club.ID = bson.NewObjectID()
		}
		if _, ok := r.s.clubs[club.ID]; ok {
			return repository.ErrDuplicate
		}
		now := r.s.Now()
		club.CreatedAt, club.UpdatedAt = now, now
		if club.Meets == nil {
			club.Meets = []bson.ObjectID{}
		}
		r.s.clubs[club.ID] = cloneClub(club)
		return nil
	})
}

func (r *ClubRepository) UpdateOne(ctx context.Context, club *entity.Club) (*entity.Club, error) {
	return r.update(ctx, club.ID, func(c *entity.Club) error {
		c.Name = club.Name
		c.Slug = club.Slug
		c.Banner = club.Banner
		c.Description = club.Description
		c.Rules = slices.Clone(club.Rules)
		c.UpdatedAt = r.s.Now()
		return nil
	})
}

func (r *ClubRepository) AddMember(ctx context.Context, clubID, userID bson.ObjectID) (*entity.Club, error) {
	club, err := r.update(ctx, clubID, func(c *entity.Club) error {
		if c.IsMember(userID) {
			return repository.ErrConflict
		}
		c.Members = append(c.Members, userID)
		c.MembersCount++
		c.UpdatedAt = r.s.Now()
		return nil
	})
	if err == repository.ErrNotFound {
		return nil, repository.ErrConflict
	}
	return club, err
}

func (r *ClubRepository) RemoveMember(ctx context.Context, clubID, userID bson.ObjectID) (*entity.Club, error) {
	return r.update(ctx, clubID, func(c *entity.Club) error {
		if !c.IsMember(userID) || c.Admin == userID {
			return repository.ErrNotFound
		}
		c.Members = remove(c.Members, userID)
		c.MembersCount--
		c.UpdatedAt = r.s.Now()
		return nil
	})
}

func (r *ClubRepository) SetMembers(ctx context.Context, clubID bson.ObjectID, current, members []bson.ObjectID) error {
	_, err := r.update(ctx, clubID, func(c *entity.Club) error {
		if !slices.Equal(c.Members, current) {
			return repository.ErrConflict
		}
		c.Members = slices.Clone(members)
		c.MembersCount = len(members)
		return nil
	})
	return err
}

func (r *ClubRepository) PushMeet(ctx context.Context, clubID, meetID bson.ObjectID) error {
	_, err := r.update(ctx, clubID, func(c *entity.Club) error {
		c.Meets = addToSet(c.Meets, meetID)
		return nil
	})
	return err
}

func (r *ClubRepository) PullMeet(ctx context.Context, clubID, meetID bson.ObjectID) (*entity.Club, error) {
	return r.update(ctx, clubID, func(c *entity.Club) error {
		c.Meets = remove(c.Meets, meetID)
		return nil
	})
}

func (r *ClubRepository) DeleteOneByID(ctx context.Context, id bson.ObjectID) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.clubs[id]; !ok {
			return repository.ErrNotFound
		}
		delete(r.s.clubs, id)
		return nil
	})
}

func (r *ClubRepository) update(ctx context.Context, id bson.ObjectID, fn func(c *entity.Club) error) (*entity.Club, error) {
	var updated *entity.Club
	err := r.s.write(ctx, func() error {
		stored, ok := r.s.clubs[id]
		if !ok {
			return repository.ErrNotFound
		}
		c := cloneClub(stored)
		if err := fn(c); err != nil {
			return err
		}
		r.s.clubs[id] = c
		updated = cloneClub(c)
		return nil
	})
	return updated, err
}
