package memory

import (
	"context"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) FindAll(context.Context) ([]*entity.User, error) {
	var users []*entity.User
	r.s.read(func() {
		for _, u := range r.s.users {
			users = append(users, withoutPassword(u))
		}
	})
	return users, nil
}

func (r *UserRepository) FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.User, error) {
	user, err := r.FindOneByIDWithPassword(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Password = ""
	return user, nil
}

func (r *UserRepository) FindOneByIDWithPassword(_ context.Context, id bson.ObjectID) (*entity.User, error) {
	var user *entity.User
	r.s.read(func() {
		if u, ok := r.s.users[id]; ok {
			user = cloneUser(u)
		}
	})
	if user == nil {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) FindOneByEmail(_ context.Context, email string) (*entity.User, error) {
	var user *entity.User
	r.s.read(func() {
		for _, u := range r.s.users {
			if u.Email == email {
				user = cloneUser(u)
				return
			}
		}
	})
	if user == nil {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) FindSummariesByIDs(_ context.Context, ids []bson.ObjectID) ([]*entity.UserSummary, error) {
	summaries := []*entity.UserSummary{}
	r.s.read(func() {
		for _, id := range ids {
			if u, ok := r.s.users[id]; ok {
				summaries = append(summaries, u.Summary())
			}
		}
	})
	return summaries, nil
}

func (r *UserRepository) InsertOne(ctx context.Context, user *entity.User) error {
	return r.s.write(ctx, func() error {
		if r.emailTaken(user.Email, user.ID) {
			return repository.ErrDuplicate
		}
		if user.ID.IsZero() {
			user.ID = bson.NewObjectID()
		}
		now := r.s.Now()
		user.CreatedAt, user.UpdatedAt = now, now
		if user.MemberClubs == nil {
			user.MemberClubs = []bson.ObjectID{}
		}
		if user.AdminClubs == nil {
			user.AdminClubs = []bson.ObjectID{}
		}
		r.s.users[user.ID] = cloneUser(user)
		return nil
	})
}

func (r *UserRepository) UpdateProfile(ctx context.Context, user *entity.User) (*entity.User, error) {
	var updated *entity.User
	err := r.s.write(ctx, func() error {
		stored, ok := r.s.users[user.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if r.emailTaken(user.Email, user.ID) {
			return repository.ErrDuplicate
		}
		stored.Name = user.Name
		stored.Email = user.Email
		stored.Photo = user.Photo
		if user.Password != "" {
			stored.Password = user.Password
		}
		stored.UpdatedAt = r.s.Now()
		updated = withoutPassword(stored)
		return nil
	})
	return updated, err
}

func (r *UserRepository) DeleteOneByID(ctx context.Context, id bson.ObjectID) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.users[id]; !ok {
			return repository.ErrNotFound
		}
		delete(r.s.users, id)
		return nil
	})
}

func (r *UserRepository) AddClub(ctx context.Context, userID, clubID bson.ObjectID, asAdmin bool) error {
	return r.update(ctx, userID, func(u *entity.User) {
		u.MemberClubs = addToSet(u.MemberClubs, clubID)
		if asAdmin {
			u.AdminClubs = addToSet(u.AdminClubs, clubID)
		}
	})
}

func (r *UserRepository) PullClub(ctx context.Context, userID, clubID bson.ObjectID) error {
	return r.update(ctx, userID, func(u *entity.User) {
		u.MemberClubs = remove(u.MemberClubs, clubID)
		u.AdminClubs = remove(u.AdminClubs, clubID)
	})
}

func (r *UserRepository) PullAdminClub(ctx context.Context, userID, clubID bson.ObjectID) error {
	return r.update(ctx, userID, func(u *entity.User) {
		u.AdminClubs = remove(u.AdminClubs, clubID)
	})
}

func (r *UserRepository) PullClubFromAll(ctx context.Context, clubID bson.ObjectID) error {
	return r.s.write(ctx, func() error {
		for _, u := range r.s.users {
			u.MemberClubs = remove(u.MemberClubs, clubID)
			u.AdminClubs = remove(u.AdminClubs, clubID)
		}
		return nil
	})
}

func (r *UserRepository) update(ctx context.Context, id bson.ObjectID, fn func(u *entity.User)) error {
	return r.s.write(ctx, func() error {
		u, ok := r.s.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		fn(u)
		u.UpdatedAt = r.s.Now()
		return nil
	})
}

func (r *UserRepository) emailTaken(email string, except bson.ObjectID) bool {
	for id, u := range r.s.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}

func withoutPassword(u *entity.User) *entity.User {
	c := cloneUser(u)
	c.Password = ""
	return c
}
