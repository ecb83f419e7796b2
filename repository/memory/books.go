package memory

import (
	"context"
	"strings"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type BookRepository struct {
	s *Store
}

var bookOrder = map[string]func(a, b *entity.BookDetails) int{
	"title":     func(a, b *entity.BookDetails) int { return strings.Compare(a.Title, b.Title) },
	"author":    func(a, b *entity.BookDetails) int { return strings.Compare(a.Author, b.Author) },
	"createdAt": func(a, b *entity.BookDetails) int { return a.CreatedAt.Compare(b.CreatedAt) },
}

func (r *BookRepository) FindOneByID(_ context.Context, id bson.ObjectID) (*entity.Book, error) {
	var book *entity.Book
	r.s.read(func() {
		if b, ok := r.s.books[id]; ok {
			book = cloneBook(b)
		}
	})
	if book == nil {
		return nil, repository.ErrNotFound
	}
	return book, nil
}

func (r *BookRepository) FindDetails(_ context.Context, id bson.ObjectID) (*entity.BookDetails, error) {
	var details *entity.BookDetails
	r.s.read(func() {
		if b, ok := r.s.books[id]; ok {
			details = r.details(b)
		}
	})
	if details == nil {
		return nil, repository.ErrNotFound
	}
	return details, nil
}

func (r *BookRepository) Exists(_ context.Context, id bson.ObjectID) (bool, error) {
	var ok bool
	r.s.read(func() { _, ok = r.s.books[id] })
	return ok, nil
}

func (r *BookRepository) FindAll(context.Context) ([]*entity.Book, error) {
	var books []*entity.Book
	r.s.read(func() {
		for _, b := range r.s.books {
			books = append(books, cloneBook(b))
		}
	})
	return books, nil
}

func (r *BookRepository) Find(_ context.Context, filter entity.BookFilter, opts entity.ListOptions) ([]*entity.BookDetails, error) {
	var books []*entity.BookDetails
	r.s.read(func() {
		for _, b := range r.s.books {
			if matchBook(b, filter) {
				books = append(books, r.details(b))
			}
		}
	})

	order, ok := bookOrder[opts.SortField]
	if !ok {
		order = bookOrder["createdAt"]
	}
	return sortPage(books, opts, func(a, b *entity.BookDetails) int {
		if c := order(a, b); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	}), nil
}

func (r *BookRepository) Count(_ context.Context, filter entity.BookFilter) (int64, error) {
	var n int64
	r.s.read(func() {
		for _, b := range r.s.books {
			if matchBook(b, filter) {
				n++
			}
		}
	})
	return n, nil
}

func matchBook(b *entity.Book, f entity.BookFilter) bool {
	if f.Search != "" && !contains(b.Title, f.Search) && !contains(b.Author, f.Search) {
		return false
	}
	if f.Author != "" && !contains(b.Author, f.Author) {
		return false
	}
	if f.CreatedBy != nil && b.CreatedBy != *f.CreatedBy {
		return false
	}
	return true
}

func (r *BookRepository) details(b *entity.Book) *entity.BookDetails {
	d := &entity.BookDetails{Book: *b}
	if u, ok := r.s.users[b.CreatedBy]; ok {
		d.Creator = &entity.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	return d
}

func (r *BookRepository) InsertOne(ctx context.Context, book *entity.Book) error {
	return r.s.write(ctx, func() error {
		if r.titleTaken(book.Title, book.ID) {
			return repository.ErrDuplicate
		}
		if book.ID.IsZero() {
			book.ID = bson.NewObjectID()
		}
		now := r.s.Now()
		book.CreatedAt, book.UpdatedAt = now, now
		r.s.books[book.ID] = cloneBook(book)
		return nil
	})
}

func (r *BookRepository) UpdateOne(ctx context.Context, book *entity.Book) (*entity.Book, error) {
	var updated *entity.Book
	err := r.s.write(ctx, func() error {
		stored, ok := r.s.books[book.ID]
		if !ok {
			return repository.ErrNotFound
		}
		if r.titleTaken(book.Title, book.ID) {
			return repository.ErrDuplicate
		}
		stored.Title = book.Title
		stored.Author = book.Author
		stored.UpdatedAt = r.s.Now()
		updated = cloneBook(stored)
		return nil
	})
	return updated, err
}

func (r *BookRepository) DeleteOneByID(ctx context.Context, id bson.ObjectID) error {
	return r.s.write(ctx, func() error {
		if _, ok := r.s.books[id]; !ok {
			return repository.ErrNotFound
		}
		delete(r.s.books, id)
		return nil
	})
}

func (r *BookRepository) titleTaken(title string, except bson.ObjectID) bool {
	for id, b := range r.s.books {
		if id != except && b.Title == title {
			return true
		}
	}
	return false
}
