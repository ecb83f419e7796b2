package service

import (
	"cmp"
	"context"
	"errors"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/repository"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/exp/slices"
)

const (
	defaultSuggestions  = 5
	maxSuggestions      = 20
	minSuggestionScore  = 0.35
	containedMatchBoost = 0.9
)

var bookSort = sortSpec{
	fields:      []string{"title", "author", "createdAt"},
	fallback:    "createdAt",
	defaultDesc: true,
}

type BookService struct {
	transactor     Transactor
	bookRepository BookRepository
	userRepository UserRepository
}

func NewBookService(transactor Transactor, bookRepository BookRepository, userRepository UserRepository) *BookService {
	return &BookService{
		transactor:     transactor,
		bookRepository: bookRepository,
		userRepository: userRepository,
	}
}

type BookInput struct {
	Title  string `json:"title" validate:"required,max=200"`
	Author string `json:"author" validate:"required,max=200"`
}

func (s *BookService) Create(ctx context.Context, caller *entity.User, in BookInput) (*entity.BookDetails, error) {
	if caller == nil {
		return nil, Unauthenticated("unauthenticated")
	}

	book := &entity.Book{
		Title:     strings.TrimSpace(in.Title),
		Author:    strings.TrimSpace(in.Author),
		CreatedBy: caller.ID,
	}
	if err := validate(book); err != nil {
		return nil, err
	}

	err := s.bookRepository.InsertOne(ctx, book)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, Conflict("this book is already registered")
	}
	if err != nil {
		return nil, Unexpected(err, "failed to create book")
	}

	return &entity.BookDetails{Book: *book, Creator: caller.Summary()}, nil
}

func (s *BookService) Get(ctx context.Context, id bson.ObjectID) (*entity.BookDetails, error) {
	book, err := s.bookRepository.FindDetails(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "book not found")
	}
	withCreatorPlaceholder(book)
	return book, nil
}

// Update applies the recognised non-empty string fields of fields.
func (s *BookService) Update(ctx context.Context, caller *entity.User, id bson.ObjectID, fields map[string]any) (*entity.BookDetails, error) {
	book, err := s.bookRepository.FindOneByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "book not found")
	}
	if book.CreatedBy != caller.ID && !caller.IsAdmin {
		return nil, Unauthorized("only the creator or an admin can edit this book")
	}

	changed := false
	for name, target := range map[string]*string{"title": &book.Title, "author": &book.Author} {
		if v, ok := fields[name].(string); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
			changed = true
		}
	}
	if !changed {
		return nil, Validation("no valid fields to update")
	}
	if err := validate(book); err != nil {
		return nil, err
	}

	_, err = s.bookRepository.UpdateOne(ctx, book)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, Conflict("this book is already registered")
	}
	if err != nil {
		return nil, AsError(notFoundAs(err, "book not found"))
	}

	return s.Get(ctx, id)
}

// Delete removes a book. The caller's admin flag is re-read inside the
// transaction so a revoked admin cannot delete someone else's book.
func (s *BookService) Delete(ctx context.Context, caller *entity.User, id bson.ObjectID) error {
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		book, err := s.bookRepository.FindOneByID(ctx, id)
		if err != nil {
			return notFoundAs(err, "book not found")
		}

		if book.CreatedBy != caller.ID {
			current, err := s.userRepository.FindOneByID(ctx, caller.ID)
			if err != nil {
				return notFoundAs(err, "user not found")
			}
			if !current.IsAdmin {
				return Unauthorized("only the creator or an admin can delete this book")
			}
		}

		return s.bookRepository.DeleteOneByID(ctx, id)
	})
	if err != nil {
		return AsError(err)
	}
	return nil
}

type BookQuery struct {
	ListQuery
	Author string `schema:"author"`
	UserID string `schema:"userId"`
}

type BookList struct {
	Books      []*entity.BookDetails `json:"books"`
	Pagination Pagination            `json:"pagination"`
}

func (s *BookService) List(ctx context.Context, q BookQuery) (*BookList, error) {
	filter := entity.BookFilter{
		Search: strings.TrimSpace(q.Search),
		Author: strings.TrimSpace(q.Author),
	}
	if q.UserID != "" {
		userID, err := bson.ObjectIDFromHex(q.UserID)
		if err != nil {
			return nil, Validation("invalid userId")
		}
		filter.CreatedBy = &userID
	}

	p := q.pager(bookSort)
	books, total, err := findPage(ctx,
		func(ctx context.Context) ([]*entity.BookDetails, error) {
			return s.bookRepository.Find(ctx, filter, p.opts)
		},
		func(ctx context.Context) (int64, error) {
			return s.bookRepository.Count(ctx, filter)
		},
	)
	if err != nil {
		return nil, Unexpected(err, "failed to list books")
	}

	for _, book := range books {
		withCreatorPlaceholder(book)
	}
	return &BookList{Books: books, Pagination: p.pagination(total)}, nil
}

func withCreatorPlaceholder(book *entity.BookDetails) {
	if book.Creator == nil {
		book.Creator = &entity.UserSummary{ID: book.CreatedBy, Name: "User unavailable", Email: "not provided"}
	}
}

type BookSuggestion struct {
	*entity.Book
	Score float32 `json:"score"`
}

// Suggest ranks book titles by their Levenshtein similarity to query.
func (s *BookService) Suggest(ctx context.Context, query string, limit int) ([]*BookSuggestion, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, Validation("query is required")
	}
	if limit < 1 {
		limit = defaultSuggestions
	}
	if limit > maxSuggestions {
		limit = maxSuggestions
	}

	books, err := s.bookRepository.FindAll(ctx)
	if err != nil {
		return nil, Unexpected(err, "failed to load books")
	}

	suggestions := []*BookSuggestion{}
	for _, book := range books {
		title := strings.ToLower(book.Title)
		score, err := edlib.StringsSimilarity(query, title, edlib.Levenshtein)
		if err != nil {
			continue
		}
		if strings.Contains(title, query) && score < containedMatchBoost {
			score = containedMatchBoost
		}
		if score >= minSuggestionScore {
			suggestions = append(suggestions, &BookSuggestion{Book: book, Score: score})
		}
	}

	slices.SortStableFunc(suggestions, func(a, b *BookSuggestion) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Title, b.Title)
	})
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}
