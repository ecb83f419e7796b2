package repository

import (
	"context"
	"time"

	"github.com/joeyave/bookclub/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type BookRepository struct {
	mongoClient *mongo.Client
	database    string
}

func NewBookRepository(mongoClient *mongo.Client, database string) *BookRepository {
	return &BookRepository{
		mongoClient: mongoClient,
		database:    database,
	}
}

func (r *BookRepository) collection() *mongo.Collection {
	return r.mongoClient.Database(r.database).Collection(BooksCollection)
}

func (r *BookRepository) FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.Book, error) {
	var book *entity.Book
	err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&book)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return book, nil
}

func (r *BookRepository) FindDetails(ctx context.Context, id bson.ObjectID) (*entity.BookDetails, error) {
	books, err := r.find(ctx, bson.M{"_id": id}, entity.ListOptions{SortField: "_id", Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, ErrNotFound
	}
	return books[0], nil
}

func (r *BookRepository) Exists(ctx context.Context, id bson.ObjectID) (bool, error) {
	n, err := r.collection().CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *BookRepository) FindAll(ctx context.Context) ([]*entity.Book, error) {
	cur, err := r.collection().Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"title": 1, "author": 1}))
	if err != nil {
		return nil, err
	}

	var books []*entity.Book
	err = cur.All(ctx, &books)
	if err != nil {
		return nil, err
	}
	return books, nil
}

func (r *BookRepository) Find(ctx context.Context, filter entity.BookFilter, opts entity.ListOptions) ([]*entity.BookDetails, error) {
	return r.find(ctx, bookFilter(filter), opts)
}

func (r *BookRepository) Count(ctx context.Context, filter entity.BookFilter) (int64, error) {
	return r.collection().CountDocuments(ctx, bookFilter(filter))
}

func (r *BookRepository) find(ctx context.Context, m bson.M, opts entity.ListOptions) ([]*entity.BookDetails, error) {
	pipeline := bson.A{
		bson.M{"$match": m},
	}
	pipeline = append(pipeline, pageStages(opts)...)
	pipeline = append(pipeline, lookupOne(UsersCollection, "createdBy", "creator", bson.M{"name": 1, "email": 1})...)

	cur, err := r.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var books []*entity.BookDetails
	err = cur.All(ctx, &books)
	if err != nil {
		return nil, err
	}
	return books, nil
}

func bookFilter(f entity.BookFilter) bson.M {
	m := bson.M{}
	if f.Search != "" {
		m["$or"] = bson.A{
			bson.M{"title": containsRegex(f.Search)},
			bson.M{"author": containsRegex(f.Search)},
		}
	}
	if f.Author != "" {
		m["author"] = containsRegex(f.Author)
	}
	if f.CreatedBy != nil {
		m["createdBy"] = *f.CreatedBy
	}
	return m
}

func (r *BookRepository) InsertOne(ctx context.Context, book *entity.Book) error {
	if book.ID.IsZero() {
		book.ID = bson.NewObjectID()
	}
	now := time.Now()
	book.CreatedAt, book.UpdatedAt = now, now

	_, err := r.collection().InsertOne(ctx, book)
	return translateWriteErr(err)
}

func (r *BookRepository) UpdateOne(ctx context.Context, book *entity.Book) (*entity.Book, error) {
	update := bson.M{
		"$set": bson.M{
			"title":     book.Title,
			"author":    book.Author,
			"updatedAt": time.Now(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated *entity.Book
	err := r.collection().FindOneAndUpdate(ctx, bson.M{"_id": book.ID}, update, opts).Decode(&updated)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return updated, nil
}

func (r *BookRepository) DeleteOneByID(ctx context.Context, id bson.ObjectID) error {
	res, err := r.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
