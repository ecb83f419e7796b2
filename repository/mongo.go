package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/util"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	UsersCollection  = "users"
	BooksCollection  = "books"
	ClubsCollection  = "clubs"
	MeetsCollection  = "meets"
	TokensCollection = "blacklistedtokens"
)

// Connect opens a client and waits for the primary to answer, retrying
// while the server is still starting.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	retrier := retry.NewRetrier(5, time.Second, 10*time.Second)
	err = retrier.RunContext(ctx, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// Transactor runs a function inside a MongoDB multi-document transaction.
// Repositories called with the context passed to fn join the transaction.
type Transactor struct {
	mongoClient *mongo.Client
}

func NewTransactor(mongoClient *mongo.Client) *Transactor {
	return &Transactor{mongoClient: mongoClient}
}

func (t *Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.mongoClient.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// Ping reports whether the primary is reachable.
func (t *Transactor) Ping(ctx context.Context) error {
	return t.mongoClient.Ping(ctx, readpref.Primary())
}

func sortStage(opts entity.ListOptions) bson.M {
	dir := 1
	if opts.SortDesc {
		dir = -1
	}
	if opts.SortField == "" || opts.SortField == "_id" {
		return bson.M{"$sort": bson.D{{Key: "_id", Value: dir}}}
	}
	return bson.M{"$sort": bson.D{{Key: opts.SortField, Value: dir}, {Key: "_id", Value: dir}}}
}

func pageStages(opts entity.ListOptions) bson.A {
	stages := bson.A{sortStage(opts)}
	if opts.Skip > 0 {
		stages = append(stages, bson.M{"$skip": opts.Skip})
	}
	if opts.Limit > 0 {
		stages = append(stages, bson.M{"$limit": opts.Limit})
	}
	return stages
}

// lookupOne joins a single document from another collection into field as,
// leaving the field absent when the reference is dangling.
func lookupOne(from, localField, as string, project bson.M) bson.A {
	return bson.A{
		bson.M{
			"$lookup": bson.M{
				"from":         from,
				"localField":   localField,
				"foreignField": "_id",
				"pipeline":     bson.A{bson.M{"$project": project}},
				"as":           as,
			},
		},
		bson.M{
			"$unwind": bson.M{
				"path":                       "$" + as,
				"preserveNullAndEmptyArrays": true,
			},
		},
	}
}

func containsRegex(s string) bson.M {
	return bson.M{"$regex": util.ContainsRegex(s)}
}
