package migrations

import (
	"context"
	"fmt"

	"github.com/joeyave/bookclub/repository"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func indexes() []collectionIndexes {
	return []collectionIndexes{
		{repository.UsersCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{repository.BooksCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "title", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "createdBy", Value: 1}}},
		}},
		{repository.ClubsCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "members", Value: 1}}},
			{Keys: bson.D{{Key: "admin", Value: 1}}},
		}},
		{repository.MeetsCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "clubId", Value: 1}, {Key: "datetime", Value: 1}}},
			{Keys: bson.D{{Key: "clubId", Value: 1}, {Key: "discussions.timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "book", Value: 1}}},
		}},
		{repository.TokensCollection, []mongo.IndexModel{
			{Keys: bson.D{{Key: "token", Value: 1}}, Options: options.Index().SetUnique(true)},
			// Revocations disappear once the token would have expired anyway.
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		}},
	}
}

// EnsureIndexes creates the indexes the repositories rely on. Existing
// indexes with the same keys and options are left as they are.
func EnsureIndexes(ctx context.Context, client *mongo.Client, database string) error {
	db := client.Database(database)
	for _, ci := range indexes() {
		names, err := db.Collection(ci.collection).Indexes().CreateMany(ctx, ci.models)
		if err != nil {
			return fmt.Errorf("create indexes on %s: %w", ci.collection, err)
		}
		log.Debug().Str("collection", ci.collection).Strs("indexes", names).Msg("Indexes ensured")
	}
	return nil
}
