package repository

import (
	"context"
	"time"

	"github.com/joeyave/bookclub/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type ClubRepository struct {
	mongoClient *mongo.Client
	database    string
}

func NewClubRepository(mongoClient *mongo.Client, database string) *ClubRepository {
	return &ClubRepository{
		mongoClient: mongoClient,
		database:    database,
	}
}

func (r *ClubRepository) collection() *mongo.Collection {
	return r.mongoClient.Database(r.database).Collection(ClubsCollection)
}

func (r *ClubRepository) FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.Club, error) {
	var club *entity.Club
	err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&club)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return club, nil
}

func (r *ClubRepository) FindAll(ctx context.Context) ([]*entity.Club, error) {
	return r.findPlain(ctx, bson.M{})
}

func (r *ClubRepository) FindManyByAdminID(ctx context.Context, userID bson.ObjectID) ([]*entity.Club, error) {
	return r.findPlain(ctx, bson.M{"admin": userID})
}

func (r *ClubRepository) findPlain(ctx context.Context, m bson.M) ([]*entity.Club, error) {
	cur, err := r.collection().Find(ctx, m)
	if err != nil {
		return nil, err
	}

	var clubs []*entity.Club
	err = cur.All(ctx, &clubs)
	if err != nil {
		return nil, err
	}
	return clubs, nil
}

func (r *ClubRepository) Find(ctx context.Context, filter entity.ClubFilter, opts entity.ListOptions) ([]*entity.ClubDetails, error) {
	pipeline := bson.A{
		bson.M{"$match": clubFilter(filter)},
	}
	pipeline = append(pipeline, pageStages(opts)...)
	pipeline = append(pipeline, lookupOne(UsersCollection, "admin", "adminUser", bson.M{"name": 1, "email": 1, "photo": 1})...)

	cur, err := r.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var clubs []*entity.ClubDetails
	err = cur.All(ctx, &clubs)
	if err != nil {
		return nil, err
	}
	return clubs, nil
}

func (r *ClubRepository) Count(ctx context.Context, filter entity.ClubFilter) (int64, error) {
	return r.collection().CountDocuments(ctx, clubFilter(filter))
}

func clubFilter(f entity.ClubFilter) bson.M {
	m := bson.M{}
	if f.Search != "" {
		m["$or"] = bson.A{
			bson.M{"name": containsRegex(f.Search)},
			bson.M{"description": containsRegex(f.Search)},
		}
	}
	return m
}

func (r *ClubRepository) InsertOne(ctx context.Context, club *entity.Club) error {
	if club.ID.IsZero() {
		club.ID = bson.NewObjectID()
	}
	now := time.Now()
	club.CreatedAt, club.UpdatedAt = now, now
	if club.Meets == nil {
		club.Meets = []bson.ObjectID{}
	}

	_, err := r.collection().InsertOne(ctx, club)
	return translateWriteErr(err)
}

// UpdateOne writes the admin-editable fields of club.
func (r *ClubRepository) UpdateOne(ctx context.Context, club *entity.Club) (*entity.Club, error) {
	update := bson.M{
		"$set": bson.M{
			"name":        club.Name,
			"slug":        club.Slug,
			"banner":      club.Banner,
			"description": club.Description,
			"rules":       club.Rules,
			"updatedAt":   time.Now(),
		},
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": club.ID}, update)
}

// AddMember adds userID unless it is already a member. A club that already
// contains userID yields ErrConflict.
func (r *ClubRepository) AddMember(ctx context.Context, clubID, userID bson.ObjectID) (*entity.Club, error) {
	filter := bson.M{"_id": clubID, "members": bson.M{"$ne": userID}}
	update := bson.M{
		"$addToSet": bson.M{"members": userID},
		"$inc":      bson.M{"membersCount": 1},
		"$set":      bson.M{"updatedAt": time.Now()},
	}

	club, err := r.findOneAndUpdate(ctx, filter, update)
	if err == ErrNotFound {
		return nil, ErrConflict
	}
	return club, err
}

// RemoveMember pulls userID from the members of a club it belongs to and
// does not administer.
func (r *ClubRepository) RemoveMember(ctx context.Context, clubID, userID bson.ObjectID) (*entity.Club, error) {
	filter := bson.M{"_id": clubID, "members": userID, "admin": bson.M{"$ne": userID}}
	update := bson.M{
		"$pull": bson.M{"members": userID},
		"$inc":  bson.M{"membersCount": -1},
		"$set":  bson.M{"updatedAt": time.Now()},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

// SetMembers replaces the members of a club while they still equal current.
// A club whose members changed in between yields ErrConflict.
func (r *ClubRepository) SetMembers(ctx context.Context, clubID bson.ObjectID, current, members []bson.ObjectID) error {
	if current == nil {
		current = []bson.ObjectID{}
	}
	res, err := r.collection().UpdateOne(ctx, bson.M{"_id": clubID, "members": current}, bson.M{
		"$set": bson.M{"members": members, "membersCount": len(members)},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

func (r *ClubRepository) PushMeet(ctx context.Context, clubID, meetID bson.ObjectID) error {
	res, err := r.collection().UpdateOne(ctx, bson.M{"_id": clubID}, bson.M{"$addToSet": bson.M{"meets": meetID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ClubRepository) PullMeet(ctx context.Context, clubID, meetID bson.ObjectID) (*entity.Club, error) {
	return r.findOneAndUpdate(ctx, bson.M{"_id": clubID}, bson.M{"$pull": bson.M{"meets": meetID}})
}

func (r *ClubRepository) DeleteOneByID(ctx context.Context, id bson.ObjectID) error {
	res, err := r.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ClubRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*entity.Club, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var club *entity.Club
	err := r.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&club)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return club, nil
}
