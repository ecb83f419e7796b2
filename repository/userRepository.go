package repository

import (
	"context"
	"time"

	"github.com/joeyave/bookclub/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var withoutPassword = bson.M{"password": 0}

type UserRepository struct {
	mongoClient *mongo.Client
	database    string
}

func NewUserRepository(mongoClient *mongo.Client, database string) *UserRepository {
	return &UserRepository{
		mongoClient: mongoClient,
		database:    database,
	}
}

func (r *UserRepository) collection() *mongo.Collection {
	return r.mongoClient.Database(r.database).Collection(UsersCollection)
}

func (r *UserRepository) FindAll(ctx context.Context) ([]*entity.User, error) {
	return r.find(ctx, bson.M{}, options.Find().SetProjection(withoutPassword))
}

func (r *UserRepository) FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.User, error) {
	return r.findOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(withoutPassword))
}

// FindOneByIDWithPassword also loads the password hash.
func (r *UserRepository) FindOneByIDWithPassword(ctx context.Context, id bson.ObjectID) (*entity.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindOneByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindSummariesByIDs(ctx context.Context, ids []bson.ObjectID) ([]*entity.UserSummary, error) {
	if len(ids) == 0 {
		return []*entity.UserSummary{}, nil
	}

	opts := options.Find().SetProjection(bson.M{"name": 1, "email": 1, "photo": 1})
	cur, err := r.collection().Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}

	var users []*entity.UserSummary
	err = cur.All(ctx, &users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) findOne(ctx context.Context, m bson.M, opts ...options.Lister[options.FindOneOptions]) (*entity.User, error) {
	var user *entity.User
	err := r.collection().FindOne(ctx, m, opts...).Decode(&user)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return user, nil
}

func (r *UserRepository) find(ctx context.Context, m bson.M, opts ...options.Lister[options.FindOptions]) ([]*entity.User, error) {
	cur, err := r.collection().Find(ctx, m, opts...)
	if err != nil {
		return nil, err
	}

	var users []*entity.User
	err = cur.All(ctx, &users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) InsertOne(ctx context.Context, user *entity.User) error {
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.MemberClubs == nil {
		user.MemberClubs = []bson.ObjectID{}
	}
	if user.AdminClubs == nil {
		user.AdminClubs = []bson.ObjectID{}
	}

	_, err := r.collection().InsertOne(ctx, user)
	return translateWriteErr(err)
}

// UpdateProfile writes name, email, photo and, when set, the password hash.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *entity.User) (*entity.User, error) {
	set := bson.M{
		"name":      user.Name,
		"email":     user.Email,
		"photo":     user.Photo,
		"updatedAt": time.Now(),
	}
	if user.Password != "" {
		set["password"] = user.Password
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutPassword)

	var updated *entity.User
	err := r.collection().FindOneAndUpdate(ctx, bson.M{"_id": user.ID}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return updated, nil
}

func (r *UserRepository) DeleteOneByID(ctx context.Context, id bson.ObjectID) error {
	res, err := r.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddClub records clubID in the user's memberClubs and, for admins, adminClubs.
func (r *UserRepository) AddClub(ctx context.Context, userID, clubID bson.ObjectID, asAdmin bool) error {
	add := bson.M{"memberClubs": clubID}
	if asAdmin {
		add["adminClubs"] = clubID
	}
	return r.updateOne(ctx, userID, bson.M{"$addToSet": add, "$set": bson.M{"updatedAt": time.Now()}})
}

func (r *UserRepository) PullClub(ctx context.Context, userID, clubID bson.ObjectID) error {
	return r.updateOne(ctx, userID, bson.M{
		"$pull": bson.M{"memberClubs": clubID, "adminClubs": clubID},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
}

func (r *UserRepository) PullAdminClub(ctx context.Context, userID, clubID bson.ObjectID) error {
	return r.updateOne(ctx, userID, bson.M{
		"$pull": bson.M{"adminClubs": clubID},
		"$set":  bson.M{"updatedAt": time.Now()},
	})
}

func (r *UserRepository) PullClubFromAll(ctx context.Context, clubID bson.ObjectID) error {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"memberClubs": clubID},
			bson.M{"adminClubs": clubID},
		},
	}
	_, err := r.collection().UpdateMany(ctx, filter, bson.M{
		"$pull": bson.M{"memberClubs": clubID, "adminClubs": clubID},
	})
	return err
}

func (r *UserRepository) updateOne(ctx context.Context, userID bson.ObjectID, update bson.M) error {
	res, err := r.collection().UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
