package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/joeyave/bookclub/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MeetRepository struct {
	mongoClient *mongo.Client
	database    string
}

func NewMeetRepository(mongoClient *mongo.Client, database string) *MeetRepository {
	return &MeetRepository{
		mongoClient: mongoClient,
		database:    database,
	}
}

func (r *MeetRepository) collection() *mongo.Collection {
	return r.mongoClient.Database(r.database).Collection(MeetsCollection)
}

func (r *MeetRepository) FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.Meet, error) {
	var meet *entity.Meet
	err := r.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&meet)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return meet, nil
}

func (r *MeetRepository) FindDetails(ctx context.Context, id bson.ObjectID) (*entity.MeetDetails, error) {
	meets, err := r.find(ctx, bson.M{"_id": id}, entity.ListOptions{Limit: 1}, false)
	if err != nil {
		return nil, err
	}
	if len(meets) == 0 {
		return nil, ErrNotFound
	}
	return meets[0], nil
}

// Find lists meets without their discussions.
func (r *MeetRepository) Find(ctx context.Context, filter entity.MeetFilter, opts entity.ListOptions) ([]*entity.MeetDetails, error) {
	return r.find(ctx, meetFilter(filter), opts, true)
}

func (r *MeetRepository) Count(ctx context.Context, filter entity.MeetFilter) (int64, error) {
	return r.collection().CountDocuments(ctx, meetFilter(filter))
}

func (r *MeetRepository) find(ctx context.Context, m bson.M, opts entity.ListOptions, summary bool) ([]*entity.MeetDetails, error) {
	pipeline := bson.A{
		bson.M{"$match": m},
	}
	if summary {
		pipeline = append(pipeline, bson.M{"$project": bson.M{"discussions": 0, "pinnedMessages": 0}})
	}
	pipeline = append(pipeline, pageStages(opts)...)
	pipeline = append(pipeline, lookupOne(BooksCollection, "book", "bookDoc", bson.M{"title": 1, "author": 1})...)
	pipeline = append(pipeline, lookupOne(UsersCollection, "createdBy", "organizer", bson.M{"name": 1, "photo": 1})...)
	pipeline = append(pipeline, lookupOne(ClubsCollection, "clubId", "club", bson.M{"name": 1})...)

	cur, err := r.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var meets []*entity.MeetDetails
	err = cur.All(ctx, &meets)
	if err != nil {
		return nil, err
	}
	return meets, nil
}

func meetFilter(f entity.MeetFilter) bson.M {
	m := bson.M{}
	if f.ClubID != nil {
		m["clubId"] = *f.ClubID
	}
	if f.BookID != nil {
		m["book"] = *f.BookID
	}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.Search != "" {
		m["$or"] = bson.A{
			bson.M{"title": containsRegex(f.Search)},
			bson.M{"description": containsRegex(f.Search)},
		}
	}
	return m
}

func (r *MeetRepository) InsertOne(ctx context.Context, meet *entity.Meet) error {
	if meet.ID.IsZero() {
		meet.ID = bson.NewObjectID()
	}
	now := time.Now()
	meet.CreatedAt, meet.UpdatedAt = now, now
	if meet.Discussions == nil {
		meet.Discussions = []entity.Message{}
	}
	if meet.PinnedMessages == nil {
		meet.PinnedMessages = []bson.ObjectID{}
	}

	_, err := r.collection().InsertOne(ctx, meet)
	return translateWriteErr(err)
}

func (r *MeetRepository) UpdateOne(ctx context.Context, id bson.ObjectID, upd entity.MeetUpdate) (*entity.Meet, error) {
	set := bson.M{"updatedAt": time.Now()}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Datetime != nil {
		set["datetime"] = *upd.Datetime
	}
	if upd.Location != nil {
		set["location"] = *upd.Location
	}
	if upd.BookID != nil {
		set["book"] = *upd.BookID
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}

	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set})
}

func (r *MeetRepository) DeleteOneByID(ctx context.Context, id bson.ObjectID) error {
	res, err := r.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MeetRepository) DeleteManyByClubID(ctx context.Context, clubID bson.ObjectID) (int64, error) {
	res, err := r.collection().DeleteMany(ctx, bson.M{"clubId": clubID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MeetRepository) PushMessage(ctx context.Context, meetID bson.ObjectID, msg entity.Message) error {
	return r.updateOne(ctx, bson.M{"_id": meetID}, bson.M{"$push": bson.M{"discussions": msg}})
}

// PullMessage removes a message from the discussion and the pinned set
// in one update.
func (r *MeetRepository) PullMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error) {
	filter := bson.M{"_id": meetID, "discussions._id": msgID}
	update := bson.M{
		"$pull": bson.M{
			"discussions":    bson.M{"_id": msgID},
			"pinnedMessages": msgID,
		},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

// PinMessage adds msgID to the pinned set when the message exists and fewer
// than MaxPinnedMessages are pinned; otherwise it returns ErrConflict.
func (r *MeetRepository) PinMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error) {
	filter := bson.M{
		"_id":             meetID,
		"discussions._id": msgID,
		"pinnedMessages." + strconv.Itoa(entity.MaxPinnedMessages-1): bson.M{"$exists": false},
	}
	meet, err := r.findOneAndUpdate(ctx, filter, bson.M{"$addToSet": bson.M{"pinnedMessages": msgID}})
	if err == ErrNotFound {
		return nil, ErrConflict
	}
	return meet, err
}

func (r *MeetRepository) UnpinMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error) {
	return r.findOneAndUpdate(ctx, bson.M{"_id": meetID}, bson.M{"$pull": bson.M{"pinnedMessages": msgID}})
}

func (r *MeetRepository) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := r.collection().UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MeetRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*entity.Meet, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var meet *entity.Meet
	err := r.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&meet)
	if err != nil {
		return nil, translateWriteErr(err)
	}
	return meet, nil
}
