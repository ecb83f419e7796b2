package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/metrics"
	"github.com/joeyave/bookclub/storage"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	FindAll(ctx context.Context) ([]*entity.User, error)
	FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.User, error)
	FindOneByIDWithPassword(ctx context.Context, id bson.ObjectID) (*entity.User, error)
	FindOneByEmail(ctx context.Context, email string) (*entity.User, error)
	FindSummariesByIDs(ctx context.Context, ids []bson.ObjectID) ([]*entity.UserSummary, error)
	InsertOne(ctx context.Context, user *entity.User) error
	UpdateProfile(ctx context.Context, user *entity.User) (*entity.User, error)
	DeleteOneByID(ctx context.Context, id bson.ObjectID) error
	AddClub(ctx context.Context, userID, clubID bson.ObjectID, asAdmin bool) error
	PullClub(ctx context.Context, userID, clubID bson.ObjectID) error
	PullAdminClub(ctx context.Context, userID, clubID bson.ObjectID) error
	PullClubFromAll(ctx context.Context, clubID bson.ObjectID) error
}

type BookRepository interface {
	FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.Book, error)
	FindDetails(ctx context.Context, id bson.ObjectID) (*entity.BookDetails, error)
	Exists(ctx context.Context, id bson.ObjectID) (bool, error)
	FindAll(ctx context.Context) ([]*entity.Book, error)
	Find(ctx context.Context, filter entity.BookFilter, opts entity.ListOptions) ([]*entity.BookDetails, error)
	Count(ctx context.Context, filter entity.BookFilter) (int64, error)
	InsertOne(ctx context.Context, book *entity.Book) error
	UpdateOne(ctx context.Context, book *entity.Book) (*entity.Book, error)
	DeleteOneByID(ctx context.Context, id bson.ObjectID) error
}

type ClubRepository interface {
	FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.Club, error)
	FindAll(ctx context.Context) ([]*entity.Club, error)
	FindManyByAdminID(ctx context.Context, userID bson.ObjectID) ([]*entity.Club, error)
	Find(ctx context.Context, filter entity.ClubFilter, opts entity.ListOptions) ([]*entity.ClubDetails, error)
	Count(ctx context.Context, filter entity.ClubFilter) (int64, error)
	InsertOne(ctx context.Context, club *entity.Club) error
	UpdateOne(ctx context.Context, club *entity.Club) (*entity.Club, error)
	AddMember(ctx context.Context, clubID, userID bson.ObjectID) (*entity.Club, error)
	RemoveMember(ctx context.Context, clubID, userID bson.ObjectID) (*entity.Club, error)
	SetMembers(ctx context.Context, clubID bson.ObjectID, current, members []bson.ObjectID) error
	PushMeet(ctx context.Context, clubID, meetID bson.ObjectID) error
	PullMeet(ctx context.Context, clubID, meetID bson.ObjectID) (*entity.Club, error)
	DeleteOneByID(ctx context.Context, id bson.ObjectID) error
}

type MeetRepository interface {
	FindOneByID(ctx context.Context, id bson.ObjectID) (*entity.Meet, error)
	FindDetails(ctx context.Context, id bson.ObjectID) (*entity.MeetDetails, error)
	Find(ctx context.Context, filter entity.MeetFilter, opts entity.ListOptions) ([]*entity.MeetDetails, error)
	Count(ctx context.Context, filter entity.MeetFilter) (int64, error)
	InsertOne(ctx context.Context, meet *entity.Meet) error
	UpdateOne(ctx context.Context, id bson.ObjectID, upd entity.MeetUpdate) (*entity.Meet, error)
	DeleteOneByID(ctx context.Context, id bson.ObjectID) error
	DeleteManyByClubID(ctx context.Context, clubID bson.ObjectID) (int64, error)
	PushMessage(ctx context.Context, meetID bson.ObjectID, msg entity.Message) error
	PullMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error)
	PinMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error)
	UnpinMessage(ctx context.Context, meetID, msgID bson.ObjectID) (*entity.Meet, error)
}

type RevocationStore interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type AssetStore interface {
	Save(ctx context.Context, folder, label string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// Upload is an image received from a client.
type Upload struct {
	Filename string
	Content  io.Reader
}

func saveAsset(ctx context.Context, assets AssetStore, folder, label string, upload *Upload) (string, error) {
	url, err := assets.Save(ctx, folder, label, upload.Content)
	switch {
	case errors.Is(err, storage.ErrNotImage), errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrEmptyFile):
		return "", Validation(err.Error())
	case err != nil:
		return "", Unexpected(err, "failed to store upload")
	}
	return url, nil
}

// discardAsset is the compensating action for an asset stored before a
// failed write. Its own failure is attached to the returned error.
func discardAsset(ctx context.Context, assets AssetStore, url string, cause error) error {
	e := AsError(cause)
	if url == "" {
		return e
	}
	if err := assets.Delete(context.WithoutCancel(ctx), url); err != nil {
		log.Error().Err(err).Str("asset", url).Msg("Failed to discard asset after failed write")
		metrics.RecordAssetCleanupFailure()
		e.Cleanup = err
	}
	return e
}

// dropAsset deletes an asset that is no longer referenced. Failures are
// logged only.
func dropAsset(ctx context.Context, assets AssetStore, url string) {
	if url == "" {
		return
	}
	if err := assets.Delete(context.WithoutCancel(ctx), url); err != nil {
		log.Error().Err(err).Str("asset", url).Msg("Failed to delete unreferenced asset")
		metrics.RecordAssetCleanupFailure()
	}
}
