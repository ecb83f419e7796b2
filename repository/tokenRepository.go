package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/joeyave/bookclub/entity"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// TokenKey is the stored form of a revoked token.
func TokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type TokenRepository struct {
	mongoClient *mongo.Client
	database    string
}

func NewTokenRepository(mongoClient *mongo.Client, database string) *TokenRepository {
	return &TokenRepository{
		mongoClient: mongoClient,
		database:    database,
	}
}

func (r *TokenRepository) collection() *mongo.Collection {
	return r.mongoClient.Database(r.database).Collection(TokensCollection)
}

func (r *TokenRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := r.collection().InsertOne(ctx, entity.BlacklistedToken{
		Token:     TokenKey(token),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	if errors.Is(translateWriteErr(err), ErrDuplicate) {
		return nil
	}
	return err
}

func (r *TokenRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.collection().CountDocuments(ctx, bson.M{
		"token":     TokenKey(token),
		"expiresAt": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpired removes entries the TTL monitor has not reaped yet.
func (r *TokenRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.collection().DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": time.Now()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

const revokedKeyPrefix = "revoked:"

// RedisTokenRepository keeps revoked tokens as keys that expire together
// with the token itself.
type RedisTokenRepository struct {
	client *redis.Client
}

func NewRedisTokenRepository(client *redis.Client) *RedisTokenRepository {
	return &RedisTokenRepository{client: client}
}

func (r *RedisTokenRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+TokenKey(token), 1, ttl).Err()
}

func (r *RedisTokenRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+TokenKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisTokenRepository) PurgeExpired(context.Context) (int64, error) {
	return 0, nil
}
