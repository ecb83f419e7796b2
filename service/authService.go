package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joeyave/bookclub/entity"
	"github.com/joeyave/bookclub/repository"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

type AuthService struct {
	userRepository  UserRepository
	revocationStore RevocationStore
	secret          []byte
	ttl             time.Duration
	bcryptCost      int
	now             func() time.Time
}

func NewAuthService(userRepository UserRepository, revocationStore RevocationStore, secret string, ttl time.Duration, bcryptCost int) *AuthService {
	return &AuthService{
		userRepository:  userRepository,
		revocationStore: revocationStore,
		secret:          []byte(secret),
		ttl:             ttl,
		bcryptCost:      bcryptCost,
		now:             time.Now,
	}
}

// Issue signs a token for user that expires after the configured TTL.
func (s *AuthService) Issue(user *entity.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		UserID: user.ID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, Unexpected(err, "failed to sign token")
	}
	return token, expiresAt, nil
}

func (s *AuthService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))

	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, Unauthenticated("token expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, Unauthenticated("malformed token")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, Unauthenticated("invalid token signature")
	}
	return nil, Unauthenticated("invalid token")
}

// Authenticate resolves the user behind a bearer token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, Unauthenticated("unauthenticated")
	}

	revoked, err := s.revocationStore.IsRevoked(ctx, token)
	if err != nil {
		return nil, Unexpected(err, "failed to check token revocation")
	}
	if revoked {
		return nil, Unauthenticated("session expired")
	}

	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	userID, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return nil, Unauthenticated("invalid token subject")
	}

	user, err := s.userRepository.FindOneByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, Unauthenticated("user not found")
	}
	if err != nil {
		return nil, Unexpected(err, "failed to load user")
	}
	return user, nil
}

// Revoke blacklists token until it would have expired anyway.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		// Nothing to revoke: the token is already unusable.
		log.Debug().Err(err).Msg("Skipping revocation of invalid token")
		return nil
	}

	err = s.revocationStore.Revoke(ctx, token, claims.ExpiresAt.Time)
	if err != nil {
		return Unexpected(err, "failed to revoke token")
	}
	return nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", Unexpected(err, "failed to hash password")
	}
	return string(hash), nil
}

func (s *AuthService) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
