package memory

import (
	"context"
	"time"

	"github.com/joeyave/bookclub/repository"
)

type TokenRepository struct {
	s *Store
}

func (r *TokenRepository) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	return r.s.write(ctx, func() error {
		r.s.revoked[repository.TokenKey(token)] = expiresAt
		return nil
	})
}

func (r *TokenRepository) IsRevoked(_ context.Context, token string) (bool, error) {
	var revoked bool
	r.s.read(func() {
		expiresAt, ok := r.s.revoked[repository.TokenKey(token)]
		revoked = ok && expiresAt.After(r.s.Now())
	})
	return revoked, nil
}

func (r *TokenRepository) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	err := r.s.write(ctx, func() error {
		now := r.s.Now()
		for key, expiresAt := range r.s.revoked {
			if !expiresAt.After(now) {
				delete(r.s.revoked, key)
				n++
			}
		}
		return nil
	})
	return n, err
}
