// Package auth issues and resolves opaque session tokens. Tokens live in
// Redis with a TTL, so a restart of the Redis instance logs everyone out but
// never leaks credentials into the database.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/store"
)

// ErrInvalidToken is returned for missing, unknown, or expired tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

const tokenKeyPrefix = "session:"

// UserLookup resolves user ids to users; satisfied by the store.
type UserLookup interface {
	UserByID(ctx context.Context, id int64) (domain.User, error)
}

// Service manages session tokens.
type Service struct {
	redis    *redis.Client
	users    UserLookup
	tokenTTL time.Duration
}

// NewService creates an auth service.
func NewService(redisClient *redis.Client, users UserLookup, tokenTTL time.Duration) *Service {
	return &Service{
		redis:    redisClient,
		users:    users,
		tokenTTL: tokenTTL,
	}
}

// IssueToken creates a fresh token for user, valid for the configured TTL.
func (s *Service) IssueToken(ctx context.Context, user domain.User) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	if err := s.redis.Set(ctx, tokenKeyPrefix+token, user.ID, s.tokenTTL).Err(); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// UserFromToken resolves a token to its user. Unknown and expired tokens are
// indistinguishable; both yield ErrInvalidToken.
func (s *Service) UserFromToken(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrInvalidToken
	}

	userID, err := s.redis.Get(ctx, tokenKeyPrefix+token).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.User{}, ErrInvalidToken
		}
		return domain.User{}, fmt.Errorf("look up token: %w", err)
	}

	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidToken
		}
		return domain.User{}, fmt.Errorf("resolve token user: %w", err)
	}
	return user, nil
}

// RevokeToken deletes a token, if it exists.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.redis.Del(ctx, tokenKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
