// Package blacklist is the permanent revocation store for refresh
// tokens, backed by Redis. Records carry no TTL: once a token value is
// revoked it never validates again.
package blacklist

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bl:"

// Store records revoked refresh-token values. Only the sha256 of the
// token is kept, never the token itself.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Record marks the token as revoked. Idempotent.
func (s *Store) Record(ctx context.Context, tokenValue string) error {
	if err := s.rdb.Set(ctx, key(tokenValue), 1, 0).Err(); err != nil {
		return fmt.Errorf("blacklist record: %w", err)
	}
	return nil
}

// RecordOnce marks the token as revoked and reports whether this call
// was the one that created the record. SETNX makes the
// check-and-revoke atomic per token value: of N concurrent callers
// presenting the same token, exactly one observes first == true.
func (s *Store) RecordOnce(ctx context.Context, tokenValue string) (first bool, err error) {
	first, err = s.rdb.SetNX(ctx, key(tokenValue), 1, 0).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist record: %w", err)
	}
	return first, nil
}

// IsRevoked reports whether the token has ever been recorded.
func (s *Store) IsRevoked(ctx context.Context, tokenValue string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key(tokenValue)).Result()
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n > 0, nil
}

func key(tokenValue string) string {
	return keyPrefix + fmt.Sprintf("%x", sha256.Sum256([]byte(tokenValue)))
}
