// internal/trustlist/redis.go
package trustlist

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set holding revoked identifiers.
const DefaultRedisKey = "healthcert:revoked"

// RedisStore keeps revoked identifiers in one Redis set so that several
// verifier instances share a list.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. An empty key selects DefaultRedisKey.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// DialRedis parses url, connects and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (s *RedisStore) Contains(ctx context.Context, certificateID string) (bool, error) {
	if certificateID == "" {
		return false, nil
	}
	ok, err := s.client.SIsMember(ctx, s.key, certificateID).Result()
	if err != nil {
		return false, fmt.Errorf("revocation lookup: %w", err)
	}
	return ok, nil
}

// Add inserts ids with a single SADD; Redis deduplicates.
func (s *RedisStore) Add(ctx context.Context, certificateIDs ...string) error {
	members := make([]any, 0, len(certificateIDs))
	for _, id := range certificateIDs {
		if id != "" {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return nil
	}
	if err := s.client.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("revocation insert: %w", err)
	}
	return nil
}
