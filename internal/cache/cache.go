package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alwynblake/city-explorer/internal/explorer"
)

// DefaultTTL bounds how long a resolved location stays in Redis. Postgres
// remains the source of truth, so expiry only costs one extra query.
const DefaultTTL = 24 * time.Hour

// LocationCache keeps resolved locations in Redis keyed by their exact search query.
type LocationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocationCache constructs a LocationCache. A non-positive ttl keeps entries forever.
func NewLocationCache(client *redis.Client, ttl time.Duration) *LocationCache {
	if ttl < 0 {
		ttl = 0
	}
	return &LocationCache{client: client, ttl: ttl}
}

// key returns the Redis key for the given search query. The query is not
// normalized: "Seattle" and "seattle" are distinct locations.
func key(query string) string {
	return "location:" + query
}

// Get retrieves a location from cache.
// Returns nil, nil on a cache miss (not an error).
func (c *LocationCache) Get(ctx context.Context, query string) (*explorer.Location, error) {
	val, err := c.client.Get(ctx, key(query)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get for %q: %w", query, err)
	}

	var loc explorer.Location
	if err := json.Unmarshal([]byte(val), &loc); err != nil {
		return nil, fmt.Errorf("unmarshaling cached location for %q: %w", query, err)
	}

	return &loc, nil
}

// Set stores a saved location. Locations without an id are ignored.
func (c *LocationCache) Set(ctx context.Context, loc explorer.Location) error {
	if loc.ID == 0 {
		return nil
	}

	b, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshaling location %q: %w", loc.SearchQuery, err)
	}

	if err := c.client.Set(ctx, key(loc.SearchQuery), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for %q: %w", loc.SearchQuery, err)
	}

	return nil
}
