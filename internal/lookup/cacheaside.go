package lookup

import (
	"context"
	"fmt"
	"time"

	"github.com/alwynblake/city-explorer/internal/explorer"
	"github.com/alwynblake/city-explorer/internal/metrics"
)

// persistTimeout bounds the inserts that follow a provider fetch. They run
// detached from the request context so a client hanging up does not drop rows.
const persistTimeout = 10 * time.Second

// cacheAside describes one resource table cached in front of one provider.
type cacheAside[R any] struct {
	resource string

	lookup func(ctx context.Context, locationID int64) ([]R, error)

	// isStale reports whether stored rows must be refetched. nil means the
	// rows never expire.
	isStale    func(rows []R, now time.Time) bool
	invalidate func(ctx context.Context, locationID int64) error

	fetch func(ctx context.Context, loc explorer.Location) ([]R, error)
	stamp func(row *R, createdAt int64)
	save  func(ctx context.Context, row R, locationID int64) error
}

// getCached serves rows for loc from the database, falling back to the provider
// when there are none or they are stale. Fetched rows are returned as fetched,
// not re-read from the database.
func getCached[R any](ctx context.Context, s *Service, c cacheAside[R], loc explorer.Location) ([]R, error) {
	if loc.ID == 0 {
		return nil, ErrUnsavedLocation
	}

	rows, err := c.lookup(ctx, loc.ID)
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", c.resource, err)
	}

	if len(rows) > 0 {
		if c.isStale == nil || !c.isStale(rows, s.now()) {
			metrics.CacheLookupsTotal.WithLabelValues(c.resource, "hit").Inc()
			s.log.Debug("got data from SQL", "resource", c.resource, "location_id", loc.ID, "rows", len(rows))
			return rows, nil
		}

		metrics.CacheLookupsTotal.WithLabelValues(c.resource, "stale").Inc()
		if err := c.invalidate(ctx, loc.ID); err != nil {
			return nil, fmt.Errorf("invalidating %s: %w", c.resource, err)
		}
		s.log.Debug("invalidated stale rows", "resource", c.resource, "location_id", loc.ID, "rows", len(rows))
	} else {
		metrics.CacheLookupsTotal.WithLabelValues(c.resource, "miss").Inc()
	}

	fetched, err := c.fetch(ctx, loc)
	if err != nil {
		return nil, err
	}
	s.log.Debug("got data from API", "resource", c.resource, "location_id", loc.ID, "rows", len(fetched))

	createdAt := s.now().UnixMilli()
	for i := range fetched {
		c.stamp(&fetched[i], createdAt)
	}

	persist(ctx, s, c, fetched, loc.ID)

	if fetched == nil {
		fetched = []R{}
	}
	return fetched, nil
}

// persist inserts every row independently, in fetch order. Reads return rows
// ordered by id, so insertion order is the order later hits are served in.
// A failed insert is logged and counted but never fails the lookup; the
// caller already holds the fetched data.
func persist[R any](ctx context.Context, s *Service, c cacheAside[R], rows []R, locationID int64) {
	if len(rows) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	for i, row := range rows {
		if err := c.save(ctx, row, locationID); err != nil {
			metrics.PersistFailuresTotal.WithLabelValues(c.resource).Inc()
			s.log.Error("persisting row failed", "resource", c.resource, "location_id", locationID, "row", i, "err", err)
		}
	}
}

// olderThan returns an isStale func that compares the first row's creation
// time against ttl. Rows from one fetch share a timestamp.
func olderThan[R any](ttl time.Duration, createdAt func(R) int64) func([]R, time.Time) bool {
	return func(rows []R, now time.Time) bool {
		return now.Sub(time.UnixMilli(createdAt(rows[0]))) > ttl
	}
}
