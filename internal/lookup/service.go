// Package lookup resolves locations and serves their resources, caching
// provider results in the database.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alwynblake/city-explorer/internal/explorer"
	"github.com/alwynblake/city-explorer/internal/metrics"
	"github.com/alwynblake/city-explorer/internal/storage"
)

// DefaultWeatherTTL is how long stored forecasts are served before a refetch.
const DefaultWeatherTTL = time.Minute

// ErrUnsavedLocation is returned when a resource is requested for a location
// that carries no database id.
var ErrUnsavedLocation = errors.New("location has no id")

// Store is the persistence the service needs. *storage.Repository satisfies it.
type Store interface {
	FindLocation(ctx context.Context, query string) (*explorer.Location, error)
	InsertLocation(ctx context.Context, loc explorer.Location) (int64, error)
	DeleteByLocation(ctx context.Context, table storage.Table, locationID int64) error

	Weathers(ctx context.Context, locationID int64) ([]explorer.Weather, error)
	InsertWeather(ctx context.Context, w explorer.Weather, locationID int64) error
	Restaurants(ctx context.Context, locationID int64) ([]explorer.Restaurant, error)
	InsertRestaurant(ctx context.Context, r explorer.Restaurant, locationID int64) error
	Movies(ctx context.Context, locationID int64) ([]explorer.Movie, error)
	InsertMovie(ctx context.Context, m explorer.Movie, locationID int64) error
	Meetups(ctx context.Context, locationID int64) ([]explorer.Meetup, error)
	InsertMeetup(ctx context.Context, m explorer.Meetup, locationID int64) error
	Trails(ctx context.Context, locationID int64) ([]explorer.Trail, error)
	InsertTrail(ctx context.Context, t explorer.Trail, locationID int64) error
}

// LocationCache is an optional fast path in front of the locations table.
type LocationCache interface {
	Get(ctx context.Context, query string) (*explorer.Location, error)
	Set(ctx context.Context, loc explorer.Location) error
}

// Geocoder is the interface satisfied by explorer.GeocodeClient.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (explorer.Location, error)
}

// WeatherProvider is the interface satisfied by explorer.WeatherClient.
type WeatherProvider interface {
	Fetch(ctx context.Context, loc explorer.Location) ([]explorer.Weather, error)
}

// RestaurantProvider is the interface satisfied by explorer.YelpClient.
type RestaurantProvider interface {
	Fetch(ctx context.Context, loc explorer.Location) ([]explorer.Restaurant, error)
}

// MovieProvider is the interface satisfied by explorer.MovieClient.
type MovieProvider interface {
	Fetch(ctx context.Context, loc explorer.Location) ([]explorer.Movie, error)
}

// MeetupProvider is the interface satisfied by explorer.MeetupClient.
type MeetupProvider interface {
	Fetch(ctx context.Context, loc explorer.Location) ([]explorer.Meetup, error)
}

// TrailProvider is the interface satisfied by explorer.TrailClient.
type TrailProvider interface {
	Fetch(ctx context.Context, loc explorer.Location) ([]explorer.Trail, error)
}

// Providers groups one client per resource.
type Providers struct {
	Geocoder    Geocoder
	Weather     WeatherProvider
	Restaurants RestaurantProvider
	Movies      MovieProvider
	Meetups     MeetupProvider
	Trails      TrailProvider
}

// ProvidersFromClients adapts the production clients.
func ProvidersFromClients(c *explorer.Clients) Providers {
	return Providers{
		Geocoder:    c.Geocode,
		Weather:     c.Weather,
		Restaurants: c.Yelp,
		Movies:      c.Movies,
		Meetups:     c.Meetups,
		Trails:      c.Trails,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithWeatherTTL overrides DefaultWeatherTTL.
func WithWeatherTTL(ttl time.Duration) Option {
	return func(s *Service) { s.weatherTTL = ttl }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements the location resolver and the per-resource cache handlers.
type Service struct {
	store      Store
	cache      LocationCache
	providers  Providers
	log        *slog.Logger
	weatherTTL time.Duration
	now        func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(store Store, cache LocationCache, providers Providers, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		cache:      cache,
		providers:  providers,
		log:        log,
		weatherTTL: DefaultWeatherTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveLocation returns the location stored for query, geocoding and saving
// it on first use. Locations never expire. It returns an error wrapping
// explorer.ErrNotFound when the geocoder has no result, in which case nothing
// is stored.
func (s *Service) ResolveLocation(ctx context.Context, query string) (explorer.Location, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, query)
		if err != nil {
			s.log.Warn("location cache get failed", "query", query, "err", err)
		}
		if cached != nil {
			metrics.CacheLookupsTotal.WithLabelValues("location", "hit").Inc()
			return *cached, nil
		}
	}

	stored, err := s.store.FindLocation(ctx, query)
	if err != nil {
		return explorer.Location{}, fmt.Errorf("looking up location: %w", err)
	}
	if stored != nil {
		metrics.CacheLookupsTotal.WithLabelValues("location", "hit").Inc()
		s.log.Debug("got data from SQL", "resource", "location", "query", query)
		s.warm(ctx, *stored)
		return *stored, nil
	}

	metrics.CacheLookupsTotal.WithLabelValues("location", "miss").Inc()

	loc, err := s.providers.Geocoder.Geocode(ctx, query)
	if err != nil {
		return explorer.Location{}, err
	}
	s.log.Debug("got data from API", "resource", "location", "query", query)

	id, err := s.store.InsertLocation(ctx, loc)
	if err != nil {
		return explorer.Location{}, fmt.Errorf("saving location: %w", err)
	}
	loc.ID = id

	s.warm(ctx, loc)
	return loc, nil
}

func (s *Service) warm(ctx context.Context, loc explorer.Location) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, loc); err != nil {
		s.log.Warn("location cache set failed", "query", loc.SearchQuery, "err", err)
	}
}

// Weather returns the forecast for loc. Stored forecasts older than the
// weather TTL are deleted and refetched.
func (s *Service) Weather(ctx context.Context, loc explorer.Location) ([]explorer.Weather, error) {
	return getCached(ctx, s, cacheAside[explorer.Weather]{
		resource: "weather",
		lookup:   s.store.Weathers,
		isStale:  olderThan(s.weatherTTL, func(w explorer.Weather) int64 { return w.CreatedAt }),
		invalidate: func(ctx context.Context, locationID int64) error {
			return s.store.DeleteByLocation(ctx, storage.TableWeathers, locationID)
		},
		fetch: s.providers.Weather.Fetch,
		stamp: func(w *explorer.Weather, at int64) { w.CreatedAt = at },
		save:  s.store.InsertWeather,
	}, loc)
}

// Restaurants returns restaurants near loc. Stored rows never expire.
func (s *Service) Restaurants(ctx context.Context, loc explorer.Location) ([]explorer.Restaurant, error) {
	return getCached(ctx, s, cacheAside[explorer.Restaurant]{
		resource: "restaurants",
		lookup:   s.store.Restaurants,
		fetch:    s.providers.Restaurants.Fetch,
		stamp:    func(r *explorer.Restaurant, at int64) { r.CreatedAt = at },
		save:     s.store.InsertRestaurant,
	}, loc)
}

// Movies returns movies matching loc's search query. Stored rows never expire.
func (s *Service) Movies(ctx context.Context, loc explorer.Location) ([]explorer.Movie, error) {
	return getCached(ctx, s, cacheAside[explorer.Movie]{
		resource: "movies",
		lookup:   s.store.Movies,
		fetch:    s.providers.Movies.Fetch,
		stamp:    func(m *explorer.Movie, at int64) { m.CreatedAt = at },
		save:     s.store.InsertMovie,
	}, loc)
}

// Meetups returns upcoming events near loc. Stored rows never expire.
func (s *Service) Meetups(ctx context.Context, loc explorer.Location) ([]explorer.Meetup, error) {
	return getCached(ctx, s, cacheAside[explorer.Meetup]{
		resource: "meetups",
		lookup:   s.store.Meetups,
		fetch:    s.providers.Meetups.Fetch,
		stamp:    func(m *explorer.Meetup, at int64) { m.CreatedAt = at },
		save:     s.store.InsertMeetup,
	}, loc)
}

// Trails returns trails near loc. Stored rows never expire.
func (s *Service) Trails(ctx context.Context, loc explorer.Location) ([]explorer.Trail, error) {
	return getCached(ctx, s, cacheAside[explorer.Trail]{
		resource: "trails",
		lookup:   s.store.Trails,
		fetch:    s.providers.Trails.Fetch,
		stamp:    func(t *explorer.Trail, at int64) { t.CreatedAt = at },
		save:     s.store.InsertTrail,
	}, loc)
}

// Summary gathers every resource for loc in parallel.
// Individual failures are logged and leave their section empty.
func (s *Service) Summary(ctx context.Context, loc explorer.Location) (*explorer.Summary, error) {
	if loc.ID == 0 {
		return nil, ErrUnsavedLocation
	}

	out := &explorer.Summary{Location: loc}
	g, gCtx := errgroup.WithContext(ctx)

	section := func(name string, run func(ctx context.Context) error) {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("summary section panicked", "resource", name, "recover", r)
					err = fmt.Errorf("%s panicked: %v", name, r)
				}
			}()
			if runErr := run(gCtx); runErr != nil {
				s.log.Warn("summary section failed", "resource", name, "location_id", loc.ID, "err", runErr)
			}
			return nil
		})
	}

	section("weather", func(ctx context.Context) (err error) {
		out.Weather, err = s.Weather(ctx, loc)
		return err
	})
	section("restaurants", func(ctx context.Context) (err error) {
		out.Restaurants, err = s.Restaurants(ctx, loc)
		return err
	})
	section("movies", func(ctx context.Context) (err error) {
		out.Movies, err = s.Movies(ctx, loc)
		return err
	})
	section("meetups", func(ctx context.Context) (err error) {
		out.Meetups, err = s.Meetups(ctx, loc)
		return err
	})
	section("trails", func(ctx context.Context) (err error) {
		out.Trails, err = s.Trails(ctx, loc)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building summary for location %d: %w", loc.ID, err)
	}

	return out, nil
}
