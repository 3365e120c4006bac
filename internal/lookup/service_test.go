package lookup_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alwynblake/city-explorer/internal/cache"
	"github.com/alwynblake/city-explorer/internal/explorer"
	"github.com/alwynblake/city-explorer/internal/lookup"
	"github.com/alwynblake/city-explorer/internal/storage"
)

// ---- in-memory store ----

type memStore struct {
	mu          sync.Mutex
	nextID      int64
	locations   []explorer.Location
	weathers    map[int64][]explorer.Weather
	restaurants map[int64][]explorer.Restaurant
	movies      map[int64][]explorer.Movie
	meetups     map[int64][]explorer.Meetup
	trails      map[int64][]explorer.Trail
	deletes     []storage.Table

	lookupErr  error
	insertErr  error
	failInsert func(row any) bool
}

func newMemStore() *memStore {
	return &memStore{
		weathers:    map[int64][]explorer.Weather{},
		restaurants: map[int64][]explorer.Restaurant{},
		movies:      map[int64][]explorer.Movie{},
		meetups:     map[int64][]explorer.Meetup{},
		trails:      map[int64][]explorer.Trail{},
	}
}

func (m *memStore) FindLocation(_ context.Context, query string) (*explorer.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, l := range m.locations {
		if l.SearchQuery == query {
			l := l
			return &l, nil
		}
	}
	return nil, nil
}

func (m *memStore) InsertLocation(_ context.Context, loc explorer.Location) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.nextID++
	loc.ID = m.nextID
	m.locations = append(m.locations, loc)
	return loc.ID, nil
}

func (m *memStore) DeleteByLocation(_ context.Context, table storage.Table, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, table)
	switch table {
	case storage.TableWeathers:
		delete(m.weathers, id)
	default:
		return fmt.Errorf("unexpected delete from %s", table)
	}
	return nil
}

func rowsOf[R any](m *memStore, rows map[int64][]R, id int64) ([]R, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return append([]R(nil), rows[id]...), nil
}

func addRow[R any](m *memStore, rows map[int64][]R, row R, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if m.failInsert != nil && m.failInsert(row) {
		return fmt.Errorf("insert rejected")
	}
	rows[id] = append(rows[id], row)
	return nil
}

func (m *memStore) Weathers(_ context.Context, id int64) ([]explorer.Weather, error) {
	return rowsOf(m, m.weathers, id)
}
func (m *memStore) InsertWeather(_ context.Context, w explorer.Weather, id int64) error {
	return addRow(m, m.weathers, w, id)
}
func (m *memStore) Restaurants(_ context.Context, id int64) ([]explorer.Restaurant, error) {
	return rowsOf(m, m.restaurants, id)
}
func (m *memStore) InsertRestaurant(_ context.Context, r explorer.Restaurant, id int64) error {
	return addRow(m, m.restaurants, r, id)
}
func (m *memStore) Movies(_ context.Context, id int64) ([]explorer.Movie, error) {
	return rowsOf(m, m.movies, id)
}
func (m *memStore) InsertMovie(_ context.Context, v explorer.Movie, id int64) error {
	return addRow(m, m.movies, v, id)
}
func (m *memStore) Meetups(_ context.Context, id int64) ([]explorer.Meetup, error) {
	return rowsOf(m, m.meetups, id)
}
func (m *memStore) InsertMeetup(_ context.Context, v explorer.Meetup, id int64) error {
	return addRow(m, m.meetups, v, id)
}
func (m *memStore) Trails(_ context.Context, id int64) ([]explorer.Trail, error) {
	return rowsOf(m, m.trails, id)
}
func (m *memStore) InsertTrail(_ context.Context, v explorer.Trail, id int64) error {
	return addRow(m, m.trails, v, id)
}

// ---- fake providers ----

type fakeGeocoder struct {
	calls  int
	result *explorer.Location
	err    error
}

func (f *fakeGeocoder) Geocode(_ context.Context, query string) (explorer.Location, error) {
	f.calls++
	if f.err != nil {
		return explorer.Location{}, f.err
	}
	if f.result == nil {
		return explorer.Location{}, fmt.Errorf("geocoding %q: %w", query, explorer.ErrNotFound)
	}
	loc := *f.result
	loc.SearchQuery = query
	return loc, nil
}

// fakeProvider returns a fresh copy of rows on every call.
type fakeProvider[R any] struct {
	mu    sync.Mutex
	calls int
	rows  []R
	err   error
}

func (f *fakeProvider[R]) Fetch(_ context.Context, _ explorer.Location) ([]R, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]R{}, f.rows...), nil
}

func (f *fakeProvider[R]) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ---- fixture ----

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	store       *memStore
	geocoder    *fakeGeocoder
	weather     *fakeProvider[explorer.Weather]
	restaurants *fakeProvider[explorer.Restaurant]
	movies      *fakeProvider[explorer.Movie]
	meetups     *fakeProvider[explorer.Meetup]
	trails      *fakeProvider[explorer.Trail]
	clock       *clock
	svc         *lookup.Service
}

func newFixture(t *testing.T, locCache lookup.LocationCache) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		geocoder: &fakeGeocoder{result: &explorer.Location{
			FormattedQuery: "Seattle, WA, USA",
			Latitude:       47.6062095,
			Longitude:      -122.3320708,
		}},
		weather: &fakeProvider[explorer.Weather]{rows: []explorer.Weather{
			{Forecast: "Rain.", Time: "Tue Aug 21 2018"},
			{Forecast: "Sun.", Time: "Wed Aug 22 2018"},
		}},
		restaurants: &fakeProvider[explorer.Restaurant]{rows: []explorer.Restaurant{{Name: "Pike Place Chowder", Rating: 4.5}}},
		movies:      &fakeProvider[explorer.Movie]{rows: []explorer.Movie{{Title: "Sleepless in Seattle"}}},
		meetups:     &fakeProvider[explorer.Meetup]{rows: []explorer.Meetup{{Name: "Go Night"}}},
		trails:      &fakeProvider[explorer.Trail]{rows: []explorer.Trail{{Name: "Rattlesnake Ledge", Length: "5.2 miles"}}},
		clock:       &clock{t: time.Date(2018, 8, 21, 12, 0, 0, 0, time.UTC)},
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = lookup.NewService(f.store, locCache, lookup.Providers{
		Geocoder:    f.geocoder,
		Weather:     f.weather,
		Restaurants: f.restaurants,
		Movies:      f.movies,
		Meetups:     f.meetups,
		Trails:      f.trails,
	}, log, lookup.WithClock(f.clock.Now))
	return f
}

func (f *fixture) location(t *testing.T) explorer.Location {
	t.Helper()
	loc, err := f.svc.ResolveLocation(context.Background(), "seattle")
	require.NoError(t, err)
	return loc
}

// ---- ResolveLocation ----

func TestResolveLocation_SecondCallHitsCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.ResolveLocation(ctx, "seattle")
	require.NoError(t, err)
	second, err := f.svc.ResolveLocation(ctx, "seattle")
	require.NoError(t, err)

	assert.NotZero(t, first.ID)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.geocoder.calls)
	assert.Len(t, f.store.locations, 1)
	assert.Equal(t, "seattle", first.SearchQuery)
	assert.Equal(t, "Seattle, WA, USA", first.FormattedQuery)
}

func TestResolveLocation_DistinctQueries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.svc.ResolveLocation(ctx, "seattle")
	require.NoError(t, err)
	b, err := f.svc.ResolveLocation(ctx, "Seattle")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, f.geocoder.calls)
}

func TestResolveLocation_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	f.geocoder.result = nil

	_, err := f.svc.ResolveLocation(context.Background(), "zzz-nonexistent")
	require.ErrorIs(t, err, explorer.ErrNotFound)
	assert.Empty(t, f.store.locations, "no location row may be inserted")
}

func TestResolveLocation_ProviderError(t *testing.T) {
	f := newFixture(t, nil)
	f.geocoder.err = &explorer.ProviderError{Provider: "geocode", StatusCode: 503}

	_, err := f.svc.ResolveLocation(context.Background(), "seattle")
	var perr *explorer.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, f.store.locations)
}

func TestResolveLocation_LookupError(t *testing.T) {
	f := newFixture(t, nil)
	f.store.lookupErr = fmt.Errorf("db down")

	_, err := f.svc.ResolveLocation(context.Background(), "seattle")
	require.Error(t, err)
	assert.Equal(t, 0, f.geocoder.calls)
}

func TestResolveLocation_InsertError(t *testing.T) {
	f := newFixture(t, nil)
	f.store.insertErr = fmt.Errorf("disk full")

	_, err := f.svc.ResolveLocation(context.Background(), "seattle")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "saving location")
}

func TestResolveLocation_RedisFastPath(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, cache.NewLocationCache(client, cache.DefaultTTL))
	ctx := context.Background()

	first, err := f.svc.ResolveLocation(ctx, "seattle")
	require.NoError(t, err)
	assert.True(t, mr.Exists("location:seattle"))

	// With the database unavailable the cached copy is still served.
	f.store.lookupErr = fmt.Errorf("db down")
	second, err := f.svc.ResolveLocation(ctx, "seattle")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.geocoder.calls)
}

func TestResolveLocation_RedisDownFallsBackToDatabase(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, cache.NewLocationCache(client, cache.DefaultTTL))
	mr.Close()

	loc, err := f.svc.ResolveLocation(context.Background(), "seattle")
	require.NoError(t, err)
	assert.NotZero(t, loc.ID)
}

// ---- non-weather resources ----

func TestRestaurants_SecondCallServedFromDatabase(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	ctx := context.Background()

	first, err := f.svc.Restaurants(ctx, loc)
	require.NoError(t, err)
	f.clock.Advance(48 * time.Hour)
	second, err := f.svc.Restaurants(ctx, loc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.restaurants.Calls())
	assert.Equal(t, f.clock.t.Add(-48*time.Hour).UnixMilli(), second[0].CreatedAt)
}

func TestNonWeatherResources_NeverExpire(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.Movies(ctx, loc)
		require.NoError(t, err)
		_, err = f.svc.Meetups(ctx, loc)
		require.NoError(t, err)
		_, err = f.svc.Trails(ctx, loc)
		require.NoError(t, err)
		f.clock.Advance(365 * 24 * time.Hour)
	}

	assert.Equal(t, 1, f.movies.Calls())
	assert.Equal(t, 1, f.meetups.Calls())
	assert.Equal(t, 1, f.trails.Calls())
	assert.Empty(t, f.store.deletes)
}

func TestMiss_PersistsEveryRowWithTimestamp(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)

	got, err := f.svc.Trails(context.Background(), loc)
	require.NoError(t, err)

	want := f.clock.t.UnixMilli()
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0].CreatedAt)
	assert.Equal(t, "5.2 miles", got[0].Length)

	stored := f.store.trails[loc.ID]
	require.Len(t, stored, 1)
	assert.Equal(t, got[0], stored[0])
}

func TestMiss_HitKeepsFetchOrder(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	ctx := context.Background()

	days := make([]explorer.Weather, 8)
	for i := range days {
		days[i] = explorer.Weather{Forecast: fmt.Sprintf("day%d", i), Time: fmt.Sprintf("Aug %d", 21+i)}
	}
	f.weather.rows = days

	miss, err := f.svc.Weather(ctx, loc)
	require.NoError(t, err)
	hit, err := f.svc.Weather(ctx, loc)
	require.NoError(t, err)

	require.Equal(t, 1, f.weather.Calls())
	require.Len(t, hit, len(days))
	for i := range days {
		assert.Equal(t, days[i].Forecast, miss[i].Forecast)
		assert.Equal(t, days[i].Forecast, hit[i].Forecast)
	}
	assert.Equal(t, miss, hit)
}

func TestMiss_FailedRowDoesNotStopTheRest(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	f.store.failInsert = func(v any) bool {
		w, ok := v.(explorer.Weather)
		return ok && w.Forecast == "Rain."
	}

	got, err := f.svc.Weather(context.Background(), loc)
	require.NoError(t, err)
	require.Len(t, got, 2)

	stored := f.store.weathers[loc.ID]
	require.Len(t, stored, 1)
	assert.Equal(t, "Sun.", stored[0].Forecast)
}

func TestMiss_PersistFailureDoesNotFailLookup(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	f.store.insertErr = fmt.Errorf("fk violation")

	got, err := f.svc.Movies(context.Background(), loc)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Sleepless in Seattle", got[0].Title)
	assert.Empty(t, f.store.movies[loc.ID])
}

func TestMiss_ProviderErrorPropagates(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	f.meetups.err = &explorer.ProviderError{Provider: "meetups", StatusCode: 500}

	_, err := f.svc.Meetups(context.Background(), loc)
	var perr *explorer.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Empty(t, f.store.meetups[loc.ID])
}

func TestMiss_EmptyProviderResultIsEmptySlice(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	f.restaurants.rows = nil

	got, err := f.svc.Restaurants(context.Background(), loc)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLookupError_Propagates(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	f.store.lookupErr = fmt.Errorf("db down")

	_, err := f.svc.Trails(context.Background(), loc)
	require.Error(t, err)
	assert.Equal(t, 0, f.trails.Calls())
}

func TestResources_RequireSavedLocation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Restaurants(context.Background(), explorer.Location{SearchQuery: "seattle"})
	require.ErrorIs(t, err, lookup.ErrUnsavedLocation)
	assert.Equal(t, 0, f.restaurants.Calls())
}

// ---- weather ----

func TestWeather_FreshHitServedUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	ctx := context.Background()

	first, err := f.svc.Weather(ctx, loc)
	require.NoError(t, err)
	f.clock.Advance(59 * time.Second)
	second, err := f.svc.Weather(ctx, loc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.weather.Calls())
	assert.Empty(t, f.store.deletes)
}

func TestWeather_ExactlyOneMinuteIsFresh(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	ctx := context.Background()

	_, err := f.svc.Weather(ctx, loc)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Weather(ctx, loc)
	require.NoError(t, err)

	assert.Equal(t, 1, f.weather.Calls())
}

func TestWeather_StaleHitInvalidatesAndRefetches(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	ctx := context.Background()

	first, err := f.svc.Weather(ctx, loc)
	require.NoError(t, err)

	f.clock.Advance(61 * time.Second)
	second, err := f.svc.Weather(ctx, loc)
	require.NoError(t, err)

	assert.Equal(t, 2, f.weather.Calls())
	assert.Equal(t, []storage.Table{storage.TableWeathers}, f.store.deletes)
	require.Len(t, second, 2)
	assert.Greater(t, second[0].CreatedAt, first[0].CreatedAt)

	stored := f.store.weathers[loc.ID]
	require.Len(t, stored, 2, "old rows must be gone, only the refetched batch stored")
	for _, w := range stored {
		assert.Equal(t, second[0].CreatedAt, w.CreatedAt)
	}
}

func TestWeather_CustomTTL(t *testing.T) {
	f := newFixture(t, nil)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := lookup.NewService(f.store, nil, lookup.Providers{
		Geocoder: f.geocoder,
		Weather:  f.weather,
	}, log, lookup.WithClock(f.clock.Now), lookup.WithWeatherTTL(time.Hour))

	loc, err := svc.ResolveLocation(context.Background(), "seattle")
	require.NoError(t, err)

	_, err = svc.Weather(context.Background(), loc)
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	_, err = svc.Weather(context.Background(), loc)
	require.NoError(t, err)

	assert.Equal(t, 1, f.weather.Calls())
}

// ---- summary ----

func TestSummary_AllSections(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)

	s, err := f.svc.Summary(context.Background(), loc)
	require.NoError(t, err)

	assert.Equal(t, loc, s.Location)
	assert.Len(t, s.Weather, 2)
	assert.Len(t, s.Restaurants, 1)
	assert.Len(t, s.Movies, 1)
	assert.Len(t, s.Meetups, 1)
	assert.Len(t, s.Trails, 1)
}

func TestSummary_PartialFailure(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	f.movies.err = fmt.Errorf("tmdb down")

	s, err := f.svc.Summary(context.Background(), loc)
	require.NoError(t, err)
	assert.Nil(t, s.Movies)
	assert.Len(t, s.Trails, 1)
}

func TestSummary_EmptySectionDiffersFromFailed(t *testing.T) {
	f := newFixture(t, nil)
	loc := f.location(t)
	f.trails.rows = nil
	f.movies.err = fmt.Errorf("tmdb down")

	s, err := f.svc.Summary(context.Background(), loc)
	require.NoError(t, err)
	assert.NotNil(t, s.Trails)
	assert.Empty(t, s.Trails)
	assert.Nil(t, s.Movies)
}

func TestSummary_RequiresSavedLocation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Summary(context.Background(), explorer.Location{})
	require.ErrorIs(t, err, lookup.ErrUnsavedLocation)
}
