package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alwynblake/city-explorer/internal/explorer"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Table names a resource table whose rows hang off a location.
type Table string

const (
	TableWeathers    Table = "weathers"
	TableRestaurants Table = "restaurants"
	TableMovies      Table = "movies"
	TableMeetups     Table = "meetups"
	TableTrails      Table = "trails"
)

// ErrUnknownTable is returned for a Table outside the fixed set above.
var ErrUnknownTable = errors.New("unknown table")

func (t Table) valid() bool {
	switch t {
	case TableWeathers, TableRestaurants, TableMovies, TableMeetups, TableTrails:
		return true
	}
	return false
}

// Repository provides database access for locations and their resources.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// ---- locations ----

// FindLocation returns the location stored for query.
// Returns nil, nil when the query has not been resolved before.
func (r *Repository) FindLocation(ctx context.Context, query string) (*explorer.Location, error) {
	const q = `
		SELECT id, search_query, formatted_query, latitude, longitude
		FROM locations
		WHERE search_query = $1
		ORDER BY id
		LIMIT 1
	`

	var loc explorer.Location
	err := r.q.QueryRow(ctx, q, query).Scan(
		&loc.ID,
		&loc.SearchQuery,
		&loc.FormattedQuery,
		&loc.Latitude,
		&loc.Longitude,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying location for %q: %w", query, err)
	}

	return &loc, nil
}

// InsertLocation stores loc and returns its id. If another request stored the
// same search query first, the id of that row is returned instead.
func (r *Repository) InsertLocation(ctx context.Context, loc explorer.Location) (int64, error) {
	const q = `
		INSERT INTO locations (search_query, formatted_query, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (search_query) DO UPDATE
		SET search_query = EXCLUDED.search_query
		RETURNING id
	`

	var id int64
	if err := r.q.QueryRow(ctx, q, loc.SearchQuery, loc.FormattedQuery, loc.Latitude, loc.Longitude).Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting location for %q: %w", loc.SearchQuery, err)
	}

	return id, nil
}

// DeleteByLocation removes every row of table that belongs to locationID.
func (r *Repository) DeleteByLocation(ctx context.Context, table Table, locationID int64) error {
	if !table.valid() {
		return fmt.Errorf("deleting from %q: %w", string(table), ErrUnknownTable)
	}

	q := "DELETE FROM " + pgx.Identifier{string(table)}.Sanitize() + " WHERE location_id = $1"
	if _, err := r.q.Exec(ctx, q, locationID); err != nil {
		return fmt.Errorf("deleting %s for location %d: %w", table, locationID, err)
	}

	return nil
}

// queryByLocation runs q with locationID and scans every row with scan.
func queryByLocation[T any](ctx context.Context, r *Repository, table Table, q string, locationID int64, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := r.q.Query(ctx, q, locationID)
	if err != nil {
		return nil, fmt.Errorf("querying %s for location %d: %w", table, locationID, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", table, err)
	}

	return out, nil
}

func (r *Repository) insert(ctx context.Context, table Table, q string, args ...any) error {
	if _, err := r.q.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

// ---- weathers ----

// Weathers returns the stored forecast for a location in insertion order.
func (r *Repository) Weathers(ctx context.Context, locationID int64) ([]explorer.Weather, error) {
	const q = `SELECT forecast, time, created_at FROM weathers WHERE location_id = $1 ORDER BY id`
	return queryByLocation(ctx, r, TableWeathers, q, locationID, func(rows pgx.Rows) (explorer.Weather, error) {
		var w explorer.Weather
		err := rows.Scan(&w.Forecast, &w.Time, &w.CreatedAt)
		return w, err
	})
}

// InsertWeather stores one forecast day.
func (r *Repository) InsertWeather(ctx context.Context, w explorer.Weather, locationID int64) error {
	const q = `INSERT INTO weathers (forecast, time, created_at, location_id) VALUES ($1, $2, $3, $4)`
	return r.insert(ctx, TableWeathers, q, w.Forecast, w.Time, w.CreatedAt, locationID)
}

// ---- restaurants ----

// Restaurants returns the stored restaurants for a location.
func (r *Repository) Restaurants(ctx context.Context, locationID int64) ([]explorer.Restaurant, error) {
	const q = `
		SELECT name, image_url, price, rating, url, created_at
		FROM restaurants WHERE location_id = $1 ORDER BY id
	`
	return queryByLocation(ctx, r, TableRestaurants, q, locationID, func(rows pgx.Rows) (explorer.Restaurant, error) {
		var v explorer.Restaurant
		err := rows.Scan(&v.Name, &v.ImageURL, &v.Price, &v.Rating, &v.URL, &v.CreatedAt)
		return v, err
	})
}

// InsertRestaurant stores one restaurant.
func (r *Repository) InsertRestaurant(ctx context.Context, v explorer.Restaurant, locationID int64) error {
	const q = `
		INSERT INTO restaurants (name, image_url, price, rating, url, created_at, location_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	return r.insert(ctx, TableRestaurants, q, v.Name, v.ImageURL, v.Price, v.Rating, v.URL, v.CreatedAt, locationID)
}

// ---- movies ----

// Movies returns the stored movies for a location.
func (r *Repository) Movies(ctx context.Context, locationID int64) ([]explorer.Movie, error) {
	const q = `
		SELECT title, overview, average_votes, total_votes, image_url, popularity, released_on, created_at
		FROM movies WHERE location_id = $1 ORDER BY id
	`
	return queryByLocation(ctx, r, TableMovies, q, locationID, func(rows pgx.Rows) (explorer.Movie, error) {
		var v explorer.Movie
		err := rows.Scan(&v.Title, &v.Overview, &v.AverageVotes, &v.TotalVotes, &v.ImageURL, &v.Popularity, &v.ReleasedOn, &v.CreatedAt)
		return v, err
	})
}

// InsertMovie stores one movie.
func (r *Repository) InsertMovie(ctx context.Context, v explorer.Movie, locationID int64) error {
	const q = `
		INSERT INTO movies (title, overview, average_votes, total_votes, image_url, popularity, released_on, created_at, location_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	return r.insert(ctx, TableMovies, q, v.Title, v.Overview, v.AverageVotes, v.TotalVotes, v.ImageURL, v.Popularity, v.ReleasedOn, v.CreatedAt, locationID)
}

// ---- meetups ----

// Meetups returns the stored meetups for a location.
func (r *Repository) Meetups(ctx context.Context, locationID int64) ([]explorer.Meetup, error) {
	const q = `
		SELECT link, name, creation_date, host, created_at
		FROM meetups WHERE location_id = $1 ORDER BY id
	`
	return queryByLocation(ctx, r, TableMeetups, q, locationID, func(rows pgx.Rows) (explorer.Meetup, error) {
		var v explorer.Meetup
		err := rows.Scan(&v.Link, &v.Name, &v.CreationDate, &v.Host, &v.CreatedAt)
		return v, err
	})
}

// InsertMeetup stores one meetup.
func (r *Repository) InsertMeetup(ctx context.Context, v explorer.Meetup, locationID int64) error {
	const q = `
		INSERT INTO meetups (link, name, creation_date, host, created_at, location_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	return r.insert(ctx, TableMeetups, q, v.Link, v.Name, v.CreationDate, v.Host, v.CreatedAt, locationID)
}

// ---- trails ----

// Trails returns the stored trails for a location.
func (r *Repository) Trails(ctx context.Context, locationID int64) ([]explorer.Trail, error) {
	const q = `
		SELECT name, location, length, stars, star_votes, summary, trail_url,
		       conditions, condition_date, condition_time, created_at
		FROM trails WHERE location_id = $1 ORDER BY id
	`
	return queryByLocation(ctx, r, TableTrails, q, locationID, func(rows pgx.Rows) (explorer.Trail, error) {
		var v explorer.Trail
		err := rows.Scan(&v.Name, &v.Location, &v.Length, &v.Stars, &v.StarVotes, &v.Summary, &v.TrailURL,
			&v.Conditions, &v.ConditionDate, &v.ConditionTime, &v.CreatedAt)
		return v, err
	})
}

// InsertTrail stores one trail.
func (r *Repository) InsertTrail(ctx context.Context, v explorer.Trail, locationID int64) error {
	const q = `
		INSERT INTO trails (name, location, length, stars, star_votes, summary, trail_url,
		                    conditions, condition_date, condition_time, created_at, location_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	return r.insert(ctx, TableTrails, q, v.Name, v.Location, v.Length, v.Stars, v.StarVotes, v.Summary, v.TrailURL,
		v.Conditions, v.ConditionDate, v.ConditionTime, v.CreatedAt, locationID)
}
