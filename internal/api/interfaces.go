package api

import (
	"context"

	"github.com/alwynblake/city-explorer/internal/explorer"
)

// Service defines the lookups needed by handlers. *lookup.Service satisfies it.
type Service interface {
	ResolveLocation(ctx context.Context, query string) (explorer.Location, error)
	Weather(ctx context.Context, loc explorer.Location) ([]explorer.Weather, error)
	Restaurants(ctx context.Context, loc explorer.Location) ([]explorer.Restaurant, error)
	Movies(ctx context.Context, loc explorer.Location) ([]explorer.Movie, error)
	Meetups(ctx context.Context, loc explorer.Location) ([]explorer.Meetup, error)
	Trails(ctx context.Context, loc explorer.Location) ([]explorer.Trail, error)
	Summary(ctx context.Context, loc explorer.Location) (*explorer.Summary, error)
}
