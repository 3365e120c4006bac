package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alwynblake/city-explorer/internal/metrics"
)

const httpTimeout = 10 * time.Second

// newHTTPClient returns an http.Client with a 10-second timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// caller is the HTTP plumbing shared by every provider client.
type caller struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
}

func newCaller(provider string, limiter *rate.Limiter) caller {
	return caller{provider: provider, client: newHTTPClient(), limiter: limiter}
}

// get waits for the limiter, performs a GET and decodes the JSON response into dst.
// The URL is left out of errors because most providers carry the API key in it.
func (c caller) get(ctx context.Context, rawURL string, header http.Header, dst any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ObserveProviderCall(c.provider, outcome, time.Since(start))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &ProviderError{Provider: c.provider, Err: fmt.Errorf("waiting for rate limiter: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &ProviderError{Provider: c.provider, Err: fmt.Errorf("creating request: %w", err)}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: c.provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Provider: c.provider, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &ProviderError{Provider: c.provider, Err: fmt.Errorf("decoding response: %w", err)}
	}

	return nil
}

func coords(loc Location) (lat, lng string) {
	return strconv.FormatFloat(loc.Latitude, 'f', -1, 64), strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
}

// ---- Google Geocoding ----

// GeocodeClient resolves free-text queries to coordinates.
type GeocodeClient struct {
	apiKey  string
	baseURL string
	caller
}

const geocodeDefaultURL = "https://maps.googleapis.com/maps/api/geocode/json"

// NewGeocodeClient constructs a GeocodeClient with the given API key.
func NewGeocodeClient(apiKey string, limiter *rate.Limiter) *GeocodeClient {
	return &GeocodeClient{apiKey: apiKey, baseURL: geocodeDefaultURL, caller: newCaller("geocode", limiter)}
}

// NewGeocodeClientWithURL constructs a GeocodeClient pointing at a custom base URL (for tests).
func NewGeocodeClientWithURL(baseURL, apiKey string) *GeocodeClient {
	return &GeocodeClient{apiKey: apiKey, baseURL: baseURL, caller: newCaller("geocode", nil)}
}

type geocodeResponse struct {
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode returns an unsaved Location built from the first result for query.
// It returns ErrNotFound when the provider has no results.
func (c *GeocodeClient) Geocode(ctx context.Context, query string) (Location, error) {
	endpoint := c.baseURL + "?address=" + url.QueryEscape(query) + "&key=" + url.QueryEscape(c.apiKey)

	var raw geocodeResponse
	if err := c.get(ctx, endpoint, nil, &raw); err != nil {
		return Location{}, fmt.Errorf("geocoding %q: %w", query, err)
	}

	if len(raw.Results) == 0 {
		return Location{}, fmt.Errorf("geocoding %q: %w", query, ErrNotFound)
	}

	first := raw.Results[0]
	return Location{
		SearchQuery:    query,
		FormattedQuery: first.FormattedAddress,
		Latitude:       roundCoordinate(first.Geometry.Location.Lat),
		Longitude:      roundCoordinate(first.Geometry.Location.Lng),
	}, nil
}

// ---- Dark Sky ----

// WeatherClient fetches the daily forecast for a location.
type WeatherClient struct {
	apiKey  string
	baseURL string
	caller
}

const darkSkyDefaultURL = "https://api.darksky.net/forecast"

// NewWeatherClient constructs a WeatherClient with the given API key.
func NewWeatherClient(apiKey string, limiter *rate.Limiter) *WeatherClient {
	return &WeatherClient{apiKey: apiKey, baseURL: darkSkyDefaultURL, caller: newCaller("weather", limiter)}
}

// NewWeatherClientWithURL constructs a WeatherClient pointing at a custom base URL (for tests).
func NewWeatherClientWithURL(baseURL, apiKey string) *WeatherClient {
	return &WeatherClient{apiKey: apiKey, baseURL: baseURL, caller: newCaller("weather", nil)}
}

type darkSkyDay struct {
	Summary string `json:"summary"`
	Time    int64  `json:"time"`
}

type darkSkyResponse struct {
	Daily struct {
		Data []darkSkyDay `json:"data"`
	} `json:"daily"`
}

// Fetch retrieves one Weather per forecast day.
func (c *WeatherClient) Fetch(ctx context.Context, loc Location) ([]Weather, error) {
	lat, lng := coords(loc)
	endpoint := c.baseURL + "/" + url.PathEscape(c.apiKey) + "/" + lat + "," + lng

	var raw darkSkyResponse
	if err := c.get(ctx, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("weather fetch for %s: %w", loc.SearchQuery, err)
	}

	out := make([]Weather, 0, len(raw.Daily.Data))
	for _, day := range raw.Daily.Data {
		out = append(out, newWeather(day))
	}
	return out, nil
}

// ---- Yelp ----

// YelpClient searches businesses near a location.
type YelpClient struct {
	apiKey  string
	baseURL string
	caller
}

const yelpDefaultURL = "https://api.yelp.com/v3/businesses/search"

// NewYelpClient constructs a YelpClient with the given API key.
func NewYelpClient(apiKey string, limiter *rate.Limiter) *YelpClient {
	return &YelpClient{apiKey: apiKey, baseURL: yelpDefaultURL, caller: newCaller("yelp", limiter)}
}

// NewYelpClientWithURL constructs a YelpClient pointing at a custom base URL (for tests).
func NewYelpClientWithURL(baseURL, apiKey string) *YelpClient {
	return &YelpClient{apiKey: apiKey, baseURL: baseURL, caller: newCaller("yelp", nil)}
}

type yelpBusiness struct {
	Name     string  `json:"name"`
	ImageURL string  `json:"image_url"`
	Price    string  `json:"price"`
	Rating   float64 `json:"rating"`
	URL      string  `json:"url"`
}

type yelpResponse struct {
	Businesses []yelpBusiness `json:"businesses"`
}

// Fetch retrieves restaurants around the location.
func (c *YelpClient) Fetch(ctx context.Context, loc Location) ([]Restaurant, error) {
	lat, lng := coords(loc)
	endpoint := c.baseURL + "?term=restaurants&latitude=" + lat + "&longitude=" + lng

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)

	var raw yelpResponse
	if err := c.get(ctx, endpoint, header, &raw); err != nil {
		return nil, fmt.Errorf("yelp fetch for %s: %w", loc.SearchQuery, err)
	}

	out := make([]Restaurant, 0, len(raw.Businesses))
	for _, b := range raw.Businesses {
		out = append(out, newRestaurant(b))
	}
	return out, nil
}

// ---- TMDB ----

// MovieClient searches movies whose metadata matches the location's query.
type MovieClient struct {
	apiKey  string
	baseURL string
	caller
}

const tmdbDefaultURL = "https://api.themoviedb.org/3/search/movie"

// NewMovieClient constructs a MovieClient with the given API key.
func NewMovieClient(apiKey string, limiter *rate.Limiter) *MovieClient {
	return &MovieClient{apiKey: apiKey, baseURL: tmdbDefaultURL, caller: newCaller("movies", limiter)}
}

// NewMovieClientWithURL constructs a MovieClient pointing at a custom base URL (for tests).
func NewMovieClientWithURL(baseURL, apiKey string) *MovieClient {
	return &MovieClient{apiKey: apiKey, baseURL: baseURL, caller: newCaller("movies", nil)}
}

type tmdbMovie struct {
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	PosterPath  string  `json:"poster_path"`
	Popularity  float64 `json:"popularity"`
	ReleaseDate string  `json:"release_date"`
}

type tmdbResponse struct {
	Results []tmdbMovie `json:"results"`
}

// Fetch retrieves movies matching the location's search query.
func (c *MovieClient) Fetch(ctx context.Context, loc Location) ([]Movie, error) {
	endpoint := c.baseURL + "?api_key=" + url.QueryEscape(c.apiKey) + "&query=" + url.QueryEscape(loc.SearchQuery)

	var raw tmdbResponse
	if err := c.get(ctx, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("movie fetch for %s: %w", loc.SearchQuery, err)
	}

	out := make([]Movie, 0, len(raw.Results))
	for _, m := range raw.Results {
		out = append(out, newMovie(m))
	}
	return out, nil
}

// ---- Meetup ----

// MeetupClient finds upcoming group events near a location.
type MeetupClient struct {
	apiKey  string
	baseURL string
	caller
}

const meetupDefaultURL = "https://api.meetup.com/find/upcoming_events"

// NewMeetupClient constructs a MeetupClient with the given API key.
func NewMeetupClient(apiKey string, limiter *rate.Limiter) *MeetupClient {
	return &MeetupClient{apiKey: apiKey, baseURL: meetupDefaultURL, caller: newCaller("meetups", limiter)}
}

// NewMeetupClientWithURL constructs a MeetupClient pointing at a custom base URL (for tests).
func NewMeetupClientWithURL(baseURL, apiKey string) *MeetupClient {
	return &MeetupClient{apiKey: apiKey, baseURL: baseURL, caller: newCaller("meetups", nil)}
}

type meetupEvent struct {
	Link    string `json:"link"`
	Name    string `json:"name"`
	Created int64  `json:"created"`
	Group   struct {
		Name string `json:"name"`
	} `json:"group"`
}

type meetupResponse struct {
	Events []meetupEvent `json:"events"`
}

// Fetch retrieves upcoming events around the location.
func (c *MeetupClient) Fetch(ctx context.Context, loc Location) ([]Meetup, error) {
	lat, lng := coords(loc)
	endpoint := c.baseURL + "?sign=true&lat=" + lat + "&lon=" + lng + "&key=" + url.QueryEscape(c.apiKey)

	var raw meetupResponse
	if err := c.get(ctx, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("meetup fetch for %s: %w", loc.SearchQuery, err)
	}

	out := make([]Meetup, 0, len(raw.Events))
	for _, e := range raw.Events {
		out = append(out, newMeetup(e))
	}
	return out, nil
}

// ---- Hiking Project ----

// TrailClient finds trails near a location.
type TrailClient struct {
	apiKey  string
	baseURL string
	caller
}

const hikingDefaultURL = "https://www.hikingproject.com/data/get-trails"

// NewTrailClient constructs a TrailClient with the given API key.
func NewTrailClient(apiKey string, limiter *rate.Limiter) *TrailClient {
	return &TrailClient{apiKey: apiKey, baseURL: hikingDefaultURL, caller: newCaller("trails", limiter)}
}

// NewTrailClientWithURL constructs a TrailClient pointing at a custom base URL (for tests).
func NewTrailClientWithURL(baseURL, apiKey string) *TrailClient {
	return &TrailClient{apiKey: apiKey, baseURL: baseURL, caller: newCaller("trails", nil)}
}

type hikingTrail struct {
	Name            string  `json:"name"`
	Location        string  `json:"location"`
	Length          float64 `json:"length"`
	Stars           float64 `json:"stars"`
	StarVotes       int     `json:"starVotes"`
	Summary         string  `json:"summary"`
	URL             string  `json:"url"`
	ConditionStatus string  `json:"conditionStatus"`
	ConditionDate   string  `json:"conditionDate"`
}

type hikingResponse struct {
	Trails []hikingTrail `json:"trails"`
}

// Fetch retrieves trails within ten miles of the location.
func (c *TrailClient) Fetch(ctx context.Context, loc Location) ([]Trail, error) {
	lat, lng := coords(loc)
	endpoint := c.baseURL + "?lat=" + lat + "&lon=" + lng + "&maxDistance=10&key=" + url.QueryEscape(c.apiKey)

	var raw hikingResponse
	if err := c.get(ctx, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("trail fetch for %s: %w", loc.SearchQuery, err)
	}

	out := make([]Trail, 0, len(raw.Trails))
	for _, t := range raw.Trails {
		out = append(out, newTrail(t))
	}
	return out, nil
}

// ---- all providers ----

// Keys carries one API key per provider.
type Keys struct {
	Geocode string
	Weather string
	Yelp    string
	TMDB    string
	Meetup  string
	Trail   string
}

// Clients groups the production provider clients. They share one limiter
// so the service as a whole stays under the configured outbound rate.
type Clients struct {
	Geocode *GeocodeClient
	Weather *WeatherClient
	Yelp    *YelpClient
	Movies  *MovieClient
	Meetups *MeetupClient
	Trails  *TrailClient
}

// NewClients constructs every provider client using production URLs.
func NewClients(keys Keys, limiter *rate.Limiter) *Clients {
	return &Clients{
		Geocode: NewGeocodeClient(keys.Geocode, limiter),
		Weather: NewWeatherClient(keys.Weather, limiter),
		Yelp:    NewYelpClient(keys.Yelp, limiter),
		Movies:  NewMovieClient(keys.TMDB, limiter),
		Meetups: NewMeetupClient(keys.Meetup, limiter),
		Trails:  NewTrailClient(keys.Trail, limiter),
	}
}
