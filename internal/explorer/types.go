package explorer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Location is a geocoded search query. Every other resource row references it by ID.
type Location struct {
	ID             int64   `json:"id"`
	SearchQuery    string  `json:"search_query"`
	FormattedQuery string  `json:"formatted_query"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

// UnmarshalJSON accepts numeric fields either as JSON numbers or as strings.
// Clients echo back locations read from NUMERIC columns, which some drivers
// render as strings.
func (l *Location) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID             flexNumber `json:"id"`
		SearchQuery    string     `json:"search_query"`
		FormattedQuery string     `json:"formatted_query"`
		Latitude       flexNumber `json:"latitude"`
		Longitude      flexNumber `json:"longitude"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	id, err := raw.ID.Int64()
	if err != nil {
		return fmt.Errorf("location id: %w", err)
	}
	lat, err := raw.Latitude.Float64()
	if err != nil {
		return fmt.Errorf("location latitude: %w", err)
	}
	lng, err := raw.Longitude.Float64()
	if err != nil {
		return fmt.Errorf("location longitude: %w", err)
	}

	*l = Location{
		ID:             id,
		SearchQuery:    raw.SearchQuery,
		FormattedQuery: raw.FormattedQuery,
		Latitude:       lat,
		Longitude:      lng,
	}
	return nil
}

// flexNumber holds the textual form of a number that arrived either quoted or bare.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*n = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(b, &unquoted); err != nil {
			return err
		}
		s = strings.TrimSpace(unquoted)
	}
	*n = flexNumber(s)
	return nil
}

func (n flexNumber) Float64() (float64, error) {
	if n == "" {
		return 0, nil
	}
	return strconv.ParseFloat(string(n), 64)
}

func (n flexNumber) Int64() (int64, error) {
	if n == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// Weather is one day of forecast.
type Weather struct {
	Forecast  string `json:"forecast"`
	Time      string `json:"time"`
	CreatedAt int64  `json:"created_at"`
}

// Restaurant is one business-search result.
type Restaurant struct {
	Name      string  `json:"name"`
	ImageURL  string  `json:"image_url"`
	Price     string  `json:"price"`
	Rating    float64 `json:"rating"`
	URL       string  `json:"url"`
	CreatedAt int64   `json:"created_at"`
}

// Movie is one movie-search result.
type Movie struct {
	Title        string  `json:"title"`
	Overview     string  `json:"overview"`
	AverageVotes float64 `json:"average_votes"`
	TotalVotes   int     `json:"total_votes"`
	ImageURL     string  `json:"image_url"`
	Popularity   float64 `json:"popularity"`
	ReleasedOn   string  `json:"released_on"`
	CreatedAt    int64   `json:"created_at"`
}

// Meetup is one upcoming group event.
type Meetup struct {
	Link         string `json:"link"`
	Name         string `json:"name"`
	CreationDate string `json:"creation_date"`
	Host         string `json:"host"`
	CreatedAt    int64  `json:"created_at"`
}

// Trail is one nearby hiking trail.
type Trail struct {
	Name          string  `json:"name"`
	Location      string  `json:"location"`
	Length        string  `json:"length"`
	Stars         float64 `json:"stars"`
	StarVotes     int     `json:"star_votes"`
	Summary       string  `json:"summary"`
	TrailURL      string  `json:"trail_url"`
	Conditions    string  `json:"conditions"`
	ConditionDate string  `json:"condition_date"`
	ConditionTime string  `json:"condition_time"`
	CreatedAt     int64   `json:"created_at"`
}

// Summary bundles every resource for one location. A section whose lookup
// failed encodes as null; one that found nothing encodes as [].
type Summary struct {
	Location    Location     `json:"location"`
	Weather     []Weather    `json:"weather"`
	Restaurants []Restaurant `json:"restaurants"`
	Movies      []Movie      `json:"movies"`
	Meetups     []Meetup     `json:"meetups"`
	Trails      []Trail      `json:"trails"`
}
