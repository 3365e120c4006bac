package explorer

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// tmdbImagePrefix is joined to poster_path by plain concatenation.
	// Movies without a poster get no image_url.
	tmdbImagePrefix = "https://image.tmdb.org/t/p/w370_and_h556_bestv2/"

	// dateLayout matches the "Tue Aug 21 2018" rendering clients already display.
	dateLayout = "Mon Jan 02 2006"

	// coordinateScale matches the NUMERIC(10,7) location columns.
	coordinateScale = 1e7
)

// roundCoordinate rounds v to the precision the locations table stores, so a
// freshly geocoded Location equals the row later read back.
func roundCoordinate(v float64) float64 {
	return math.Round(v*coordinateScale) / coordinateScale
}

func newWeather(day darkSkyDay) Weather {
	return Weather{
		Forecast: day.Summary,
		Time:     time.Unix(day.Time, 0).UTC().Format(dateLayout),
	}
}

func newRestaurant(b yelpBusiness) Restaurant {
	return Restaurant{
		Name:     b.Name,
		ImageURL: b.ImageURL,
		Price:    b.Price,
		Rating:   b.Rating,
		URL:      b.URL,
	}
}

func newMovie(m tmdbMovie) Movie {
	var image string
	if m.PosterPath != "" {
		image = tmdbImagePrefix + m.PosterPath
	}
	return Movie{
		Title:        m.Title,
		Overview:     m.Overview,
		AverageVotes: m.VoteAverage,
		TotalVotes:   m.VoteCount,
		ImageURL:     image,
		Popularity:   m.Popularity,
		ReleasedOn:   m.ReleaseDate,
	}
}

func newMeetup(e meetupEvent) Meetup {
	return Meetup{
		Link:         e.Link,
		Name:         e.Name,
		CreationDate: time.UnixMilli(e.Created).UTC().Format(dateLayout),
		Host:         e.Group.Name,
	}
}

func newTrail(t hikingTrail) Trail {
	date, clock, _ := strings.Cut(t.ConditionDate, " ")
	return Trail{
		Name:          t.Name,
		Location:      t.Location,
		Length:        strconv.FormatFloat(t.Length, 'f', -1, 64) + " miles",
		Stars:         t.Stars,
		StarVotes:     t.StarVotes,
		Summary:       t.Summary,
		TrailURL:      t.URL,
		Conditions:    t.ConditionStatus,
		ConditionDate: date,
		ConditionTime: clock,
	}
}
