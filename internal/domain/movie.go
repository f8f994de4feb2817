package domain

import "time"

// DateLayout is the wire format for release dates.
const DateLayout = "2006-01-02"

// Movie is the canonical movie record. Upstream results, catalog rows and
// collection entries all converge on this shape.
type Movie struct {
	ID          int64      `json:"id,omitempty"`
	ExternalID  int64      `json:"tmdb_id"`
	Title       string     `json:"title"`
	PosterURL   *string    `json:"poster_url,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Year        *int       `json:"year,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
}

// CatalogMovie is a stored movie together with its derived rating aggregate.
type CatalogMovie struct {
	Movie
	Rating RatingAggregate `json:"rating"`
}

// YearOf derives the release year from a release date.
func YearOf(releaseDate *time.Time) *int {
	if releaseDate == nil {
		return nil
	}
	year := releaseDate.Year()
	return &year
}

// SetReleaseDate assigns the release date and keeps Year in sync with it.
func (m *Movie) SetReleaseDate(releaseDate *time.Time) {
	m.ReleaseDate = releaseDate
	m.Year = YearOf(releaseDate)
}
