package domain

import "time"

// Rating bounds accepted from users.
const (
	MinRating = 1
	MaxRating = 5
)

// Rating represents a single user's rating for a movie.
type Rating struct {
	MovieID   int64
	UserID    string
	Value     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RatingAggregate provides average and count for a movie's ratings.
// Average is nil when the movie has no ratings.
type RatingAggregate struct {
	Average *float64 `json:"average_rating"`
	Count   int64    `json:"ratings_count"`
}
