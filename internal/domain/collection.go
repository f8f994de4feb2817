package domain

import "time"

// Collection names a per-user list of movies.
type Collection string

const (
	CollectionFavorites Collection = "favorites"
	CollectionWatchlist Collection = "watchlist"
)

// ActivityAction tags an activity log record.
type ActivityAction string

const (
	ActionAdded   ActivityAction = "added"
	ActionRemoved ActivityAction = "removed"
)

// CollectionEntry links a user to a movie in one of their collections.
type CollectionEntry struct {
	UserID  string    `json:"user_id"`
	Movie   Movie     `json:"movie"`
	AddedAt time.Time `json:"added_at"`
}

// Activity is an immutable record of a collection change.
type Activity struct {
	ID         int64          `json:"id"`
	UserID     string         `json:"user_id"`
	ExternalID int64          `json:"tmdb_id"`
	Title      string         `json:"title"`
	Collection Collection     `json:"collection"`
	Action     ActivityAction `json:"action"`
	CreatedAt  time.Time      `json:"created_at"`
}
