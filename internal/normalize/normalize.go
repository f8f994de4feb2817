// Package normalize maps the different movie payload shapes (upstream search
// results, trending entries, detail records and inbound API writes) onto the
// canonical domain.Movie record.
//
// Reconciliation is table driven. Each rule names a canonical field, the
// source fields it may be read from (first present, non-empty wins) and a
// transform. Rules run in table order:
//
//  1. tmdb_id      <- tmdb_id | externalId | external_id | id
//  2. title        <- title | name | original_title
//  3. poster_url   <- poster_url | poster_path   (relative paths get the image base prefix)
//  4. release_date <- release_date | first_air_date
//
// The year is derived from release_date after the rules ran. Fields not named
// by a rule are dropped. Because canonical names are listed first in every
// rule and absolute poster URLs pass through untouched, normalizing a record
// that is already canonical returns it unchanged.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/movie-recommendation/internal/domain"
)

// DefaultImageBaseURL is the upstream image host used for poster paths.
const DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"

// Record is a raw, loosely typed movie payload.
type Record = map[string]any

// Canonical field names.
const (
	FieldExternalID  = "tmdb_id"
	FieldTitle       = "title"
	FieldPosterURL   = "poster_url"
	FieldReleaseDate = "release_date"
	FieldYear        = "year"
)

type transform func(n *Normalizer, value any) (any, bool)

type rule struct {
	canonical string
	sources   []string
	apply     transform
}

var rules = []rule{
	{canonical: FieldExternalID, sources: []string{FieldExternalID, "externalId", "external_id", "id"}, apply: toExternalID},
	{canonical: FieldTitle, sources: []string{FieldTitle, "name", "original_title"}, apply: toTrimmedString},
	{canonical: FieldPosterURL, sources: []string{FieldPosterURL, "poster_path"}, apply: toPosterURL},
	{canonical: FieldReleaseDate, sources: []string{FieldReleaseDate, "first_air_date"}, apply: toReleaseDate},
}

// Normalizer converts raw payloads into canonical movies.
type Normalizer struct {
	imageBaseURL string
}

// New returns a Normalizer that prefixes relative poster paths with imageBaseURL.
func New(imageBaseURL string) *Normalizer {
	if strings.TrimSpace(imageBaseURL) == "" {
		imageBaseURL = DefaultImageBaseURL
	}
	return &Normalizer{imageBaseURL: strings.TrimRight(imageBaseURL, "/")}
}

// ImageBaseURL returns the prefix applied to relative poster paths.
func (n *Normalizer) ImageBaseURL() string {
	return n.imageBaseURL
}

// Canonical applies the rule table and returns the canonical field map.
// Values that fail their transform are left out, so a malformed upstream
// field degrades to "absent" instead of failing the whole record.
func (n *Normalizer) Canonical(raw Record) Record {
	out := make(Record, len(rules)+1)
	for _, r := range rules {
		for _, src := range r.sources {
			value, ok := raw[src]
			if !ok || value == nil {
				continue
			}
			converted, ok := r.apply(n, value)
			if !ok {
				continue
			}
			out[r.canonical] = converted
			break
		}
	}
	if date, ok := out[FieldReleaseDate].(time.Time); ok {
		out[FieldYear] = date.Year()
	}
	return out
}

// Movie normalizes raw into a canonical movie. A missing identifier yields a
// zero ExternalID; use ForWrite when an identifier is mandatory.
func (n *Normalizer) Movie(raw Record) domain.Movie {
	return toMovie(n.Canonical(raw))
}

// Movies normalizes a list of upstream records, preserving order.
func (n *Normalizer) Movies(raws []Record) []domain.Movie {
	movies := make([]domain.Movie, 0, len(raws))
	for _, raw := range raws {
		movies = append(movies, n.Movie(raw))
	}
	return movies
}

// ForWrite normalizes an inbound write payload. Unlike Movie it rejects
// records without a usable identifier and release dates it cannot parse.
func (n *Normalizer) ForWrite(raw Record) (domain.Movie, error) {
	canonical := n.Canonical(raw)
	if _, ok := canonical[FieldExternalID]; !ok {
		return domain.Movie{}, domain.NewValidationError(FieldExternalID, "missing external id")
	}
	if _, ok := canonical[FieldReleaseDate]; !ok {
		if value := firstPresent(raw, FieldReleaseDate, "first_air_date"); value != nil {
			if s, isString := value.(string); !isString || strings.TrimSpace(s) != "" {
				return domain.Movie{}, domain.NewValidationError(FieldReleaseDate, "must follow YYYY-MM-DD format")
			}
		}
	}
	return toMovie(canonical), nil
}

// Record renders a movie back into its canonical field map.
func (n *Normalizer) Record(m domain.Movie) Record {
	out := Record{}
	if m.ExternalID > 0 {
		out[FieldExternalID] = m.ExternalID
	}
	if m.Title != "" {
		out[FieldTitle] = m.Title
	}
	if m.PosterURL != nil {
		out[FieldPosterURL] = *m.PosterURL
	}
	if m.ReleaseDate != nil {
		out[FieldReleaseDate] = m.ReleaseDate.Format(domain.DateLayout)
	}
	if m.Year != nil {
		out[FieldYear] = *m.Year
	}
	return out
}

// PosterURL turns a poster path into an absolute URL. Absolute URLs are
// returned unchanged.
func (n *Normalizer) PosterURL(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || isAbsoluteURL(path) {
		return path
	}
	return n.imageBaseURL + "/" + strings.TrimLeft(path, "/")
}

func toMovie(canonical Record) domain.Movie {
	var m domain.Movie
	if id, ok := canonical[FieldExternalID].(int64); ok {
		m.ExternalID = id
	}
	if title, ok := canonical[FieldTitle].(string); ok {
		m.Title = title
	}
	if poster, ok := canonical[FieldPosterURL].(string); ok {
		m.PosterURL = &poster
	}
	if date, ok := canonical[FieldReleaseDate].(time.Time); ok {
		m.SetReleaseDate(&date)
	}
	return m
}

func toExternalID(_ *Normalizer, value any) (any, bool) {
	var id int64
	switch v := value.(type) {
	case int:
		id = int64(v)
	case int32:
		id = int64(v)
	case int64:
		id = v
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 {
			return nil, false
		}
		id = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return nil, false
		}
		id = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, false
		}
		id = parsed
	default:
		return nil, false
	}
	if id <= 0 {
		return nil, false
	}
	return id, true
}

func toTrimmedString(_ *Normalizer, value any) (any, bool) {
	s, ok := value.(string)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func toPosterURL(n *Normalizer, value any) (any, bool) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, false
	}
	return n.PosterURL(s), true
}

func toReleaseDate(_ *Normalizer, value any) (any, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Truncate(24 * time.Hour), true
	case string:
		parsed, err := time.Parse(domain.DateLayout, strings.TrimSpace(v))
		if err != nil {
			return nil, false
		}
		return parsed, true
	default:
		return nil, false
	}
}

func firstPresent(raw Record, keys ...string) any {
	for _, key := range keys {
		if value, ok := raw[key]; ok && value != nil {
			return value
		}
	}
	return nil
}

func isAbsoluteURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}
