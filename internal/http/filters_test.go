package httpserver

import (
	"encoding/json"
	"net/url"
	"reflect"
	"testing"
)

func TestBuildCatalogQuery(t *testing.T) {
	values, _ := url.ParseQuery("title= Matrix &tmdb_id=603&year=1999,2003&limit=150&cursor=abc")

	q, err := buildCatalogQuery(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Title != "Matrix" {
		t.Fatalf("title not trimmed: %q", q.Title)
	}
	if q.ExternalID != 603 {
		t.Fatalf("tmdb_id parse failed: %d", q.ExternalID)
	}
	if !reflect.DeepEqual(q.Years, []int{1999, 2003}) {
		t.Fatalf("years parse failed: %v", q.Years)
	}
	if q.Limit != 150 {
		t.Fatalf("limit not parsed: %d", q.Limit)
	}
	if q.Cursor != "abc" {
		t.Fatalf("cursor not passed through: %q", q.Cursor)
	}
}

func TestBuildCatalogQuery_Invalid(t *testing.T) {
	for _, raw := range []string{"tmdb_id=abc", "tmdb_id=0", "limit=ten"} {
		values, _ := url.ParseQuery(raw)
		if _, err := buildCatalogQuery(values); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseYears(t *testing.T) {
	tests := []struct {
		raw  string
		want []int
	}{
		{"", nil},
		{"1999", []int{1999}},
		{"1999, 2010", []int{1999, 2010}},
		{"abc,2010,,x", []int{2010}},
	}
	for _, tt := range tests {
		if got := parseYears(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("parseYears(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestBuildRecommendationQuery(t *testing.T) {
	values, _ := url.ParseQuery("movie_id=1&title=Heat&page=3")

	q, err := buildRecommendationQuery("550", values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.MovieID != 550 || q.Title != "Heat" || q.Page != 3 {
		t.Fatalf("path id should win over query: %+v", q)
	}

	q, err = buildRecommendationQuery("", values)
	if err != nil || q.MovieID != 1 {
		t.Fatalf("query id not used: %+v %v", q, err)
	}

	for _, raw := range []string{"movie_id=-1", "movie_id=x", "page=two"} {
		values, _ := url.ParseQuery(raw)
		if _, err := buildRecommendationQuery("", values); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestRatingValue(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
		ok    bool
	}{
		{"number", json.Number("4"), 4, true},
		{"float whole", float64(2), 2, true},
		{"lower bound", json.Number("1"), 1, true},
		{"upper bound", json.Number("5"), 5, true},
		{"fraction", json.Number("3.5"), 0, false},
		{"float fraction", 2.5, 0, false},
		{"too high", json.Number("6"), 0, false},
		{"zero", json.Number("0"), 0, false},
		{"string", "4", 0, false},
		{"null", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ratingValue(map[string]any{"rating": tt.value})
			if (err == nil) != tt.ok {
				t.Fatalf("ratingValue(%v) error = %v, want ok=%v", tt.value, err, tt.ok)
			}
			if got != tt.want {
				t.Fatalf("ratingValue(%v) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}

	if _, err := ratingValue(map[string]any{}); err == nil {
		t.Fatalf("missing rating should fail")
	}
}
