package model

import "time"

// PlaceRecord is a business returned by the Places API, populated from a
// detail fetch. Immutable after creation except under explicit cache
// invalidation.
type PlaceRecord struct {
	PlaceID            string   `json:"place_id"`
	Name               string   `json:"name"`
	Address            string   `json:"address"`
	Phone              string   `json:"phone"`
	InternationalPhone string   `json:"international_phone"`
	Website            string   `json:"website"`
	Types              []string `json:"types,omitempty"`
	Rating             float64  `json:"rating,omitempty"`
	UserRatingsTotal   int      `json:"user_ratings_total,omitempty"`

	SourceQuery    string    `json:"source_query"`
	SourceLocation string    `json:"source_location"`
	FetchedAt      time.Time `json:"fetched_at"`
}
