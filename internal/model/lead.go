package model

import (
	"regexp"
	"sort"
	"strings"
)

// Lead is the final merged, deduplicated, enriched business record emitted
// by the pipeline. Field set matches the output-writer contract exactly.
type Lead struct {
	PlaceID            string                  `json:"place_id"`
	Name               string                  `json:"name"`
	Address            string                  `json:"address"`
	City               string                  `json:"city"`
	State              string                  `json:"state"`
	PostalCode         string                  `json:"postal_code"`
	Country            string                  `json:"country"`
	Phone              string                  `json:"phone"`
	InternationalPhone string                  `json:"international_phone"`
	Website            string                  `json:"website"`
	Emails             []string                `json:"emails"`
	EmailQuality       map[string]EmailQuality `json:"email_quality"`
	Types              []string                `json:"types"`
	Rating             float64                 `json:"rating,omitempty"`
	UserRatingsTotal   int                     `json:"user_ratings_total,omitempty"`
	Domain             string                  `json:"domain"`
	SourceQuery        string                  `json:"source_query"`
	SourceLocation     string                  `json:"source_location"`
	FetchedAt          string                  `json:"fetched_at"`
}

var stateZipRe = regexp.MustCompile(`^([A-Za-z]{2})\s+(\d{5}(?:-\d{4})?)$`)

// ParseAddress splits a formatted address into city, state, postal code,
// and country. US-focused: expects "Street, City, ST 12345, Country".
func ParseAddress(address string) (city, state, postal, country string) {
	if address == "" {
		return
	}
	parts := strings.Split(address, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch {
	case len(parts) >= 3:
		city = parts[len(parts)-3]
		stateZip := parts[len(parts)-2]
		if m := stateZipRe.FindStringSubmatch(stateZip); m != nil {
			state = strings.ToUpper(m[1])
			postal = m[2]
		} else {
			state = stateZip
		}
		country = parts[len(parts)-1]
	case len(parts) == 2:
		city = parts[0]
		country = parts[1]
	}
	return
}

// SortEmailsByQuality orders emails personal-first, alphabetical within
// each quality band.
func SortEmailsByQuality(emails []string, quality map[string]EmailQuality) {
	rank := func(e string) int {
		if quality[e] == QualityPersonal {
			return 0
		}
		return 1
	}
	sort.SliceStable(emails, func(i, j int) bool {
		ri, rj := rank(emails[i]), rank(emails[j])
		if ri != rj {
			return ri < rj
		}
		return emails[i] < emails[j]
	})
}
