package model

// RunSummary reports what a pipeline run did, including the units it
// skipped. Emitted alongside the lead set.
type RunSummary struct {
	Pairs          int `json:"pairs"`
	PairsSkipped   int `json:"pairs_skipped"`
	PlacesFetched  int `json:"places_fetched"`
	PlacesSkipped  int `json:"places_skipped"`
	APICalls       int `json:"api_calls"`
	CacheHits      int `json:"cache_hits"`
	DomainsCrawled int `json:"domains_crawled"`
	EmailsFound    int `json:"emails_found"`
	Leads          int `json:"leads"`

	DuplicatesByPlaceID int `json:"duplicates_by_place_id"`
	DuplicatesByPhone   int `json:"duplicates_by_phone"`
	DuplicatesByDomain  int `json:"duplicates_by_domain"`

	FailuresByReason map[string]int `json:"failures_by_reason,omitempty"`
}
