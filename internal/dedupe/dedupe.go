// Package dedupe folds enriched records into a deduplicated lead set.
// Three identity keys are checked in order: place id, normalized phone,
// normalized website domain. A record matching any existing lead merges
// into it instead of creating a new one.
package dedupe

import (
	"github.com/sells-group/lead-engine/internal/extract"
	"github.com/sells-group/lead-engine/internal/model"
)

// Outcome reports what folding one record did.
type Outcome int

const (
	// Accepted means the record became a new lead.
	Accepted Outcome = iota
	// MergedByPlaceID through MergedByDomain mean the record folded into
	// an existing lead via that key.
	MergedByPlaceID
	MergedByPhone
	MergedByDomain
)

// Merged reports whether the outcome folded into an existing lead.
func (o Outcome) Merged() bool { return o != Accepted }

// Stats counts fold outcomes per duplicate key.
type Stats struct {
	Accepted           int `json:"accepted"`
	DuplicatesByPlace  int `json:"duplicates_by_place_id"`
	DuplicatesByPhone  int `json:"duplicates_by_phone"`
	DuplicatesByDomain int `json:"duplicates_by_domain"`
}

// Deduplicator accumulates leads across queries and locations. Not safe
// for concurrent use; the pipeline folds from a single goroutine.
type Deduplicator struct {
	leads    []*model.Lead
	byPlace  map[string]*model.Lead
	byPhone  map[string]*model.Lead
	byDomain map[string]*model.Lead
	stats    Stats
}

// New creates an empty deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		byPlace:  make(map[string]*model.Lead),
		byPhone:  make(map[string]*model.Lead),
		byDomain: make(map[string]*model.Lead),
	}
}

// Fold adds one lead, merging if any identity key matches an existing
// one. Folding the same record twice is a no-op beyond the counters.
func (d *Deduplicator) Fold(lead *model.Lead) Outcome {
	phoneKey := extract.PhoneKey(lead.Phone)
	domainKey := lead.Domain
	if domainKey == "" {
		domainKey = extract.Domain(lead.Website)
	}

	if lead.PlaceID != "" {
		if existing, ok := d.byPlace[lead.PlaceID]; ok {
			d.merge(existing, lead)
			d.stats.DuplicatesByPlace++
			return MergedByPlaceID
		}
	}
	if phoneKey != "" {
		if existing, ok := d.byPhone[phoneKey]; ok {
			d.merge(existing, lead)
			d.stats.DuplicatesByPhone++
			return MergedByPhone
		}
	}
	if domainKey != "" {
		if existing, ok := d.byDomain[domainKey]; ok {
			d.merge(existing, lead)
			d.stats.DuplicatesByDomain++
			return MergedByDomain
		}
	}

	d.leads = append(d.leads, lead)
	d.index(lead, lead.PlaceID, phoneKey, domainKey)
	d.stats.Accepted++
	return Accepted
}

// merge folds src into dst. First-seen scalar values win; blanks fill
// from src. Emails and types are unioned.
func (d *Deduplicator) merge(dst, src *model.Lead) {
	fill(&dst.PlaceID, src.PlaceID)
	fill(&dst.Name, src.Name)
	fill(&dst.Address, src.Address)
	fill(&dst.City, src.City)
	fill(&dst.State, src.State)
	fill(&dst.PostalCode, src.PostalCode)
	fill(&dst.Country, src.Country)
	fill(&dst.Phone, src.Phone)
	fill(&dst.InternationalPhone, src.InternationalPhone)
	fill(&dst.Website, src.Website)
	fill(&dst.Domain, src.Domain)
	if dst.Rating == 0 {
		dst.Rating = src.Rating
	}
	if dst.UserRatingsTotal == 0 {
		dst.UserRatingsTotal = src.UserRatingsTotal
	}

	dst.Types = unionStrings(dst.Types, src.Types)

	if len(src.Emails) > 0 {
		if dst.EmailQuality == nil {
			dst.EmailQuality = make(map[string]model.EmailQuality)
		}
		for _, email := range src.Emails {
			if _, seen := dst.EmailQuality[email]; !seen {
				dst.Emails = append(dst.Emails, email)
				dst.EmailQuality[email] = src.EmailQuality[email]
			}
		}
		model.SortEmailsByQuality(dst.Emails, dst.EmailQuality)
	}

	// Register both sides' keys against the survivor. The candidate may
	// carry a place id, phone, or domain the survivor lacks; a later
	// record sharing any of them must still fold in.
	mergedDomain := dst.Domain
	if mergedDomain == "" {
		mergedDomain = extract.Domain(dst.Website)
	}
	srcDomain := src.Domain
	if srcDomain == "" {
		srcDomain = extract.Domain(src.Website)
	}
	d.index(dst, dst.PlaceID, extract.PhoneKey(dst.Phone), mergedDomain)
	d.index(dst, src.PlaceID, extract.PhoneKey(src.Phone), srcDomain)
}

func (d *Deduplicator) index(lead *model.Lead, placeID, phoneKey, domainKey string) {
	if placeID != "" {
		d.byPlace[placeID] = lead
	}
	if phoneKey != "" {
		if _, ok := d.byPhone[phoneKey]; !ok {
			d.byPhone[phoneKey] = lead
		}
	}
	if domainKey != "" {
		if _, ok := d.byDomain[domainKey]; !ok {
			d.byDomain[domainKey] = lead
		}
	}
}

// Leads returns accepted leads in first-seen order.
func (d *Deduplicator) Leads() []*model.Lead {
	return d.leads
}

// Stats returns fold counters.
func (d *Deduplicator) Stats() Stats {
	return d.stats
}

func fill(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			a = append(a, s)
			seen[s] = true
		}
	}
	return a
}
