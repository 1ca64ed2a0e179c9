package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-engine/internal/model"
)

func lead(placeID, phone, website string) *model.Lead {
	return &model.Lead{
		PlaceID: placeID,
		Name:    "Biz " + placeID,
		Phone:   phone,
		Website: website,
	}
}

func TestFold_DistinctLeadsAccepted(t *testing.T) {
	d := New()

	assert.Equal(t, Accepted, d.Fold(lead("a", "(512) 555-0100", "https://a.example.com")))
	assert.Equal(t, Accepted, d.Fold(lead("b", "(512) 555-0200", "https://b.example.com")))

	leads := d.Leads()
	require.Len(t, leads, 2)
	assert.Equal(t, "a", leads[0].PlaceID)
	assert.Equal(t, "b", leads[1].PlaceID)
	assert.Equal(t, 2, d.Stats().Accepted)
}

func TestFold_DuplicateByPlaceID(t *testing.T) {
	d := New()
	d.Fold(lead("a", "", ""))

	out := d.Fold(lead("a", "(512) 555-0100", ""))
	assert.Equal(t, MergedByPlaceID, out)
	assert.True(t, out.Merged())
	require.Len(t, d.Leads(), 1)
	assert.Equal(t, 1, d.Stats().DuplicatesByPlace)
	// Blank fields filled from the duplicate.
	assert.Equal(t, "(512) 555-0100", d.Leads()[0].Phone)
}

func TestFold_DuplicateByPhoneIgnoresFormatting(t *testing.T) {
	d := New()
	d.Fold(lead("a", "(512) 555-0100", ""))

	// Same number with US country code and different punctuation.
	assert.Equal(t, MergedByPhone, d.Fold(lead("b", "+1 512-555-0100", "")))
	require.Len(t, d.Leads(), 1)
	assert.Equal(t, 1, d.Stats().DuplicatesByPhone)
}

func TestFold_DuplicateByDomainIgnoresWWWAndScheme(t *testing.T) {
	d := New()
	d.Fold(lead("a", "", "https://www.acme.example.com/home"))

	assert.Equal(t, MergedByDomain, d.Fold(lead("b", "", "http://acme.example.com/contact")))
	require.Len(t, d.Leads(), 1)
	assert.Equal(t, 1, d.Stats().DuplicatesByDomain)
}

func TestFold_PlaceIDCheckedBeforePhoneAndDomain(t *testing.T) {
	d := New()
	d.Fold(lead("a", "(512) 555-0100", "https://acme.example.com"))

	out := d.Fold(lead("a", "(512) 555-0100", "https://acme.example.com"))
	assert.Equal(t, MergedByPlaceID, out)
	stats := d.Stats()
	assert.Equal(t, 1, stats.DuplicatesByPlace)
	assert.Zero(t, stats.DuplicatesByPhone)
	assert.Zero(t, stats.DuplicatesByDomain)
}

func TestFold_MergeUnionsEmailsAndResorts(t *testing.T) {
	d := New()
	first := lead("a", "", "")
	first.Emails = []string{"info@acme.com"}
	first.EmailQuality = map[string]model.EmailQuality{"info@acme.com": model.QualityGeneric}
	d.Fold(first)

	dup := lead("a", "", "")
	dup.Emails = []string{"jane@acme.com", "info@acme.com"}
	dup.EmailQuality = map[string]model.EmailQuality{
		"jane@acme.com": model.QualityPersonal,
		"info@acme.com": model.QualityGeneric,
	}
	d.Fold(dup)

	merged := d.Leads()[0]
	require.Equal(t, []string{"jane@acme.com", "info@acme.com"}, merged.Emails)
	assert.Equal(t, model.QualityPersonal, merged.EmailQuality["jane@acme.com"])
}

func TestFold_MergeUnionsTypes(t *testing.T) {
	d := New()
	first := lead("a", "", "")
	first.Types = []string{"plumber"}
	d.Fold(first)

	dup := lead("a", "", "")
	dup.Types = []string{"plumber", "contractor"}
	d.Fold(dup)

	assert.Equal(t, []string{"plumber", "contractor"}, d.Leads()[0].Types)
}

func TestFold_FirstSeenScalarsWin(t *testing.T) {
	d := New()
	first := lead("a", "(512) 555-0100", "")
	first.Name = "Acme Plumbing"
	first.Rating = 4.5
	d.Fold(first)

	dup := lead("a", "(512) 555-0100", "")
	dup.Name = "ACME PLUMBING LLC"
	dup.Rating = 3.9
	dup.Website = "https://acme.example.com"
	d.Fold(dup)

	merged := d.Leads()[0]
	assert.Equal(t, "Acme Plumbing", merged.Name)
	assert.InDelta(t, 4.5, merged.Rating, 0.001)
	assert.Equal(t, "https://acme.example.com", merged.Website, "blank filled from duplicate")
}

func TestFold_MergeExtendsIndices(t *testing.T) {
	d := New()
	// First record has only a place id.
	d.Fold(lead("a", "", ""))
	// Duplicate by place id brings a phone number.
	d.Fold(lead("a", "(512) 555-0100", ""))
	// A third record with only that phone should now fold in too.
	out := d.Fold(lead("", "+1 (512) 555-0100", ""))
	assert.Equal(t, MergedByPhone, out)
	require.Len(t, d.Leads(), 1)
}

func TestFold_MergeRegistersCandidateKeys(t *testing.T) {
	d := New()
	// Survivor already has a phone, so the duplicate's phone stays a
	// losing scalar. Its keys must still map to the survivor.
	d.Fold(lead("a", "(512) 555-0100", "https://acme.example.com"))

	dup := lead("b", "(512) 555-0200", "https://www.acme.example.com")
	require.Equal(t, MergedByDomain, d.Fold(dup))

	// Refolding the duplicate matches by its own place id, not by domain.
	assert.Equal(t, MergedByPlaceID, d.Fold(lead("b", "(512) 555-0200", "https://www.acme.example.com")))
	// A record carrying only the duplicate's phone folds in too.
	assert.Equal(t, MergedByPhone, d.Fold(lead("", "+1 512-555-0200", "")))
	require.Len(t, d.Leads(), 1)
}

func TestFold_Idempotent(t *testing.T) {
	d := New()
	rec := lead("a", "(512) 555-0100", "https://acme.example.com")
	rec.Emails = []string{"info@acme.com"}
	rec.EmailQuality = map[string]model.EmailQuality{"info@acme.com": model.QualityGeneric}
	rec.Types = []string{"plumber"}

	d.Fold(rec)
	dup := *rec
	d.Fold(&dup)
	d.Fold(&dup)

	require.Len(t, d.Leads(), 1)
	merged := d.Leads()[0]
	assert.Equal(t, []string{"info@acme.com"}, merged.Emails)
	assert.Equal(t, []string{"plumber"}, merged.Types)
}

func TestFold_ShortPhonesNeverCollide(t *testing.T) {
	d := New()
	// Numbers too short to be real never form a merge key.
	assert.Equal(t, Accepted, d.Fold(lead("a", "911", "")))
	assert.Equal(t, Accepted, d.Fold(lead("b", "911", "")))
	assert.Len(t, d.Leads(), 2)
}
