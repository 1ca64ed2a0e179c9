// Package extract pulls contact emails, phones, and social links out of
// crawled page content. Pure functions over text: deterministic and safe to
// re-run on cached pages without re-crawling.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/lead-engine/internal/model"
)

var (
	emailRe  = regexp.MustCompile(`[a-zA-Z0-9._%+-]{1,64}@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+`)
	mailtoRe = regexp.MustCompile(`(?i)mailto:([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`)

	trailingDigitsRe = regexp.MustCompile(`\d+$`)
)

// genericPrefixes is the closed set of role-account local parts. An address
// whose local part (trailing digits stripped) matches classifies as generic.
// Treated as data, not behavior: extend here, not in code.
var genericPrefixes = map[string]struct{}{
	"info": {}, "contact": {}, "hello": {}, "hi": {}, "support": {},
	"help": {}, "admin": {}, "sales": {}, "marketing": {}, "billing": {},
	"accounts": {}, "service": {}, "services": {}, "team": {}, "office": {},
	"mail": {}, "email": {}, "enquiry": {}, "enquiries": {}, "inquiry": {},
	"inquiries": {}, "general": {}, "feedback": {}, "webmaster": {},
	"postmaster": {}, "hostmaster": {}, "abuse": {}, "noreply": {},
	"no-reply": {}, "donotreply": {}, "do-not-reply": {}, "newsletter": {},
	"subscribe": {}, "unsubscribe": {}, "privacy": {}, "legal": {},
	"compliance": {}, "hr": {}, "jobs": {}, "careers": {}, "recruitment": {},
	"press": {}, "media": {}, "pr": {},
}

// rolePatterns catch role accounts beyond the closed prefix set, e.g.
// "acme-sales@" or "supportdesk@". Ambiguous matches bias toward generic.
var rolePatterns = []string{"sales", "support", "info", "admin", "contact"}

var invalidTLDs = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "webp": {},
	"css": {}, "js": {}, "json": {}, "xml": {},
}

var invalidDomains = map[string]struct{}{
	"example.com": {}, "example.org": {}, "test.com": {}, "domain.com": {},
	"email.com": {}, "yoursite.com": {}, "yourdomain.com": {},
	"company.com": {}, "website.com": {}, "sentry.io": {},
	"wixpress.com": {}, "googleapis.com": {},
}

var placeholderRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)your.*email`),
	regexp.MustCompile(`(?i)email.*here`),
	regexp.MustCompile(`(?i)name@`),
	regexp.MustCompile(`(?i)@domain`),
	regexp.MustCompile(`(?i)xxx`),
	regexp.MustCompile(`(?i)test@`),
	regexp.MustCompile(`(?i)@test`),
	regexp.MustCompile(`(?i)sample@`),
	regexp.MustCompile(`(?i)@sample`),
}

// Emails extracts all valid addresses from raw text or HTML, normalized to
// lowercase, unique, and sorted. Obfuscated forms ("name at domain dot com")
// are not matched.
func Emails(text string) []string {
	set := make(map[string]struct{})

	// mailto links first: higher confidence.
	for _, m := range mailtoRe.FindAllStringSubmatch(text, -1) {
		if e, ok := normalizeEmail(m[1]); ok {
			set[e] = struct{}{}
		}
	}
	for _, m := range emailRe.FindAllString(text, -1) {
		if e, ok := normalizeEmail(m); ok {
			set[e] = struct{}{}
		}
	}

	emails := make([]string, 0, len(set))
	for e := range set {
		emails = append(emails, e)
	}
	sort.Strings(emails)
	return emails
}

// EmailsWithQuality extracts addresses and classifies each as personal or
// generic.
func EmailsWithQuality(text string) map[string]model.EmailQuality {
	out := make(map[string]model.EmailQuality)
	for _, e := range Emails(text) {
		out[e] = Classify(e)
	}
	return out
}

// Classify labels an address generic if its local part is a role account,
// personal otherwise. Ties default to generic so outreach filtering stays
// conservative.
func Classify(email string) model.EmailQuality {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return model.QualityGeneric
	}
	local := strings.ToLower(email[:at])

	base := trailingDigitsRe.ReplaceAllString(local, "")
	if _, ok := genericPrefixes[base]; ok {
		return model.QualityGeneric
	}

	for _, role := range rolePatterns {
		if strings.HasPrefix(local, role) || strings.HasSuffix(local, role) {
			return model.QualityGeneric
		}
	}

	return model.QualityPersonal
}

func normalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	email = strings.TrimRight(email, ".,;)]>")
	email = strings.TrimLeft(email, "([<")
	if email == "" {
		return "", false
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", false
	}
	local, domain := email[:at], email[at+1:]

	if len(local) > 64 || !strings.Contains(domain, ".") {
		return "", false
	}

	tld := domain[strings.LastIndex(domain, ".")+1:]
	if _, bad := invalidTLDs[tld]; bad {
		return "", false
	}
	if len(tld) < 2 || len(tld) > 10 {
		return "", false
	}
	if _, bad := invalidDomains[domain]; bad {
		return "", false
	}

	for _, re := range placeholderRes {
		if re.MatchString(email) {
			return "", false
		}
	}

	return email, true
}
