package model

import "time"

// CrawlStatus is the terminal outcome of crawling one domain.
type CrawlStatus string

const (
	// CrawlStatusOK means at least one page was fetched successfully.
	CrawlStatusOK CrawlStatus = "ok"
	// CrawlStatusTimeout means the root responded but no page completed
	// within the crawl budget.
	CrawlStatusTimeout CrawlStatus = "timeout"
	// CrawlStatusUnreachable means the site root itself could not be fetched.
	CrawlStatusUnreachable CrawlStatus = "unreachable"
	// CrawlStatusNoEmails is a content-level outcome layered on OK: the
	// crawl succeeded but yielded no addresses.
	CrawlStatusNoEmails CrawlStatus = "no-emails"
)

// EmailQuality classifies an extracted address for outreach filtering.
type EmailQuality string

const (
	// QualityPersonal marks an address whose local part does not match a
	// known role-account prefix.
	QualityPersonal EmailQuality = "personal"
	// QualityGeneric marks role accounts (info@, sales@, ...). Ambiguous
	// prefixes classify as generic.
	QualityGeneric EmailQuality = "generic"
)

// CrawlResult holds everything extracted from one domain. Cached by
// normalized domain so places sharing a website crawl once.
type CrawlResult struct {
	Domain       string                  `json:"domain"`
	Emails       []string                `json:"emails,omitempty"`
	EmailQuality map[string]EmailQuality `json:"email_quality,omitempty"`
	SocialLinks  map[string]string       `json:"social_links,omitempty"`
	PagesCrawled int                     `json:"pages_crawled"`
	Status       CrawlStatus             `json:"status"`
	CrawledAt    time.Time               `json:"crawled_at"`
}
