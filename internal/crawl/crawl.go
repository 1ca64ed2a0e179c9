// Package crawl visits a business website and harvests contact emails
// and social profile links. Crawls are shallow: a fixed list of
// high-signal paths seeds the queue, then same-domain links discovered
// along the way fill the remaining page budget.
package crawl

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/extract"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/resilience"
)

// priorityPaths are crawled first, in order. Contact and legal pages
// carry most of the emails a site ever exposes.
var priorityPaths = []string{
	"/",
	"/contact",
	"/contact-us",
	"/contactus",
	"/about",
	"/about-us",
	"/aboutus",
	"/team",
	"/our-team",
	"/staff",
	"/people",
	"/legal",
	"/privacy",
	"/privacy-policy",
	"/impressum",
	"/imprint",
}

const (
	defaultMaxPages  = 6
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "LeadEngine/1.0 (compatible; business research)"

	// interPageDelay keeps the crawler polite on small sites.
	interPageDelay = 200 * time.Millisecond

	// maxBodyBytes caps how much of a page is read. Contact pages are
	// small; anything beyond this is video or a bundle.
	maxBodyBytes = 2 << 20
)

// Crawler fetches and parses pages from a single domain at a time. It is
// safe for concurrent use; each Crawl call carries its own state.
type Crawler struct {
	http      *http.Client
	maxPages  int
	timeout   time.Duration
	userAgent string
	delay     time.Duration
}

// Option configures the crawler.
type Option func(*Crawler)

// WithMaxPages sets the attempted-fetch budget per domain.
func WithMaxPages(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Crawler) {
		c.http = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) {
		c.userAgent = ua
	}
}

// New creates a crawler.
func New(opts ...Option) *Crawler {
	c := &Crawler{
		http: &http.Client{
			// Per-request deadlines come from the context; the client
			// timeout is a backstop.
			Timeout: 30 * time.Second,
		},
		maxPages:  defaultMaxPages,
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		delay:     interPageDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type page struct {
	text    string
	links   []string
	mailtos []string
}

// Crawl visits up to maxPages pages of the site and returns what it
// found. It never returns an error: every failure mode is encoded in the
// result status so callers can cache and fold it like any other outcome.
func (c *Crawler) Crawl(ctx context.Context, website string) *model.CrawlResult {
	result := &model.CrawlResult{
		Domain:    extract.Domain(website),
		CrawledAt: time.Now().UTC(),
	}
	if result.Domain == "" {
		result.Status = model.CrawlStatusUnreachable
		return result
	}

	base, err := url.Parse(normalizeBase(website))
	if err != nil {
		result.Status = model.CrawlStatusUnreachable
		return result
	}

	queue := make([]string, 0, len(priorityPaths))
	for _, p := range priorityPaths {
		ref, err := base.Parse(p)
		if err != nil {
			continue
		}
		queue = append(queue, ref.String())
	}

	visited := make(map[string]bool)
	emails := make(map[string]model.EmailQuality)
	social := make(map[string]string)
	attempts := 0
	sawTimeout := false

	for len(queue) > 0 && attempts < c.maxPages {
		if ctx.Err() != nil {
			break
		}
		target := queue[0]
		queue = queue[1:]
		if visited[target] {
			continue
		}
		visited[target] = true
		attempts++

		pg, err := c.fetch(ctx, target)
		if err != nil {
			if isTimeout(err) {
				sawTimeout = true
			}
			zap.L().Debug("page fetch failed",
				zap.String("url", target),
				zap.Error(err))
			continue
		}
		result.PagesCrawled++

		for email, quality := range extract.EmailsWithQuality(pg.text) {
			if _, seen := emails[email]; !seen {
				emails[email] = quality
			}
		}
		for _, raw := range pg.mailtos {
			email := strings.ToLower(strings.TrimSpace(raw))
			if email == "" || !strings.Contains(email, "@") {
				continue
			}
			if _, seen := emails[email]; !seen {
				emails[email] = extract.Classify(email)
			}
		}
		for network, link := range extract.SocialLinks(pg.text) {
			if _, seen := social[network]; !seen {
				social[network] = link
			}
		}
		for _, link := range pg.links {
			if c.sameDomain(base, link) && !visited[link] {
				queue = append(queue, link)
			}
		}

		if len(queue) > 0 && attempts < c.maxPages {
			if err := sleepCtx(ctx, c.delay); err != nil {
				break
			}
		}
	}

	for email, quality := range emails {
		result.Emails = append(result.Emails, email)
		if result.EmailQuality == nil {
			result.EmailQuality = make(map[string]model.EmailQuality)
		}
		result.EmailQuality[email] = quality
	}
	model.SortEmailsByQuality(result.Emails, result.EmailQuality)
	if len(social) > 0 {
		result.SocialLinks = social
	}

	switch {
	case result.PagesCrawled == 0 && sawTimeout:
		result.Status = model.CrawlStatusTimeout
	case result.PagesCrawled == 0:
		result.Status = model.CrawlStatusUnreachable
	case len(result.Emails) == 0:
		result.Status = model.CrawlStatusNoEmails
	default:
		result.Status = model.CrawlStatusOK
	}
	return result
}

func (c *Crawler) fetch(ctx context.Context, target string) (*page, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{code: resp.StatusCode, url: target}
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return nil, &contentTypeError{contentType: ct, url: target}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	pg := &page{text: doc.Text()}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		if strings.HasPrefix(href, "mailto:") {
			addr := strings.TrimPrefix(href, "mailto:")
			if i := strings.IndexByte(addr, '?'); i >= 0 {
				addr = addr[:i]
			}
			pg.mailtos = append(pg.mailtos, addr)
			return
		}
		if strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := resp.Request.URL.Parse(href)
		if err != nil {
			return
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return
		}
		ref.Fragment = ""
		pg.links = append(pg.links, ref.String())
	})

	// Social profiles often live only in href attributes, not page text.
	if html, err := doc.Html(); err == nil {
		pg.text += "\n" + html
	}
	return pg, nil
}

func (c *Crawler) sameDomain(base *url.URL, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return stripWWW(u.Host) == stripWWW(base.Host)
}

func normalizeBase(website string) string {
	if !strings.HasPrefix(website, "http://") && !strings.HasPrefix(website, "https://") {
		return "https://" + website
	}
	return website
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if resilience.IsTimeout(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type httpStatusError struct {
	code int
	url  string
}

func (e *httpStatusError) Error() string {
	return "crawl: " + e.url + ": unexpected status " + http.StatusText(e.code)
}

type contentTypeError struct {
	contentType string
	url         string
}

func (e *contentTypeError) Error() string {
	return "crawl: " + e.url + ": skipped content type " + e.contentType
}
