package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-engine/internal/model"
)

func newTestCrawler(opts ...Option) *Crawler {
	c := New(opts...)
	c.delay = 0
	return c
}

// siteHandler serves a tiny fake business site.
func siteHandler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body>
			<h1>Ace Plumbing</h1>
			<a href="/contact">Contact us</a>
			<a href="/services">Services</a>
			<a href="https://www.facebook.com/aceplumbing">Facebook</a>
		</body></html>`))
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<p>Email us at info@aceplumbing.com</p>
			<a href="mailto:jane.doe@aceplumbing.com?subject=hi">Jane</a>
		</body></html>`))
	})
	mux.HandleFunc("/services", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Drains and pipes.</p></body></html>`))
	})
	return mux
}

func TestCrawl_FindsEmailsAndSocialLinks(t *testing.T) {
	srv := httptest.NewServer(siteHandler(t))
	defer srv.Close()

	c := newTestCrawler(WithMaxPages(20))
	result := c.Crawl(context.Background(), srv.URL)

	assert.Equal(t, model.CrawlStatusOK, result.Status)
	assert.Contains(t, result.Emails, "info@aceplumbing.com")
	assert.Contains(t, result.Emails, "jane.doe@aceplumbing.com")
	assert.Equal(t, model.QualityGeneric, result.EmailQuality["info@aceplumbing.com"])
	assert.Equal(t, model.QualityPersonal, result.EmailQuality["jane.doe@aceplumbing.com"])
	// Personal addresses sort ahead of role accounts.
	assert.Equal(t, "jane.doe@aceplumbing.com", result.Emails[0])
	assert.Contains(t, result.SocialLinks["facebook"], "facebook.com/aceplumbing")
	assert.Greater(t, result.PagesCrawled, 1)
	assert.False(t, result.CrawledAt.IsZero())
}

func TestCrawl_MaxPagesBoundsAttempts(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<html><body>nothing here</body></html>`))
	}))
	defer srv.Close()

	c := newTestCrawler(WithMaxPages(3))
	result := c.Crawl(context.Background(), srv.URL)

	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, 3, result.PagesCrawled)
	assert.Equal(t, model.CrawlStatusNoEmails, result.Status)
}

func TestCrawl_FailedFetchesCountAgainstBudget(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body>contact info@example.com</body></html>`))
	}))
	defer srv.Close()

	c := newTestCrawler(WithMaxPages(4))
	result := c.Crawl(context.Background(), srv.URL)

	assert.EqualValues(t, 4, hits.Load(), "404 responses still consume the budget")
	assert.Equal(t, 1, result.PagesCrawled)
	assert.Equal(t, model.CrawlStatusOK, result.Status)
}

func TestCrawl_UnreachableSite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse all connections

	c := newTestCrawler(WithMaxPages(2))
	result := c.Crawl(context.Background(), srv.URL)

	assert.Equal(t, model.CrawlStatusUnreachable, result.Status)
	assert.Zero(t, result.PagesCrawled)
	assert.Empty(t, result.Emails)
}

func TestCrawl_SlowSiteTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	c := newTestCrawler(WithMaxPages(2), WithTimeout(20*time.Millisecond))
	result := c.Crawl(context.Background(), srv.URL)

	assert.Equal(t, model.CrawlStatusTimeout, result.Status)
	assert.Zero(t, result.PagesCrawled)
}

func TestCrawl_StaysOnDomain(t *testing.T) {
	var external atomic.Int64
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		external.Add(1)
		_, _ = w.Write([]byte(`<html><body>elsewhere@other.com</body></html>`))
	}))
	defer other.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body>
			<a href="` + other.URL + `/partner">Partner site</a>
		</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCrawler(WithMaxPages(30))
	c.Crawl(context.Background(), srv.URL)

	assert.Zero(t, external.Load(), "external links are never followed")
}

func TestCrawl_SkipsNonHTMLContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body><a href="/brochure.pdf">Brochure</a></body></html>`))
	})
	mux.HandleFunc("/brochure.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 hidden@secret.com"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCrawler(WithMaxPages(30))
	result := c.Crawl(context.Background(), srv.URL)

	assert.NotContains(t, result.Emails, "hidden@secret.com")
}

func TestCrawl_InvalidWebsite(t *testing.T) {
	c := newTestCrawler()
	result := c.Crawl(context.Background(), "")
	assert.Equal(t, model.CrawlStatusUnreachable, result.Status)
}

func TestCrawl_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(siteHandler(t))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCrawler(WithMaxPages(10))
	result := c.Crawl(ctx, srv.URL)
	assert.Zero(t, result.PagesCrawled)
}
