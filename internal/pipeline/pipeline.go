// Package pipeline orchestrates a lead generation run: discover places
// for each query/location pair, enrich them with details, crawl their
// websites for contact emails, and fold everything into a deduplicated
// lead set. Every stage reads through the store, so a resumed or
// replayed run does the minimum work the cache allows.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/dedupe"
	"github.com/sells-group/lead-engine/internal/extract"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/search"
	"github.com/sells-group/lead-engine/internal/store"
)

// Pair is one query/location unit of work.
type Pair struct {
	Query    string `json:"query"`
	Location string `json:"location"`
}

// pair states, logged as each unit moves through the run.
const (
	statePending   = "PENDING"
	stateSearching = "SEARCHING"
	stateEnriching = "ENRICHING"
	stateCrawling  = "CRAWLING"
	stateFolding   = "FOLDING"
	stateDone      = "DONE"
)

// Result is everything a run produced.
type Result struct {
	RunID   string           `json:"run_id"`
	Leads   []*model.Lead    `json:"leads"`
	Summary model.RunSummary `json:"summary"`
}

// Crawler is the subset of the crawl package the pipeline needs.
type Crawler interface {
	Crawl(ctx context.Context, website string) *model.CrawlResult
}

// Pipeline wires the run stages together.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	search  *search.Client
	crawler Crawler
}

// New creates a pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, searchClient *search.Client, crawler Crawler) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		search:  searchClient,
		crawler: crawler,
	}
}

// RunID derives a stable identifier from the ordered pair list, so a
// resumed invocation with the same inputs lands on the same progress
// rows. A non-resumable run gets a fresh random id.
func RunID(pairs []Pair, resume bool) string {
	if !resume {
		return uuid.New().String()
	}
	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p.Query))
		h.Write([]byte{'|'})
		h.Write([]byte(p.Location))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Run processes every pair and returns the deduplicated leads plus a
// summary. A misconfiguration error (bad API key) aborts immediately;
// every other failure is recorded and skips only its own unit.
func (p *Pipeline) Run(ctx context.Context, pairs []Pair) (*Result, error) {
	runID := p.cfg.Pipeline.RunID
	if runID == "" {
		runID = RunID(pairs, p.cfg.Pipeline.Resume)
	}
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("run starting",
		zap.Int("pairs", len(pairs)),
		zap.Bool("resume", p.cfg.Pipeline.Resume),
		zap.Bool("crawl", !p.cfg.Crawl.Disabled))

	result := &Result{RunID: runID}
	result.Summary.FailuresByReason = make(map[string]int)
	dedup := dedupe.New()

	observed := 0
	for _, pair := range pairs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if p.cfg.Search.MaxResults > 0 && observed >= p.cfg.Search.MaxResults {
			log.Info("result cap reached, stopping pair fetches",
				zap.Int("max_results", p.cfg.Search.MaxResults))
			break
		}

		n, err := p.runPair(ctx, runID, pair, dedup, &result.Summary, observed)
		if err != nil {
			p.finish(result, dedup)
			return result, err
		}
		observed += n
		result.Summary.Pairs++
	}

	p.finish(result, dedup)
	log.Info("run complete",
		zap.Int("leads", result.Summary.Leads),
		zap.Int("api_calls", result.Summary.APICalls),
		zap.Int("cache_hits", result.Summary.CacheHits))
	return result, nil
}

func (p *Pipeline) runPair(
	ctx context.Context,
	runID string,
	pair Pair,
	dedup *dedupe.Deduplicator,
	summary *model.RunSummary,
	observed int,
) (int, error) {
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("query", pair.Query),
		zap.String("location", pair.Location))
	log.Debug("pair state", zap.String("state", statePending))

	if p.cfg.Pipeline.Resume {
		done, err := p.store.IsPageDone(ctx, runID, pair.Query, pair.Location, store.PairDonePage)
		if err != nil {
			log.Warn("progress lookup failed, treating pair as pending", zap.Error(err))
		} else if done {
			summary.PairsSkipped++
			log.Info("pair already complete, replaying from cache")
		}
	}

	limit := 0
	if p.cfg.Search.MaxResults > 0 {
		limit = p.cfg.Search.MaxResults - observed
	}

	log.Debug("pair state", zap.String("state", stateSearching))
	pageRes, err := p.search.SearchPair(ctx, runID, pair.Query, pair.Location, limit)
	if err != nil {
		return 0, err
	}
	summary.FailuresByReason[store.KindSearchPage] += pageRes.FailedPages

	candidates := pageRes.Results
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	log.Info("pair searched",
		zap.Int("pages", pageRes.Pages),
		zap.Int("candidates", len(candidates)))

	log.Debug("pair state", zap.String("state", stateEnriching))
	records := make([]*model.PlaceRecord, 0, len(candidates))
	for _, cand := range candidates {
		if ctx.Err() != nil {
			return len(candidates), ctx.Err()
		}
		if p.cfg.Pipeline.Resume && cand.PlaceID != "" {
			done, err := p.store.IsPlaceDone(ctx, runID, cand.PlaceID)
			if err != nil {
				log.Warn("place progress lookup failed, treating as pending", zap.Error(err))
			} else if done {
				// Already enriched in this run; replay the cached record so
				// the fold rebuilds without touching the enrichment path.
				rec, err := p.store.GetPlace(ctx, cand.PlaceID)
				if err != nil {
					log.Warn("cached place read failed, re-enriching", zap.Error(err))
				} else if rec != nil {
					summary.PlacesSkipped++
					records = append(records, rec)
					continue
				}
			}
		}
		rec, err := p.search.FetchDetail(ctx, cand, pair.Query, pair.Location)
		if err != nil {
			return len(candidates), err
		}
		if rec == nil {
			summary.FailuresByReason[store.KindPlaceDetail]++
			continue
		}
		records = append(records, rec)
	}
	summary.PlacesFetched += len(records)

	var crawls map[string]*model.CrawlResult
	if !p.cfg.Crawl.Disabled {
		log.Debug("pair state", zap.String("state", stateCrawling))
		crawls, err = p.crawlDomains(ctx, records, summary)
		if err != nil {
			return len(candidates), err
		}
	}

	log.Debug("pair state", zap.String("state", stateFolding))
	for _, rec := range records {
		lead := p.buildLead(rec, crawls)
		dedup.Fold(lead)
		if err := p.store.MarkPlaceDone(ctx, runID, rec.PlaceID); err != nil {
			log.Warn("mark place done failed", zap.Error(err))
		}
	}

	if err := p.store.MarkPageDone(ctx, runID, pair.Query, pair.Location, store.PairDonePage); err != nil {
		log.Warn("mark pair done failed", zap.Error(err))
	}
	log.Debug("pair state", zap.String("state", stateDone))
	return len(candidates), nil
}

// crawlDomains runs the bounded crawl pool over the unique domains in
// this batch of records. Results come back keyed by normalized domain.
func (p *Pipeline) crawlDomains(ctx context.Context, records []*model.PlaceRecord, summary *model.RunSummary) (map[string]*model.CrawlResult, error) {
	websites := make(map[string]string)
	for _, rec := range records {
		if rec.Website == "" {
			continue
		}
		domain := extract.Domain(rec.Website)
		if domain == "" {
			continue
		}
		if _, seen := websites[domain]; !seen {
			websites[domain] = rec.Website
		}
	}

	var mu sync.Mutex
	crawls := make(map[string]*model.CrawlResult, len(websites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Crawl.Concurrency)
	for domain, website := range websites {
		domain, website := domain, website
		g.Go(func() error {
			cached, err := p.store.GetCrawl(gctx, domain)
			if err != nil {
				// A corrupted entry degrades to a miss, never an abort.
				zap.L().Warn("crawl cache read failed",
					zap.String("domain", domain),
					zap.Error(err))
			}

			var result *model.CrawlResult
			hit := cached != nil
			if hit {
				result = cached
			} else {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				result = p.crawler.Crawl(gctx, website)
				if err := p.store.PutCrawl(gctx, result); err != nil {
					zap.L().Warn("crawl cache write failed",
						zap.String("domain", domain),
						zap.Error(err))
				}
			}

			mu.Lock()
			defer mu.Unlock()
			crawls[domain] = result
			if hit {
				summary.CacheHits++
			} else {
				summary.DomainsCrawled++
			}
			switch result.Status {
			case model.CrawlStatusTimeout, model.CrawlStatusUnreachable:
				summary.FailuresByReason["crawl-"+string(result.Status)]++
				if !hit {
					if err := p.store.RecordFailure(gctx, store.KindCrawl, domain, string(result.Status)); err != nil {
						zap.L().Warn("record crawl failure failed",
							zap.String("domain", domain),
							zap.Error(err))
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return crawls, err
	}
	return crawls, nil
}

// buildLead assembles the output record for one enriched place.
func (p *Pipeline) buildLead(rec *model.PlaceRecord, crawls map[string]*model.CrawlResult) *model.Lead {
	city, state, postal, country := model.ParseAddress(rec.Address)
	domain := extract.Domain(rec.Website)

	lead := &model.Lead{
		PlaceID:            rec.PlaceID,
		Name:               rec.Name,
		Address:            rec.Address,
		City:               city,
		State:              state,
		PostalCode:         postal,
		Country:            country,
		Phone:              rec.Phone,
		InternationalPhone: rec.InternationalPhone,
		Website:            rec.Website,
		Emails:             []string{},
		Types:              rec.Types,
		Rating:             rec.Rating,
		UserRatingsTotal:   rec.UserRatingsTotal,
		Domain:             domain,
		SourceQuery:        rec.SourceQuery,
		SourceLocation:     rec.SourceLocation,
		FetchedAt:          rec.FetchedAt.UTC().Format(time.RFC3339),
	}

	if cr, ok := crawls[domain]; ok && cr != nil && len(cr.Emails) > 0 {
		lead.Emails = append(lead.Emails, cr.Emails...)
		lead.EmailQuality = make(map[string]model.EmailQuality, len(cr.EmailQuality))
		for email, quality := range cr.EmailQuality {
			lead.EmailQuality[email] = quality
		}
	}
	return lead
}

// finish fills the derived summary fields from the dedup state.
func (p *Pipeline) finish(result *Result, dedup *dedupe.Deduplicator) {
	result.Leads = dedup.Leads()
	stats := dedup.Stats()

	result.Summary.Leads = len(result.Leads)
	result.Summary.DuplicatesByPlaceID = stats.DuplicatesByPlace
	result.Summary.DuplicatesByPhone = stats.DuplicatesByPhone
	result.Summary.DuplicatesByDomain = stats.DuplicatesByDomain
	result.Summary.APICalls = int(p.search.APICalls())
	result.Summary.CacheHits += int(p.search.CacheHits())

	emails := make(map[string]bool)
	for _, lead := range result.Leads {
		for _, email := range lead.Emails {
			emails[email] = true
		}
	}
	result.Summary.EmailsFound = len(emails)

	if len(result.Summary.FailuresByReason) == 0 {
		result.Summary.FailuresByReason = nil
	}
}

// ParsePairs turns CLI query specs into pairs. Each spec is either
// "query" (location applied from the shared flag) or "query|location".
func ParsePairs(specs []string, sharedLocation string) []Pair {
	pairs := make([]Pair, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if q, l, found := strings.Cut(spec, "|"); found {
			pairs = append(pairs, Pair{Query: strings.TrimSpace(q), Location: strings.TrimSpace(l)})
		} else {
			pairs = append(pairs, Pair{Query: spec, Location: sharedLocation})
		}
	}
	return pairs
}
