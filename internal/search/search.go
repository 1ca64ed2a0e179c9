// Package search layers caching, rate limiting and retries over the raw
// Places client. Every page and every detail fetch is cache-aside: a warm
// store answers without a billed call, and a resumed run replays prior
// pages from disk.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/internal/resilience"
	"github.com/sells-group/lead-engine/internal/store"
	"github.com/sells-group/lead-engine/pkg/places"
	"github.com/sells-group/lead-engine/pkg/ratelimit"
)

// MaxPages is the hard ceiling on text search pages per pair; the API
// stops issuing tokens after the third page.
const MaxPages = 3

// tokenSettleDelay is how long a fresh next_page_token needs before the
// backend will accept it. Requesting earlier returns INVALID_REQUEST.
const tokenSettleDelay = 2 * time.Second

// Client runs cached searches and detail fetches.
type Client struct {
	api      places.Client
	store    store.Store
	limiter  *ratelimit.Limiter
	maxPages int
	settle   time.Duration
	retry    resilience.RetryConfig

	apiCalls  atomic.Int64
	cacheHits atomic.Int64
}

// New creates a search client. maxPages is clamped to [1, MaxPages].
func New(api places.Client, st store.Store, limiter *ratelimit.Limiter, maxPages int, retry resilience.RetryConfig) *Client {
	if maxPages < 1 {
		maxPages = 1
	}
	if maxPages > MaxPages {
		maxPages = MaxPages
	}
	return &Client{
		api:      api,
		store:    st,
		limiter:  limiter,
		maxPages: maxPages,
		settle:   tokenSettleDelay,
		retry:    retry,
	}
}

// PairResult holds everything discovered for one (query, location) pair.
type PairResult struct {
	Results []places.SearchResult
	Pages   int
	// FailedPages counts pages that were recorded in the failure ledger.
	FailedPages int
}

// PageKey is the failure-ledger key for one search page.
func PageKey(query, location string, page int) string {
	return fmt.Sprintf("%s|%s|%d", query, location, page)
}

// SearchPair fetches up to maxPages of results for one query/location
// pair, following next-page tokens. limit > 0 stops fetching further
// pages once that many candidates have been observed. A page that fails
// permanently (or exhausts retries) is recorded in the failure ledger
// and ends the pair with whatever was gathered; a misconfiguration error
// aborts the run.
func (c *Client) SearchPair(ctx context.Context, runID, query, location string, limit int) (*PairResult, error) {
	pair := &PairResult{}

	token := ""
	for page := 0; page < c.maxPages; page++ {
		resp, err := c.fetchPage(ctx, query, location, page, token)
		if err != nil {
			if resilience.IsMisconfig(err) || ctx.Err() != nil {
				return pair, err
			}
			zap.L().Warn("search page failed",
				zap.String("query", query),
				zap.String("location", location),
				zap.Int("page", page),
				zap.Error(err))
			if rerr := c.store.RecordFailure(ctx, store.KindSearchPage, PageKey(query, location, page), err.Error()); rerr != nil {
				return pair, rerr
			}
			pair.FailedPages++
			return pair, nil
		}

		pair.Results = append(pair.Results, resp.Results...)
		pair.Pages++
		if err := c.store.MarkPageDone(ctx, runID, query, location, page); err != nil {
			return pair, err
		}

		token = resp.NextPageToken
		if token == "" {
			break
		}
		if limit > 0 && len(pair.Results) >= limit {
			break
		}
	}

	return pair, nil
}

func (c *Client) fetchPage(ctx context.Context, query, location string, page int, token string) (*places.TextSearchResponse, error) {
	payload, err := c.store.GetSearchPage(ctx, query, location, page)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		c.cacheHits.Add(1)
		var resp places.TextSearchResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, eris.Wrapf(err, "search: decode cached page %s", PageKey(query, location, page))
		}
		resp.Raw = payload
		return &resp, nil
	}

	if token != "" {
		if err := sleepCtx(ctx, c.settle); err != nil {
			return nil, err
		}
	}

	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*places.TextSearchResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		c.apiCalls.Add(1)
		return c.api.TextSearch(ctx, query, location, token)
	})
	if err != nil {
		return nil, err
	}

	if err := c.store.PutSearchPage(ctx, query, location, page, resp.Raw); err != nil {
		return nil, err
	}
	return resp, nil
}

// FetchDetail returns the enriched record for one place, cache first. A
// permanent failure is recorded in the ledger and reported as a nil
// record without error; misconfiguration aborts.
func (c *Client) FetchDetail(ctx context.Context, res places.SearchResult, query, location string) (*model.PlaceRecord, error) {
	rec, err := c.store.GetPlace(ctx, res.PlaceID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		c.cacheHits.Add(1)
		return rec, nil
	}

	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*places.DetailsResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		c.apiCalls.Add(1)
		return c.api.Details(ctx, res.PlaceID)
	})
	if err != nil {
		if resilience.IsMisconfig(err) || ctx.Err() != nil {
			return nil, err
		}
		zap.L().Warn("place detail failed",
			zap.String("place_id", res.PlaceID),
			zap.Error(err))
		if rerr := c.store.RecordFailure(ctx, store.KindPlaceDetail, res.PlaceID, err.Error()); rerr != nil {
			return nil, rerr
		}
		return nil, nil
	}

	d := resp.Result
	rec = &model.PlaceRecord{
		PlaceID:            d.PlaceID,
		Name:               d.Name,
		Address:            d.FormattedAddress,
		Phone:              d.FormattedPhoneNumber,
		InternationalPhone: d.InternationalPhoneNumber,
		Website:            d.Website,
		Types:              d.Types,
		Rating:             d.Rating,
		UserRatingsTotal:   d.UserRatingsTotal,
		SourceQuery:        query,
		SourceLocation:     location,
		FetchedAt:          time.Now().UTC(),
	}
	// The details payload can omit the id; fall back to the search result.
	if rec.PlaceID == "" {
		rec.PlaceID = res.PlaceID
	}
	if rec.Name == "" {
		rec.Name = res.Name
	}
	if rec.Address == "" {
		rec.Address = res.FormattedAddress
	}

	if err := c.store.PutPlace(ctx, rec, resp.Raw); err != nil {
		return nil, err
	}
	return rec, nil
}

// APICalls reports billed calls issued so far.
func (c *Client) APICalls() int64 { return c.apiCalls.Load() }

// CacheHits reports page and detail lookups served from the store.
func (c *Client) CacheHits() int64 { return c.cacheHits.Load() }

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
