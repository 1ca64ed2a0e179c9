package store

import (
	"context"

	"github.com/sells-group/lead-engine/internal/model"
)

// NopStore backs --no-cache mode: every get misses, every put is a no-op,
// nothing is ever done. Trades durability for a clean run.
type NopStore struct{}

// NewNop returns a NopStore.
func NewNop() *NopStore { return &NopStore{} }

func (*NopStore) GetPlace(context.Context, string) (*model.PlaceRecord, error) { return nil, nil }

func (*NopStore) PutPlace(context.Context, *model.PlaceRecord, []byte) error { return nil }

func (*NopStore) GetSearchPage(context.Context, string, string, int) ([]byte, error) {
	return nil, nil
}

func (*NopStore) PutSearchPage(context.Context, string, string, int, []byte) error { return nil }

func (*NopStore) GetCrawl(context.Context, string) (*model.CrawlResult, error) { return nil, nil }

func (*NopStore) PutCrawl(context.Context, *model.CrawlResult) error { return nil }

func (*NopStore) RecordFailure(context.Context, string, string, string) error { return nil }

func (*NopStore) ListFailures(context.Context, string) ([]Failure, error) { return nil, nil }

func (*NopStore) ClearFailures(context.Context, string) error { return nil }

func (*NopStore) IsPageDone(context.Context, string, string, string, int) (bool, error) {
	return false, nil
}

func (*NopStore) MarkPageDone(context.Context, string, string, string, int) error { return nil }

func (*NopStore) IsPlaceDone(context.Context, string, string) (bool, error) { return false, nil }

func (*NopStore) MarkPlaceDone(context.Context, string, string) error { return nil }

func (*NopStore) Stats(context.Context) (*Stats, error) { return &Stats{}, nil }

func (*NopStore) Migrate(context.Context) error { return nil }

func (*NopStore) Close() error { return nil }
