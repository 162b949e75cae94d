// Package recommendation keeps the "frequently bought with" list in step with
// the cart.
package recommendation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"go-pos-ws/internal/loop"
	"go-pos-ws/internal/model"
)

// API is the basket recommendation service.
type API interface {
	BasketSuggestions(ctx context.Context, productIDs []int64) ([]model.Suggestion, error)
}

type Fetcher struct {
	api API
	d   loop.Dispatcher
	log *zap.Logger

	// seq is the number of the latest refresh; only its response is applied.
	seq         uint64
	suggestions []model.Suggestion

	changed []func([]model.Suggestion)
	failed  []func(error)
}

func NewFetcher(api API, d loop.Dispatcher, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{api: api, d: d, log: log.Named("recommendation")}
}

func (f *Fetcher) OnChanged(fn func([]model.Suggestion)) {
	f.changed = append(f.changed, fn)
}

func (f *Fetcher) OnError(fn func(error)) {
	f.failed = append(f.failed, fn)
}

func (f *Fetcher) Suggestions() []model.Suggestion {
	return append([]model.Suggestion(nil), f.suggestions...)
}

// Refresh asks for suggestions for productIDs. An empty set clears the list
// without a request. Either way, responses to earlier refreshes are dropped.
func (f *Fetcher) Refresh(productIDs []int64) {
	f.seq++
	seq := f.seq

	if len(productIDs) == 0 {
		f.set(nil)
		return
	}

	ids := append([]int64(nil), productIDs...)
	f.d.Go(func(ctx context.Context) func() {
		suggestions, err := f.api.BasketSuggestions(ctx, ids)
		return func() {
			if seq != f.seq {
				f.log.Debug("dropping stale suggestions", zap.Uint64("seq", seq), zap.Uint64("latest", f.seq))
				return
			}
			if err != nil {
				f.log.Warn("basket suggestions failed", zap.Int64s("product_ids", ids), zap.Error(err))
				wrapped := fmt.Errorf("basket suggestions: %w", err)
				for _, fn := range f.failed {
					fn(wrapped)
				}
				return
			}
			f.set(suggestions)
		}
	})
}

func (f *Fetcher) set(suggestions []model.Suggestion) {
	f.suggestions = suggestions
	for _, fn := range f.changed {
		fn(f.Suggestions())
	}
}
