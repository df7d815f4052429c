// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ctgov/pkg/types"
)

// Request is one independent fetch for FetchMany.
type Request struct {
	Params  types.Params
	Options Options
}

// FetchMany runs independent fetches concurrently, at most concurrency at a
// time (unbounded when zero or less). Each fetch is sequential internally.
// fn receives the request index and each batch; calls to fn never overlap.
// The first error cancels the remaining fetches and is returned.
func (f *Fetcher) FetchMany(ctx context.Context, reqs []Request, concurrency int, fn func(i int, b Batch) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	var mu sync.Mutex
	for i, req := range reqs {
		g.Go(func() error {
			p := f.Fetch(req.Params, req.Options)
			for b, err := range p.All(ctx) {
				if err != nil {
					return err
				}
				mu.Lock()
				err := fn(i, b)
				mu.Unlock()
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
