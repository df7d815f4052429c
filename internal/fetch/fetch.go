// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch pages through /studies results. A Pager issues one request
// per Next call, follows the opaque nextPageToken and stops when a page
// arrives without one. Total counts reported by the API may drift between
// pages because the dataset can change mid-search; they are informational.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pdiddy/ctgov/internal/ctgov"
	"github.com/pdiddy/ctgov/internal/metrics"
	"github.com/pdiddy/ctgov/pkg/types"
)

// Done is returned by Pager.Next once the last page has been delivered.
var Done = errors.New("no more pages")

// Lister fetches one page of studies. *ctgov.Client implements it.
type Lister interface {
	ListStudies(ctx context.Context, params types.Params) (ctgov.StudiesPage, error)
}

// Options controls a single fetch.
type Options struct {
	// PageSize overrides any pageSize in the parameters when positive.
	PageSize int

	// PageToken resumes a previous fetch from the page it names.
	PageToken string

	// MaxPages stops the fetch after this many pages when positive.
	MaxPages int
}

// Batch is one page of results.
type Batch struct {
	// Page counts pages within this fetch, starting at 1.
	Page    int
	Studies []types.StudyRecord

	// PageToken is the token that requested this page, empty for the first.
	PageToken string

	// NextPageToken resumes after this page; empty on the last page.
	NextPageToken string

	// TotalCount is set when countTotal=true was requested.
	TotalCount *int
}

// Fetcher creates pagers over a Lister. It holds no per-fetch state, so one
// Fetcher can serve any number of concurrent fetches.
type Fetcher struct {
	src      Lister
	pageSize int
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithPageSize sets the page size used when neither the parameters nor the
// Options carry one.
func WithPageSize(n int) Option {
	return func(f *Fetcher) { f.pageSize = n }
}

// WithLogger sets the fetcher logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.log = l }
}

// WithMetrics records pages and studies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New creates a Fetcher reading from src.
func New(src Lister, opts ...Option) *Fetcher {
	f := &Fetcher{src: src, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch prepares a lazy fetch of every study matching params. Nothing is
// requested until the first Next.
func (f *Fetcher) Fetch(params types.Params, o Options) *Pager {
	params = params.Without("pageToken")
	switch {
	case o.PageSize > 0:
		params = params.With("pageSize", strconv.Itoa(o.PageSize))
	case f.pageSize > 0:
		if _, ok := params.Get("pageSize"); !ok {
			params = params.With("pageSize", strconv.Itoa(f.pageSize))
		}
	}
	p := &Pager{f: f, params: params, max: o.MaxPages, token: o.PageToken}
	if format, ok := params.Get("format"); ok && format != "json" {
		p.err = fmt.Errorf("paging requires format json, got %q", format)
	}
	return p
}

// Pager walks the pages of one fetch. It is not safe for concurrent use.
//
// Once Next returns Done the pager stays exhausted. Other errors leave the
// pager on the page that failed, so calling Next again retries it. To resume
// in a new process, start a new fetch with Options.PageToken set to a
// previously observed Batch.NextPageToken.
type Pager struct {
	f      *Fetcher
	params types.Params
	max    int

	token string
	page  int
	done  bool
	err   error
}

// Next fetches the next page. It checks ctx before each request.
func (p *Pager) Next(ctx context.Context) (Batch, error) {
	if p.err != nil {
		return Batch{}, p.err
	}
	if p.done {
		return Batch{}, Done
	}
	if p.max > 0 && p.page >= p.max {
		p.done = true
		return Batch{}, Done
	}
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	params := p.params
	if p.token != "" {
		params = params.With("pageToken", p.token)
	}

	resp, err := p.f.src.ListStudies(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return Batch{}, ctx.Err()
		}
		return Batch{}, err
	}
	if resp.NextPageToken != "" && resp.NextPageToken == p.token {
		p.err = fmt.Errorf("page %d repeated page token %q", p.page+1, p.token)
		return Batch{}, p.err
	}

	p.page++
	b := Batch{
		Page:          p.page,
		Studies:       make([]types.StudyRecord, len(resp.Studies)),
		PageToken:     p.token,
		NextPageToken: resp.NextPageToken,
		TotalCount:    resp.TotalCount,
	}
	for i, s := range resp.Studies {
		b.Studies[i] = types.NewStudyRecord(s)
	}

	p.token = resp.NextPageToken
	if p.token == "" {
		p.done = true
	}

	p.f.metrics.ObservePage(len(b.Studies))
	ev := p.f.log.Debug().Int("page", b.Page).Int("studies", len(b.Studies)).Bool("last", p.done)
	if b.TotalCount != nil {
		ev = ev.Int("total", *b.TotalCount)
	}
	ev.Msg("fetched page")
	return b, nil
}

// Token returns the token the next request will carry, empty before the
// first page and after the last.
func (p *Pager) Token() string { return p.token }

// Pages returns the number of pages delivered so far.
func (p *Pager) Pages() int { return p.page }

// All returns the remaining pages as a sequence. Iteration stops at the
// first error, which is yielded once; Done is not yielded.
func (p *Pager) All(ctx context.Context) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		for {
			b, err := p.Next(ctx)
			if errors.Is(err, Done) {
				return
			}
			if err != nil {
				yield(Batch{}, err)
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

// Collect drains p into a slice, stopping after limit studies when limit is
// positive. On error the studies gathered so far are returned with it.
func Collect(ctx context.Context, p *Pager, limit int) ([]types.StudyRecord, error) {
	var out []types.StudyRecord
	for b, err := range p.All(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, b.Studies...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
	}
	return out, nil
}
