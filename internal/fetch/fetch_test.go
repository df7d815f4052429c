// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/ctgov/internal/ctgov"
	"github.com/pdiddy/ctgov/internal/httputil"
	"github.com/pdiddy/ctgov/internal/metrics"
	"github.com/pdiddy/ctgov/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

type listerFunc func(ctx context.Context, params types.Params) (ctgov.StudiesPage, error)

func (f listerFunc) ListStudies(ctx context.Context, params types.Params) (ctgov.StudiesPage, error) {
	return f(ctx, params)
}

func study(id string) map[string]any {
	return map[string]any{
		"protocolSection": map[string]any{
			"identificationModule": map[string]any{"nctId": id},
		},
	}
}

// scripted serves pages keyed by the incoming page token and records every
// request.
type scripted struct {
	mu    sync.Mutex
	pages map[string]ctgov.StudiesPage
	calls []types.Params
}

func (s *scripted) ListStudies(_ context.Context, params types.Params) (ctgov.StudiesPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, params)
	tok, _ := params.Get("pageToken")
	page, ok := s.pages[tok]
	if !ok {
		return ctgov.StudiesPage{}, fmt.Errorf("no page for token %q", tok)
	}
	return page, nil
}

func threePages() *scripted {
	total := 5
	return &scripted{pages: map[string]ctgov.StudiesPage{
		"":   {Studies: []map[string]any{study("NCT00000001"), study("NCT00000002")}, NextPageToken: "t1", TotalCount: &total},
		"t1": {Studies: []map[string]any{study("NCT00000003"), study("NCT00000004")}, NextPageToken: "t2"},
		"t2": {Studies: []map[string]any{study("NCT00000005")}},
	}}
}

func ids(b Batch) []string {
	out := make([]string, len(b.Studies))
	for i, s := range b.Studies {
		out[i] = s.NCTID
	}
	return out
}

func TestThreePagesThenDone(t *testing.T) {
	src := threePages()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := New(src, WithMetrics(m)).Fetch(types.Params{{Key: "query.cond", Value: "asthma"}}, Options{})
	ctx := context.Background()

	assert.Empty(t, src.calls, "fetch must be lazy")

	b1, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, b1.Page)
	assert.Equal(t, []string{"NCT00000001", "NCT00000002"}, ids(b1))
	assert.Empty(t, b1.PageToken)
	assert.Equal(t, "t1", b1.NextPageToken)
	require.NotNil(t, b1.TotalCount)
	assert.Equal(t, 5, *b1.TotalCount)

	b2, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, b2.Page)
	assert.Equal(t, "t1", b2.PageToken)
	assert.Equal(t, []string{"NCT00000003", "NCT00000004"}, ids(b2))

	b3, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, b3.Page)
	assert.Empty(t, b3.NextPageToken)
	assert.Equal(t, []string{"NCT00000005"}, ids(b3))

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, Done)
	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, Done)

	require.Len(t, src.calls, 3)
	_, hasToken := src.calls[0].Get("pageToken")
	assert.False(t, hasToken)
	tok, _ := src.calls[1].Get("pageToken")
	assert.Equal(t, "t1", tok)
	tok, _ = src.calls[2].Get("pageToken")
	assert.Equal(t, "t2", tok)
	for _, c := range src.calls {
		v, _ := c.Get("query.cond")
		assert.Equal(t, "asthma", v)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.PagesTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.StudiesTotal))
}

func TestAllYieldsBatchesInOrder(t *testing.T) {
	p := New(threePages()).Fetch(nil, Options{})

	var pages []int
	for b, err := range p.All(context.Background()) {
		require.NoError(t, err)
		pages = append(pages, b.Page)
	}
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestAllStopsWhenCallerBreaks(t *testing.T) {
	src := threePages()
	p := New(src).Fetch(nil, Options{})

	for range p.All(context.Background()) {
		break
	}
	assert.Len(t, src.calls, 1)
	assert.Equal(t, "t1", p.Token())
}

func TestResumeFromToken(t *testing.T) {
	src := threePages()
	p := New(src).Fetch(nil, Options{PageToken: "t2"})

	b, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t2", b.PageToken)
	assert.Equal(t, []string{"NCT00000005"}, ids(b))

	_, err = p.Next(context.Background())
	assert.ErrorIs(t, err, Done)
}

func TestCallerPageTokenParamIsIgnored(t *testing.T) {
	src := threePages()
	p := New(src).Fetch(types.Params{{Key: "pageToken", Value: "t2"}}, Options{})

	b, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Page)
	assert.Equal(t, "t1", b.NextPageToken)
}

func TestMaxPages(t *testing.T) {
	src := threePages()
	p := New(src).Fetch(nil, Options{MaxPages: 2})

	recs, err := Collect(context.Background(), p, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 4)
	assert.Len(t, src.calls, 2)
	assert.Equal(t, 2, p.Pages())
}

func TestCollectLimit(t *testing.T) {
	src := threePages()
	recs, err := Collect(context.Background(), New(src).Fetch(nil, Options{}), 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "NCT00000003", recs[2].NCTID)
	assert.Len(t, src.calls, 2)
}

func TestPageSizeResolution(t *testing.T) {
	src := threePages()
	f := New(src, WithPageSize(100))
	ctx := context.Background()

	_, err := f.Fetch(nil, Options{}).Next(ctx)
	require.NoError(t, err)
	_, err = f.Fetch(types.Params{{Key: "pageSize", Value: "20"}}, Options{}).Next(ctx)
	require.NoError(t, err)
	_, err = f.Fetch(types.Params{{Key: "pageSize", Value: "20"}}, Options{PageSize: 5}).Next(ctx)
	require.NoError(t, err)

	var got []string
	for _, c := range src.calls {
		v, _ := c.Get("pageSize")
		got = append(got, v)
	}
	assert.Equal(t, []string{"100", "20", "5"}, got)
}

func TestNonJSONFormatRejected(t *testing.T) {
	src := threePages()
	p := New(src).Fetch(types.Params{{Key: "format", Value: "csv"}}, Options{})

	_, err := p.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format json")
	assert.Empty(t, src.calls)
}

func TestRepeatedTokenStops(t *testing.T) {
	src := &scripted{pages: map[string]ctgov.StudiesPage{
		"":     {Studies: []map[string]any{study("NCT1")}, NextPageToken: "loop"},
		"loop": {Studies: []map[string]any{study("NCT2")}, NextPageToken: "loop"},
	}}
	p := New(src).Fetch(nil, Options{})
	ctx := context.Background()

	_, err := p.Next(ctx)
	require.NoError(t, err)
	_, err = p.Next(ctx)
	require.Error(t, err)
	_, again := p.Next(ctx)
	assert.Equal(t, err, again)
	assert.Len(t, src.calls, 2)
}

func TestCancellationBetweenPages(t *testing.T) {
	src := threePages()
	p := New(src).Fetch(nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	b1, err := p.Next(ctx)
	require.NoError(t, err)
	cancel()

	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.calls, 1)

	// Yielded batches stay intact and the pager resumes with a fresh context.
	assert.Equal(t, []string{"NCT00000001", "NCT00000002"}, ids(b1))
	b2, err := p.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, b2.Page)
}

func TestCancellationDuringRequestOverHTTP(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.Write([]byte(`{"studies":[{}],"nextPageToken":"t1"}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	client := ctgov.NewClient(types.APIConfig{BaseURL: srv.URL}, ctgov.WithHTTPClient(srv.Client()))
	p := New(client).Fetch(nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := p.Next(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRetryThenSuccessOverHTTP(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"studies":[{"protocolSection":{"identificationModule":{"nctId":"NCT00000001"}}}]}`))
	}))
	defer srv.Close()

	client := ctgov.NewClient(types.APIConfig{BaseURL: srv.URL}, ctgov.WithHTTPClient(srv.Client()))
	p := New(client).Fetch(nil, Options{})

	var batches []Batch
	for b, err := range p.All(context.Background()) {
		require.NoError(t, err)
		batches = append(batches, b)
	}
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"NCT00000001"}, ids(batches[0]))
	assert.EqualValues(t, 2, calls.Load())
}

func TestBadRequestOverHTTP(t *testing.T) {
	const msg = "Unknown field 'NotARealField' in fields parameter"
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, msg, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := ctgov.NewClient(types.APIConfig{BaseURL: srv.URL}, ctgov.WithHTTPClient(srv.Client()))
	p := New(client).Fetch(types.Params{{Key: "fields", Value: "NotARealField"}}, Options{})

	_, err := p.Next(context.Background())
	var invalid *ctgov.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, msg+"\n", invalid.Message)
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchManyRunsIndependentFetches(t *testing.T) {
	var calls atomic.Int32
	src := listerFunc(func(_ context.Context, params types.Params) (ctgov.StudiesPage, error) {
		calls.Add(1)
		cond, _ := params.Get("query.cond")
		tok, _ := params.Get("pageToken")
		if tok == "" {
			return ctgov.StudiesPage{Studies: []map[string]any{study(cond + "-1")}, NextPageToken: "next"}, nil
		}
		return ctgov.StudiesPage{Studies: []map[string]any{study(cond + "-2")}}, nil
	})

	reqs := []Request{
		{Params: types.Params{{Key: "query.cond", Value: "a"}}},
		{Params: types.Params{{Key: "query.cond", Value: "b"}}},
		{Params: types.Params{{Key: "query.cond", Value: "c"}}},
	}
	got := make(map[int][]string)
	err := New(src).FetchMany(context.Background(), reqs, 2, func(i int, b Batch) error {
		got[i] = append(got[i], ids(b)...)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a-1", "a-2"}, got[0])
	assert.Equal(t, []string{"b-1", "b-2"}, got[1])
	assert.Equal(t, []string{"c-1", "c-2"}, got[2])
	assert.EqualValues(t, 6, calls.Load())
}

func TestFetchManyStopsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	src := listerFunc(func(ctx context.Context, params types.Params) (ctgov.StudiesPage, error) {
		if cond, _ := params.Get("query.cond"); cond == "bad" {
			return ctgov.StudiesPage{}, boom
		}
		return ctgov.StudiesPage{Studies: []map[string]any{study("ok")}}, nil
	})

	reqs := []Request{
		{Params: types.Params{{Key: "query.cond", Value: "good"}}},
		{Params: types.Params{{Key: "query.cond", Value: "bad"}}},
	}
	err := New(src).FetchMany(context.Background(), reqs, 0, func(int, Batch) error { return nil })
	assert.ErrorIs(t, err, boom)
}
