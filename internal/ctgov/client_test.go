// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ctgov

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ctgov/internal/httputil"
	"github.com/pdiddy/ctgov/internal/metrics"
	"github.com/pdiddy/ctgov/pkg/types"
)

func TestMain(m *testing.M) {
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

func testConfig(baseURL string) types.APIConfig {
	return types.APIConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 2 * time.Second, UserAgent: "ctgov-test"},
		BaseURL:    baseURL,
	}
}

func TestListStudiesSendsParamsAndHeaders(t *testing.T) {
	var gotQuery, gotUA, gotAccept, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/studies", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{"studies":[{"protocolSection":{"identificationModule":{"nctId":"NCT00000001"}}}],"nextPageToken":"t1","totalCount":42}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = "secret"
	c := NewClient(cfg)

	params := types.Params{{Key: "query.cond", Value: "heart attack"}, {Key: "pageSize", Value: "10"}}
	page, err := c.ListStudies(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, "query.cond=heart+attack&pageSize=10", gotQuery)
	assert.Equal(t, "ctgov-test", gotUA)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "secret", gotKey)

	require.Len(t, page.Studies, 1)
	assert.Equal(t, "t1", page.NextPageToken)
	require.NotNil(t, page.TotalCount)
	assert.Equal(t, 42, *page.TotalCount)
	assert.EqualValues(t, 1, c.Attempts())
}

func TestListStudiesRetriesServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"studies":[{},{}]}`))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := NewClient(testConfig(srv.URL), WithMetrics(m))

	page, err := c.ListStudies(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, page.Studies, 2)
	assert.Empty(t, page.NextPageToken)
	assert.Nil(t, page.TotalCount)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("/studies")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/studies", "ok")))
}

func TestBadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("unknown filter.overallStatus value BOGUS"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.ListStudies(context.Background(), types.Params{{Key: "filter.overallStatus", Value: "BOGUS"}})

	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "unknown filter.overallStatus value BOGUS", invalid.Message)
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
	assert.Equal(t, "filter.overallStatus=BOGUS", invalid.Query)
	assert.EqualValues(t, 1, calls.Load())
}

func TestPersistentServerErrorExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.ListStudies(context.Background(), nil)

	var transient *TransientNetworkError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusBadGateway, transient.StatusCode)
	assert.Equal(t, 3, transient.Attempts)
	assert.Equal(t, "upstream down", transient.Message)
	assert.EqualValues(t, 3, calls.Load())
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := testConfig(url)
	cfg.MaxAttempts = 2
	c := NewClient(cfg)
	_, err := c.Version(context.Background())

	var transient *TransientNetworkError
	require.ErrorAs(t, err, &transient)
	assert.Zero(t, transient.StatusCode)
	assert.Equal(t, 2, transient.Attempts)
	assert.EqualValues(t, 2, c.Attempts())
}

func TestTimeoutBecomesTimeoutError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxAttempts = 2
	c := NewClient(cfg)

	_, err := c.ListStudies(context.Background(), nil)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 2, timeout.Attempts)
	assert.Equal(t, 50*time.Millisecond, timeout.Timeout)
	assert.EqualValues(t, 2, calls.Load())
}

func TestTimeoutWhileReadingBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"studies":[`))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Write([]byte(`{"studies":[{"protocolSection":{"identificationModule":{"nctId":"NCT00000001"}}}]}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 100 * time.Millisecond
	cfg.MaxAttempts = 3
	c := NewClient(cfg)

	page, err := c.ListStudies(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, page.Studies, 1)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 2, c.Attempts())
}

func TestCancelledContextReturnsContextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"studies":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(testConfig(srv.URL))
	_, err := c.ListStudies(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMalformedBodyIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.Enums(context.Background())

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "/studies/enums", decodeErr.Endpoint)
}

func TestGetStudyNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/studies/NCT99999999", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	_, err := c.GetStudy(context.Background(), "NCT99999999", nil)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "/studies/NCT99999999", nf.Endpoint)
}

func TestGetStudyFollowsAliasRedirect(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/studies/NCT00000999" {
			http.Redirect(w, r, "/studies/NCT00000001?"+r.URL.RawQuery, http.StatusMovedPermanently)
			return
		}
		assert.Equal(t, "/studies/NCT00000001", r.URL.Path)
		assert.Equal(t, "fields=NCTId", r.URL.RawQuery)
		w.Write([]byte(`{"protocolSection":{"identificationModule":{"nctId":"NCT00000001"}}}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	rec, err := c.GetStudy(context.Background(), "NCT00000999", types.Params{{Key: "fields", Value: "NCTId"}})
	require.NoError(t, err)
	assert.Equal(t, "NCT00000001", rec.NCTID)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, c.Attempts())
}

func TestGetStudyCachesAndKeepsNumbers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{
			"protocolSection": {
				"identificationModule": {"nctId": "NCT01234567", "briefTitle": "Aspirin After MI"},
				"statusModule": {"overallStatus": "COMPLETED"},
				"designModule": {"enrollmentInfo": {"count": 12345678901234567890}}
			},
			"hasResults": true
		}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.CacheSize = 8
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := NewClient(cfg, WithMetrics(m))

	for i := 0; i < 2; i++ {
		rec, err := c.GetStudy(context.Background(), "NCT01234567", nil)
		require.NoError(t, err)
		assert.Equal(t, "NCT01234567", rec.NCTID)
		assert.Equal(t, "Aspirin After MI", rec.BriefTitle)
		assert.Equal(t, "COMPLETED", rec.OverallStatus)
		assert.True(t, rec.HasResults)

		v, ok := rec.Lookup("protocolSection.designModule.enrollmentInfo.count")
		require.True(t, ok)
		assert.Equal(t, json.Number("12345678901234567890"), v)
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
}

func TestGetStudyRejectsNonJSONFormat(t *testing.T) {
	c := NewClient(testConfig("http://127.0.0.1:1"))
	_, err := c.GetStudy(context.Background(), "NCT01234567", types.Params{{Key: "format", Value: "csv"}})
	require.Error(t, err)
	assert.Zero(t, c.Attempts())

	_, err = c.GetStudy(context.Background(), "  ", nil)
	require.Error(t, err)
}

func TestMetadataFlags(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"name":"protocolSection","piece":"ProtocolSection","sourceType":"STRUCT","type":"ProtocolSection","children":[{"name":"statusModule","piece":"StatusModule","sourceType":"STRUCT","type":"StatusModule"}]}]`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	fields, err := c.Metadata(context.Background(), true, false)
	require.NoError(t, err)
	assert.Equal(t, "includeIndexedOnly=true", gotQuery)
	require.Len(t, fields, 1)
	assert.Equal(t, "protocolSection", fields[0].Name)
	require.Len(t, fields[0].Children, 1)
	assert.Equal(t, "StatusModule", fields[0].Children[0].Piece)
}

func TestFieldValuesStatsEncodesCommaLists(t *testing.T) {
	var gotFields, gotTypes string
	var hasTypes bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats/field/values", r.URL.Path)
		q := r.URL.Query()
		gotFields = q.Get("fields")
		gotTypes = q.Get("types")
		_, hasTypes = q["types"]
		w.Write([]byte(`[{"field":"OverallStatus","piece":"OverallStatus","type":"ENUM","missingStudiesCount":0,"uniqueValuesCount":2,"topValues":[{"value":"COMPLETED","studiesCount":10}]}]`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	stats, err := c.FieldValuesStats(context.Background(), FieldValuesQuery{Fields: []string{"OverallStatus", "Phase"}})
	require.NoError(t, err)
	assert.Equal(t, "OverallStatus,Phase", gotFields)
	assert.Empty(t, gotTypes)
	assert.False(t, hasTypes)

	require.Len(t, stats, 1)
	assert.Equal(t, types.FieldEnum, stats[0].Type)
	assert.Equal(t, int64(10), stats[0].TopValues[0].StudiesCount)
}

func TestVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"apiVersion":"2.0.3","dataTimestamp":"2026-10-18T09:00:05"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL + "/"))
	assert.Equal(t, srv.URL, c.BaseURL())

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.0.3", v.APIVersion)
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := error(&TransientNetworkError{Endpoint: "/studies", Attempts: 3, Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}
