// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ctgov/internal/ctgov"
	"github.com/pdiddy/ctgov/internal/schema"
	"github.com/pdiddy/ctgov/pkg/types"
)

const metadataJSON = `[
  {"name":"protocolSection","piece":"ProtocolSection","sourceType":"STRUCT","type":"ProtocolSection","children":[
    {"name":"identificationModule","piece":"IdentificationModule","sourceType":"STRUCT","type":"IdentificationModule","children":[
      {"name":"nctId","piece":"NCTId","sourceType":"STRING","type":"nct"},
      {"name":"briefTitle","piece":"BriefTitle","sourceType":"STRING","type":"text","maxChars":300}
    ]},
    {"name":"statusModule","piece":"StatusModule","sourceType":"STRUCT","type":"StatusModule","children":[
      {"name":"overallStatus","piece":"OverallStatus","sourceType":"ENUM","type":"Status","isEnum":true}
    ]},
    {"name":"designModule","piece":"DesignModule","sourceType":"STRUCT","type":"DesignModule","children":[
      {"name":"phases","piece":"Phase","sourceType":"ENUM","type":"Phase[]","isEnum":true}
    ]}
  ]},
  {"name":"hasResults","piece":"HasResults","sourceType":"BOOLEAN","type":"boolean"}
]`

const enumsJSON = `[
  {"type":"Status","pieces":["OverallStatus"],"values":[
    {"value":"RECRUITING","legacyValue":"Recruiting"},
    {"value":"COMPLETED","legacyValue":"Completed"}
  ]},
  {"type":"Phase","pieces":["Phase"],"values":[
    {"value":"NA","legacyValue":"Not Applicable","exceptions":{"Phase":"N/A"}},
    {"value":"PHASE1","legacyValue":"Phase 1"},
    {"value":"PHASE2","legacyValue":"Phase 2"}
  ]}
]`

const areasJSON = `[
  {"name":"Study","areas":[
    {"name":"BasicSearch","uiLabel":"Other terms","param":"term","parts":[{"weight":1,"pieces":["BriefTitle"]}]},
    {"name":"ConditionSearch","uiLabel":"Conditions or disease","param":"cond","parts":[{"weight":0.95,"isSynonyms":true,"pieces":["Condition"]}]}
  ]}
]`

// schemaServer serves the three schema endpoints and counts every other
// request.
func schemaServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var studyCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/studies/metadata":
			w.Write([]byte(metadataJSON))
		case "/studies/enums":
			w.Write([]byte(enumsJSON))
		case "/studies/search-areas":
			w.Write([]byte(areasJSON))
		default:
			studyCalls.Add(1)
			w.Write([]byte(`{"studies":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &studyCalls
}

func liveRegistry(t *testing.T) (*schema.Registry, *atomic.Int32) {
	t.Helper()
	srv, calls := schemaServer(t)
	client := ctgov.NewClient(types.APIConfig{BaseURL: srv.URL})
	return schema.New(client), calls
}

func TestUnknownFieldFailsBeforeAnyNetworkCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	reg, err := schema.NewStatic(nil, nil, nil)
	require.NoError(t, err)

	b := NewBuilder(reg)
	err = b.AddFieldProjection(context.Background(), "NotARealField")

	var unknown *schema.UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "NotARealField", unknown.Path)
	assert.Empty(t, b.Build())
	assert.Zero(t, calls.Load())
}

func TestUnknownFieldNeverReachesStudiesEndpoint(t *testing.T) {
	reg, studyCalls := liveRegistry(t)
	b := NewBuilder(reg)

	err := b.AddFieldProjection(context.Background(), "NCTId", "NotARealField")
	var unknown *schema.UnknownFieldError
	require.ErrorAs(t, err, &unknown)

	// A failed projection is atomic: NCTId was not added either.
	assert.Empty(t, b.Fields())
	assert.Zero(t, studyCalls.Load())
}

func TestFieldProjectionExpandsAndDedupes(t *testing.T) {
	reg, _ := liveRegistry(t)
	b := NewBuilder(reg)
	ctx := context.Background()

	require.NoError(t, b.AddFieldProjection(ctx, "protocolSection.identificationModule"))
	require.NoError(t, b.AddFieldProjection(ctx, "NCTId", "hasResults"))

	want := []string{
		"protocolSection.identificationModule.nctId",
		"protocolSection.identificationModule.briefTitle",
		"hasResults",
	}
	if diff := cmp.Diff(want, b.Fields()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	v, ok := b.Build().Get(ParamFields)
	require.True(t, ok)
	assert.Equal(t, "protocolSection.identificationModule.nctId,protocolSection.identificationModule.briefTitle,hasResults", v)
}

func TestAreaFilter(t *testing.T) {
	reg, _ := liveRegistry(t)
	b := NewBuilder(reg)
	ctx := context.Background()

	require.NoError(t, b.AddAreaFilter(ctx, "cond", "heart attack"))
	require.NoError(t, b.AddAreaFilter(ctx, "query.cond", "diabetes"))
	require.NoError(t, b.AddAreaFilter(ctx, "BasicSearch", "aspirin"))

	want := types.Params{
		{Key: "query.cond", Value: "(heart attack) AND (diabetes)"},
		{Key: "query.term", Value: "aspirin"},
	}
	if diff := cmp.Diff(want, b.Build()); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	err := b.AddAreaFilter(ctx, "query.bogus", "x")
	var unknown *schema.UnknownSearchAreaError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "query.bogus", unknown.Param)

	assert.ErrorIs(t, b.AddAreaFilter(ctx, "cond", "  "), ErrInvalidParam)
}

func TestEnumFilterCanonicalizesAndMerges(t *testing.T) {
	reg, _ := liveRegistry(t)
	b := NewBuilder(reg)
	ctx := context.Background()

	require.NoError(t, b.AddEnumFilter(ctx, "protocolSection.statusModule.overallStatus", "Recruiting"))
	require.NoError(t, b.AddEnumFilter(ctx, "OverallStatus", "COMPLETED", "RECRUITING"))

	v, ok := b.Build().Get("filter.overallStatus")
	require.True(t, ok)
	assert.Equal(t, "RECRUITING,COMPLETED", v)

	err := b.AddEnumFilter(ctx, "protocolSection.statusModule.overallStatus", "WITHDRAWN_SOMEHOW")
	var unknown *schema.UnknownValueError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "WITHDRAWN_SOMEHOW", unknown.Value)
	assert.Equal(t, []string{"RECRUITING", "COMPLETED"}, unknown.Allowed)

	err = b.AddEnumFilter(ctx, "protocolSection.identificationModule.briefTitle", "x")
	var notEnum *schema.UnknownEnumError
	assert.ErrorAs(t, err, &notEnum)

	assert.ErrorIs(t, b.AddEnumFilter(ctx, "OverallStatus"), ErrInvalidParam)
}

func TestFiltersAndSettings(t *testing.T) {
	reg, _ := liveRegistry(t)
	b := NewBuilder(reg)

	require.NoError(t, b.AddFilter("ids", "NCT00000001, NCT00000002"))
	require.NoError(t, b.AddFilter("filter.ids", "NCT00000002|NCT00000003"))
	require.NoError(t, b.AddFilter("geo", "distance(39.0035707,-77.1013313,50mi)"))
	require.NoError(t, b.AddFilter("advanced", "AREA[Phase]PHASE2"))
	require.NoError(t, b.AddFilter("advanced", "AREA[HasResults]true"))
	require.NoError(t, b.SetFormat("json"))
	require.NoError(t, b.SetMarkupFormat("markdown"))
	require.NoError(t, b.SetPageSize(1000))
	require.NoError(t, b.SetSort("LastUpdatePostDate:desc", " "))
	b.SetCountTotal(true)

	want := types.Params{
		{Key: "filter.ids", Value: "NCT00000001,NCT00000002,NCT00000003"},
		{Key: "filter.geo", Value: "distance(39.0035707,-77.1013313,50mi)"},
		{Key: "filter.advanced", Value: "(AREA[Phase]PHASE2) AND (AREA[HasResults]true)"},
		{Key: "format", Value: "json"},
		{Key: "markupFormat", Value: "markdown"},
		{Key: "pageSize", Value: "1000"},
		{Key: "sort", Value: "LastUpdatePostDate:desc"},
		{Key: "countTotal", Value: "true"},
	}
	if diff := cmp.Diff(want, b.Build()); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	b.SetCountTotal(false)
	_, ok := b.Build().Get(ParamCountTotal)
	assert.False(t, ok)
}

func TestInvalidSettings(t *testing.T) {
	b := NewBuilder(nil)

	tests := []struct {
		name string
		err  error
	}{
		{"page size zero", b.SetPageSize(0)},
		{"page size too large", b.SetPageSize(1001)},
		{"format", b.SetFormat("xml")},
		{"markup", b.SetMarkupFormat("html")},
		{"sort", b.SetSort()},
		{"filter name", b.AddFilter("overallStatus", "RECRUITING")},
		{"empty ids", b.AddFilter("ids", ",,")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, ErrInvalidParam)
		})
	}
	assert.Empty(t, b.Build())
}

func TestBuildIsStable(t *testing.T) {
	reg, _ := liveRegistry(t)
	ctx := context.Background()

	in := Intent{
		Fields:     []string{"NCTId", "protocolSection.statusModule"},
		Areas:      []AreaFilter{{Param: "cond", Value: "lung cancer"}},
		Enums:      []EnumFilter{{Field: "protocolSection.designModule.phases", Values: []string{"Phase 2", "N/A"}}},
		Filters:    []Filter{{Name: "ids", Value: "NCT00000001"}},
		Sort:       []string{"LastUpdatePostDate:desc"},
		PageSize:   50,
		CountTotal: true,
	}

	first, err := Compile(ctx, reg, in)
	require.NoError(t, err)
	second, err := Compile(ctx, reg, in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Encode(), second.Encode())
	assert.Equal(t,
		"fields=protocolSection.identificationModule.nctId%2CprotocolSection.statusModule.overallStatus"+
			"&query.cond=lung+cancer&filter.phases=PHASE2%2CNA&filter.ids=NCT00000001"+
			"&sort=LastUpdatePostDate%3Adesc&pageSize=50&countTotal=true",
		first.Encode())
}

func TestBuildReturnsCopy(t *testing.T) {
	b := NewBuilder(nil)
	require.NoError(t, b.SetPageSize(10))

	p := b.Build()
	p[0].Value = "999"
	v, _ := b.Build().Get(ParamPageSize)
	assert.Equal(t, "10", v)
}

func TestIntentFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.yaml")
	total := 1234
	in := Intent{
		Areas: []AreaFilter{{Param: "cond", Value: "asthma"}},
		Enums: []EnumFilter{{Field: "OverallStatus", Values: []string{"RECRUITING"}}},
	}
	params := types.Params{
		{Key: "query.cond", Value: "asthma"},
		{Key: "pageToken", Value: "t2"},
	}

	require.NoError(t, WriteIntentFile(path, in, params, IntentSummary{Pages: 3, Studies: 250, TotalCount: &total}))

	f, err := ReadIntentFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, f.Intent)
	assert.Equal(t, types.Params{{Key: "query.cond", Value: "asthma"}}, f.Params)
	assert.Equal(t, 250, f.Summary.Studies)
	require.NotNil(t, f.Summary.TotalCount)
	assert.Equal(t, 1234, *f.Summary.TotalCount)
	assert.False(t, f.Summary.Timestamp.IsZero())

	_, err = ReadIntentFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
