// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package schema implements the schema registry: it loads the study field
// tree, the enum types and the search areas once, keeps them as immutable
// snapshots and answers validation lookups against them.
//
// Each schema kind is fetched at most once concurrently. Callers racing on
// a cold registry share one in-flight request.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/ctgov/internal/ctgov"
	"github.com/pdiddy/ctgov/internal/metrics"
	"github.com/pdiddy/ctgov/pkg/types"
)

// Kind names one schema collection.
type Kind string

const (
	KindFields      Kind = "fields"
	KindEnums       Kind = "enums"
	KindSearchAreas Kind = "search-areas"
)

// Endpoint returns the API path the kind is loaded from.
func (k Kind) Endpoint() string {
	switch k {
	case KindFields:
		return "/studies/metadata"
	case KindEnums:
		return "/studies/enums"
	case KindSearchAreas:
		return "/studies/search-areas"
	}
	return ""
}

// Source fetches raw schema collections. *ctgov.Client implements it.
type Source interface {
	Metadata(ctx context.Context, includeIndexedOnly, includeHistoricOnly bool) ([]types.FieldDescriptor, error)
	Enums(ctx context.Context) ([]types.EnumType, error)
	SearchAreas(ctx context.Context) ([]types.SearchAreaDocument, error)
}

// ErrNoSource is returned by a static registry asked for a snapshot it was
// not seeded with.
var ErrNoSource = errors.New("registry has no schema source")

// Options selects which field descriptors lookups run against.
type Options struct {
	IncludeIndexedOnly  bool
	IncludeHistoricOnly bool
}

type fieldKey struct {
	indexedOnly  bool
	historicOnly bool
}

func (k fieldKey) flightKey() string {
	return fmt.Sprintf("%s/%t/%t", KindFields, k.indexedOnly, k.historicOnly)
}

// Resolved is a field descriptor together with its canonical dot path.
type Resolved struct {
	Path  string
	Field types.FieldDescriptor
}

// Registry caches schema snapshots for the lifetime of the process. It is
// safe for concurrent use.
type Registry struct {
	src     Source
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger
	group   singleflight.Group

	mu     sync.RWMutex
	fields map[fieldKey]*fieldIndex
	enums  *enumIndex
	areas  *areaIndex
}

// Option customizes a Registry.
type Option func(*Registry)

// WithOptions selects the field load options used by lookups.
func WithOptions(o Options) Option {
	return func(r *Registry) { r.opts = o }
}

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithMetrics records schema loads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty registry backed by src. Nothing is fetched until the
// first lookup.
func New(src Source, opts ...Option) *Registry {
	r := &Registry{
		src:    src,
		log:    zerolog.Nop(),
		fields: make(map[fieldKey]*fieldIndex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewStatic creates a registry pre-seeded with snapshots. It never touches
// the network; nil collections are seeded as empty.
func NewStatic(fields []types.FieldDescriptor, enums []types.EnumType, areas []types.SearchAreaDocument) (*Registry, error) {
	r := New(nil)
	fi, err := indexFields(fields)
	if err != nil {
		return nil, &SchemaParseError{Kind: KindFields, Endpoint: "static", Reason: err.Error()}
	}
	ei, err := indexEnums(enums)
	if err != nil {
		return nil, &SchemaParseError{Kind: KindEnums, Endpoint: "static", Reason: err.Error()}
	}
	ai, err := indexAreas(areas)
	if err != nil {
		return nil, &SchemaParseError{Kind: KindSearchAreas, Endpoint: "static", Reason: err.Error()}
	}
	r.fields[r.defaultKey()] = fi
	r.enums = ei
	r.areas = ai
	return r, nil
}

func (r *Registry) defaultKey() fieldKey {
	return fieldKey{indexedOnly: r.opts.IncludeIndexedOnly, historicOnly: r.opts.IncludeHistoricOnly}
}

// Load returns the field tree for the given options, fetching it on first
// use. The returned slice is a copy-free view of an immutable snapshot and
// must not be modified.
func (r *Registry) Load(ctx context.Context, includeIndexedOnly, includeHistoricOnly bool) ([]types.FieldDescriptor, error) {
	idx, err := r.fieldSnapshot(ctx, fieldKey{includeIndexedOnly, includeHistoricOnly}, false)
	if err != nil {
		return nil, err
	}
	return idx.roots, nil
}

// Refresh discards the cached snapshot of kind and loads it again. Lookups
// keep seeing the previous snapshot until the new one is in place.
func (r *Registry) Refresh(ctx context.Context, kind Kind) error {
	var err error
	switch kind {
	case KindFields:
		_, err = r.fieldSnapshot(ctx, r.defaultKey(), true)
	case KindEnums:
		_, err = r.enumSnapshot(ctx, true)
	case KindSearchAreas:
		_, err = r.areaSnapshot(ctx, true)
	default:
		err = fmt.Errorf("unknown schema kind %q", kind)
	}
	return err
}

// Fields returns the root descriptors used for lookups.
func (r *Registry) Fields(ctx context.Context) ([]types.FieldDescriptor, error) {
	idx, err := r.fieldSnapshot(ctx, r.defaultKey(), false)
	if err != nil {
		return nil, err
	}
	return idx.roots, nil
}

// Enums returns every enum type in API order.
func (r *Registry) Enums(ctx context.Context) ([]types.EnumType, error) {
	idx, err := r.enumSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return idx.list, nil
}

// Areas returns the search area documents.
func (r *Registry) Areas(ctx context.Context) ([]types.SearchAreaDocument, error) {
	idx, err := r.areaSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return idx.docs, nil
}

func (r *Registry) fieldSnapshot(ctx context.Context, key fieldKey, force bool) (*fieldIndex, error) {
	cached := func() *fieldIndex {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.fields[key]
	}
	if !force {
		if idx := cached(); idx != nil {
			return idx, nil
		}
	}
	v, err := r.flight(ctx, key.flightKey(), func(ctx context.Context) (any, error) {
		if !force {
			if idx := cached(); idx != nil {
				return idx, nil
			}
		}
		if r.src == nil {
			return nil, &SchemaFetchError{Kind: KindFields, Endpoint: KindFields.Endpoint(), Err: ErrNoSource}
		}
		list, err := r.src.Metadata(ctx, key.indexedOnly, key.historicOnly)
		if err != nil {
			return nil, classify(KindFields, err)
		}
		idx, err := indexFields(list)
		if err != nil {
			return nil, &SchemaParseError{Kind: KindFields, Endpoint: KindFields.Endpoint(), Reason: err.Error()}
		}
		r.mu.Lock()
		r.fields[key] = idx
		r.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*fieldIndex), nil
}

func (r *Registry) enumSnapshot(ctx context.Context, force bool) (*enumIndex, error) {
	cached := func() *enumIndex {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.enums
	}
	if !force {
		if idx := cached(); idx != nil {
			return idx, nil
		}
	}
	v, err := r.flight(ctx, string(KindEnums), func(ctx context.Context) (any, error) {
		if !force {
			if idx := cached(); idx != nil {
				return idx, nil
			}
		}
		if r.src == nil {
			return nil, &SchemaFetchError{Kind: KindEnums, Endpoint: KindEnums.Endpoint(), Err: ErrNoSource}
		}
		list, err := r.src.Enums(ctx)
		if err != nil {
			return nil, classify(KindEnums, err)
		}
		idx, err := indexEnums(list)
		if err != nil {
			return nil, &SchemaParseError{Kind: KindEnums, Endpoint: KindEnums.Endpoint(), Reason: err.Error()}
		}
		r.mu.Lock()
		r.enums = idx
		r.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*enumIndex), nil
}

func (r *Registry) areaSnapshot(ctx context.Context, force bool) (*areaIndex, error) {
	cached := func() *areaIndex {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.areas
	}
	if !force {
		if idx := cached(); idx != nil {
			return idx, nil
		}
	}
	v, err := r.flight(ctx, string(KindSearchAreas), func(ctx context.Context) (any, error) {
		if !force {
			if idx := cached(); idx != nil {
				return idx, nil
			}
		}
		if r.src == nil {
			return nil, &SchemaFetchError{Kind: KindSearchAreas, Endpoint: KindSearchAreas.Endpoint(), Err: ErrNoSource}
		}
		docs, err := r.src.SearchAreas(ctx)
		if err != nil {
			return nil, classify(KindSearchAreas, err)
		}
		idx, err := indexAreas(docs)
		if err != nil {
			return nil, &SchemaParseError{Kind: KindSearchAreas, Endpoint: KindSearchAreas.Endpoint(), Reason: err.Error()}
		}
		r.mu.Lock()
		r.areas = idx
		r.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*areaIndex), nil
}

// flight runs fn once per key among concurrent callers. The shared fetch
// is detached from any single caller's cancellation; a caller whose ctx
// ends stops waiting without aborting the fetch for the others.
func (r *Registry) flight(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		r.log.Debug().Str("schema", key).Msg("loading schema")
		v, err := fn(shared)
		r.metrics.ObserveSchemaLoad(kindOf(key), err)
		if err != nil {
			r.log.Warn().Err(err).Str("schema", key).Msg("schema load failed")
		}
		return v, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func kindOf(flightKey string) string {
	for _, k := range []Kind{KindFields, KindEnums, KindSearchAreas} {
		if strings.HasPrefix(flightKey, string(k)) {
			return string(k)
		}
	}
	return flightKey
}

// classify maps a source error to the registry's error taxonomy.
func classify(kind Kind, err error) error {
	var decodeErr *ctgov.DecodeError
	if errors.As(err, &decodeErr) {
		return &SchemaParseError{Kind: kind, Endpoint: kind.Endpoint(), Err: err}
	}
	return &SchemaFetchError{Kind: kind, Endpoint: kind.Endpoint(), Err: err}
}
