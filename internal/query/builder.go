// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query assembles validated /studies query parameters. Every
// field, search area and enum value is checked against the schema registry
// when it is added, so a request that reaches the wire has already passed
// validation.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pdiddy/ctgov/internal/schema"
	"github.com/pdiddy/ctgov/pkg/types"
)

// ErrInvalidParam is wrapped by errors for values the API would reject
// outright (page size out of range, unknown format).
var ErrInvalidParam = errors.New("invalid parameter")

// MaxPageSize is the largest page the API serves.
const MaxPageSize = 1000

// Parameter keys.
const (
	ParamFields       = "fields"
	ParamFormat       = "format"
	ParamMarkupFormat = "markupFormat"
	ParamPageSize     = "pageSize"
	ParamPageToken    = "pageToken"
	ParamCountTotal   = "countTotal"
	ParamSort         = "sort"
)

var (
	formats       = []string{"json", "csv", "json.zip", "fhir.json", "ris"}
	markupFormats = []string{"markdown", "legacy"}

	// filters lists the non-enum filter.* parameters.
	filters = []string{"geo", "ids", "advanced", "synonyms"}
)

// Resolver is the part of the schema registry the builder validates
// against. *schema.Registry implements it.
type Resolver interface {
	Leaves(ctx context.Context, path string) ([]string, error)
	SearchAreaFor(ctx context.Context, param string) (types.SearchArea, error)
	CanonicalFieldValues(ctx context.Context, fieldPath string, values ...string) (schema.Resolved, []string, error)
}

// Builder accumulates one logical request. Keys keep the position of their
// first addition; later additions to the same key merge into it. A failed
// Add leaves the builder unchanged. A Builder is not safe for concurrent
// use.
type Builder struct {
	res    Resolver
	params types.Params

	fields []string
	seen   map[string]bool

	// lists holds the accumulated values of merged keys.
	lists map[string][]string
}

// NewBuilder creates an empty builder validating against res.
func NewBuilder(res Resolver) *Builder {
	return &Builder{
		res:   res,
		seen:  make(map[string]bool),
		lists: make(map[string][]string),
	}
}

// AddFieldProjection restricts the response to paths. A branch path expands
// to all of its descendant leaves. Duplicates are dropped.
func (b *Builder) AddFieldProjection(ctx context.Context, paths ...string) error {
	var add []string
	for _, p := range paths {
		leaves, err := b.res.Leaves(ctx, p)
		if err != nil {
			return err
		}
		add = append(add, leaves...)
	}
	for _, leaf := range add {
		if b.seen[leaf] {
			continue
		}
		b.seen[leaf] = true
		b.fields = append(b.fields, leaf)
	}
	if len(b.fields) > 0 {
		b.params = b.params.With(ParamFields, strings.Join(b.fields, ","))
	}
	return nil
}

// AddAreaFilter adds a query.<param> search expression. Repeated filters on
// the same area are AND-combined.
func (b *Builder) AddAreaFilter(ctx context.Context, param, value string) error {
	area, err := b.res.SearchAreaFor(ctx, param)
	if err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: empty expression for query.%s", ErrInvalidParam, area.Param)
	}
	key := "query." + area.Param
	b.params = b.params.With(key, andCombine(b.merge(key, value)))
	return nil
}

// AddEnumFilter adds a filter.<field> restriction. Values may be given in
// current or legacy spelling and are sent in current spelling, deduplicated
// and comma-joined.
func (b *Builder) AddEnumFilter(ctx context.Context, fieldPath string, values ...string) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: no values for enum filter on %s", ErrInvalidParam, fieldPath)
	}
	res, canon, err := b.res.CanonicalFieldValues(ctx, fieldPath, values...)
	if err != nil {
		return err
	}
	key := "filter." + res.Field.Name
	var merged []string
	for _, v := range canon {
		merged = b.mergeUnique(key, v)
	}
	b.params = b.params.With(key, strings.Join(merged, ","))
	return nil
}

// AddFilter adds one of the non-enum filters: geo, ids, advanced or
// synonyms. Repeated ids merge into one list and repeated advanced
// expressions are AND-combined; geo and synonyms are replaced.
func (b *Builder) AddFilter(name, value string) error {
	name = strings.TrimPrefix(name, "filter.")
	if !slices.Contains(filters, name) {
		return fmt.Errorf("%w: unknown filter %q (want one of %s)", ErrInvalidParam, name, strings.Join(filters, ", "))
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: empty value for filter.%s", ErrInvalidParam, name)
	}
	key := "filter." + name
	switch name {
	case "ids":
		var merged []string
		for _, id := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '|' || r == ' ' }) {
			merged = b.mergeUnique(key, id)
		}
		if len(merged) == 0 {
			return fmt.Errorf("%w: empty value for filter.ids", ErrInvalidParam)
		}
		b.params = b.params.With(key, strings.Join(merged, ","))
	case "advanced":
		b.params = b.params.With(key, andCombine(b.merge(key, value)))
	default:
		b.params = b.params.With(key, value)
	}
	return nil
}

// SetFormat selects the response format.
func (b *Builder) SetFormat(format string) error {
	if !slices.Contains(formats, format) {
		return fmt.Errorf("%w: format %q (want one of %s)", ErrInvalidParam, format, strings.Join(formats, ", "))
	}
	b.params = b.params.With(ParamFormat, format)
	return nil
}

// SetMarkupFormat selects how markup fields are rendered.
func (b *Builder) SetMarkupFormat(format string) error {
	if !slices.Contains(markupFormats, format) {
		return fmt.Errorf("%w: markupFormat %q (want one of %s)", ErrInvalidParam, format, strings.Join(markupFormats, ", "))
	}
	b.params = b.params.With(ParamMarkupFormat, format)
	return nil
}

// SetPageSize sets the number of studies per page, 1 to MaxPageSize.
func (b *Builder) SetPageSize(n int) error {
	if n < 1 || n > MaxPageSize {
		return fmt.Errorf("%w: pageSize %d out of range 1..%d", ErrInvalidParam, n, MaxPageSize)
	}
	b.params = b.params.With(ParamPageSize, strconv.Itoa(n))
	return nil
}

// SetSort sets the sort expressions, e.g. "LastUpdatePostDate:desc".
func (b *Builder) SetSort(sorts ...string) error {
	var clean []string
	for _, s := range sorts {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return fmt.Errorf("%w: empty sort", ErrInvalidParam)
	}
	b.params = b.params.With(ParamSort, strings.Join(clean, ","))
	return nil
}

// SetCountTotal asks the API to report the total match count.
func (b *Builder) SetCountTotal(on bool) {
	if on {
		b.params = b.params.With(ParamCountTotal, "true")
		return
	}
	b.params = b.params.Without(ParamCountTotal)
}

// Fields returns the projected leaf paths in the order they were added.
func (b *Builder) Fields() []string {
	return append([]string(nil), b.fields...)
}

// Build returns the parameters in declaration order. The result is a copy.
func (b *Builder) Build() types.Params {
	return append(types.Params(nil), b.params...)
}

// Encode returns Build as a query string.
func (b *Builder) Encode() string {
	return b.params.Encode()
}

func (b *Builder) merge(key, value string) []string {
	b.lists[key] = append(b.lists[key], value)
	return b.lists[key]
}

func (b *Builder) mergeUnique(key, value string) []string {
	if slices.Contains(b.lists[key], value) {
		return b.lists[key]
	}
	return b.merge(key, value)
}

func andCombine(exprs []string) string {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return "(" + strings.Join(exprs, ") AND (") + ")"
}
