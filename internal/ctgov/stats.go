// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ctgov

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/gorilla/schema"

	"github.com/pdiddy/ctgov/pkg/types"
)

// FieldValuesQuery selects fields for /stats/field/values. Empty slices
// are omitted from the query string.
type FieldValuesQuery struct {
	Fields []string `schema:"fields,omitempty"`
	Types  []string `schema:"types,omitempty"`
}

// FieldSizesQuery selects list fields for /stats/field/sizes.
type FieldSizesQuery struct {
	Fields []string `schema:"fields,omitempty"`
}

var queryEncoder = newQueryEncoder()

func newQueryEncoder() *schema.Encoder {
	enc := schema.NewEncoder()
	// The API takes list parameters comma-joined, not repeated.
	enc.RegisterEncoder([]string{}, func(v reflect.Value) string {
		return strings.Join(v.Interface().([]string), ",")
	})
	return enc
}

// encodeQuery turns a tagged struct into Params with keys sorted.
func encodeQuery(src any) (types.Params, error) {
	vals := url.Values{}
	if err := queryEncoder.Encode(src, vals); err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var params types.Params
	for _, k := range keys {
		for _, v := range vals[k] {
			params = append(params, types.Param{Key: k, Value: v})
		}
	}
	return params, nil
}

// SizeStats fetches /stats/size.
func (c *Client) SizeStats(ctx context.Context) (types.SizeStats, error) {
	var out types.SizeStats
	if err := c.get(ctx, "/stats/size", "/stats/size", nil, true, &out); err != nil {
		return types.SizeStats{}, err
	}
	return out, nil
}

// FieldValuesStats fetches value statistics for leaf fields.
func (c *Client) FieldValuesStats(ctx context.Context, q FieldValuesQuery) ([]types.FieldValuesStats, error) {
	params, err := encodeQuery(q)
	if err != nil {
		return nil, err
	}
	var out []types.FieldValuesStats
	if err := c.get(ctx, "/stats/field/values", "/stats/field/values", params, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FieldSizesStats fetches list-size statistics for list fields.
func (c *Client) FieldSizesStats(ctx context.Context, q FieldSizesQuery) ([]types.FieldSizesStats, error) {
	params, err := encodeQuery(q)
	if err != nil {
		return nil, err
	}
	var out []types.FieldSizesStats
	if err := c.get(ctx, "/stats/field/sizes", "/stats/field/sizes", params, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Version fetches the API version and data timestamp. It is not cached so
// that a data refresh is visible immediately.
func (c *Client) Version(ctx context.Context) (types.Version, error) {
	var out types.Version
	if err := c.get(ctx, "/version", "/version", nil, false, &out); err != nil {
		return types.Version{}, err
	}
	return out, nil
}
