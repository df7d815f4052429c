// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ctgov

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pdiddy/ctgov/pkg/types"
)

// StudiesPage is one page of the /studies listing.
type StudiesPage struct {
	Studies       []map[string]any `json:"studies"`
	NextPageToken string           `json:"nextPageToken,omitempty"`

	// TotalCount is set only when the request asked for countTotal=true.
	TotalCount *int `json:"totalCount,omitempty"`
}

// ListStudies fetches one page of /studies for params as given. Paging is
// the caller's concern; see package fetch.
func (c *Client) ListStudies(ctx context.Context, params types.Params) (StudiesPage, error) {
	var page StudiesPage
	if err := c.get(ctx, "/studies", "/studies", params, false, &page); err != nil {
		return StudiesPage{}, err
	}
	return page, nil
}

// GetStudy fetches a single study by NCT ID. Only the json format is
// decoded; params may carry a fields projection and markupFormat.
func (c *Client) GetStudy(ctx context.Context, nctID string, params types.Params) (types.StudyRecord, error) {
	nctID = strings.TrimSpace(nctID)
	if nctID == "" {
		return types.StudyRecord{}, fmt.Errorf("empty NCT ID")
	}
	if f, ok := params.Get("format"); ok && f != "json" {
		return types.StudyRecord{}, fmt.Errorf("study format %q cannot be decoded, only json", f)
	}

	var data map[string]any
	path := "/studies/" + url.PathEscape(nctID)
	if err := c.get(ctx, "/studies/{nctId}", path, params, true, &data); err != nil {
		return types.StudyRecord{}, err
	}
	return types.NewStudyRecord(data), nil
}

// Metadata fetches the study field tree from /studies/metadata.
func (c *Client) Metadata(ctx context.Context, includeIndexedOnly, includeHistoricOnly bool) ([]types.FieldDescriptor, error) {
	var params types.Params
	if includeIndexedOnly {
		params = params.With("includeIndexedOnly", "true")
	}
	if includeHistoricOnly {
		params = params.With("includeHistoricOnly", "true")
	}
	var fields []types.FieldDescriptor
	if err := c.get(ctx, "/studies/metadata", "/studies/metadata", params, false, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Enums fetches every enum type from /studies/enums.
func (c *Client) Enums(ctx context.Context) ([]types.EnumType, error) {
	var enums []types.EnumType
	if err := c.get(ctx, "/studies/enums", "/studies/enums", nil, false, &enums); err != nil {
		return nil, err
	}
	return enums, nil
}

// SearchAreas fetches the search area catalogue from /studies/search-areas.
func (c *Client) SearchAreas(ctx context.Context) ([]types.SearchAreaDocument, error) {
	var docs []types.SearchAreaDocument
	if err := c.get(ctx, "/studies/search-areas", "/studies/search-areas", nil, false, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
