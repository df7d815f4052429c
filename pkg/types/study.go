// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the ctgov client:
// schema descriptors, study records, statistics and configuration.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Well-known paths inside a study document.
const (
	PathNCTID         = "protocolSection.identificationModule.nctId"
	PathBriefTitle    = "protocolSection.identificationModule.briefTitle"
	PathOverallStatus = "protocolSection.statusModule.overallStatus"
	PathConditions    = "protocolSection.conditionsModule.conditions"
	PathLastUpdate    = "protocolSection.statusModule.lastUpdatePostDateStruct.date"
	PathHasResults    = "hasResults"
)

// StudyRecord is one study as returned by the API, restricted to the
// requested fields. It lives only as long as the response that produced it
// unless a caller copies it somewhere.
type StudyRecord struct {
	// NCTID is the study identifier, empty when the projection omitted it.
	NCTID string `json:"nct_id" yaml:"nct_id"`

	// BriefTitle is the short title, when projected.
	BriefTitle string `json:"brief_title,omitempty" yaml:"brief_title,omitempty"`

	// OverallStatus is the recruitment status, when projected.
	OverallStatus string `json:"overall_status,omitempty" yaml:"overall_status,omitempty"`

	// HasResults reports whether results were posted.
	HasResults bool `json:"has_results" yaml:"has_results"`

	// Data is the projected study document.
	Data map[string]any `json:"data" yaml:"data"`
}

// NewStudyRecord wraps a decoded study object and lifts the well-known
// fields out of it.
func NewStudyRecord(data map[string]any) StudyRecord {
	r := StudyRecord{Data: data}
	r.NCTID = r.String(PathNCTID)
	r.BriefTitle = r.String(PathBriefTitle)
	r.OverallStatus = r.String(PathOverallStatus)
	if v, ok := r.Lookup(PathHasResults); ok {
		r.HasResults, _ = v.(bool)
	}
	return r
}

// Lookup walks a dot-separated path through nested objects. Arrays are not
// traversed; a path ending on an array returns the array.
func (r StudyRecord) Lookup(path string) (any, bool) {
	var cur any = r.Data
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at path formatted as text, or "" when absent.
func (r StudyRecord) String(path string) string {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Strings returns the string elements of a list value at path.
func (r StudyRecord) Strings(path string) []string {
	v, ok := r.Lookup(path)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
