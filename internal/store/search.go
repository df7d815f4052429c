// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SearchOptions holds parameters for store queries.
type SearchOptions struct {
	// Query is an FTS4 full-text expression over titles and conditions.
	Query string

	// Status filters by overall status (e.g. "RECRUITING").
	Status string

	// RunID restricts results to studies last written by one run.
	RunID string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// Result is one stored study summary.
type Result struct {
	NCTID         string   `json:"nct_id" yaml:"nct_id"`
	BriefTitle    string   `json:"brief_title" yaml:"brief_title"`
	OverallStatus string   `json:"overall_status,omitempty" yaml:"overall_status,omitempty"`
	Conditions    []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	HasResults    bool     `json:"has_results" yaml:"has_results"`
	LastUpdate    string   `json:"last_update,omitempty" yaml:"last_update,omitempty"`
	RunID         string   `json:"run_id,omitempty" yaml:"run_id,omitempty"`
}

// Search queries stored studies with optional full-text search and
// filters. Results are ordered by last update, newest first.
func (s *Store) Search(ctx context.Context, opts SearchOptions) ([]Result, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	if opts.Query != "" {
		qb.WriteString(
			`SELECT s.nct_id, s.brief_title, s.overall_status, s.conditions,
				s.has_results, s.last_update, s.run_id
			FROM studies_fts
			JOIN studies s ON s.id = studies_fts.docid
			WHERE studies_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT s.nct_id, s.brief_title, s.overall_status, s.conditions,
				s.has_results, s.last_update, s.run_id
			FROM studies s
			WHERE 1=1`)
	}
	if opts.Status != "" {
		qb.WriteString(` AND s.overall_status = ?`)
		args = append(args, opts.Status)
	}
	if opts.RunID != "" {
		qb.WriteString(` AND s.run_id = ?`)
		args = append(args, opts.RunID)
	}
	qb.WriteString(` ORDER BY s.last_update DESC, s.nct_id LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying studies: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r          Result
			title      sql.NullString
			status     sql.NullString
			conditions sql.NullString
			lastUpdate sql.NullString
			runID      sql.NullString
		)
		if err := rows.Scan(&r.NCTID, &title, &status, &conditions, &r.HasResults, &lastUpdate, &runID); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.BriefTitle = title.String
		r.OverallStatus = status.String
		if conditions.String != "" {
			r.Conditions = strings.Split(conditions.String, "; ")
		}
		r.LastUpdate = lastUpdate.String
		r.RunID = runID.String
		results = append(results, r)
	}
	return results, rows.Err()
}
