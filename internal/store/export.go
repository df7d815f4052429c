// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// ExportEntry is one study in an export file.
type ExportEntry struct {
	Result `yaml:",inline"`
	Data   map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

const exportLimit = 1000000

// ExportYAML writes the studies matching opts to path as YAML. Summary
// fields only; YAML exports are meant for reading. A zero MaxResults
// exports every match.
func (s *Store) ExportYAML(ctx context.Context, path string, opts SearchOptions) (int, error) {
	entries, err := s.exportEntries(ctx, opts, false)
	if err != nil {
		return 0, err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return 0, fmt.Errorf("marshaling YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ExportJSON writes the studies matching opts to path as JSON, including
// the stored study documents.
func (s *Store) ExportJSON(ctx context.Context, path string, opts SearchOptions) (int, error) {
	entries, err := s.exportEntries(ctx, opts, true)
	if err != nil {
		return 0, err
	}
	data, err := dataAPI.MarshalIndent(entries, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *Store) exportEntries(ctx context.Context, opts SearchOptions, withData bool) ([]ExportEntry, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = exportLimit
	}
	results, err := s.Search(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(results))
	for i, r := range results {
		entries[i] = ExportEntry{Result: r}
		if !withData {
			continue
		}
		rec, err := s.Get(ctx, r.NCTID)
		if err != nil {
			return nil, err
		}
		entries[i].Data = rec.Data
	}
	return entries, nil
}
