// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package query

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ctgov/pkg/types"
)

// Intent is the serializable form of a logical study request. Applying
// the same Intent to two builders yields identical parameters.
type Intent struct {
	Fields       []string     `yaml:"fields,omitempty"`
	Areas        []AreaFilter `yaml:"areas,omitempty"`
	Enums        []EnumFilter `yaml:"enums,omitempty"`
	Filters      []Filter     `yaml:"filters,omitempty"`
	Format       string       `yaml:"format,omitempty"`
	MarkupFormat string       `yaml:"markup_format,omitempty"`
	Sort         []string     `yaml:"sort,omitempty"`
	PageSize     int          `yaml:"page_size,omitempty"`
	CountTotal   bool         `yaml:"count_total,omitempty"`
}

// AreaFilter is one query.<param> expression.
type AreaFilter struct {
	Param string `yaml:"param"`
	Value string `yaml:"value"`
}

// EnumFilter restricts an enum field to a set of values.
type EnumFilter struct {
	Field  string   `yaml:"field"`
	Values []string `yaml:"values"`
}

// Filter is one non-enum filter.<name> value.
type Filter struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Apply replays the intent into b. Parameters are added in a fixed order:
// fields, areas, enum filters, other filters, then settings.
func (in Intent) Apply(ctx context.Context, b *Builder) error {
	if len(in.Fields) > 0 {
		if err := b.AddFieldProjection(ctx, in.Fields...); err != nil {
			return err
		}
	}
	for _, a := range in.Areas {
		if err := b.AddAreaFilter(ctx, a.Param, a.Value); err != nil {
			return err
		}
	}
	for _, e := range in.Enums {
		if err := b.AddEnumFilter(ctx, e.Field, e.Values...); err != nil {
			return err
		}
	}
	for _, f := range in.Filters {
		if err := b.AddFilter(f.Name, f.Value); err != nil {
			return err
		}
	}
	if in.Format != "" {
		if err := b.SetFormat(in.Format); err != nil {
			return err
		}
	}
	if in.MarkupFormat != "" {
		if err := b.SetMarkupFormat(in.MarkupFormat); err != nil {
			return err
		}
	}
	if len(in.Sort) > 0 {
		if err := b.SetSort(in.Sort...); err != nil {
			return err
		}
	}
	if in.PageSize != 0 {
		if err := b.SetPageSize(in.PageSize); err != nil {
			return err
		}
	}
	if in.CountTotal {
		b.SetCountTotal(true)
	}
	return nil
}

// Compile validates the intent against res and returns its parameters.
func Compile(ctx context.Context, res Resolver, in Intent) (types.Params, error) {
	b := NewBuilder(res)
	if err := in.Apply(ctx, b); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// IntentFile is the on-disk form of a saved search: the intent, the
// parameters it compiled to and a summary of the last run. Page tokens are
// never written; a saved search always restarts from the first page.
type IntentFile struct {
	Intent  Intent        `yaml:"intent"`
	Params  types.Params  `yaml:"params,omitempty"`
	Summary IntentSummary `yaml:"summary"`
}

// IntentSummary stores the outcome of the run that produced the file.
type IntentSummary struct {
	Pages      int       `yaml:"pages"`
	Studies    int       `yaml:"studies"`
	TotalCount *int      `yaml:"total_count,omitempty"`
	Timestamp  time.Time `yaml:"timestamp"`
}

// WriteIntentFile saves a search intent and its run summary to a YAML file.
func WriteIntentFile(path string, in Intent, params types.Params, summary IntentSummary) error {
	if summary.Timestamp.IsZero() {
		summary.Timestamp = time.Now()
	}
	f := IntentFile{Intent: in, Params: params.Without(ParamPageToken), Summary: summary}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshaling intent file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadIntentFile loads a previously saved intent file from disk.
func ReadIntentFile(path string) (*IntentFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading intent file: %w", err)
	}
	var f IntentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing intent file: %w", err)
	}
	return &f, nil
}
