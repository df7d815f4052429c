// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// FieldType is the source type of a study field as reported by
// /studies/metadata. Values outside the constants below are passed through
// verbatim.
type FieldType string

const (
	FieldString  FieldType = "STRING"
	FieldEnum    FieldType = "ENUM"
	FieldDate    FieldType = "DATE"
	FieldInteger FieldType = "INTEGER"
	FieldNumber  FieldType = "NUMBER"
	FieldBoolean FieldType = "BOOLEAN"
)

// FieldDescriptor describes one node of the study document tree. Branch
// nodes carry Children; leaves do not. Descriptors are immutable once the
// schema registry has loaded them.
type FieldDescriptor struct {
	// Name is the JSON key of the node (e.g. "designModule").
	Name string `json:"name" yaml:"name"`

	// Piece is the documentation name of the node (e.g. "DesignModule").
	Piece string `json:"piece" yaml:"piece"`

	// Type is the source type (STRING, ENUM, DATE, ...).
	Type FieldType `json:"sourceType" yaml:"type"`

	// DataType is the raw API type. For enum fields it names the enum type,
	// with a "[]" suffix on list fields (e.g. "Phase[]").
	DataType string `json:"type" yaml:"data_type"`

	IsEnum       bool `json:"isEnum,omitempty" yaml:"is_enum,omitempty"`
	MaxChars     int  `json:"maxChars,omitempty" yaml:"max_chars,omitempty"`
	Nested       bool `json:"nested,omitempty" yaml:"nested,omitempty"`
	HistoricOnly bool `json:"historicOnly,omitempty" yaml:"historic_only,omitempty"`
	IndexedOnly  bool `json:"indexedOnly,omitempty" yaml:"indexed_only,omitempty"`

	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Children []FieldDescriptor `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (f FieldDescriptor) IsLeaf() bool { return len(f.Children) == 0 }

// EnumTypeName returns the enum type bound to the field, or "" when the
// field is not an enum.
func (f FieldDescriptor) EnumTypeName() string {
	if !f.IsEnum {
		return ""
	}
	return strings.TrimSuffix(f.DataType, "[]")
}

// EnumValue is one member of an enum type.
type EnumValue struct {
	// Value is the current spelling (e.g. "PHASE2").
	Value string `json:"value" yaml:"value"`

	// LegacyValue is the spelling used by the classic API (e.g. "Phase 2").
	// Empty when the spelling did not change; the legacy spelling is then
	// Value itself.
	LegacyValue string `json:"legacyValue" yaml:"legacy_value"`

	// Exceptions overrides LegacyValue for specific pieces.
	Exceptions map[string]string `json:"exceptions,omitempty" yaml:"exceptions,omitempty"`
}

// EnumType groups the values of one enum, e.g. "OverallStatus".
type EnumType struct {
	Type   string      `json:"type" yaml:"type"`
	Pieces []string    `json:"pieces,omitempty" yaml:"pieces,omitempty"`
	Values []EnumValue `json:"values" yaml:"values"`
}

// SearchPart is one weighted contributor to a search area.
type SearchPart struct {
	Weight     float64  `json:"weight" yaml:"weight"`
	IsEnum     bool     `json:"isEnum,omitempty" yaml:"is_enum,omitempty"`
	IsSynonyms bool     `json:"isSynonyms,omitempty" yaml:"is_synonyms,omitempty"`
	Pieces     []string `json:"pieces" yaml:"pieces"`
}

// SearchArea is a searchable area exposed as a query.<param> parameter.
type SearchArea struct {
	Name    string       `json:"name" yaml:"name"`
	UILabel string       `json:"uiLabel,omitempty" yaml:"ui_label,omitempty"`
	Param   string       `json:"param,omitempty" yaml:"param,omitempty"`
	Parts   []SearchPart `json:"parts,omitempty" yaml:"parts,omitempty"`
}

// SearchAreaDocument groups search areas per document kind ("Study").
type SearchAreaDocument struct {
	Name  string       `json:"name" yaml:"name"`
	Areas []SearchArea `json:"areas" yaml:"areas"`
}
