// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package schema

import (
	"fmt"
	"strings"
)

// SchemaFetchError reports a failed network load of one schema kind.
type SchemaFetchError struct {
	Kind     Kind
	Endpoint string
	Err      error
}

func (e *SchemaFetchError) Error() string {
	return fmt.Sprintf("loading %s schema from %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *SchemaFetchError) Unwrap() error { return e.Err }

// SchemaParseError reports a schema response whose shape or content does
// not match what the registry can index.
type SchemaParseError struct {
	Kind     Kind
	Endpoint string
	Reason   string
	Err      error
}

func (e *SchemaParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing %s schema from %s: %v", e.Kind, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("parsing %s schema from %s: %s", e.Kind, e.Endpoint, e.Reason)
}

func (e *SchemaParseError) Unwrap() error { return e.Err }

// UnknownFieldError reports a field path that matches no descriptor.
// Segment is the first path segment that failed to resolve.
type UnknownFieldError struct {
	Path    string
	Segment string
}

func (e *UnknownFieldError) Error() string {
	if e.Segment != "" && e.Segment != e.Path {
		return fmt.Sprintf("unknown field %q (no %q at that level)", e.Path, e.Segment)
	}
	return fmt.Sprintf("unknown field %q", e.Path)
}

// UnknownEnumError reports an enum type that does not exist, or a field
// that is not bound to any enum (Field set).
type UnknownEnumError struct {
	Type  string
	Field string
}

func (e *UnknownEnumError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("field %q is not an enum field", e.Field)
	}
	return fmt.Sprintf("unknown enum type %q", e.Type)
}

// UnknownValueError reports a value that is not a member of an enum type.
type UnknownValueError struct {
	EnumType string
	Field    string
	Value    string
	Allowed  []string
}

func (e *UnknownValueError) Error() string {
	where := e.EnumType
	if e.Field != "" {
		where = fmt.Sprintf("%s (field %s)", e.EnumType, e.Field)
	}
	return fmt.Sprintf("unknown value %q for enum %s; allowed: %s", e.Value, where, strings.Join(e.Allowed, ", "))
}

// UnknownSearchAreaError reports a query parameter no search area exposes.
type UnknownSearchAreaError struct {
	Param string
}

func (e *UnknownSearchAreaError) Error() string {
	return fmt.Sprintf("unknown search area %q", e.Param)
}
