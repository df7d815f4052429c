// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package schema

import (
	"context"
	"strings"

	"github.com/pdiddy/ctgov/pkg/types"
)

// Resolve finds the descriptor at a dot-separated path such as
// "protocolSection.designModule.phases". A bare piece name such as
// "NCTId" also resolves, to the first field carrying that piece.
func (r *Registry) Resolve(ctx context.Context, path string) (Resolved, error) {
	idx, err := r.fieldSnapshot(ctx, r.defaultKey(), false)
	if err != nil {
		return Resolved{}, err
	}
	return idx.resolve(path)
}

// ResolveField returns the descriptor at path. Its Name equals the final
// path segment.
func (r *Registry) ResolveField(ctx context.Context, path string) (types.FieldDescriptor, error) {
	res, err := r.Resolve(ctx, path)
	if err != nil {
		return types.FieldDescriptor{}, err
	}
	return res.Field, nil
}

// Leaves returns the dot paths of every leaf at or below path, in document
// order. A leaf path returns itself.
func (r *Registry) Leaves(ctx context.Context, path string) ([]string, error) {
	res, err := r.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	return leaves(nil, res.Path, res.Field), nil
}

// ResolveEnum returns the enum type named typeName.
func (r *Registry) ResolveEnum(ctx context.Context, typeName string) (types.EnumType, error) {
	idx, err := r.enumSnapshot(ctx, false)
	if err != nil {
		return types.EnumType{}, err
	}
	et, ok := idx.get(typeName)
	if !ok {
		return types.EnumType{}, &UnknownEnumError{Type: typeName}
	}
	return et, nil
}

// EnumForField resolves fieldPath and returns the enum type bound to it.
func (r *Registry) EnumForField(ctx context.Context, fieldPath string) (Resolved, types.EnumType, error) {
	res, err := r.Resolve(ctx, fieldPath)
	if err != nil {
		return Resolved{}, types.EnumType{}, err
	}
	name := res.Field.EnumTypeName()
	if name == "" {
		return Resolved{}, types.EnumType{}, &UnknownEnumError{Field: res.Path}
	}
	et, err := r.ResolveEnum(ctx, name)
	if err != nil {
		return Resolved{}, types.EnumType{}, err
	}
	return res, et, nil
}

// LegacyValueFor returns the classic-API spelling of value for a field of
// the given piece: the piece-specific exception when one exists, the
// value's LegacyValue otherwise. A value without any legacy spelling maps
// to itself.
func (r *Registry) LegacyValueFor(ctx context.Context, enumType, piece, value string) (string, error) {
	et, err := r.ResolveEnum(ctx, enumType)
	if err != nil {
		return "", err
	}
	for _, v := range et.Values {
		if v.Value != value {
			continue
		}
		if override, ok := v.Exceptions[piece]; ok {
			return override, nil
		}
		if v.LegacyValue == "" {
			return v.Value, nil
		}
		return v.LegacyValue, nil
	}
	return "", &UnknownValueError{EnumType: enumType, Value: value, Allowed: valuesOf(et)}
}

// CanonicalValue maps a current or legacy spelling to the current value.
// Current spellings win over legacy ones; legacy matching ignores case.
func (r *Registry) CanonicalValue(ctx context.Context, enumType, value string) (string, error) {
	et, err := r.ResolveEnum(ctx, enumType)
	if err != nil {
		return "", err
	}
	return canonical(et, value)
}

func canonical(et types.EnumType, value string) (string, error) {
	for _, v := range et.Values {
		if v.Value == value {
			return v.Value, nil
		}
	}
	for _, v := range et.Values {
		if v.LegacyValue != "" && strings.EqualFold(v.LegacyValue, value) {
			return v.Value, nil
		}
		for _, ex := range v.Exceptions {
			if strings.EqualFold(ex, value) {
				return v.Value, nil
			}
		}
	}
	return "", &UnknownValueError{EnumType: et.Type, Value: value, Allowed: valuesOf(et)}
}

// CanonicalFieldValues validates values against the enum bound to
// fieldPath and returns them in current spelling.
func (r *Registry) CanonicalFieldValues(ctx context.Context, fieldPath string, values ...string) (Resolved, []string, error) {
	res, et, err := r.EnumForField(ctx, fieldPath)
	if err != nil {
		return Resolved{}, nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		c, err := canonical(et, strings.TrimSpace(v))
		if err != nil {
			if uv, ok := err.(*UnknownValueError); ok {
				uv.Field = res.Path
			}
			return Resolved{}, nil, err
		}
		out = append(out, c)
	}
	return res, out, nil
}

// SearchAreaFor returns the search area exposing param. The "query."
// prefix is optional and an area's name is accepted in place of its param.
func (r *Registry) SearchAreaFor(ctx context.Context, param string) (types.SearchArea, error) {
	idx, err := r.areaSnapshot(ctx, false)
	if err != nil {
		return types.SearchArea{}, err
	}
	key := strings.TrimPrefix(strings.TrimSpace(param), "query.")
	area, ok := idx.byKey[key]
	if !ok {
		return types.SearchArea{}, &UnknownSearchAreaError{Param: param}
	}
	return area, nil
}
