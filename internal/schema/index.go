// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package schema

import (
	"fmt"
	"strings"

	"github.com/pdiddy/ctgov/pkg/types"
)

// fieldIndex is an immutable snapshot of the field tree.
type fieldIndex struct {
	roots []types.FieldDescriptor

	// pieces maps a piece name to the dot path of its first occurrence.
	pieces map[string]string
}

// enumIndex is an immutable snapshot of the enum types.
type enumIndex struct {
	list   []types.EnumType
	byType map[string]int
}

// areaIndex is an immutable snapshot of the search areas.
type areaIndex struct {
	docs []types.SearchAreaDocument

	// byKey maps both an area's param and its name to the area.
	byKey map[string]types.SearchArea
}

func indexFields(roots []types.FieldDescriptor) (*fieldIndex, error) {
	idx := &fieldIndex{pieces: make(map[string]string)}
	copied, err := copyFields(roots, "", idx.pieces)
	if err != nil {
		return nil, err
	}
	idx.roots = copied
	return idx, nil
}

// copyFields deep-copies the tree, derives Nested from the presence of
// children and records piece paths.
func copyFields(in []types.FieldDescriptor, prefix string, pieces map[string]string) ([]types.FieldDescriptor, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]types.FieldDescriptor, len(in))
	seen := make(map[string]bool, len(in))
	for i, f := range in {
		if f.Name == "" {
			return nil, fmt.Errorf("field without a name under %q", prefix)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate field %q under %q", f.Name, prefix)
		}
		seen[f.Name] = true

		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}
		if f.Piece != "" {
			if _, ok := pieces[f.Piece]; !ok {
				pieces[f.Piece] = path
			}
		}

		children, err := copyFields(f.Children, path, pieces)
		if err != nil {
			return nil, err
		}
		f.Children = children
		f.Nested = len(children) > 0
		out[i] = f
	}
	return out, nil
}

// resolve walks a dot path. A single segment that names no root is looked
// up as a piece.
func (idx *fieldIndex) resolve(path string) (Resolved, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Resolved{}, &UnknownFieldError{Path: path}
	}
	segs := strings.Split(trimmed, ".")

	level := idx.roots
	var cur *types.FieldDescriptor
	for i, seg := range segs {
		cur = findChild(level, seg)
		if cur == nil {
			if len(segs) == 1 {
				if full, ok := idx.pieces[seg]; ok {
					return idx.resolve(full)
				}
			}
			return Resolved{}, &UnknownFieldError{Path: path, Segment: seg}
		}
		if i < len(segs)-1 {
			level = cur.Children
		}
	}
	return Resolved{Path: trimmed, Field: *cur}, nil
}

func findChild(level []types.FieldDescriptor, name string) *types.FieldDescriptor {
	for i := range level {
		if level[i].Name == name {
			return &level[i]
		}
	}
	return nil
}

// leaves appends the dot paths of every leaf under f, in document order.
func leaves(dst []string, path string, f types.FieldDescriptor) []string {
	if f.IsLeaf() {
		return append(dst, path)
	}
	for _, c := range f.Children {
		dst = leaves(dst, path+"."+c.Name, c)
	}
	return dst
}

func indexEnums(list []types.EnumType) (*enumIndex, error) {
	idx := &enumIndex{
		list:   make([]types.EnumType, len(list)),
		byType: make(map[string]int, len(list)),
	}
	for i, et := range list {
		if et.Type == "" {
			return nil, fmt.Errorf("enum type without a name at index %d", i)
		}
		if _, dup := idx.byType[et.Type]; dup {
			return nil, fmt.Errorf("duplicate enum type %q", et.Type)
		}
		seen := make(map[string]bool, len(et.Values))
		for _, v := range et.Values {
			if v.Value == "" {
				return nil, fmt.Errorf("enum %s has an empty value", et.Type)
			}
			if seen[v.Value] {
				return nil, fmt.Errorf("enum %s repeats value %q", et.Type, v.Value)
			}
			seen[v.Value] = true
		}
		idx.list[i] = et
		idx.byType[et.Type] = i
	}
	return idx, nil
}

func (idx *enumIndex) get(name string) (types.EnumType, bool) {
	i, ok := idx.byType[name]
	if !ok {
		return types.EnumType{}, false
	}
	return idx.list[i], true
}

func indexAreas(docs []types.SearchAreaDocument) (*areaIndex, error) {
	idx := &areaIndex{
		docs:  docs,
		byKey: make(map[string]types.SearchArea),
	}
	for _, doc := range docs {
		for _, a := range doc.Areas {
			if a.Name == "" {
				return nil, fmt.Errorf("search area without a name in document %q", doc.Name)
			}
			if a.Param == "" {
				continue
			}
			if _, ok := idx.byKey[a.Param]; !ok {
				idx.byKey[a.Param] = a
			}
			if _, ok := idx.byKey[a.Name]; !ok {
				idx.byKey[a.Name] = a
			}
		}
	}
	return idx, nil
}

func valuesOf(et types.EnumType) []string {
	out := make([]string, len(et.Values))
	for i, v := range et.Values {
		out[i] = v.Value
	}
	return out
}
