// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// StudySize is one entry of the largest-studies list.
type StudySize struct {
	ID        string `json:"id" yaml:"id"`
	SizeBytes int64  `json:"sizeBytes" yaml:"size_bytes"`
}

// SizeRange counts studies whose JSON size falls inside a range.
type SizeRange struct {
	SizeRange    string `json:"sizeRange" yaml:"size_range"`
	StudiesCount int64  `json:"studiesCount" yaml:"studies_count"`
}

// SizeStats mirrors /stats/size.
type SizeStats struct {
	TotalStudies     int64            `json:"totalStudies" yaml:"total_studies"`
	AverageSizeBytes int64            `json:"averageSizeBytes" yaml:"average_size_bytes"`
	LargestStudies   []StudySize      `json:"largestStudies" yaml:"largest_studies"`
	Percentiles      map[string]int64 `json:"percentiles" yaml:"percentiles"`
	Ranges           []SizeRange      `json:"ranges" yaml:"ranges"`
}

// ValueCount is one frequent value of a field.
type ValueCount struct {
	Value        string `json:"value" yaml:"value"`
	StudiesCount int64  `json:"studiesCount" yaml:"studies_count"`
}

// FieldValuesStats mirrors one element of /stats/field/values.
type FieldValuesStats struct {
	Field               string       `json:"field" yaml:"field"`
	Piece               string       `json:"piece" yaml:"piece"`
	Type                FieldType    `json:"type" yaml:"type"`
	MissingStudiesCount int64        `json:"missingStudiesCount" yaml:"missing_studies_count"`
	UniqueValuesCount   int64        `json:"uniqueValuesCount" yaml:"unique_values_count"`
	TopValues           []ValueCount `json:"topValues,omitempty" yaml:"top_values,omitempty"`
}

// SizeCount is one frequent list size of a field.
type SizeCount struct {
	Size         int64 `json:"size" yaml:"size"`
	StudiesCount int64 `json:"studiesCount" yaml:"studies_count"`
}

// FieldSizesStats mirrors one element of /stats/field/sizes.
type FieldSizesStats struct {
	Field            string      `json:"field" yaml:"field"`
	Piece            string      `json:"piece" yaml:"piece"`
	MinSize          int64       `json:"minSize" yaml:"min_size"`
	MaxSize          int64       `json:"maxSize" yaml:"max_size"`
	UniqueSizesCount int64       `json:"uniqueSizesCount" yaml:"unique_sizes_count"`
	TopSizes         []SizeCount `json:"topSizes,omitempty" yaml:"top_sizes,omitempty"`
}

// Version mirrors /version.
type Version struct {
	APIVersion    string `json:"apiVersion" yaml:"api_version"`
	DataTimestamp string `json:"dataTimestamp" yaml:"data_timestamp"`
}
