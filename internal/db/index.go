package db

import (
	"errors"
	"strconv"
)

// DistanceMetric used by KNN similarity queries.
type DistanceMetric string

const (
	// DistanceL2 is Euclidean distance.
	DistanceL2 DistanceMetric = "L2"
	// DistanceCosine is cosine distance.
	DistanceCosine DistanceMetric = "COSINE"
)

// VectorAlgorithm selects the indexing algorithm for vector fields.
type VectorAlgorithm string

const (
	// VectorHNSW uses the approximate HNSW algorithm.
	VectorHNSW VectorAlgorithm = "HNSW"
	// VectorFlat uses the exact FLAT algorithm.
	VectorFlat VectorAlgorithm = "FLAT"
)

// IndexFieldType enumerates supported FT index field types.
type IndexFieldType int

const (
	// IndexFieldNumeric is a numeric field.
	IndexFieldNumeric IndexFieldType = iota
	// IndexFieldTag is a tag field.
	IndexFieldTag
	// IndexFieldVector is a vector field.
	IndexFieldVector
)

// IndexField describes a single field in an FT index schema.
type IndexField struct {
	Name  string
	Alias string // AS alias in FT.CREATE SCHEMA
	Type  IndexFieldType

	// VECTOR options
	VectorAlgo        VectorAlgorithm
	VectorDim         int
	VectorDistance    DistanceMetric
	VectorM           int // HNSW M: max edges per node
	VectorEFConstruct int // HNSW EF_CONSTRUCTION: build-time dynamic list size
}

// IndexDefinition is a complete FT index definition used by FT.CREATE.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

// Validate checks that the index definition is well-formed.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool)
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Name == "" {
			return errors.New("field name is required at index " + strconv.Itoa(i))
		}
		key := f.Name
		if f.Alias != "" {
			key = f.Alias
		}
		if seen[key] {
			return errors.New("duplicate field name: " + key)
		}
		seen[key] = true

		if f.Type == IndexFieldVector && f.VectorDim <= 0 {
			return errors.New("vector field requires positive DIM")
		}
	}

	return nil
}
