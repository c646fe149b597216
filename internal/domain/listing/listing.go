// Package listing holds the listing aggregate with content-addressed identity.
package listing

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"strconv"
	"strings"
)

// Raw is an incoming listing record. Missing fields decode to zero values;
// a raw record is never rejected for incomplete optional fields.
type Raw struct {
	Neighborhood            string  `json:"neighborhood"`
	Price                   string  `json:"price"`
	Bedrooms                float64 `json:"bedrooms"`
	Bathrooms               float64 `json:"bathrooms"`
	HouseSize               string  `json:"house_size"`
	Description             string  `json:"description"`
	NeighborhoodDescription string  `json:"neighborhood_description"`
}

// Listing is the listing aggregate (immutable value object).
// Identity is a content hash of the canonical full text: identical text maps
// to identical id, and a changed text is a new identity.
type Listing struct {
	id        string
	fields    Raw
	fullText  string
	embedding []float32
}

// FullText builds the canonical text representation of a raw record.
// The template and segment order are fixed; the area segment is skipped when
// the neighborhood description is empty. Deterministic: the same fields
// always produce the same text, which makes the content hash stable.
func FullText(raw Raw) string {
	parts := make([]string, 0, 6)
	parts = append(parts, "Neighborhood: "+raw.Neighborhood)
	if raw.NeighborhoodDescription != "" {
		parts = append(parts, "Area: "+raw.NeighborhoodDescription)
	}
	parts = append(parts,
		"Price: "+raw.Price,
		"Bedrooms: "+formatCount(raw.Bedrooms)+", Bathrooms: "+formatCount(raw.Bathrooms),
		"Size: "+raw.HouseSize,
		"Details: "+raw.Description,
	)
	return strings.TrimSpace(strings.Join(parts, ". "))
}

// ComputeID returns the hex-encoded 128-bit content hash of a canonical text.
func ComputeID(fullText string) string {
	sum := md5.Sum([]byte(fullText)) //nolint:gosec // content addressing, not security
	return hex.EncodeToString(sum[:])
}

// New derives the canonical full text and content-hash id from a raw record.
// The embedding is attached later via WithEmbedding, after dedup decided the
// record is worth embedding.
func New(raw Raw) Listing {
	fullText := FullText(raw)
	return Listing{
		id:       ComputeID(fullText),
		fields:   raw,
		fullText: fullText,
	}
}

// Reconstruct hydrates a Listing from storage without recomputing the id.
func Reconstruct(id string, fields Raw, fullText string, embedding []float32) Listing {
	return Listing{id: id, fields: fields, fullText: fullText, embedding: embedding}
}

// ID returns the content-hash identifier.
func (l *Listing) ID() string { return l.id }

// Fields returns the business attributes.
func (l *Listing) Fields() Raw { return l.fields }

// FullText returns the canonical text used for hashing and embedding.
func (l *Listing) FullText() string { return l.fullText }

// Embedding returns the embedding vector (nil before vectorization).
func (l *Listing) Embedding() []float32 { return l.embedding }

// WithEmbedding returns a copy with the given vector attached.
func (l *Listing) WithEmbedding(vec []float32) Listing {
	return Listing{id: l.id, fields: l.fields, fullText: l.fullText, embedding: vec}
}

// formatCount renders bedroom/bathroom counts without a trailing ".0" for
// whole numbers, matching the canonical template ("Bedrooms: 3").
func formatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
