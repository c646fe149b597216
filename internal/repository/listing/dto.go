package listing

import (
	"encoding/binary"
	"math"
	"strconv"

	domlisting "github.com/nestvector/nestvector/internal/domain/listing"
)

// buildHashFields converts a Listing into a flat map[string]string for HSET.
func buildHashFields(l *domlisting.Listing) map[string]string {
	f := l.Fields()
	return map[string]string{
		"neighborhood":             f.Neighborhood,
		"price":                    f.Price,
		"bedrooms":                 formatFloat(f.Bedrooms),
		"bathrooms":                formatFloat(f.Bathrooms),
		"house_size":               f.HouseSize,
		"description":              f.Description,
		"neighborhood_description": f.NeighborhoodDescription,
		"full_text":                l.FullText(),
		"embedding":                vectorToBytes(l.Embedding()),
	}
}

// parseHashFields converts a flat hash map back into a Listing.
func parseHashFields(id string, m map[string]string) domlisting.Listing {
	raw := domlisting.Raw{
		Neighborhood:            m["neighborhood"],
		Price:                   m["price"],
		Bedrooms:                parseFloat(m["bedrooms"]),
		Bathrooms:               parseFloat(m["bathrooms"]),
		HouseSize:               m["house_size"],
		Description:             m["description"],
		NeighborhoodDescription: m["neighborhood_description"],
	}
	return domlisting.Reconstruct(id, raw, m["full_text"], bytesToVector(m["embedding"]))
}

// rowFieldNames lists the hash fields returned by native search, plus the
// score field the engine appends for KNN queries.
func rowFieldNames() []string {
	return []string{
		"neighborhood", "price", "bedrooms", "bathrooms",
		"house_size", "description", "neighborhood_description",
		"full_text", "__embedding_score",
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
