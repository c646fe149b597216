package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/nestvector/nestvector/internal/db"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
// A missing index surfaces as db.ErrIndexNotFound so callers can fall back.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @embedding $BLOB]", q.K)

	args := []string{q.IndexName, queryStr}

	if len(q.ReturnFields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(q.ReturnFields)))
		args = append(args, q.ReturnFields...)
	}

	args = append(args, "PARAMS", "2", "BLOB", vectorToBlob(q.Vector), "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index") {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseKNNResult(raw)
}

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		}

		if scoreStr, ok := entry.Fields["__embedding_score"]; ok {
			if s, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = max(0, 1.0-s) // cosine distance → similarity, clamped to [0,1]
			}
			delete(entry.Fields, "__embedding_score")
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(msgs []rueidis.RedisMessage) map[string]string {
	fields := make(map[string]string, len(msgs)/2)
	for i := 0; i+1 < len(msgs); i += 2 {
		k, err1 := msgs[i].ToString()
		v, err2 := msgs[i+1].ToString()
		if err1 != nil || err2 != nil {
			continue
		}
		fields[k] = v
	}
	return fields
}

// vectorToBlob serializes []float32 to the binary form FT.SEARCH expects
// (4 bytes per float, little-endian).
func vectorToBlob(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
