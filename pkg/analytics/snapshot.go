package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultCacheKey is the well-known key holding the latest snapshot.
const DefaultCacheKey = "metrics"

// Snapshot is one immutable result of an aggregation run.
type Snapshot struct {
	ID         string           `json:"id"`
	ComputedAt time.Time        `json:"computedAt"`
	Metrics    map[string]int64 `json:"metrics"`
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{ID: s.ID, ComputedAt: s.ComputedAt}
	if s.Metrics != nil {
		out.Metrics = make(map[string]int64, len(s.Metrics))
		for k, v := range s.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

// Encode returns the cache wire form of s.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses the cache wire form.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Metrics == nil {
		return nil, fmt.Errorf("decode snapshot: missing metrics")
	}
	return &s, nil
}
