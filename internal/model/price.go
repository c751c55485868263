package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PriceSample is a single timestamped price observation for a trading pair.
// Sequences of samples are ordered ascending by TS; the indicator engine
// trusts the caller on ordering and does not re-sort.
type PriceSample struct {
	TS    time.Time `json:"ts"`
	Price float64   `json:"price"`
}

// UnmarshalJSON accepts "ts" either as an RFC3339 string or as epoch
// milliseconds, which is what the upstream price endpoints return.
func (s *PriceSample) UnmarshalJSON(data []byte) error {
	var raw struct {
		TS    json.RawMessage `json:"ts"`
		Price float64         `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := ParseTimestamp(raw.TS)
	if err != nil {
		return err
	}
	s.TS = ts
	s.Price = raw.Price
	return nil
}

// ParseTimestamp decodes a JSON timestamp given as an RFC3339 string, a
// numeric string of epoch millis, or a bare epoch-millis number.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		return ts.UTC(), nil
	}
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// Prices extracts the price column of a sample sequence.
func Prices(samples []PriceSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Price
	}
	return out
}
