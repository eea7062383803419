package domain

import "encoding/json"

// StatID identifies one metric within an RTC stats snapshot.
type StatID string

// StatEntry is a single metric of a stats snapshot. Payload keeps the raw
// metric body; the core hashes it but never interprets it.
type StatEntry struct {
	ID        StatID          `json:"id"`
	Type      string          `json:"type"`
	Timestamp float64         `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RTCStats is an ordered snapshot of metrics scraped from the native
// connection.
type RTCStats struct {
	Entries []StatEntry `json:"entries"`
}

// IsEmpty reports whether the snapshot carries no entries.
func (s RTCStats) IsEmpty() bool {
	return len(s.Entries) == 0
}
