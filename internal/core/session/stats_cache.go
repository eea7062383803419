package session

import (
	"hash/fnv"
	"sync"

	"peerlink/internal/core/domain"
)

// statsCache remembers a 64-bit content hash of the last-sent value per
// metric, so identical entries are not re-sent. The map only grows; entries
// are inserted or overwritten, never removed.
type statsCache struct {
	mu   sync.Mutex
	sent map[domain.StatID]uint64
}

func newStatsCache() *statsCache {
	return &statsCache{sent: make(map[domain.StatID]uint64)}
}

// Filter returns the entries of the snapshot whose content changed since
// the last call, preserving their order. Unseen metrics always pass.
func (c *statsCache) Filter(stats domain.RTCStats) domain.RTCStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.StatEntry
	for _, entry := range stats.Entries {
		h := hashStatEntry(entry)
		last, seen := c.sent[entry.ID]
		if seen && last == h {
			continue
		}
		c.sent[entry.ID] = h
		out = append(out, entry)
	}
	return domain.RTCStats{Entries: out}
}

// Len returns the number of cached metric hashes.
func (c *statsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func hashStatEntry(e domain.StatEntry) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(e.Type))
	// Boundary byte; without it distinct (type, payload) pairs sharing a
	// concatenation would collide.
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(e.Payload)
	return h.Sum64()
}
