package session

import (
	"encoding/json"
	"testing"

	"peerlink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, typ, payload string) domain.StatEntry {
	return domain.StatEntry{ID: domain.StatID(id), Type: typ, Payload: json.RawMessage(payload)}
}

func TestStatsCache_FirstSnapshotPassesThrough(t *testing.T) {
	cache := newStatsCache()

	snapshot := domain.RTCStats{Entries: []domain.StatEntry{
		entry("a", "outbound-rtp", `{"bytes":1}`),
		entry("b", "inbound-rtp", `{"bytes":2}`),
	}}

	filtered := cache.Filter(snapshot)
	assert.Equal(t, snapshot.Entries, filtered.Entries)
	assert.Equal(t, 2, cache.Len())
}

func TestStatsCache_IdenticalSnapshotIsDropped(t *testing.T) {
	cache := newStatsCache()
	snapshot := domain.RTCStats{Entries: []domain.StatEntry{
		entry("a", "outbound-rtp", `{"bytes":1}`),
	}}

	require.False(t, cache.Filter(snapshot).IsEmpty())
	assert.True(t, cache.Filter(snapshot).IsEmpty())
}

func TestStatsCache_OnlyChangedEntriesSurvive(t *testing.T) {
	cache := newStatsCache()
	cache.Filter(domain.RTCStats{Entries: []domain.StatEntry{
		entry("a", "outbound-rtp", `{"bytes":1}`),
		entry("b", "inbound-rtp", `{"bytes":2}`),
		entry("c", "candidate-pair", `{"rtt":3}`),
	}})

	filtered := cache.Filter(domain.RTCStats{Entries: []domain.StatEntry{
		entry("a", "outbound-rtp", `{"bytes":1}`),
		entry("b", "inbound-rtp", `{"bytes":99}`),
		entry("c", "candidate-pair", `{"rtt":3}`),
	}})

	require.Len(t, filtered.Entries, 1)
	assert.Equal(t, domain.StatID("b"), filtered.Entries[0].ID)
}

func TestStatsCache_PreservesOrder(t *testing.T) {
	cache := newStatsCache()
	filtered := cache.Filter(domain.RTCStats{Entries: []domain.StatEntry{
		entry("z", "t", `1`),
		entry("a", "t", `2`),
		entry("m", "t", `3`),
	}})

	ids := make([]domain.StatID, 0, len(filtered.Entries))
	for _, e := range filtered.Entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []domain.StatID{"z", "a", "m"}, ids)
}

func TestStatsCache_TypePayloadBoundary(t *testing.T) {
	// Shifting a byte between type and payload keeps the concatenation
	// identical; the entries must still hash differently.
	cache := newStatsCache()
	first := cache.Filter(domain.RTCStats{Entries: []domain.StatEntry{entry("s", "ab", `c`)}})
	require.Len(t, first.Entries, 1)

	second := cache.Filter(domain.RTCStats{Entries: []domain.StatEntry{entry("s", "a", `bc`)}})
	assert.Len(t, second.Entries, 1)
}

func TestStatsCache_NeverShrinks(t *testing.T) {
	cache := newStatsCache()
	cache.Filter(domain.RTCStats{Entries: []domain.StatEntry{entry("a", "t", `1`)}})
	cache.Filter(domain.RTCStats{Entries: []domain.StatEntry{entry("b", "t", `2`)}})
	cache.Filter(domain.RTCStats{Entries: []domain.StatEntry{entry("a", "t", `9`)}})

	assert.Equal(t, 2, cache.Len())
}
