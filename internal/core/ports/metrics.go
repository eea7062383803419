package ports

import (
	"time"

	"peerlink/internal/core/domain"
)

// SessionMetrics receives observability signals from a session. All methods
// must be cheap and non-blocking; a nil recorder disables collection.
type SessionMetrics interface {
	EventEmitted(kind string)
	CandidateBuffered()
	CandidatesFlushed(n int)
	NegotiationDuration(d time.Duration)
	StatsEntriesSent(n int)
	ConnectionState(state domain.PeerConnectionState)
}
