package ports

import (
	"context"

	"peerlink/internal/core/domain"
)

// NativeConnection is the native WebRTC peer-connection handle the session
// orchestrates. Registering a nil callback unregisters the previous one;
// implementations must stop invoking it after that.
type NativeConnection interface {
	// SetRemoteDescription applies the remote offer or answer.
	SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error

	// AddICECandidate submits a remote candidate to the ICE agent.
	AddICECandidate(ctx context.Context, candidate domain.IceCandidate) error

	// CreateOffer generates and applies a local offer SDP.
	CreateOffer(ctx context.Context) (string, error)

	// CreateAnswer generates and applies a local answer SDP. Valid only
	// after a remote offer has been applied.
	CreateAnswer(ctx context.Context) (string, error)

	// RestartICE marks the connection so the next generated offer triggers
	// an ICE restart.
	RestartICE()

	// GetStats fetches a raw stats snapshot.
	GetStats(ctx context.Context) (domain.RTCStats, error)

	ConnectionState() domain.PeerConnectionState
	IceConnectionState() domain.IceConnectionState

	OnICECandidate(f func(domain.IceCandidate))
	OnICECandidateError(f func(domain.IceCandidateError))
	OnIceConnectionStateChange(f func(domain.IceConnectionState))
	OnConnectionStateChange(f func(domain.PeerConnectionState))
	OnTrack(f func(track domain.RemoteTrack, transceiver Transceiver))

	Close() error
}

// NativeConnectionFactory constructs a NativeConnection from ICE servers and
// the relay-forcing flag.
type NativeConnectionFactory func(iceServers []domain.IceServer, forceRelay bool) (NativeConnection, error)

// Transceiver pairs a sender and a receiver for one media line of the
// native connection.
type Transceiver interface {
	Mid() string
	Direction() domain.TrackDirection
	Kind() domain.MediaKind
}
