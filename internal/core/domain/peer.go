package domain

import "time"

// PeerID uniquely identifies one peer session. It is assigned by the
// signalling server and never changes for the session's lifetime.
type PeerID string

// MemberID identifies a remote member on the other side of a session.
type MemberID string

// TrackID identifies a single media track within a session.
type TrackID string

// IceConnectionState mirrors the ICE connection state of the underlying
// native connection.
type IceConnectionState string

const (
	IceConnectionNew          IceConnectionState = "new"
	IceConnectionChecking     IceConnectionState = "checking"
	IceConnectionConnected    IceConnectionState = "connected"
	IceConnectionCompleted    IceConnectionState = "completed"
	IceConnectionFailed       IceConnectionState = "failed"
	IceConnectionDisconnected IceConnectionState = "disconnected"
	IceConnectionClosed       IceConnectionState = "closed"
)

// PeerConnectionState mirrors the overall connection state of the underlying
// native connection.
type PeerConnectionState string

const (
	PeerConnectionNew          PeerConnectionState = "new"
	PeerConnectionConnecting   PeerConnectionState = "connecting"
	PeerConnectionConnected    PeerConnectionState = "connected"
	PeerConnectionDisconnected PeerConnectionState = "disconnected"
	PeerConnectionFailed       PeerConnectionState = "failed"
	PeerConnectionClosed       PeerConnectionState = "closed"
)

// PeerRecord is the bookkeeping entry kept in the connections repository for
// every live peer session.
type PeerRecord struct {
	ID              PeerID              `json:"id"`
	RemoteMember    MemberID            `json:"remote_member,omitempty"`
	ConnectionState PeerConnectionState `json:"connection_state"`
	IceState        IceConnectionState  `json:"ice_state"`
	CreatedAt       time.Time           `json:"created_at"`
	LastSeen        time.Time           `json:"last_seen"`
}
