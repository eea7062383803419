package domain

// PeerEvent is an outbound event emitted by a peer session towards the
// signalling layer. One concrete type per payload.
type PeerEvent interface {
	peerEvent()
}

// IceCandidateDiscovered is fired when the native connection discovers a new
// local ICE candidate.
type IceCandidateDiscovered struct {
	PeerID    PeerID
	Candidate IceCandidate
}

// IceCandidateErrorEvent is fired when the native connection reports an ICE
// candidate failure.
type IceCandidateErrorEvent struct {
	PeerID PeerID
	Error  IceCandidateError
}

// NewRemoteTrack is fired when a track from the remote member arrives.
type NewRemoteTrack struct {
	SenderID MemberID
	Track    RemoteTrack
}

// NewLocalTrack is fired for every freshly acquired local track that started
// being sent to the remote member.
type NewLocalTrack struct {
	Track LocalTrack
}

// IceConnectionStateChanged is fired on every ICE connection state
// transition of the native connection.
type IceConnectionStateChanged struct {
	PeerID PeerID
	State  IceConnectionState
}

// ConnectionStateChanged is fired on every overall connection state
// transition of the native connection.
type ConnectionStateChanged struct {
	PeerID PeerID
	State  PeerConnectionState
}

// StatsUpdate carries a deduplicated stats snapshot.
type StatsUpdate struct {
	PeerID PeerID
	Stats  RTCStats
}

// FailedLocalMedia notifies observers that a local-stream update failed.
// The operation itself also returns the error; this event exists for
// listeners outside the call chain.
type FailedLocalMedia struct {
	Error error
}

// NewSdpAnswer carries a freshly generated SDP answer.
type NewSdpAnswer struct {
	PeerID              PeerID
	SdpAnswer           string
	TransceiverStatuses map[TrackID]bool
}

// NewSdpOffer carries a freshly generated SDP offer together with the
// track-to-mid associations allocated for it.
type NewSdpOffer struct {
	PeerID              PeerID
	SdpOffer            string
	Mids                map[TrackID]string
	TransceiverStatuses map[TrackID]bool
}

// MediaUpdateCommand resends the session's per-track intentions to the
// server.
type MediaUpdateCommand struct {
	Command Command
}

func (IceCandidateDiscovered) peerEvent()    {}
func (IceCandidateErrorEvent) peerEvent()    {}
func (NewRemoteTrack) peerEvent()            {}
func (NewLocalTrack) peerEvent()             {}
func (IceConnectionStateChanged) peerEvent() {}
func (ConnectionStateChanged) peerEvent()    {}
func (StatsUpdate) peerEvent()               {}
func (FailedLocalMedia) peerEvent()          {}
func (NewSdpAnswer) peerEvent()              {}
func (NewSdpOffer) peerEvent()               {}
func (MediaUpdateCommand) peerEvent()        {}

// TrackEvent is an intention signal emitted by a single sender or receiver
// belonging to a session.
type TrackEvent struct {
	ID TrackID

	// Muted is set when the track intends to mute or unmute itself.
	Muted *bool

	// Enabled is set when the track intends to enable or disable itself.
	Enabled *bool
}
