package domain

// IceServer is a single STUN/TURN server entry used when constructing the
// native connection.
type IceServer struct {
	URLs       []string
	Username   string
	Credential string
}

// IceCandidate is a discovered or received ICE candidate. The candidate
// string itself is an opaque payload.
type IceCandidate struct {
	Candidate     string  `json:"candidate"`
	SdpMLineIndex *uint16 `json:"sdp_m_line_index,omitempty"`
	SdpMid        *string `json:"sdp_mid,omitempty"`
}

// IceCandidateError describes a failure reported by the native connection
// while gathering or checking a candidate against a STUN/TURN server.
type IceCandidateError struct {
	Address   *string
	Port      *uint32
	URL       string
	ErrorCode int32
	ErrorText string
}

// SdpKind tags a session description as an offer or an answer.
type SdpKind string

const (
	SdpOffer  SdpKind = "offer"
	SdpAnswer SdpKind = "answer"
)

// SessionDescription is an opaque SDP body tagged with its kind.
type SessionDescription struct {
	Kind SdpKind `json:"kind"`
	SDP  string  `json:"sdp"`
}
