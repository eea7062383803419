package domain

// TrackPatch is a single-track state change requested from the server.
type TrackPatch struct {
	ID      TrackID `json:"id"`
	Muted   *bool   `json:"muted,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// Command is an outbound signalling command produced by a session.
// UpdateTracks is the only command this core produces.
type Command struct {
	PeerID        PeerID       `json:"peer_id"`
	TracksPatches []TrackPatch `json:"tracks_patches"`
}
