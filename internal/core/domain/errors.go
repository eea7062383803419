package domain

import "errors"

var (
	// ErrPeerCreation is returned when the native connection cannot be
	// constructed. Never retried internally.
	ErrPeerCreation = errors.New("failed to create native peer connection")

	// ErrSetRemoteDescription is returned when the native connection rejects
	// a remote description.
	ErrSetRemoteDescription = errors.New("failed to set remote description")

	// ErrAddIceCandidate is returned when the native connection rejects an
	// ICE candidate, directly or during the buffered flush.
	ErrAddIceCandidate = errors.New("failed to add ICE candidate")

	// ErrGetStats is returned when a stats snapshot cannot be fetched from
	// the native connection.
	ErrGetStats = errors.New("failed to get stats")

	// ErrCreateOffer is returned when the native connection fails to
	// generate a local description.
	ErrCreateOffer = errors.New("failed to create local description")

	ErrPeerNotFound  = errors.New("peer not found")
	ErrTrackNotFound = errors.New("track not found")

	// ErrMidMissing is returned when a transceiver has no mid allocated yet.
	ErrMidMissing = errors.New("transceiver without mid")
)
