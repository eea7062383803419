package ports

import (
	"context"

	"peerlink/internal/core/domain"
)

// TrackRegistry tracks the per-track sender/receiver objects of one session
// and their exchange/mute state.
type TrackRegistry interface {
	// SendersWithoutTracks returns IDs of senders matching the criteria
	// that currently have no local track.
	SendersWithoutTracks(criteria domain.LocalStreamUpdateCriteria) []domain.TrackID

	// DropSendTracks removes and stops local tracks of all senders matching
	// the criteria.
	DropSendTracks(ctx context.Context, criteria domain.LocalStreamUpdateCriteria) error

	// TracksRequest returns the raw per-slot requirements of senders
	// matching the criteria. An empty map means nothing is needed.
	TracksRequest(criteria domain.LocalStreamUpdateCriteria) map[domain.TrackID]domain.TrackConstraints

	// Mids returns track-to-mid associations of all send slots. Errors with
	// domain.ErrMidMissing if any transceiver has no mid allocated yet.
	Mids() (map[domain.TrackID]string, error)

	// TransceiverStatuses returns the publishing status of every sender.
	TransceiverStatuses(ctx context.Context) map[domain.TrackID]bool

	// InsertLocalTracks installs validated local tracks into their senders
	// and returns the resulting stable exchange state per track.
	InsertLocalTracks(ctx context.Context, tracks map[domain.TrackID]domain.LocalTrack) (map[domain.TrackID]domain.MediaExchangeState, error)

	// SyncReceivers reconciles receivers against the freshly applied remote
	// description.
	SyncReceivers(ctx context.Context) error

	// AddRemoteTrack admits a track received from the remote side,
	// correlating it with a receiver by the transceiver's mid.
	AddRemoteTrack(ctx context.Context, track domain.RemoteTrack, transceiver Transceiver) error

	// RemoveTrack drops the sender and receiver registered under the ID.
	RemoveTrack(id domain.TrackID)

	IsSendAudioEnabled() bool
	IsSendVideoEnabled(source *domain.MediaSourceKind) bool
	IsSendAudioUnmuted() bool
	IsSendVideoUnmuted(source *domain.MediaSourceKind) bool
	IsRecvAudioEnabled() bool
	IsRecvVideoEnabled() bool

	// Close stops all senders and receivers. No track events may be
	// emitted after it returns.
	Close()
}

// ConnectionsRepository keeps peer-level bookkeeping records for live
// sessions.
type ConnectionsRepository interface {
	Add(ctx context.Context, record *domain.PeerRecord) error
	Get(ctx context.Context, id domain.PeerID) (*domain.PeerRecord, error)

	// UpdateStates refreshes the stored states and the last-seen timestamp.
	// An empty state value means "leave unchanged".
	UpdateStates(ctx context.Context, id domain.PeerID, conn domain.PeerConnectionState, ice domain.IceConnectionState) error
	Remove(ctx context.Context, id domain.PeerID) error
	List(ctx context.Context) ([]*domain.PeerRecord, error)
}
