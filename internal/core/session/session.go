package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"

	"go.uber.org/zap"
)

// RegistryFactory builds the track registry of a session. trackEvents is the
// channel every sender/receiver of the registry reports its mute/enable
// intentions into; the registry must stop sending once its Close returns.
type RegistryFactory func(native ports.NativeConnection, trackEvents chan<- domain.TrackEvent) ports.TrackRegistry

// Config carries everything a new Session needs.
type Config struct {
	ID           domain.PeerID
	RemoteMember domain.MemberID
	IceServers   []domain.IceServer
	ForceRelay   bool
	Native       ports.NativeConnectionFactory
	Registry     RegistryFactory
	Media        ports.MediaAcquirer
	Connections  ports.ConnectionsRepository

	SendConstraints domain.LocalTrackConstraints
	RecvConstraints domain.RecvConstraints

	Metrics ports.SessionMetrics
	Logger  *zap.SugaredLogger
}

// Session orchestrates the signalling lifecycle of one peer-to-peer media
// connection: SDP exchange, ICE candidate buffering, local track
// negotiation and outbound event emission.
type Session struct {
	id       domain.PeerID
	remote   domain.MemberID
	native   ports.NativeConnection
	registry ports.TrackRegistry
	media    ports.MediaAcquirer
	conns    ports.ConnectionsRepository
	metrics  ports.SessionMetrics
	log      *zap.SugaredLogger

	events *eventSink

	// mu guards hasRemoteDesc and candidates together: the flush flips the
	// flag and snapshots the buffer in one critical section, so no
	// candidate can be both buffered and submitted directly.
	mu            sync.Mutex
	hasRemoteDesc bool
	candidates    []domain.IceCandidate

	// updateMu serializes UpdateLocalStream calls; overlapping updates for
	// intersecting criteria would otherwise race on registry senders.
	updateMu sync.Mutex

	statsCache *statsCache

	sendConstraints domain.LocalTrackConstraints
	recvConstraints domain.RecvConstraints

	trackEvents chan domain.TrackEvent
	bridgeDone  chan struct{}

	closed atomic.Bool
}

// New constructs the native connection, the track registry and the
// intention-forwarding goroutine, then registers the native callbacks.
//
// Fails wrapping domain.ErrPeerCreation if the native connection cannot be
// constructed; the failure is not retried here.
func New(cfg Config) (*Session, error) {
	native, err := cfg.Native(cfg.IceServers, cfg.ForceRelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPeerCreation, err)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	s := &Session{
		id:              cfg.ID,
		remote:          cfg.RemoteMember,
		native:          native,
		media:           cfg.Media,
		conns:           cfg.Connections,
		metrics:         metrics,
		log:             log.With("peer_id", cfg.ID),
		events:          newEventSink(),
		statsCache:      newStatsCache(),
		sendConstraints: cfg.SendConstraints,
		recvConstraints: cfg.RecvConstraints,
		trackEvents:     make(chan domain.TrackEvent, 64),
		bridgeDone:      make(chan struct{}),
	}
	s.registry = cfg.Registry(native, s.trackEvents)

	go s.runIntentionBridge()
	s.bindEventListeners()

	if s.conns != nil {
		record := &domain.PeerRecord{
			ID:              s.id,
			ConnectionState: native.ConnectionState(),
			IceState:        native.IceConnectionState(),
			CreatedAt:       time.Now(),
			LastSeen:        time.Now(),
		}
		if err := s.conns.Add(context.Background(), record); err != nil {
			s.log.Warnw("failed to register peer record", "error", err)
		}
	}

	return s, nil
}

// ID returns the peer ID of this session.
func (s *Session) ID() domain.PeerID { return s.id }

// NextEvent blocks until an outbound event is available. The second result
// is false once the session is closed and the queue is drained.
func (s *Session) NextEvent() (domain.PeerEvent, bool) {
	return s.events.Receive()
}

// bindEventListeners registers the five native callbacks. Each closure
// captures only the sink (and registry for the track callback), so a
// callback firing after Close degrades to a dropped send instead of
// touching a half-destroyed session.
func (s *Session) bindEventListeners() {
	id := s.id
	sink := s.events
	metrics := s.metrics

	s.native.OnICECandidate(func(c domain.IceCandidate) {
		if sink.Send(domain.IceCandidateDiscovered{PeerID: id, Candidate: c}) {
			metrics.EventEmitted("ice_candidate_discovered")
		}
	})

	s.native.OnICECandidateError(func(e domain.IceCandidateError) {
		if sink.Send(domain.IceCandidateErrorEvent{PeerID: id, Error: e}) {
			metrics.EventEmitted("ice_candidate_error")
		}
	})

	conns := s.conns
	log := s.log
	s.native.OnIceConnectionStateChange(func(state domain.IceConnectionState) {
		if !sink.Send(domain.IceConnectionStateChanged{PeerID: id, State: state}) {
			return
		}
		metrics.EventEmitted("ice_connection_state")
		if conns != nil {
			if err := conns.UpdateStates(context.Background(), id, "", state); err != nil {
				log.Debugw("peer record ice state update failed", "error", err)
			}
		}
	})

	s.native.OnConnectionStateChange(func(state domain.PeerConnectionState) {
		if !sink.Send(domain.ConnectionStateChanged{PeerID: id, State: state}) {
			return
		}
		metrics.EventEmitted("connection_state")
		metrics.ConnectionState(state)
		if conns != nil {
			if err := conns.UpdateStates(context.Background(), id, state, ""); err != nil {
				log.Debugw("peer record state update failed", "error", err)
			}
		}
	})

	registry := s.registry
	remote := s.remote
	s.native.OnTrack(func(track domain.RemoteTrack, transceiver ports.Transceiver) {
		if sink.isClosed() {
			return
		}
		go func() {
			if err := registry.AddRemoteTrack(context.Background(), track, transceiver); err != nil {
				log.Errorw("cannot add remote track",
					"mid", transceiver.Mid(),
					"error", err,
				)
				return
			}
			if sink.Send(domain.NewRemoteTrack{SenderID: remote, Track: track}) {
				metrics.EventEmitted("new_remote_track")
			}
		}()
	})
}

// runIntentionBridge forwards per-track intention events into outbound
// MediaUpdateCommand events until the track-events channel is closed.
func (s *Session) runIntentionBridge() {
	defer close(s.bridgeDone)
	for ev := range s.trackEvents {
		patch := domain.TrackPatch{ID: ev.ID, Muted: ev.Muted, Enabled: ev.Enabled}
		s.events.Send(domain.MediaUpdateCommand{
			Command: domain.Command{
				PeerID:        s.id,
				TracksPatches: []domain.TrackPatch{patch},
			},
		})
	}
}

// SetRemoteOffer applies a remote SDP offer.
func (s *Session) SetRemoteOffer(ctx context.Context, offer string) error {
	return s.setRemoteDescription(ctx, domain.SessionDescription{Kind: domain.SdpOffer, SDP: offer})
}

// SetRemoteAnswer applies a remote SDP answer.
func (s *Session) SetRemoteAnswer(ctx context.Context, answer string) error {
	return s.setRemoteDescription(ctx, domain.SessionDescription{Kind: domain.SdpAnswer, SDP: answer})
}

// setRemoteDescription applies the description, marks the session as having
// a remote description, synchronizes receivers and flushes the candidate
// buffer. The flag flips before the buffer snapshot is taken, so a
// candidate arriving mid-flush goes straight to the native connection.
func (s *Session) setRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	started := time.Now()
	if err := s.native.SetRemoteDescription(ctx, desc); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSetRemoteDescription, err)
	}

	s.mu.Lock()
	s.hasRemoteDesc = true
	buffered := s.candidates
	s.candidates = nil
	s.mu.Unlock()

	if err := s.registry.SyncReceivers(ctx); err != nil {
		s.log.Warnw("receiver sync after remote description failed", "error", err)
	}

	// Best-effort flush in arrival order: every buffered candidate is
	// submitted even if an earlier one fails; nothing is re-buffered.
	var firstErr error
	for _, candidate := range buffered {
		if err := s.native.AddICECandidate(ctx, candidate); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.metrics.CandidatesFlushed(len(buffered))
	s.metrics.NegotiationDuration(time.Since(started))

	if firstErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrAddIceCandidate, firstErr)
	}
	return nil
}

// AddICECandidate submits the remote candidate to the native connection, or
// buffers it until a remote description is applied. Buffering never fails.
func (s *Session) AddICECandidate(ctx context.Context, candidate domain.IceCandidate) error {
	s.mu.Lock()
	if !s.hasRemoteDesc {
		s.candidates = append(s.candidates, candidate)
		s.mu.Unlock()
		s.metrics.CandidateBuffered()
		return nil
	}
	s.mu.Unlock()

	if err := s.native.AddICECandidate(ctx, candidate); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAddIceCandidate, err)
	}
	return nil
}

// CandidatesBufferLen returns the number of buffered ICE candidates.
func (s *Session) CandidatesBufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

// HasRemoteDescription reports whether a remote description was applied.
func (s *Session) HasRemoteDescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasRemoteDesc
}

// UpdateLocalStream refreshes the local tracks of senders selected by the
// criteria: derives the minimal requirement, acquires matching media,
// validates it and installs it into the registry. Freshly acquired tracks
// are announced with a NewLocalTrack event.
//
// Returns the per-track stable exchange-state updates. On failure the error
// is additionally surfaced as a FailedLocalMedia event, so observers
// outside the call chain learn about it too.
func (s *Session) UpdateLocalStream(
	ctx context.Context,
	criteria domain.LocalStreamUpdateCriteria,
) (map[domain.TrackID]domain.MediaExchangeState, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	updates, err := s.innerUpdateLocalStream(ctx, criteria)
	if err != nil {
		s.events.Send(domain.FailedLocalMedia{Error: err})
		return nil, err
	}
	return updates, nil
}

func (s *Session) innerUpdateLocalStream(
	ctx context.Context,
	criteria domain.LocalStreamUpdateCriteria,
) (map[domain.TrackID]domain.MediaExchangeState, error) {
	required, err := s.simpleTracksRequest(criteria)
	if err != nil {
		return nil, &UpdateLocalStreamError{Kind: InvalidLocalTracks, Cause: err}
	}
	if required == nil {
		return map[domain.TrackID]domain.MediaExchangeState{}, nil
	}

	acquired, err := s.media.AcquireTracks(ctx, required.Settings())
	if err != nil {
		return nil, &UpdateLocalStreamError{Kind: CouldNotGetLocalMedia, Cause: err}
	}

	tracks := make([]domain.LocalTrack, 0, len(acquired))
	for _, a := range acquired {
		tracks = append(tracks, a.Track)
	}
	parsed, err := required.ParseTracks(tracks)
	if err != nil {
		return nil, &UpdateLocalStreamError{Kind: InvalidLocalTracks, Cause: err}
	}

	updates, err := s.registry.InsertLocalTracks(ctx, parsed)
	if err != nil {
		return nil, &UpdateLocalStreamError{Kind: InsertLocalTracksFailed, Cause: err}
	}

	for _, a := range acquired {
		if a.Fresh {
			if s.events.Send(domain.NewLocalTrack{Track: a.Track}) {
				s.metrics.EventEmitted("new_local_track")
			}
		}
	}
	return updates, nil
}

// simpleTracksRequest derives the merged acquirable requirement for the
// criteria. Returns nil when the registry needs nothing.
func (s *Session) simpleTracksRequest(criteria domain.LocalStreamUpdateCriteria) (*SimpleTracksRequest, error) {
	raw := s.registry.TracksRequest(criteria)
	if len(raw) == 0 {
		return nil, nil
	}
	required, err := NewSimpleTracksRequest(raw)
	if err != nil {
		return nil, err
	}
	if err := required.Merge(s.sendConstraints); err != nil {
		return nil, err
	}
	if required.IsEmpty() {
		return nil, nil
	}
	return required, nil
}

// GetMediaSettings returns the merged settings for the given kind and
// source. A nil source selects both device and display. Returns nil when
// no sender of that kind needs media.
func (s *Session) GetMediaSettings(
	kind domain.MediaKind,
	source *domain.MediaSourceKind,
) (*domain.MediaStreamSettings, error) {
	criteria := domain.EmptyCriteria()
	if source != nil {
		criteria = criteria.Add(kind, *source)
	} else {
		criteria = criteria.Add(kind, domain.MediaSourceDevice).Add(kind, domain.MediaSourceDisplay)
	}

	required, err := s.simpleTracksRequest(criteria)
	if err != nil || required == nil {
		return nil, err
	}
	settings := required.Settings()
	return &settings, nil
}

// SendersWithoutTracks returns IDs of senders matching the criteria that
// lack a local track.
func (s *Session) SendersWithoutTracks(criteria domain.LocalStreamUpdateCriteria) []domain.TrackID {
	return s.registry.SendersWithoutTracks(criteria)
}

// DropSendTracks stops and removes local tracks of senders matching the
// criteria.
func (s *Session) DropSendTracks(ctx context.Context, criteria domain.LocalStreamUpdateCriteria) error {
	return s.registry.DropSendTracks(ctx, criteria)
}

// RemoveTrack drops the sender and receiver with the given track ID.
func (s *Session) RemoveTrack(id domain.TrackID) {
	s.registry.RemoveTrack(id)
}

// RestartICE marks the session so the next generated offer triggers an ICE
// restart.
func (s *Session) RestartICE() {
	s.native.RestartICE()
}

// SendStats filters the snapshot against the last-sent values and emits a
// StatsUpdate event when anything changed.
func (s *Session) SendStats(stats domain.RTCStats) {
	filtered := s.statsCache.Filter(stats)
	if filtered.IsEmpty() {
		return
	}
	if s.events.Send(domain.StatsUpdate{PeerID: s.id, Stats: filtered}) {
		s.metrics.EventEmitted("stats_update")
		s.metrics.StatsEntriesSent(len(filtered.Entries))
	}
}

// ScrapeAndSendStats fetches a fresh snapshot from the native connection
// and forwards it through SendStats. Fetch failures are logged and dropped;
// metrics are best-effort.
func (s *Session) ScrapeAndSendStats(ctx context.Context) {
	stats, err := s.native.GetStats(ctx)
	if err != nil {
		s.log.Errorw("stats scrape failed", "error", err)
		return
	}
	s.SendStats(stats)
}

// SendCurrentConnectionStates emits the current connection and ICE
// connection states as events.
func (s *Session) SendCurrentConnectionStates() {
	s.events.Send(domain.IceConnectionStateChanged{PeerID: s.id, State: s.native.IceConnectionState()})
	s.events.Send(domain.ConnectionStateChanged{PeerID: s.id, State: s.native.ConnectionState()})
}

// ConnectionState returns the current native connection state.
func (s *Session) ConnectionState() domain.PeerConnectionState {
	return s.native.ConnectionState()
}

// IceConnectionState returns the current native ICE connection state.
func (s *Session) IceConnectionState() domain.IceConnectionState {
	return s.native.IceConnectionState()
}

// CreateAndSetOffer generates a local offer, collects the allocated mids
// and transceiver statuses and announces everything with a NewSdpOffer
// event. Returns the offer SDP.
func (s *Session) CreateAndSetOffer(ctx context.Context) (string, error) {
	started := time.Now()
	sdp, err := s.native.CreateOffer(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCreateOffer, err)
	}
	mids, err := s.registry.Mids()
	if err != nil {
		return "", fmt.Errorf("offer mids: %w", err)
	}
	statuses := s.registry.TransceiverStatuses(ctx)
	s.metrics.NegotiationDuration(time.Since(started))
	if s.events.Send(domain.NewSdpOffer{
		PeerID:              s.id,
		SdpOffer:            sdp,
		Mids:                mids,
		TransceiverStatuses: statuses,
	}) {
		s.metrics.EventEmitted("new_sdp_offer")
	}
	return sdp, nil
}

// CreateAndSetAnswer generates a local answer for a previously applied
// remote offer and announces it with a NewSdpAnswer event.
func (s *Session) CreateAndSetAnswer(ctx context.Context) (string, error) {
	started := time.Now()
	sdp, err := s.native.CreateAnswer(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCreateOffer, err)
	}
	statuses := s.registry.TransceiverStatuses(ctx)
	s.metrics.NegotiationDuration(time.Since(started))
	if s.events.Send(domain.NewSdpAnswer{
		PeerID:              s.id,
		SdpAnswer:           sdp,
		TransceiverStatuses: statuses,
	}) {
		s.metrics.EventEmitted("new_sdp_answer")
	}
	return sdp, nil
}

// IsSendAudioEnabled reports whether all sender audio slots are enabled.
func (s *Session) IsSendAudioEnabled() bool { return s.registry.IsSendAudioEnabled() }

// IsSendVideoEnabled reports whether all sender video slots of the source
// are enabled; nil selects all sources.
func (s *Session) IsSendVideoEnabled(source *domain.MediaSourceKind) bool {
	return s.registry.IsSendVideoEnabled(source)
}

// IsSendAudioUnmuted reports whether no sender audio slot is muted.
func (s *Session) IsSendAudioUnmuted() bool { return s.registry.IsSendAudioUnmuted() }

// IsSendVideoUnmuted reports whether no sender video slot of the source is
// muted; nil selects all sources.
func (s *Session) IsSendVideoUnmuted(source *domain.MediaSourceKind) bool {
	return s.registry.IsSendVideoUnmuted(source)
}

// IsRecvAudioEnabled reports whether receiving audio is enabled.
func (s *Session) IsRecvAudioEnabled() bool { return s.registry.IsRecvAudioEnabled() }

// IsRecvVideoEnabled reports whether receiving video is enabled.
func (s *Session) IsRecvVideoEnabled() bool { return s.registry.IsRecvVideoEnabled() }

// Close tears the session down. Callbacks are unregistered before anything
// else so the native layer cannot fire into a half-destroyed session; that
// ordering is a correctness requirement, not cosmetics.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.native.OnICECandidate(nil)
	s.native.OnICECandidateError(nil)
	s.native.OnIceConnectionStateChange(nil)
	s.native.OnConnectionStateChange(nil)
	s.native.OnTrack(nil)

	s.registry.Close()
	close(s.trackEvents)
	<-s.bridgeDone

	err := s.native.Close()

	if s.conns != nil {
		if rerr := s.conns.Remove(context.Background(), s.id); rerr != nil {
			s.log.Debugw("peer record removal failed", "error", rerr)
		}
	}

	s.events.Close()
	return err
}

// noopMetrics discards every signal.
type noopMetrics struct{}

func (noopMetrics) EventEmitted(string)                        {}
func (noopMetrics) CandidateBuffered()                         {}
func (noopMetrics) CandidatesFlushed(int)                      {}
func (noopMetrics) NegotiationDuration(time.Duration)          {}
func (noopMetrics) StatsEntriesSent(int)                       {}
func (noopMetrics) ConnectionState(domain.PeerConnectionState) {}
