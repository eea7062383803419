package webrtc

import (
	"context"
	"fmt"
	"sync"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// localTrackSource is implemented by local tracks that are backed by a pion
// track. The media-acquisition layer provides it; the registry needs it to
// install the track into a sender.
type localTrackSource interface {
	PionTrack() webrtc.TrackLocal
}

// MediaConnections is the pion-backed track registry of one session. It owns
// the sender and receiver slots, their mute/enable state and the intention
// events they emit.
type MediaConnections struct {
	pc     *webrtc.PeerConnection
	log    *zap.SugaredLogger
	events chan<- domain.TrackEvent

	mu        sync.Mutex
	closed    bool
	senders   map[domain.TrackID]*senderSlot
	receivers map[domain.TrackID]*receiverSlot
	recv      domain.RecvConstraints

	// pending holds queued intention events; the pump forwards them in
	// order, so a slow consumer delays intentions but never loses one.
	pending  []domain.TrackEvent
	emitCond *sync.Cond
	pumpDone chan struct{}
}

// senderSlot is one outbound media line: a sendonly transceiver plus the
// local track currently installed into it, if any.
type senderSlot struct {
	id          domain.TrackID
	constraints domain.TrackConstraints
	transceiver *webrtc.RTPTransceiver
	track       domain.LocalTrack
	enabled     bool
	muted       bool
}

// receiverSlot is one inbound media line.
type receiverSlot struct {
	id      domain.TrackID
	kind    domain.MediaKind
	mid     string
	track   domain.RemoteTrack
	enabled bool
}

// NewMediaConnections allocates the sender and receiver transceivers implied
// by the constraints and returns the registry. Sender slots exist even while
// disabled; the enabled flag only controls whether media flows.
func NewMediaConnections(
	pc *webrtc.PeerConnection,
	send domain.LocalTrackConstraints,
	recv domain.RecvConstraints,
	events chan<- domain.TrackEvent,
	log *zap.SugaredLogger,
) (*MediaConnections, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &MediaConnections{
		pc:        pc,
		log:       log,
		events:    events,
		senders:   make(map[domain.TrackID]*senderSlot),
		receivers: make(map[domain.TrackID]*receiverSlot),
		recv:      recv,
		pumpDone:  make(chan struct{}),
	}
	m.emitCond = sync.NewCond(&m.mu)

	if err := m.addSender(domain.TrackConstraints{
		Kind:  domain.MediaKindAudio,
		Audio: send.Audio,
	}, send.AudioEnabled); err != nil {
		return nil, err
	}
	deviceVideo := send.DeviceVideo
	deviceVideo.Source = domain.MediaSourceDevice
	if err := m.addSender(domain.TrackConstraints{
		Kind:  domain.MediaKindVideo,
		Video: deviceVideo,
	}, send.DeviceVideoEnabled); err != nil {
		return nil, err
	}
	displayVideo := send.DisplayVideo
	displayVideo.Source = domain.MediaSourceDisplay
	if err := m.addSender(domain.TrackConstraints{
		Kind:  domain.MediaKindVideo,
		Video: displayVideo,
	}, send.DisplayVideoEnabled); err != nil {
		return nil, err
	}

	if recv.AudioEnabled {
		if err := m.addRecvTransceiver(webrtc.RTPCodecTypeAudio); err != nil {
			return nil, err
		}
	}
	if recv.VideoEnabled {
		// One line per remote video source: camera and screen share.
		for i := 0; i < 2; i++ {
			if err := m.addRecvTransceiver(webrtc.RTPCodecTypeVideo); err != nil {
				return nil, err
			}
		}
	}

	go m.pumpIntentions()
	return m, nil
}

func (m *MediaConnections) addSender(constraints domain.TrackConstraints, enabled bool) error {
	kind := webrtc.RTPCodecTypeAudio
	if constraints.Kind == domain.MediaKindVideo {
		kind = webrtc.RTPCodecTypeVideo
	}
	transceiver, err := m.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		return fmt.Errorf("failed to add %s sender transceiver: %w", constraints.Kind, err)
	}
	id := domain.TrackID(uuid.New().String())
	m.senders[id] = &senderSlot{
		id:          id,
		constraints: constraints,
		transceiver: transceiver,
		enabled:     enabled,
	}
	return nil
}

func (m *MediaConnections) addRecvTransceiver(kind webrtc.RTPCodecType) error {
	_, err := m.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("failed to add %s receiver transceiver: %w", kind, err)
	}
	return nil
}

func (m *MediaConnections) matches(slot *senderSlot, criteria domain.LocalStreamUpdateCriteria) bool {
	return criteria.Has(slot.constraints.Kind, slot.constraints.Source())
}

// SendersWithoutTracks returns IDs of matching senders that have no local
// track installed yet.
func (m *MediaConnections) SendersWithoutTracks(criteria domain.LocalStreamUpdateCriteria) []domain.TrackID {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []domain.TrackID
	for id, slot := range m.senders {
		if m.matches(slot, criteria) && slot.track == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// DropSendTracks stops and detaches local tracks of all matching senders.
func (m *MediaConnections) DropSendTracks(_ context.Context, criteria domain.LocalStreamUpdateCriteria) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, slot := range m.senders {
		if !m.matches(slot, criteria) || slot.track == nil {
			continue
		}
		if err := slot.transceiver.Sender().ReplaceTrack(nil); err != nil && firstErr == nil {
			firstErr = err
		}
		slot.track.Stop()
		slot.track = nil
	}
	return firstErr
}

// TracksRequest returns the raw requirements of all matching enabled
// senders. Disabled slots request nothing.
func (m *MediaConnections) TracksRequest(criteria domain.LocalStreamUpdateCriteria) map[domain.TrackID]domain.TrackConstraints {
	m.mu.Lock()
	defer m.mu.Unlock()

	required := make(map[domain.TrackID]domain.TrackConstraints)
	for id, slot := range m.senders {
		if m.matches(slot, criteria) && slot.enabled {
			required[id] = slot.constraints
		}
	}
	return required
}

// Mids returns the track-to-mid associations of every sender slot. A
// transceiver without an allocated mid means no local offer was generated
// yet for it.
func (m *MediaConnections) Mids() (map[domain.TrackID]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mids := make(map[domain.TrackID]string, len(m.senders))
	for id, slot := range m.senders {
		mid := slot.transceiver.Mid()
		if mid == "" {
			return nil, fmt.Errorf("%w: sender %s", domain.ErrMidMissing, id)
		}
		mids[id] = mid
	}
	return mids, nil
}

// TransceiverStatuses reports, per sender, whether it is actually
// publishing: enabled and with a track installed.
func (m *MediaConnections) TransceiverStatuses(context.Context) map[domain.TrackID]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make(map[domain.TrackID]bool, len(m.senders))
	for id, slot := range m.senders {
		statuses[id] = slot.enabled && slot.track != nil
	}
	return statuses
}

// InsertLocalTracks installs the validated tracks into their sender slots
// via ReplaceTrack and returns the resulting stable exchange state per
// track.
func (m *MediaConnections) InsertLocalTracks(
	_ context.Context,
	tracks map[domain.TrackID]domain.LocalTrack,
) (map[domain.TrackID]domain.MediaExchangeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updates := make(map[domain.TrackID]domain.MediaExchangeState, len(tracks))
	for id, track := range tracks {
		slot, ok := m.senders[id]
		if !ok {
			return nil, fmt.Errorf("%w: sender %s", domain.ErrTrackNotFound, id)
		}
		source, ok := track.(localTrackSource)
		if !ok {
			return nil, fmt.Errorf("local track %s is not backed by a sendable source", track.Info().ID)
		}
		if err := slot.transceiver.Sender().ReplaceTrack(source.PionTrack()); err != nil {
			return nil, fmt.Errorf("failed to install track into sender %s: %w", id, err)
		}
		if slot.track != nil && slot.track != track {
			slot.track.Stop()
		}
		slot.track = track
		track.SetEnabled(slot.enabled)

		state := domain.MediaExchangeDisabled
		if slot.enabled {
			state = domain.MediaExchangeEnabled
		}
		updates[id] = state
	}
	return updates, nil
}

// SyncReceivers reconciles receiver slots against the transceivers the
// freshly applied remote description produced: every recv-capable
// transceiver with a mid gets a slot.
func (m *MediaConnections) SyncReceivers(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tr := range m.pc.GetTransceivers() {
		direction := tr.Direction()
		if direction != webrtc.RTPTransceiverDirectionRecvonly &&
			direction != webrtc.RTPTransceiverDirectionSendrecv {
			continue
		}
		mid := tr.Mid()
		if mid == "" || m.receiverByMid(mid) != nil {
			continue
		}
		kind := domain.MediaKindVideo
		enabled := m.recv.VideoEnabled
		if tr.Kind() == webrtc.RTPCodecTypeAudio {
			kind = domain.MediaKindAudio
			enabled = m.recv.AudioEnabled
		}
		id := domain.TrackID(uuid.New().String())
		m.receivers[id] = &receiverSlot{id: id, kind: kind, mid: mid, enabled: enabled}
	}
	return nil
}

func (m *MediaConnections) receiverByMid(mid string) *receiverSlot {
	for _, slot := range m.receivers {
		if slot.mid == mid {
			return slot
		}
	}
	return nil
}

// AddRemoteTrack attaches an arrived remote track to the receiver slot with
// the transceiver's mid, creating the slot if receiver sync has not seen the
// transceiver yet.
func (m *MediaConnections) AddRemoteTrack(_ context.Context, track domain.RemoteTrack, transceiver ports.Transceiver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mid := transceiver.Mid()
	if mid == "" {
		return fmt.Errorf("%w: remote track %s", domain.ErrMidMissing, track.Info().ID)
	}
	slot := m.receiverByMid(mid)
	if slot == nil {
		enabled := m.recv.VideoEnabled
		if transceiver.Kind() == domain.MediaKindAudio {
			enabled = m.recv.AudioEnabled
		}
		slot = &receiverSlot{
			id:      track.Info().ID,
			kind:    transceiver.Kind(),
			mid:     mid,
			enabled: enabled,
		}
		m.receivers[slot.id] = slot
	}
	slot.track = track
	return nil
}

// RemoveTrack drops the sender and receiver slots registered under the ID.
func (m *MediaConnections) RemoveTrack(id domain.TrackID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot, ok := m.senders[id]; ok {
		if slot.track != nil {
			_ = slot.transceiver.Sender().ReplaceTrack(nil)
			slot.track.Stop()
		}
		delete(m.senders, id)
	}
	delete(m.receivers, id)
}

// SetSendEnabled records the local intention to enable or disable the
// sender and emits a track event for the session to forward upstream.
func (m *MediaConnections) SetSendEnabled(id domain.TrackID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.senders[id]
	if !ok {
		return fmt.Errorf("%w: sender %s", domain.ErrTrackNotFound, id)
	}
	slot.enabled = enabled
	if slot.track != nil {
		slot.track.SetEnabled(enabled)
	}
	m.emitLocked(domain.TrackEvent{ID: id, Enabled: &enabled})
	return nil
}

// SetSendMuted records the local mute intention of the sender and emits a
// track event.
func (m *MediaConnections) SetSendMuted(id domain.TrackID, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.senders[id]
	if !ok {
		return fmt.Errorf("%w: sender %s", domain.ErrTrackNotFound, id)
	}
	slot.muted = muted
	if slot.track != nil {
		slot.track.SetEnabled(slot.enabled && !muted)
	}
	m.emitLocked(domain.TrackEvent{ID: id, Muted: &muted})
	return nil
}

// ApplyPatch applies a server-issued track patch: state changes only, no
// intention event is emitted back.
func (m *MediaConnections) ApplyPatch(patch domain.TrackPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slot, ok := m.senders[patch.ID]; ok {
		if patch.Enabled != nil {
			slot.enabled = *patch.Enabled
		}
		if patch.Muted != nil {
			slot.muted = *patch.Muted
		}
		if slot.track != nil {
			slot.track.SetEnabled(slot.enabled && !slot.muted)
		}
		return nil
	}
	if slot, ok := m.receivers[patch.ID]; ok {
		if patch.Enabled != nil {
			slot.enabled = *patch.Enabled
		}
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrTrackNotFound, patch.ID)
}

// emitLocked queues a track event unless the registry is closed. Callers
// hold m.mu, which is what makes the "no events after Close" contract hold.
// Each intention must reach the session exactly once, so the queue grows
// instead of dropping when the consumer lags.
func (m *MediaConnections) emitLocked(ev domain.TrackEvent) {
	if m.closed {
		return
	}
	m.pending = append(m.pending, ev)
	m.emitCond.Signal()
}

// pumpIntentions forwards queued intention events to the session in
// submission order. It drains whatever was queued before Close and then
// exits; Close waits for that.
func (m *MediaConnections) pumpIntentions() {
	defer close(m.pumpDone)

	m.mu.Lock()
	for {
		for len(m.pending) == 0 && !m.closed {
			m.emitCond.Wait()
		}
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		for _, ev := range batch {
			m.events <- ev
		}
		m.mu.Lock()
	}
}

func (m *MediaConnections) IsSendAudioEnabled() bool {
	return m.allSendersEnabled(func(s *senderSlot) bool {
		return s.constraints.Kind == domain.MediaKindAudio
	})
}

func (m *MediaConnections) IsSendVideoEnabled(source *domain.MediaSourceKind) bool {
	return m.allSendersEnabled(func(s *senderSlot) bool {
		if s.constraints.Kind != domain.MediaKindVideo {
			return false
		}
		return source == nil || s.constraints.Source() == *source
	})
}

// allSendersEnabled reports whether every sender matching the predicate is
// enabled. Vacuously true with no matching senders.
func (m *MediaConnections) allSendersEnabled(match func(*senderSlot) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, slot := range m.senders {
		if match(slot) && !slot.enabled {
			return false
		}
	}
	return true
}

func (m *MediaConnections) IsSendAudioUnmuted() bool {
	return m.allSendersUnmuted(func(s *senderSlot) bool {
		return s.constraints.Kind == domain.MediaKindAudio
	})
}

func (m *MediaConnections) IsSendVideoUnmuted(source *domain.MediaSourceKind) bool {
	return m.allSendersUnmuted(func(s *senderSlot) bool {
		if s.constraints.Kind != domain.MediaKindVideo {
			return false
		}
		return source == nil || s.constraints.Source() == *source
	})
}

// allSendersUnmuted reports whether no sender matching the predicate is
// muted. Vacuously true with no matching senders.
func (m *MediaConnections) allSendersUnmuted(match func(*senderSlot) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, slot := range m.senders {
		if match(slot) && slot.muted {
			return false
		}
	}
	return true
}

func (m *MediaConnections) IsRecvAudioEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range m.receivers {
		if slot.kind == domain.MediaKindAudio && !slot.enabled {
			return false
		}
	}
	return m.recv.AudioEnabled
}

func (m *MediaConnections) IsRecvVideoEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range m.receivers {
		if slot.kind == domain.MediaKindVideo && !slot.enabled {
			return false
		}
	}
	return m.recv.VideoEnabled
}

// Close stops every local track and marks the registry closed. It waits
// for the pump to flush the queued intentions, so no track event is
// emitted after it returns.
func (m *MediaConnections) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, slot := range m.senders {
		if slot.track != nil {
			slot.track.Stop()
			slot.track = nil
		}
	}
	m.emitCond.Signal()
	m.mu.Unlock()

	<-m.pumpDone
}

var _ ports.TrackRegistry = (*MediaConnections)(nil)
