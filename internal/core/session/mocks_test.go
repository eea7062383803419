package session

import (
	"context"
	"sync"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"

	"github.com/stretchr/testify/mock"
)

// fakeNative is a scriptable in-memory native connection. Callbacks are
// stored so tests can fire them like the native layer would.
type fakeNative struct {
	mu sync.Mutex

	setRemoteErr    error
	addCandidateErr error
	createOfferErr  error
	statsErr        error

	remoteDescs []domain.SessionDescription
	added       []domain.IceCandidate
	restarted   bool
	closedCnt   int

	stats domain.RTCStats

	onCandidate      func(domain.IceCandidate)
	onCandidateError func(domain.IceCandidateError)
	onIceState       func(domain.IceConnectionState)
	onConnState      func(domain.PeerConnectionState)
	onTrack          func(domain.RemoteTrack, ports.Transceiver)
}

func newFakeNative() *fakeNative { return &fakeNative{} }

func (f *fakeNative) SetRemoteDescription(_ context.Context, desc domain.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setRemoteErr != nil {
		return f.setRemoteErr
	}
	f.remoteDescs = append(f.remoteDescs, desc)
	return nil
}

func (f *fakeNative) AddICECandidate(_ context.Context, c domain.IceCandidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addCandidateErr != nil {
		return f.addCandidateErr
	}
	f.added = append(f.added, c)
	return nil
}

func (f *fakeNative) CreateOffer(context.Context) (string, error) {
	if f.createOfferErr != nil {
		return "", f.createOfferErr
	}
	return "v=0 offer", nil
}

func (f *fakeNative) CreateAnswer(context.Context) (string, error) {
	return "v=0 answer", nil
}

func (f *fakeNative) RestartICE() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = true
}

func (f *fakeNative) GetStats(context.Context) (domain.RTCStats, error) {
	if f.statsErr != nil {
		return domain.RTCStats{}, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeNative) ConnectionState() domain.PeerConnectionState { return domain.PeerConnectionNew }
func (f *fakeNative) IceConnectionState() domain.IceConnectionState {
	return domain.IceConnectionNew
}

func (f *fakeNative) OnICECandidate(cb func(domain.IceCandidate)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCandidate = cb
}

func (f *fakeNative) OnICECandidateError(cb func(domain.IceCandidateError)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCandidateError = cb
}

func (f *fakeNative) OnIceConnectionStateChange(cb func(domain.IceConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onIceState = cb
}

func (f *fakeNative) OnConnectionStateChange(cb func(domain.PeerConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnState = cb
}

func (f *fakeNative) OnTrack(cb func(domain.RemoteTrack, ports.Transceiver)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrack = cb
}

func (f *fakeNative) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedCnt++
	return nil
}

// fireCandidate simulates the native layer discovering a candidate. Returns
// false when no callback is registered.
func (f *fakeNative) fireCandidate(c domain.IceCandidate) bool {
	f.mu.Lock()
	cb := f.onCandidate
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(c)
	return true
}

func (f *fakeNative) fireConnState(state domain.PeerConnectionState) bool {
	f.mu.Lock()
	cb := f.onConnState
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(state)
	return true
}

func (f *fakeNative) addedCandidates() []domain.IceCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.IceCandidate, len(f.added))
	copy(out, f.added)
	return out
}

// fakeRegistry is a scriptable track registry.
type fakeRegistry struct {
	mu sync.Mutex

	request       map[domain.TrackID]domain.TrackConstraints
	insertResult  map[domain.TrackID]domain.MediaExchangeState
	insertErr     error
	inserted      []map[domain.TrackID]domain.LocalTrack
	syncCalls     int
	removed       []domain.TrackID
	mids          map[domain.TrackID]string
	midsErr       error
	statuses      map[domain.TrackID]bool
	closed        bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		insertResult: map[domain.TrackID]domain.MediaExchangeState{},
		mids:         map[domain.TrackID]string{},
		statuses:     map[domain.TrackID]bool{},
	}
}

func (r *fakeRegistry) SendersWithoutTracks(domain.LocalStreamUpdateCriteria) []domain.TrackID {
	return nil
}

func (r *fakeRegistry) DropSendTracks(context.Context, domain.LocalStreamUpdateCriteria) error {
	return nil
}

func (r *fakeRegistry) TracksRequest(domain.LocalStreamUpdateCriteria) map[domain.TrackID]domain.TrackConstraints {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.request
}

func (r *fakeRegistry) Mids() (map[domain.TrackID]string, error) {
	return r.mids, r.midsErr
}

func (r *fakeRegistry) TransceiverStatuses(context.Context) map[domain.TrackID]bool {
	return r.statuses
}

func (r *fakeRegistry) InsertLocalTracks(_ context.Context, tracks map[domain.TrackID]domain.LocalTrack) (map[domain.TrackID]domain.MediaExchangeState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	r.inserted = append(r.inserted, tracks)
	return r.insertResult, nil
}

func (r *fakeRegistry) SyncReceivers(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncCalls++
	return nil
}

func (r *fakeRegistry) AddRemoteTrack(context.Context, domain.RemoteTrack, ports.Transceiver) error {
	return nil
}

func (r *fakeRegistry) RemoveTrack(id domain.TrackID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *fakeRegistry) IsSendAudioEnabled() bool                        { return true }
func (r *fakeRegistry) IsSendVideoEnabled(*domain.MediaSourceKind) bool { return true }
func (r *fakeRegistry) IsSendAudioUnmuted() bool                        { return true }
func (r *fakeRegistry) IsSendVideoUnmuted(*domain.MediaSourceKind) bool { return true }
func (r *fakeRegistry) IsRecvAudioEnabled() bool                        { return true }
func (r *fakeRegistry) IsRecvVideoEnabled() bool                        { return true }

func (r *fakeRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// MockMediaAcquirer is a testify mock of the media acquirer.
type MockMediaAcquirer struct {
	mock.Mock
}

func (m *MockMediaAcquirer) AcquireTracks(ctx context.Context, settings domain.MediaStreamSettings) ([]ports.AcquiredTrack, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.AcquiredTrack), args.Error(1)
}

// stubLocalTrack is a minimal local track for negotiation tests.
type stubLocalTrack struct {
	info    domain.TrackInfo
	enabled bool
	stopped bool
}

func (t *stubLocalTrack) Info() domain.TrackInfo   { return t.info }
func (t *stubLocalTrack) SetEnabled(enabled bool)  { t.enabled = enabled }
func (t *stubLocalTrack) Enabled() bool            { return t.enabled }
func (t *stubLocalTrack) Stop()                    { t.stopped = true }

// stubRemoteTrack is a minimal remote track.
type stubRemoteTrack struct {
	info domain.TrackInfo
	mid  string
}

func (t *stubRemoteTrack) Info() domain.TrackInfo { return t.info }
func (t *stubRemoteTrack) Mid() string            { return t.mid }

// stubTransceiver implements ports.Transceiver.
type stubTransceiver struct {
	mid  string
	kind domain.MediaKind
}

func (t *stubTransceiver) Mid() string                     { return t.mid }
func (t *stubTransceiver) Direction() domain.TrackDirection { return domain.DirectionRecv }
func (t *stubTransceiver) Kind() domain.MediaKind          { return t.kind }
