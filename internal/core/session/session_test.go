package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, native *fakeNative, registry *fakeRegistry, media ports.MediaAcquirer) *Session {
	t.Helper()

	s, err := New(Config{
		ID:           "peer-1",
		RemoteMember: "remote-member",
		Native: func([]domain.IceServer, bool) (ports.NativeConnection, error) {
			return native, nil
		},
		Registry: func(ports.NativeConnection, chan<- domain.TrackEvent) ports.TrackRegistry {
			return registry
		},
		Media: media,
		SendConstraints: domain.LocalTrackConstraints{
			AudioEnabled:        true,
			DeviceVideoEnabled:  true,
			DisplayVideoEnabled: true,
		},
	})
	require.NoError(t, err)
	return s
}

// nextEvent reads one outbound event with a timeout so a regression cannot
// hang the test binary.
func nextEvent(t *testing.T, s *Session) domain.PeerEvent {
	t.Helper()

	type result struct {
		ev domain.PeerEvent
		ok bool
	}
	ch := make(chan result, 1)
	go func() {
		ev, ok := s.NextEvent()
		ch <- result{ev, ok}
	}()
	select {
	case r := <-ch:
		require.True(t, r.ok, "event stream closed unexpectedly")
		return r.ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func uint16Ptr(v uint16) *uint16 { return &v }
func strPtr(v string) *string    { return &v }

func TestNew_NativeFactoryFailure(t *testing.T) {
	cause := errors.New("no ice agent")
	_, err := New(Config{
		Native: func([]domain.IceServer, bool) (ports.NativeConnection, error) {
			return nil, cause
		},
		Registry: func(ports.NativeConnection, chan<- domain.TrackEvent) ports.TrackRegistry {
			return newFakeRegistry()
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPeerCreation)
	assert.ErrorIs(t, err, cause)
}

func TestAddICECandidate_BuffersBeforeRemoteDescription(t *testing.T) {
	native := newFakeNative()
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	candidates := []domain.IceCandidate{
		{Candidate: "candidate:1", SdpMLineIndex: uint16Ptr(0), SdpMid: strPtr("0")},
		{Candidate: "candidate:2", SdpMLineIndex: uint16Ptr(1), SdpMid: strPtr("1")},
		{Candidate: "candidate:3"},
	}
	for _, c := range candidates {
		require.NoError(t, s.AddICECandidate(context.Background(), c))
	}

	assert.Equal(t, 3, s.CandidatesBufferLen())
	assert.Empty(t, native.addedCandidates(), "no candidate may reach the native layer before the remote description")

	require.NoError(t, s.SetRemoteOffer(context.Background(), "v=0"))

	assert.Equal(t, 0, s.CandidatesBufferLen())
	assert.Equal(t, candidates, native.addedCandidates(), "flush must preserve arrival order")
}

func TestAddICECandidate_PassThroughAfterRemoteDescription(t *testing.T) {
	native := newFakeNative()
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	require.NoError(t, s.SetRemoteAnswer(context.Background(), "v=0"))

	c := domain.IceCandidate{Candidate: "candidate:late"}
	require.NoError(t, s.AddICECandidate(context.Background(), c))

	assert.Equal(t, 0, s.CandidatesBufferLen())
	assert.Equal(t, []domain.IceCandidate{c}, native.addedCandidates())
}

func TestSetRemoteDescription_NativeFailureKeepsBuffer(t *testing.T) {
	native := newFakeNative()
	native.setRemoteErr = errors.New("bad sdp")
	registry := newFakeRegistry()
	s := newTestSession(t, native, registry, &MockMediaAcquirer{})
	defer s.Close()

	require.NoError(t, s.AddICECandidate(context.Background(), domain.IceCandidate{Candidate: "candidate:1"}))

	err := s.SetRemoteOffer(context.Background(), "v=0")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSetRemoteDescription)

	assert.False(t, s.HasRemoteDescription())
	assert.Equal(t, 1, s.CandidatesBufferLen())
	assert.Zero(t, registry.syncCalls, "receivers must not be synced after a failed description")
}

func TestSetRemoteDescription_FlushFailureIsBestEffort(t *testing.T) {
	native := newFakeNative()
	native.addCandidateErr = errors.New("ice rejected")
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	require.NoError(t, s.AddICECandidate(context.Background(), domain.IceCandidate{Candidate: "candidate:1"}))
	require.NoError(t, s.AddICECandidate(context.Background(), domain.IceCandidate{Candidate: "candidate:2"}))

	err := s.SetRemoteOffer(context.Background(), "v=0")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAddIceCandidate)

	// The flag still flips and the buffer stays drained: nothing is
	// re-buffered after a failed flush.
	assert.True(t, s.HasRemoteDescription())
	assert.Equal(t, 0, s.CandidatesBufferLen())
}

func TestSetRemoteDescription_SyncsReceiversOnce(t *testing.T) {
	native := newFakeNative()
	registry := newFakeRegistry()
	s := newTestSession(t, native, registry, &MockMediaAcquirer{})
	defer s.Close()

	require.NoError(t, s.SetRemoteOffer(context.Background(), "v=0"))
	assert.Equal(t, 1, registry.syncCalls)
}

func TestSendStats_DeduplicatesRepeatedSnapshots(t *testing.T) {
	native := newFakeNative()
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	snapshot := domain.RTCStats{Entries: []domain.StatEntry{
		{ID: "rtp-1", Type: "outbound-rtp", Payload: json.RawMessage(`{"bytes":100}`)},
		{ID: "rtp-2", Type: "inbound-rtp", Payload: json.RawMessage(`{"bytes":50}`)},
	}}

	s.SendStats(snapshot)
	ev := nextEvent(t, s)
	update, ok := ev.(domain.StatsUpdate)
	require.True(t, ok, "expected StatsUpdate, got %T", ev)
	assert.Len(t, update.Stats.Entries, 2)

	// Identical snapshot: nothing is emitted, the next observable event is
	// a state change we trigger manually.
	s.SendStats(snapshot)
	s.SendCurrentConnectionStates()
	ev = nextEvent(t, s)
	_, isState := ev.(domain.IceConnectionStateChanged)
	assert.True(t, isState, "expected the duplicate snapshot to be filtered, got %T", ev)
}

func TestSendStats_TimestampOnlyChangeIsFiltered(t *testing.T) {
	native := newFakeNative()
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	s.SendStats(domain.RTCStats{Entries: []domain.StatEntry{
		{ID: "rtp-1", Type: "outbound-rtp", Timestamp: 1000, Payload: json.RawMessage(`{"bytes":100}`)},
	}})
	nextEvent(t, s)

	// A later scrape timestamp with an unchanged metric body is not news.
	s.SendStats(domain.RTCStats{Entries: []domain.StatEntry{
		{ID: "rtp-1", Type: "outbound-rtp", Timestamp: 2000, Payload: json.RawMessage(`{"bytes":100}`)},
	}})
	s.SendCurrentConnectionStates()
	_, isState := nextEvent(t, s).(domain.IceConnectionStateChanged)
	assert.True(t, isState, "a timestamp-only change must be filtered")
}

func TestSendStats_SingleChangedEntry(t *testing.T) {
	native := newFakeNative()
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	first := domain.RTCStats{Entries: []domain.StatEntry{
		{ID: "rtp-1", Type: "outbound-rtp", Payload: json.RawMessage(`{"bytes":100}`)},
		{ID: "rtp-2", Type: "inbound-rtp", Payload: json.RawMessage(`{"bytes":50}`)},
	}}
	s.SendStats(first)
	nextEvent(t, s)

	second := domain.RTCStats{Entries: []domain.StatEntry{
		{ID: "rtp-1", Type: "outbound-rtp", Payload: json.RawMessage(`{"bytes":200}`)},
		{ID: "rtp-2", Type: "inbound-rtp", Payload: json.RawMessage(`{"bytes":50}`)},
	}}
	s.SendStats(second)

	update, ok := nextEvent(t, s).(domain.StatsUpdate)
	require.True(t, ok)
	require.Len(t, update.Stats.Entries, 1)
	assert.Equal(t, domain.StatID("rtp-1"), update.Stats.Entries[0].ID)
}

func TestScrapeAndSendStats_FetchFailureIsSilent(t *testing.T) {
	native := newFakeNative()
	native.statsErr = errors.New("stats unavailable")
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	s.ScrapeAndSendStats(context.Background())

	s.SendCurrentConnectionStates()
	_, isState := nextEvent(t, s).(domain.IceConnectionStateChanged)
	assert.True(t, isState, "a failed scrape must not emit anything")
}

func TestUpdateLocalStream_NoOpWhenNothingNeeded(t *testing.T) {
	native := newFakeNative()
	registry := newFakeRegistry()
	media := &MockMediaAcquirer{}
	s := newTestSession(t, native, registry, media)
	defer s.Close()

	updates, err := s.UpdateLocalStream(context.Background(), domain.AllCriteria())
	require.NoError(t, err)
	assert.Empty(t, updates)
	media.AssertNotCalled(t, "AcquireTracks", mock.Anything, mock.Anything)
}

func TestUpdateLocalStream_CardinalityRejection(t *testing.T) {
	native := newFakeNative()
	registry := newFakeRegistry()
	registry.request = map[domain.TrackID]domain.TrackConstraints{
		"a1": {Kind: domain.MediaKindAudio},
		"a2": {Kind: domain.MediaKindAudio},
		"v1": {Kind: domain.MediaKindVideo, Video: domain.VideoConstraints{Source: domain.MediaSourceDevice}},
	}
	media := &MockMediaAcquirer{}
	s := newTestSession(t, native, registry, media)
	defer s.Close()

	_, err := s.UpdateLocalStream(context.Background(), domain.AllCriteria())
	require.Error(t, err)
	assert.True(t, IsUpdateLocalStreamError(err, InvalidLocalTracks))
	media.AssertNotCalled(t, "AcquireTracks", mock.Anything, mock.Anything)

	// The failure is also surfaced as an event for outside observers.
	failed, ok := nextEvent(t, s).(domain.FailedLocalMedia)
	require.True(t, ok)
	assert.True(t, IsUpdateLocalStreamError(failed.Error, InvalidLocalTracks))
}

func TestUpdateLocalStream_EmitsNewLocalTrackForFreshOnly(t *testing.T) {
	native := newFakeNative()
	registry := newFakeRegistry()
	registry.request = map[domain.TrackID]domain.TrackConstraints{
		"audio-slot": {Kind: domain.MediaKindAudio},
		"video-slot": {Kind: domain.MediaKindVideo, Video: domain.VideoConstraints{Source: domain.MediaSourceDevice}},
	}
	registry.insertResult = map[domain.TrackID]domain.MediaExchangeState{
		"audio-slot": domain.MediaExchangeEnabled,
		"video-slot": domain.MediaExchangeEnabled,
	}

	freshAudio := &stubLocalTrack{info: domain.TrackInfo{ID: "t-audio", Kind: domain.MediaKindAudio, Source: domain.MediaSourceDevice}}
	reusedVideo := &stubLocalTrack{info: domain.TrackInfo{ID: "t-video", Kind: domain.MediaKindVideo, Source: domain.MediaSourceDevice}}

	media := &MockMediaAcquirer{}
	media.On("AcquireTracks", mock.Anything, mock.Anything).Return([]ports.AcquiredTrack{
		{Track: freshAudio, Fresh: true},
		{Track: reusedVideo, Fresh: false},
	}, nil)

	s := newTestSession(t, native, registry, media)
	defer s.Close()

	updates, err := s.UpdateLocalStream(context.Background(), domain.AllCriteria())
	require.NoError(t, err)
	assert.Equal(t, registry.insertResult, updates)
	require.Len(t, registry.inserted, 1)
	assert.Len(t, registry.inserted[0], 2)

	ev, ok := nextEvent(t, s).(domain.NewLocalTrack)
	require.True(t, ok)
	assert.Equal(t, domain.TrackID("t-audio"), ev.Track.Info().ID)

	// Only the fresh track announces itself.
	s.SendCurrentConnectionStates()
	_, isState := nextEvent(t, s).(domain.IceConnectionStateChanged)
	assert.True(t, isState)

	media.AssertExpectations(t)
}

func TestUpdateLocalStream_AcquisitionFailure(t *testing.T) {
	native := newFakeNative()
	registry := newFakeRegistry()
	registry.request = map[domain.TrackID]domain.TrackConstraints{
		"audio-slot": {Kind: domain.MediaKindAudio},
	}
	cause := errors.New("device busy")
	media := &MockMediaAcquirer{}
	media.On("AcquireTracks", mock.Anything, mock.Anything).Return(nil, cause)

	s := newTestSession(t, native, registry, media)
	defer s.Close()

	_, err := s.UpdateLocalStream(context.Background(), domain.AllCriteria())
	require.Error(t, err)
	assert.True(t, IsUpdateLocalStreamError(err, CouldNotGetLocalMedia))
	assert.ErrorIs(t, err, cause, "the originating cause must stay in the chain")
}

func TestIntentionBridge_ForwardsTrackEvents(t *testing.T) {
	native := newFakeNative()
	var trackEvents chan<- domain.TrackEvent

	s, err := New(Config{
		ID: "peer-1",
		Native: func([]domain.IceServer, bool) (ports.NativeConnection, error) {
			return native, nil
		},
		Registry: func(_ ports.NativeConnection, ch chan<- domain.TrackEvent) ports.TrackRegistry {
			trackEvents = ch
			return newFakeRegistry()
		},
	})
	require.NoError(t, err)
	defer s.Close()

	muted := true
	trackEvents <- domain.TrackEvent{ID: "track-1", Muted: &muted}

	cmd, ok := nextEvent(t, s).(domain.MediaUpdateCommand)
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("peer-1"), cmd.Command.PeerID)
	require.Len(t, cmd.Command.TracksPatches, 1)
	patch := cmd.Command.TracksPatches[0]
	assert.Equal(t, domain.TrackID("track-1"), patch.ID)
	require.NotNil(t, patch.Muted)
	assert.True(t, *patch.Muted)
	assert.Nil(t, patch.Enabled)
}

func TestCallbacks_EmitOutboundEvents(t *testing.T) {
	native := newFakeNative()
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	c := domain.IceCandidate{Candidate: "candidate:42", SdpMLineIndex: uint16Ptr(0)}
	require.True(t, native.fireCandidate(c))

	ev, ok := nextEvent(t, s).(domain.IceCandidateDiscovered)
	require.True(t, ok)
	assert.Equal(t, domain.PeerID("peer-1"), ev.PeerID)
	assert.Equal(t, c, ev.Candidate)

	require.True(t, native.fireConnState(domain.PeerConnectionConnected))
	state, ok := nextEvent(t, s).(domain.ConnectionStateChanged)
	require.True(t, ok)
	assert.Equal(t, domain.PeerConnectionConnected, state.State)
}

func TestClose_UnregistersCallbacksAndSilencesLateFirings(t *testing.T) {
	native := newFakeNative()
	registry := newFakeRegistry()
	s := newTestSession(t, native, registry, &MockMediaAcquirer{})

	require.NoError(t, s.Close())

	assert.True(t, registry.closed)
	assert.Equal(t, 1, native.closedCnt)

	// All callbacks were set to nil on Close, so a (simulated) late firing
	// from the native layer is a no-op instead of a dangling access.
	assert.False(t, native.fireCandidate(domain.IceCandidate{Candidate: "candidate:ghost"}))
	assert.False(t, native.fireConnState(domain.PeerConnectionFailed))

	// Closing twice is safe.
	require.NoError(t, s.Close())
}

func TestCreateAndSetOffer_EmitsNewSdpOffer(t *testing.T) {
	native := newFakeNative()
	registry := newFakeRegistry()
	registry.mids = map[domain.TrackID]string{"track-1": "0"}
	registry.statuses = map[domain.TrackID]bool{"track-1": true}
	s := newTestSession(t, native, registry, &MockMediaAcquirer{})
	defer s.Close()

	sdp, err := s.CreateAndSetOffer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v=0 offer", sdp)

	offer, ok := nextEvent(t, s).(domain.NewSdpOffer)
	require.True(t, ok)
	assert.Equal(t, sdp, offer.SdpOffer)
	assert.Equal(t, registry.mids, offer.Mids)
	assert.Equal(t, registry.statuses, offer.TransceiverStatuses)
}

func TestEndToEnd_BufferedCandidateFlushScenario(t *testing.T) {
	native := newFakeNative()
	s := newTestSession(t, native, newFakeRegistry(), &MockMediaAcquirer{})
	defer s.Close()

	c := domain.IceCandidate{Candidate: "candidate:1", SdpMLineIndex: uint16Ptr(0), SdpMid: strPtr("0")}
	require.NoError(t, s.AddICECandidate(context.Background(), c))
	require.Equal(t, 1, s.CandidatesBufferLen())

	require.NoError(t, s.SetRemoteOffer(context.Background(), "<sdp>"))

	assert.Equal(t, 0, s.CandidatesBufferLen())
	require.Len(t, native.addedCandidates(), 1)
	assert.Equal(t, c, native.addedCandidates()[0])
	require.Len(t, native.remoteDescs, 1)
	assert.Equal(t, domain.SdpOffer, native.remoteDescs[0].Kind)
}
