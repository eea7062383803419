package webrtc

import (
	"context"
	"testing"

	"peerlink/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLocalTrack struct {
	info    domain.TrackInfo
	pion    webrtc.TrackLocal
	enabled bool
	stopped bool
}

func newTestLocalTrack(t *testing.T, id string, kind domain.MediaKind, source domain.MediaSourceKind) *testLocalTrack {
	t.Helper()
	mime := webrtc.MimeTypeVP8
	if kind == domain.MediaKindAudio {
		mime = webrtc.MimeTypeOpus
	}
	pion, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "test")
	require.NoError(t, err)
	return &testLocalTrack{
		info:    domain.TrackInfo{ID: domain.TrackID(id), Kind: kind, Source: source},
		pion:    pion,
		enabled: true,
	}
}

func (t *testLocalTrack) Info() domain.TrackInfo       { return t.info }
func (t *testLocalTrack) SetEnabled(enabled bool)      { t.enabled = enabled }
func (t *testLocalTrack) Enabled() bool                { return t.enabled }
func (t *testLocalTrack) Stop()                        { t.stopped = true }
func (t *testLocalTrack) PionTrack() webrtc.TrackLocal { return t.pion }

func newTestRegistry(t *testing.T, send domain.LocalTrackConstraints, events chan domain.TrackEvent) *MediaConnections {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	m, err := NewMediaConnections(pc, send, domain.RecvConstraints{AudioEnabled: true, VideoEnabled: true}, events, nil)
	require.NoError(t, err)
	return m
}

func allEnabledConstraints() domain.LocalTrackConstraints {
	return domain.LocalTrackConstraints{
		AudioEnabled:        true,
		DeviceVideoEnabled:  true,
		DisplayVideoEnabled: true,
	}
}

func TestSendersWithoutTracksCoversAllSlots(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	ids := m.SendersWithoutTracks(domain.AllCriteria())
	assert.Len(t, ids, 3)

	audioOnly := domain.EmptyCriteria().Add(domain.MediaKindAudio, domain.MediaSourceDevice)
	assert.Len(t, m.SendersWithoutTracks(audioOnly), 1)
}

func TestTracksRequestSkipsDisabledSlots(t *testing.T) {
	send := allEnabledConstraints()
	send.DisplayVideoEnabled = false
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, send, events)

	required := m.TracksRequest(domain.AllCriteria())
	assert.Len(t, required, 2)
	for _, constraints := range required {
		assert.NotEqual(t, domain.MediaSourceDisplay, constraints.Source())
	}
}

func TestMidsBeforeOfferFails(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	_, err := m.Mids()
	assert.ErrorIs(t, err, domain.ErrMidMissing)
}

func TestInsertLocalTracksInstallsAndReports(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	var audioID domain.TrackID
	for id, constraints := range m.TracksRequest(domain.AllCriteria()) {
		if constraints.Kind == domain.MediaKindAudio {
			audioID = id
		}
	}
	require.NotEmpty(t, audioID)

	track := newTestLocalTrack(t, "audio-1", domain.MediaKindAudio, domain.MediaSourceDevice)
	updates, err := m.InsertLocalTracks(context.Background(), map[domain.TrackID]domain.LocalTrack{audioID: track})
	require.NoError(t, err)
	assert.Equal(t, domain.MediaExchangeEnabled, updates[audioID])

	assert.NotContains(t, m.SendersWithoutTracks(domain.AllCriteria()), audioID)
	assert.True(t, m.TransceiverStatuses(context.Background())[audioID])
}

func TestInsertLocalTracksUnknownSender(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	track := newTestLocalTrack(t, "audio-1", domain.MediaKindAudio, domain.MediaSourceDevice)
	_, err := m.InsertLocalTracks(context.Background(), map[domain.TrackID]domain.LocalTrack{"nope": track})
	assert.ErrorIs(t, err, domain.ErrTrackNotFound)
}

func TestSetSendEnabledEmitsIntention(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	ids := m.SendersWithoutTracks(domain.EmptyCriteria().Add(domain.MediaKindAudio, domain.MediaSourceDevice))
	require.Len(t, ids, 1)

	require.NoError(t, m.SetSendEnabled(ids[0], false))

	ev := <-events
	assert.Equal(t, ids[0], ev.ID)
	require.NotNil(t, ev.Enabled)
	assert.False(t, *ev.Enabled)
	assert.False(t, m.IsSendAudioEnabled())
}

func TestSetSendMutedEmitsIntention(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	ids := m.SendersWithoutTracks(domain.EmptyCriteria().Add(domain.MediaKindVideo, domain.MediaSourceDevice))
	require.Len(t, ids, 1)

	require.NoError(t, m.SetSendMuted(ids[0], true))

	ev := <-events
	require.NotNil(t, ev.Muted)
	assert.True(t, *ev.Muted)
}

func TestApplyPatchDoesNotEmit(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	ids := m.SendersWithoutTracks(domain.EmptyCriteria().Add(domain.MediaKindAudio, domain.MediaSourceDevice))
	require.Len(t, ids, 1)

	enabled := false
	require.NoError(t, m.ApplyPatch(domain.TrackPatch{ID: ids[0], Enabled: &enabled}))
	assert.Empty(t, events)
	assert.False(t, m.IsSendAudioEnabled())
}

func TestCloseSilencesIntentions(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	ids := m.SendersWithoutTracks(domain.AllCriteria())
	require.NotEmpty(t, ids)

	m.Close()
	require.NoError(t, m.SetSendEnabled(ids[0], false))
	assert.Empty(t, events)
}

func TestIntentionBacklogIsNeverDropped(t *testing.T) {
	// Unbuffered channel, no reader during the burst: every intention must
	// still arrive, in submission order.
	events := make(chan domain.TrackEvent)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	ids := m.SendersWithoutTracks(domain.EmptyCriteria().Add(domain.MediaKindAudio, domain.MediaSourceDevice))
	require.Len(t, ids, 1)

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, m.SetSendMuted(ids[0], i%2 == 0))
	}
	for i := 0; i < n; i++ {
		ev := <-events
		require.NotNil(t, ev.Muted)
		assert.Equal(t, i%2 == 0, *ev.Muted, "intention %d out of order", i)
	}

	m.Close()
}

func TestIsSendUnmutedReflectsMuteState(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	assert.True(t, m.IsSendAudioUnmuted())

	ids := m.SendersWithoutTracks(domain.EmptyCriteria().Add(domain.MediaKindAudio, domain.MediaSourceDevice))
	require.Len(t, ids, 1)
	require.NoError(t, m.SetSendMuted(ids[0], true))
	<-events

	assert.False(t, m.IsSendAudioUnmuted())
	device := domain.MediaSourceDevice
	assert.True(t, m.IsSendVideoUnmuted(&device))
	assert.True(t, m.IsSendVideoUnmuted(nil))

	require.NoError(t, m.SetSendMuted(ids[0], false))
	<-events
	assert.True(t, m.IsSendAudioUnmuted())
}

func TestDropSendTracksStopsTrack(t *testing.T) {
	events := make(chan domain.TrackEvent, 8)
	m := newTestRegistry(t, allEnabledConstraints(), events)

	var audioID domain.TrackID
	for id, constraints := range m.TracksRequest(domain.AllCriteria()) {
		if constraints.Kind == domain.MediaKindAudio {
			audioID = id
		}
	}
	track := newTestLocalTrack(t, "audio-1", domain.MediaKindAudio, domain.MediaSourceDevice)
	_, err := m.InsertLocalTracks(context.Background(), map[domain.TrackID]domain.LocalTrack{audioID: track})
	require.NoError(t, err)

	criteria := domain.EmptyCriteria().Add(domain.MediaKindAudio, domain.MediaSourceDevice)
	require.NoError(t, m.DropSendTracks(context.Background(), criteria))
	assert.True(t, track.stopped)
	assert.Contains(t, m.SendersWithoutTracks(criteria), audioID)
}
