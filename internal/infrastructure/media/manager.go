package media

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

// Manager acquires local media tracks. Live tracks are cached per capture
// slot, so a repeated request for the same device returns the existing
// track flagged as reused instead of reopening the capture.
type Manager struct {
	log *zap.SugaredLogger

	mu    sync.Mutex
	audio *localTrack
	slots map[domain.MediaSourceKind]*localTrack
}

// NewManager returns an empty manager with no live captures.
func NewManager(log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		log:   log,
		slots: make(map[domain.MediaSourceKind]*localTrack),
	}
}

// AcquireTracks returns one track per requested slot. Requests for slots
// already live return the cached track with Fresh set to false.
func (m *Manager) AcquireTracks(_ context.Context, settings domain.MediaStreamSettings) ([]ports.AcquiredTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var acquired []ports.AcquiredTrack
	if settings.Audio != nil {
		track, fresh, err := m.acquireAudio(*settings.Audio)
		if err != nil {
			return nil, err
		}
		acquired = append(acquired, ports.AcquiredTrack{Track: track, Fresh: fresh})
	}
	if settings.DeviceVideo != nil {
		track, fresh, err := m.acquireVideo(*settings.DeviceVideo)
		if err != nil {
			return nil, err
		}
		acquired = append(acquired, ports.AcquiredTrack{Track: track, Fresh: fresh})
	}
	if settings.DisplayVideo != nil {
		track, fresh, err := m.acquireVideo(*settings.DisplayVideo)
		if err != nil {
			return nil, err
		}
		acquired = append(acquired, ports.AcquiredTrack{Track: track, Fresh: fresh})
	}
	return acquired, nil
}

func (m *Manager) acquireAudio(constraints domain.AudioConstraints) (*localTrack, bool, error) {
	if m.audio != nil && !m.audio.stopped() {
		if constraints.Satisfied(m.audio.Info()) {
			return m.audio, false, nil
		}
		// The live capture does not match the new device requirement.
		m.audio.Stop()
	}

	info := domain.TrackInfo{
		ID:       domain.TrackID(uuid.New().String()),
		Kind:     domain.MediaKindAudio,
		Source:   domain.MediaSourceDevice,
		DeviceID: constraints.DeviceID,
	}
	pion, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		string(info.ID),
		"peerlink-audio",
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open audio capture: %w", err)
	}
	track := newLocalTrack(info, pion, m.log)
	m.audio = track
	return track, true, nil
}

func (m *Manager) acquireVideo(constraints domain.VideoConstraints) (*localTrack, bool, error) {
	if cached, ok := m.slots[constraints.Source]; ok && !cached.stopped() {
		if constraints.Satisfied(cached.Info()) {
			return cached, false, nil
		}
		cached.Stop()
	}

	info := domain.TrackInfo{
		ID:       domain.TrackID(uuid.New().String()),
		Kind:     domain.MediaKindVideo,
		Source:   constraints.Source,
		DeviceID: constraints.DeviceID,
	}
	pion, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		string(info.ID),
		fmt.Sprintf("peerlink-%s-video", constraints.Source),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open %s video capture: %w", constraints.Source, err)
	}
	track := newLocalTrack(info, pion, m.log)
	m.slots[constraints.Source] = track
	return track, true, nil
}

// StopAll stops every live capture.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.audio != nil {
		m.audio.Stop()
		m.audio = nil
	}
	for source, track := range m.slots {
		track.Stop()
		delete(m.slots, source)
	}
}

// localTrack is a live local capture backed by a pion sample track. Writes
// while disabled are swallowed, which is how enable/disable pauses the
// outbound flow without renegotiation.
type localTrack struct {
	info domain.TrackInfo
	pion *webrtc.TrackLocalStaticSample
	log  *zap.SugaredLogger

	enabled atomic.Bool
	done    atomic.Bool
}

func newLocalTrack(info domain.TrackInfo, pion *webrtc.TrackLocalStaticSample, log *zap.SugaredLogger) *localTrack {
	t := &localTrack{info: info, pion: pion, log: log}
	t.enabled.Store(true)
	return t
}

func (t *localTrack) Info() domain.TrackInfo { return t.info }

func (t *localTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *localTrack) Enabled() bool { return t.enabled.Load() }

func (t *localTrack) Stop() { t.done.Store(true) }

func (t *localTrack) stopped() bool { return t.done.Load() }

// PionTrack exposes the sendable source for the track registry.
func (t *localTrack) PionTrack() webrtc.TrackLocal { return t.pion }

// WriteSample feeds one captured sample into the track. Disabled and
// stopped tracks drop the sample silently.
func (t *localTrack) WriteSample(sample media.Sample) error {
	if t.done.Load() || !t.enabled.Load() {
		return nil
	}
	if err := t.pion.WriteSample(sample); err != nil {
		return fmt.Errorf("failed to write sample to %s: %w", t.info.ID, err)
	}
	return nil
}

var _ domain.LocalTrack = (*localTrack)(nil)
var _ ports.MediaAcquirer = (*Manager)(nil)
