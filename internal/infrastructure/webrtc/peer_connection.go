package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// PionConnection adapts a pion PeerConnection to the NativeConnection port.
type PionConnection struct {
	pc  *webrtc.PeerConnection
	log *zap.SugaredLogger

	mu          sync.Mutex
	restartICE  bool
	onCandidate func(domain.IceCandidate)
	onCandErr   func(domain.IceCandidateError)
	onTrack     func(domain.RemoteTrack, ports.Transceiver)

	rtcp *rtcpObserver
}

// NewFactory returns a NativeConnectionFactory backed by pion.
func NewFactory(logger *zap.SugaredLogger) ports.NativeConnectionFactory {
	return func(iceServers []domain.IceServer, forceRelay bool) (ports.NativeConnection, error) {
		return NewPionConnection(iceServers, forceRelay, logger)
	}
}

// NewPionConnection creates the underlying pion connection. forceRelay
// restricts ICE to relay candidates only.
func NewPionConnection(iceServers []domain.IceServer, forceRelay bool, logger *zap.SugaredLogger) (*PionConnection, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	servers := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, s := range iceServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}

	config := webrtc.Configuration{
		ICEServers:   servers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	}
	if forceRelay {
		config.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := &PionConnection{
		pc:   pc,
		log:  logger,
		rtcp: newRTCPObserver(logger),
	}
	conn.bindPionCallbacks()
	return conn, nil
}

func (c *PionConnection) bindPionCallbacks() {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			// End-of-gathering marker, not a candidate.
			return
		}
		c.mu.Lock()
		cb := c.onCandidate
		c.mu.Unlock()
		if cb == nil {
			return
		}
		init := candidate.ToJSON()
		cb(domain.IceCandidate{
			Candidate:     init.Candidate,
			SdpMLineIndex: init.SDPMLineIndex,
			SdpMid:        init.SDPMid,
		})
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.mu.Lock()
		cb := c.onTrack
		c.mu.Unlock()
		if cb == nil {
			return
		}

		transceiver := c.transceiverFor(receiver)
		remote := newRemoteTrack(track, transceiver, c.log)
		c.rtcp.watch(receiver, track.SSRC())
		remote.startReading(c.rtcp)

		var side ports.Transceiver = nilTransceiver{}
		if transceiver != nil {
			side = &pionTransceiver{tr: transceiver}
		}
		cb(remote, side)
	})
}

// transceiverFor finds the transceiver owning the given receiver.
func (c *PionConnection) transceiverFor(receiver *webrtc.RTPReceiver) *webrtc.RTPTransceiver {
	for _, tr := range c.pc.GetTransceivers() {
		if tr.Receiver() == receiver {
			return tr
		}
	}
	return nil
}

// Pion returns the wrapped pion connection for sibling infrastructure
// components (the track registry shares the handle).
func (c *PionConnection) Pion() *webrtc.PeerConnection { return c.pc }

func (c *PionConnection) SetRemoteDescription(_ context.Context, desc domain.SessionDescription) error {
	sdpType := webrtc.SDPTypeAnswer
	if desc.Kind == domain.SdpOffer {
		sdpType = webrtc.SDPTypeOffer
	}
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP})
}

func (c *PionConnection) AddICECandidate(_ context.Context, candidate domain.IceCandidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMLineIndex: candidate.SdpMLineIndex,
		SDPMid:        candidate.SdpMid,
	})
}

// CreateOffer generates a local offer, applies it and returns its SDP. A
// pending RestartICE call makes the offer trigger an ICE restart.
func (c *PionConnection) CreateOffer(_ context.Context) (string, error) {
	c.mu.Lock()
	restart := c.restartICE
	c.restartICE = false
	c.mu.Unlock()

	var options *webrtc.OfferOptions
	if restart {
		options = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := c.pc.CreateOffer(options)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local offer: %w", err)
	}
	return offer.SDP, nil
}

// CreateAnswer generates a local answer for the applied remote offer.
func (c *PionConnection) CreateAnswer(_ context.Context) (string, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local answer: %w", err)
	}
	return answer.SDP, nil
}

// RestartICE arms an ICE restart for the next generated offer; pion has no
// standalone restart call.
func (c *PionConnection) RestartICE() {
	c.mu.Lock()
	c.restartICE = true
	c.mu.Unlock()
}

// GetStats converts pion's stats report into an ordered snapshot, merged
// with RTCP-derived remote-inbound metrics. Entries are sorted by ID so
// repeated snapshots hash stably.
func (c *PionConnection) GetStats(context.Context) (domain.RTCStats, error) {
	report := c.pc.GetStats()

	entries := make([]domain.StatEntry, 0, len(report))
	for _, stat := range report {
		payload, err := json.Marshal(stat)
		if err != nil {
			c.log.Debugw("unmarshalable stat skipped", "error", err)
			continue
		}
		var head struct {
			ID        string  `json:"id"`
			Type      string  `json:"type"`
			Timestamp float64 `json:"timestamp"`
		}
		if err := json.Unmarshal(payload, &head); err != nil || head.ID == "" {
			continue
		}
		entries = append(entries, domain.StatEntry{
			ID:        domain.StatID(head.ID),
			Type:      head.Type,
			Timestamp: head.Timestamp,
			Payload:   statPayload(payload),
		})
	}
	entries = append(entries, c.rtcp.statEntries()...)

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return domain.RTCStats{Entries: entries}, nil
}

// statPayload drops the envelope keys pion repeats in every stat. The
// per-scrape timestamp in particular must not reach the payload, or two
// otherwise identical snapshots would never dedup. ID, type and timestamp
// already live in the StatEntry head. Map marshalling sorts keys, so the
// result is stable.
func statPayload(raw []byte) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw
	}
	delete(fields, "id")
	delete(fields, "type")
	delete(fields, "timestamp")
	payload, err := json.Marshal(fields)
	if err != nil {
		return raw
	}
	return payload
}

func (c *PionConnection) ConnectionState() domain.PeerConnectionState {
	return mapConnectionState(c.pc.ConnectionState())
}

func (c *PionConnection) IceConnectionState() domain.IceConnectionState {
	return mapIceConnectionState(c.pc.ICEConnectionState())
}

func (c *PionConnection) OnICECandidate(f func(domain.IceCandidate)) {
	c.mu.Lock()
	c.onCandidate = f
	c.mu.Unlock()
}

// OnICECandidateError stores the callback. Pion does not surface per-STUN
// candidate errors, so it currently never fires; the registration still
// participates in the teardown contract.
func (c *PionConnection) OnICECandidateError(f func(domain.IceCandidateError)) {
	c.mu.Lock()
	c.onCandErr = f
	c.mu.Unlock()
}

func (c *PionConnection) OnIceConnectionStateChange(f func(domain.IceConnectionState)) {
	if f == nil {
		c.pc.OnICEConnectionStateChange(func(webrtc.ICEConnectionState) {})
		return
	}
	c.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		f(mapIceConnectionState(state))
	})
}

func (c *PionConnection) OnConnectionStateChange(f func(domain.PeerConnectionState)) {
	if f == nil {
		c.pc.OnConnectionStateChange(func(webrtc.PeerConnectionState) {})
		return
	}
	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f(mapConnectionState(state))
	})
}

func (c *PionConnection) OnTrack(f func(domain.RemoteTrack, ports.Transceiver)) {
	c.mu.Lock()
	c.onTrack = f
	c.mu.Unlock()
}

func (c *PionConnection) Close() error {
	c.rtcp.stop()
	return c.pc.Close()
}

func mapIceConnectionState(state webrtc.ICEConnectionState) domain.IceConnectionState {
	switch state {
	case webrtc.ICEConnectionStateNew:
		return domain.IceConnectionNew
	case webrtc.ICEConnectionStateChecking:
		return domain.IceConnectionChecking
	case webrtc.ICEConnectionStateConnected:
		return domain.IceConnectionConnected
	case webrtc.ICEConnectionStateCompleted:
		return domain.IceConnectionCompleted
	case webrtc.ICEConnectionStateFailed:
		return domain.IceConnectionFailed
	case webrtc.ICEConnectionStateDisconnected:
		return domain.IceConnectionDisconnected
	case webrtc.ICEConnectionStateClosed:
		return domain.IceConnectionClosed
	default:
		return domain.IceConnectionNew
	}
}

func mapConnectionState(state webrtc.PeerConnectionState) domain.PeerConnectionState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return domain.PeerConnectionNew
	case webrtc.PeerConnectionStateConnecting:
		return domain.PeerConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.PeerConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.PeerConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.PeerConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.PeerConnectionClosed
	default:
		return domain.PeerConnectionNew
	}
}

// pionTransceiver adapts a pion transceiver to the port.
type pionTransceiver struct {
	tr *webrtc.RTPTransceiver
}

func (t *pionTransceiver) Mid() string { return t.tr.Mid() }

func (t *pionTransceiver) Direction() domain.TrackDirection {
	switch t.tr.Direction() {
	case webrtc.RTPTransceiverDirectionSendonly, webrtc.RTPTransceiverDirectionSendrecv:
		return domain.DirectionSend
	default:
		return domain.DirectionRecv
	}
}

func (t *pionTransceiver) Kind() domain.MediaKind {
	if t.tr.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.MediaKindAudio
	}
	return domain.MediaKindVideo
}

// nilTransceiver stands in when a receiver cannot be correlated with a
// transceiver yet.
type nilTransceiver struct{}

func (nilTransceiver) Mid() string                       { return "" }
func (nilTransceiver) Direction() domain.TrackDirection  { return domain.DirectionRecv }
func (nilTransceiver) Kind() domain.MediaKind            { return domain.MediaKindVideo }
