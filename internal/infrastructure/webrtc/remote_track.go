package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"peerlink/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// remoteTrack wraps a pion TrackRemote. A background loop drains its RTP
// packets (a remote track that is never read stalls the SRTP session) and
// keeps flow counters that feed the synthesized stats entries.
type remoteTrack struct {
	track       *webrtc.TrackRemote
	transceiver *webrtc.RTPTransceiver
	log         *zap.SugaredLogger

	mu       sync.Mutex
	onPacket func(*rtp.Packet)
	packets  uint64
	bytes    uint64
}

func newRemoteTrack(track *webrtc.TrackRemote, transceiver *webrtc.RTPTransceiver, log *zap.SugaredLogger) *remoteTrack {
	return &remoteTrack{track: track, transceiver: transceiver, log: log}
}

func (t *remoteTrack) Info() domain.TrackInfo {
	kind := domain.MediaKindVideo
	if t.track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = domain.MediaKindAudio
	}
	return domain.TrackInfo{
		ID:     domain.TrackID(t.track.ID()),
		Kind:   kind,
		Source: domain.MediaSourceDevice,
	}
}

func (t *remoteTrack) Mid() string {
	if t.transceiver == nil {
		return ""
	}
	return t.transceiver.Mid()
}

// OnPacket installs a consumer for decoded RTP packets.
func (t *remoteTrack) OnPacket(f func(*rtp.Packet)) {
	t.mu.Lock()
	t.onPacket = f
	t.mu.Unlock()
}

func (t *remoteTrack) startReading(observer *rtcpObserver) {
	go func() {
		for {
			packet, _, err := t.track.ReadRTP()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					t.log.Debugw("remote track read ended",
						"track_id", t.track.ID(),
						"error", err,
					)
				}
				return
			}

			t.mu.Lock()
			t.packets++
			t.bytes += uint64(len(packet.Payload))
			consumer := t.onPacket
			t.mu.Unlock()

			observer.recordInbound(t.track.SSRC(), len(packet.Payload))
			if consumer != nil {
				consumer(packet)
			}
		}
	}()
}

// rtcpObserver reads RTCP from receivers and keeps the latest per-SSRC
// reception quality so GetStats can expose it as remote-inbound entries.
type rtcpObserver struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	flows   map[webrtc.SSRC]*flowStats
	stopped bool
}

type flowStats struct {
	Packets      uint64  `json:"packets"`
	Bytes        uint64  `json:"bytes"`
	FractionLost float64 `json:"fraction_lost"`
	Jitter       uint32  `json:"jitter"`
	RTTMillis    int64   `json:"rtt_ms"`
}

func newRTCPObserver(log *zap.SugaredLogger) *rtcpObserver {
	return &rtcpObserver{log: log, flows: make(map[webrtc.SSRC]*flowStats)}
}

func (o *rtcpObserver) flow(ssrc webrtc.SSRC) *flowStats {
	f, ok := o.flows[ssrc]
	if !ok {
		f = &flowStats{}
		o.flows[ssrc] = f
	}
	return f
}

func (o *rtcpObserver) recordInbound(ssrc webrtc.SSRC, payloadBytes int) {
	o.mu.Lock()
	f := o.flow(ssrc)
	f.Packets++
	f.Bytes += uint64(payloadBytes)
	o.mu.Unlock()
}

// watch drains RTCP packets of the receiver, folding receiver reports into
// the per-SSRC flow stats.
func (o *rtcpObserver) watch(receiver *webrtc.RTPReceiver, ssrc webrtc.SSRC) {
	go func() {
		for {
			packets, _, err := receiver.ReadRTCP()
			if err != nil {
				return
			}
			o.processPackets(ssrc, packets)
		}
	}()
}

func (o *rtcpObserver) processPackets(ssrc webrtc.SSRC, packets []rtcp.Packet) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}

	f := o.flow(ssrc)
	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				f.FractionLost = float64(report.FractionLost) / 255.0
				f.Jitter = report.Jitter
				if report.LastSenderReport != 0 && report.Delay != 0 {
					rtt := time.Duration(report.Delay) * time.Second / 65536
					f.RTTMillis = rtt.Milliseconds()
				}
			}
		case *rtcp.TransportLayerNack:
			o.log.Debugw("received NACK", "ssrc", ssrc, "nacks", len(p.Nacks))
		case *rtcp.PictureLossIndication:
			o.log.Debugw("received PLI", "ssrc", ssrc)
		}
	}
}

// statEntries renders the observed flows as stats entries.
func (o *rtcpObserver) statEntries() []domain.StatEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := make([]domain.StatEntry, 0, len(o.flows))
	for ssrc, f := range o.flows {
		payload, err := json.Marshal(f)
		if err != nil {
			continue
		}
		entries = append(entries, domain.StatEntry{
			ID:        domain.StatID(fmt.Sprintf("rtcp-flow-%d", ssrc)),
			Type:      "remote-inbound-rtp",
			Timestamp: float64(time.Now().UnixMilli()),
			Payload:   payload,
		})
	}
	return entries
}

func (o *rtcpObserver) stop() {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()
}
