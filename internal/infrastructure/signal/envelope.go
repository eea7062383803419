package signal

import (
	"encoding/json"
	"fmt"

	"peerlink/internal/core/domain"
)

// Envelope is the JSON frame every message on the signalling socket is
// wrapped in.
type Envelope struct {
	Type    string          `json:"type"`
	PeerID  domain.PeerID   `json:"peer_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types (server to client).
const (
	MsgRemoteOffer  = "remote_offer"
	MsgRemoteAnswer = "remote_answer"
	MsgIceCandidate = "ice_candidate"
	MsgPatchTracks  = "patch_tracks"
	MsgMakeOffer    = "make_offer"
	MsgGetStats     = "get_stats"
	MsgRestartIce   = "restart_ice"
)

// Outbound message types (client to server).
const (
	MsgCandidateDiscovered = "candidate_discovered"
	MsgCandidateError      = "candidate_error"
	MsgSdpOffer            = "sdp_offer"
	MsgSdpAnswer           = "sdp_answer"
	MsgConnectionState     = "connection_state"
	MsgIceConnectionState  = "ice_connection_state"
	MsgStatsUpdate         = "stats_update"
	MsgMediaUpdate         = "media_update"
	MsgRemoteTrackStarted  = "remote_track_started"
	MsgLocalTrackStarted   = "local_track_started"
	MsgLocalMediaFailed    = "local_media_failed"
)

type DescriptionPayload struct {
	SDP string `json:"sdp"`
}

type PatchTracksPayload struct {
	Patches []domain.TrackPatch `json:"patches"`
}

type SdpOfferPayload struct {
	SDP                 string                    `json:"sdp"`
	Mids                map[domain.TrackID]string `json:"mids"`
	TransceiverStatuses map[domain.TrackID]bool   `json:"transceiver_statuses"`
}

type SdpAnswerPayload struct {
	SDP                 string                  `json:"sdp"`
	TransceiverStatuses map[domain.TrackID]bool `json:"transceiver_statuses"`
}

type StatePayload struct {
	State string `json:"state"`
}

type StatsPayload struct {
	Entries []domain.StatEntry `json:"entries"`
}

type TrackStartedPayload struct {
	TrackID domain.TrackID         `json:"track_id"`
	Kind    domain.MediaKind       `json:"kind"`
	Source  domain.MediaSourceKind `json:"source"`
	Sender  domain.MemberID        `json:"sender,omitempty"`
	Mid     string                 `json:"mid,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type CandidateErrorPayload struct {
	URL       string `json:"url"`
	ErrorCode int32  `json:"error_code"`
	ErrorText string `json:"error_text"`
}

func newEnvelope(msgType string, peerID domain.PeerID, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, PeerID: peerID, Payload: body}, nil
}

// EncodeEvent converts a peer event into its wire envelope. Unknown event
// types are a programming error and reported as such.
func EncodeEvent(ev domain.PeerEvent) (Envelope, error) {
	switch e := ev.(type) {
	case domain.IceCandidateDiscovered:
		return newEnvelope(MsgCandidateDiscovered, e.PeerID, e.Candidate)
	case domain.IceCandidateErrorEvent:
		return newEnvelope(MsgCandidateError, e.PeerID, CandidateErrorPayload{
			URL:       e.Error.URL,
			ErrorCode: e.Error.ErrorCode,
			ErrorText: e.Error.ErrorText,
		})
	case domain.NewSdpOffer:
		return newEnvelope(MsgSdpOffer, e.PeerID, SdpOfferPayload{
			SDP:                 e.SdpOffer,
			Mids:                e.Mids,
			TransceiverStatuses: e.TransceiverStatuses,
		})
	case domain.NewSdpAnswer:
		return newEnvelope(MsgSdpAnswer, e.PeerID, SdpAnswerPayload{
			SDP:                 e.SdpAnswer,
			TransceiverStatuses: e.TransceiverStatuses,
		})
	case domain.ConnectionStateChanged:
		return newEnvelope(MsgConnectionState, e.PeerID, StatePayload{State: string(e.State)})
	case domain.IceConnectionStateChanged:
		return newEnvelope(MsgIceConnectionState, e.PeerID, StatePayload{State: string(e.State)})
	case domain.StatsUpdate:
		return newEnvelope(MsgStatsUpdate, e.PeerID, StatsPayload{Entries: e.Stats.Entries})
	case domain.MediaUpdateCommand:
		return newEnvelope(MsgMediaUpdate, e.Command.PeerID, e.Command)
	case domain.NewRemoteTrack:
		info := e.Track.Info()
		return newEnvelope(MsgRemoteTrackStarted, "", TrackStartedPayload{
			TrackID: info.ID,
			Kind:    info.Kind,
			Source:  info.Source,
			Sender:  e.SenderID,
			Mid:     e.Track.Mid(),
		})
	case domain.NewLocalTrack:
		info := e.Track.Info()
		return newEnvelope(MsgLocalTrackStarted, "", TrackStartedPayload{
			TrackID: info.ID,
			Kind:    info.Kind,
			Source:  info.Source,
		})
	case domain.FailedLocalMedia:
		return newEnvelope(MsgLocalMediaFailed, "", ErrorPayload{Message: e.Error.Error()})
	default:
		return Envelope{}, fmt.Errorf("unencodable peer event %T", ev)
	}
}

func decodePayload[T any](envelope Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode %s payload: %w", envelope.Type, err)
	}
	return payload, nil
}
