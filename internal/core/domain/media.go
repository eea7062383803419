package domain

// MediaKind is the kind of a media track.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// MediaSourceKind tells where a local media track is captured from.
type MediaSourceKind string

const (
	MediaSourceDevice  MediaSourceKind = "device"
	MediaSourceDisplay MediaSourceKind = "display"
)

// TrackDirection is the direction of a track slot within a session.
type TrackDirection string

const (
	DirectionSend TrackDirection = "send"
	DirectionRecv TrackDirection = "recv"
)

// MediaExchangeState is the stable enabled/disabled status of a track slot.
type MediaExchangeState string

const (
	MediaExchangeEnabled  MediaExchangeState = "enabled"
	MediaExchangeDisabled MediaExchangeState = "disabled"
)

// AudioConstraints describe the requirements to an audio track slot.
type AudioConstraints struct {
	DeviceID string
	Required bool
}

// Satisfied reports whether the given track metadata matches the constraints.
func (c AudioConstraints) Satisfied(t TrackInfo) bool {
	if t.Kind != MediaKindAudio {
		return false
	}
	return c.DeviceID == "" || c.DeviceID == t.DeviceID
}

// VideoConstraints describe the requirements to a video track slot.
type VideoConstraints struct {
	DeviceID string
	Source   MediaSourceKind
	Width    int
	Height   int
	Required bool
}

// Satisfied reports whether the given track metadata matches the constraints.
func (c VideoConstraints) Satisfied(t TrackInfo) bool {
	if t.Kind != MediaKindVideo || t.Source != c.Source {
		return false
	}
	return c.DeviceID == "" || c.DeviceID == t.DeviceID
}

// TrackConstraints is the per-slot requirement the track registry reports for
// one sender lacking a local track.
type TrackConstraints struct {
	Kind  MediaKind
	Audio AudioConstraints
	Video VideoConstraints
}

// Source returns the capture source of the constrained slot. Audio slots are
// always device-sourced.
func (c TrackConstraints) Source() MediaSourceKind {
	if c.Kind == MediaKindVideo {
		return c.Video.Source
	}
	return MediaSourceDevice
}

// MediaStreamSettings is the merged specification handed to the media
// acquirer: at most one audio slot, one device-video slot and one
// display-video slot.
type MediaStreamSettings struct {
	Audio        *AudioConstraints
	DeviceVideo  *VideoConstraints
	DisplayVideo *VideoConstraints
}

// IsEmpty reports whether the settings request no tracks at all.
func (s MediaStreamSettings) IsEmpty() bool {
	return s.Audio == nil && s.DeviceVideo == nil && s.DisplayVideo == nil
}

// LocalTrackConstraints are the statically configured local constraints the
// session merges with registry requirements before acquisition.
type LocalTrackConstraints struct {
	Audio        AudioConstraints
	DeviceVideo  VideoConstraints
	DisplayVideo VideoConstraints

	AudioEnabled        bool
	DeviceVideoEnabled  bool
	DisplayVideoEnabled bool
}

// RecvConstraints control whether remote audio/video is accepted.
type RecvConstraints struct {
	AudioEnabled bool
	VideoEnabled bool
}

// TrackInfo is the metadata of an actual media track, local or remote.
type TrackInfo struct {
	ID       TrackID
	Kind     MediaKind
	Source   MediaSourceKind
	DeviceID string
}

// LocalTrack is an acquired local media track. The concrete representation
// lives in the media-acquisition layer; the core only needs identity,
// metadata and enabling.
type LocalTrack interface {
	Info() TrackInfo
	SetEnabled(enabled bool)
	Enabled() bool
	Stop()
}

// RemoteTrack is a media track received from the remote side.
type RemoteTrack interface {
	Info() TrackInfo
	Mid() string
}
