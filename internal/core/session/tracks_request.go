package session

import (
	"peerlink/internal/core/domain"
)

// audioSlot binds one requesting sender to its audio constraints.
type audioSlot struct {
	id          domain.TrackID
	constraints domain.AudioConstraints
}

// videoSlot binds one requesting sender to its video constraints.
type videoSlot struct {
	id          domain.TrackID
	constraints domain.VideoConstraints
}

// SimpleTracksRequest is the minimal acquirable form of a registry
// requirement: at most one audio slot, one device-video slot and one
// display-video slot.
type SimpleTracksRequest struct {
	audio        *audioSlot
	deviceVideo  *videoSlot
	displayVideo *videoSlot
}

// NewSimpleTracksRequest validates the raw per-slot requirement reported by
// the track registry and folds it into its simple form.
//
// Fails with TooManyAudioTracks if more than one audio slot is requested and
// with TooManyVideoTracks if more than one slot is requested per video
// source (at most two video slots total: one device, one display).
func NewSimpleTracksRequest(raw map[domain.TrackID]domain.TrackConstraints) (*SimpleTracksRequest, error) {
	req := &SimpleTracksRequest{}
	for id, tc := range raw {
		switch tc.Kind {
		case domain.MediaKindAudio:
			if req.audio != nil {
				return nil, &TracksRequestError{Kind: TooManyAudioTracks}
			}
			req.audio = &audioSlot{id: id, constraints: tc.Audio}
		case domain.MediaKindVideo:
			slot := &videoSlot{id: id, constraints: tc.Video}
			if tc.Video.Source == domain.MediaSourceDisplay {
				if req.displayVideo != nil {
					return nil, &TracksRequestError{Kind: TooManyVideoTracks}
				}
				req.displayVideo = slot
			} else {
				if req.deviceVideo != nil {
					return nil, &TracksRequestError{Kind: TooManyVideoTracks}
				}
				req.deviceVideo = slot
			}
		}
	}
	return req, nil
}

// Merge folds the statically configured local constraints into the request.
// Local device IDs win over registry ones; a slot whose kind is disabled
// locally is dropped unless the registry marked it required, in which case
// the merge fails with ConflictingConstraints. Non-empty device IDs that
// disagree also fail with ConflictingConstraints.
func (r *SimpleTracksRequest) Merge(local domain.LocalTrackConstraints) error {
	if r.audio != nil {
		if !local.AudioEnabled {
			if r.audio.constraints.Required {
				return &TracksRequestError{Kind: ConflictingConstraints}
			}
			r.audio = nil
		} else if err := mergeDeviceID(&r.audio.constraints.DeviceID, local.Audio.DeviceID); err != nil {
			return err
		}
	}
	if r.deviceVideo != nil {
		if !local.DeviceVideoEnabled {
			if r.deviceVideo.constraints.Required {
				return &TracksRequestError{Kind: ConflictingConstraints}
			}
			r.deviceVideo = nil
		} else {
			if err := mergeDeviceID(&r.deviceVideo.constraints.DeviceID, local.DeviceVideo.DeviceID); err != nil {
				return err
			}
			mergeResolution(&r.deviceVideo.constraints, local.DeviceVideo)
		}
	}
	if r.displayVideo != nil {
		if !local.DisplayVideoEnabled {
			if r.displayVideo.constraints.Required {
				return &TracksRequestError{Kind: ConflictingConstraints}
			}
			r.displayVideo = nil
		} else {
			if err := mergeDeviceID(&r.displayVideo.constraints.DeviceID, local.DisplayVideo.DeviceID); err != nil {
				return err
			}
			mergeResolution(&r.displayVideo.constraints, local.DisplayVideo)
		}
	}
	return nil
}

func mergeDeviceID(slot *string, local string) error {
	if local == "" {
		return nil
	}
	if *slot != "" && *slot != local {
		return &TracksRequestError{Kind: ConflictingConstraints}
	}
	*slot = local
	return nil
}

func mergeResolution(slot *domain.VideoConstraints, local domain.VideoConstraints) {
	if slot.Width == 0 {
		slot.Width = local.Width
	}
	if slot.Height == 0 {
		slot.Height = local.Height
	}
}

// IsEmpty reports whether no slots survived the merge.
func (r *SimpleTracksRequest) IsEmpty() bool {
	return r.audio == nil && r.deviceVideo == nil && r.displayVideo == nil
}

// Settings returns the merged specification for the media acquirer.
func (r *SimpleTracksRequest) Settings() domain.MediaStreamSettings {
	var s domain.MediaStreamSettings
	if r.audio != nil {
		a := r.audio.constraints
		s.Audio = &a
	}
	if r.deviceVideo != nil {
		v := r.deviceVideo.constraints
		s.DeviceVideo = &v
	}
	if r.displayVideo != nil {
		v := r.displayVideo.constraints
		s.DisplayVideo = &v
	}
	return s
}

// ParseTracks validates acquired tracks against the per-slot requirements
// and assigns each slot its track. A track matching no slot fails with
// InvalidTrack; a required slot left without a track fails with
// ExpectedAudioTracks or ExpectedVideoTracks.
func (r *SimpleTracksRequest) ParseTracks(tracks []domain.LocalTrack) (map[domain.TrackID]domain.LocalTrack, error) {
	assigned := make(map[domain.TrackID]domain.LocalTrack)

	for _, t := range tracks {
		info := t.Info()
		switch {
		case r.audio != nil && r.audio.constraints.Satisfied(info):
			assigned[r.audio.id] = t
		case r.deviceVideo != nil && r.deviceVideo.constraints.Satisfied(info):
			assigned[r.deviceVideo.id] = t
		case r.displayVideo != nil && r.displayVideo.constraints.Satisfied(info):
			assigned[r.displayVideo.id] = t
		default:
			return nil, &TracksRequestError{Kind: InvalidTrack}
		}
	}

	if r.audio != nil && r.audio.constraints.Required {
		if _, ok := assigned[r.audio.id]; !ok {
			return nil, &TracksRequestError{Kind: ExpectedAudioTracks}
		}
	}
	for _, slot := range []*videoSlot{r.deviceVideo, r.displayVideo} {
		if slot == nil || !slot.constraints.Required {
			continue
		}
		if _, ok := assigned[slot.id]; !ok {
			return nil, &TracksRequestError{Kind: ExpectedVideoTracks}
		}
	}
	return assigned, nil
}
