package session

import (
	"errors"
	"fmt"
)

// TracksRequestErrorKind names the validation rule a tracks request broke.
type TracksRequestErrorKind string

const (
	// TooManyAudioTracks - more than one audio track was requested.
	TooManyAudioTracks TracksRequestErrorKind = "too_many_audio_tracks"
	// TooManyVideoTracks - more than two video tracks were requested.
	TooManyVideoTracks TracksRequestErrorKind = "too_many_video_tracks"
	// ConflictingConstraints - two slots claim the same track position with
	// incompatible constraints.
	ConflictingConstraints TracksRequestErrorKind = "conflicting_constraints"
	// ExpectedAudioTracks - a required audio slot received no matching track.
	ExpectedAudioTracks TracksRequestErrorKind = "expected_audio_tracks"
	// ExpectedVideoTracks - a required video slot received no matching track.
	ExpectedVideoTracks TracksRequestErrorKind = "expected_video_tracks"
	// InvalidTrack - an acquired track does not satisfy its slot constraints.
	InvalidTrack TracksRequestErrorKind = "invalid_track"
)

// TracksRequestError is a tracks request validation failure.
type TracksRequestError struct {
	Kind TracksRequestErrorKind
}

func (e *TracksRequestError) Error() string {
	return fmt.Sprintf("invalid tracks request: %s", e.Kind)
}

// UpdateLocalStreamErrorKind classifies where an update-local-stream
// pipeline failed.
type UpdateLocalStreamErrorKind string

const (
	// InvalidLocalTracks - the requirement could not be expressed or the
	// acquired tracks failed validation.
	InvalidLocalTracks UpdateLocalStreamErrorKind = "invalid_local_tracks"
	// CouldNotGetLocalMedia - the media acquirer failed.
	CouldNotGetLocalMedia UpdateLocalStreamErrorKind = "could_not_get_local_media"
	// InsertLocalTracksFailed - the track registry rejected the insertion.
	InsertLocalTracksFailed UpdateLocalStreamErrorKind = "insert_local_tracks_failed"
)

// UpdateLocalStreamError is the typed union returned by
// Session.UpdateLocalStream. Cause keeps the originating collaborator error
// so native-layer faults stay distinguishable from local validation faults.
type UpdateLocalStreamError struct {
	Kind  UpdateLocalStreamErrorKind
	Cause error
}

func (e *UpdateLocalStreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("update local stream: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("update local stream: %s", e.Kind)
}

func (e *UpdateLocalStreamError) Unwrap() error { return e.Cause }

// IsUpdateLocalStreamError reports whether err is an UpdateLocalStreamError
// of the given kind.
func IsUpdateLocalStreamError(err error, kind UpdateLocalStreamErrorKind) bool {
	var ulse *UpdateLocalStreamError
	return errors.As(err, &ulse) && ulse.Kind == kind
}
