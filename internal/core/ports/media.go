package ports

import (
	"context"

	"peerlink/internal/core/domain"
)

// AcquiredTrack is a local track returned by the media acquirer, tagged
// with whether it was freshly captured or reused from a previous request.
type AcquiredTrack struct {
	Track domain.LocalTrack
	Fresh bool
}

// MediaAcquirer yields local media tracks matching a merged specification.
// Acquisition is idempotent per device: repeated requests for the same slot
// return the same live track flagged as reused.
type MediaAcquirer interface {
	AcquireTracks(ctx context.Context, settings domain.MediaStreamSettings) ([]AcquiredTrack, error)
}
