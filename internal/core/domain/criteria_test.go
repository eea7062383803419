package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCriteria_EmptySelectsNothing(t *testing.T) {
	c := EmptyCriteria()
	assert.True(t, c.IsEmpty())
	assert.False(t, c.Has(MediaKindAudio, MediaSourceDevice))
	assert.False(t, c.Has(MediaKindVideo, MediaSourceDisplay))
}

func TestCriteria_AllSelectsEverything(t *testing.T) {
	c := AllCriteria()
	for _, kind := range []MediaKind{MediaKindAudio, MediaKindVideo} {
		for _, source := range []MediaSourceKind{MediaSourceDevice, MediaSourceDisplay} {
			assert.True(t, c.Has(kind, source), "%s/%s", kind, source)
		}
	}
}

func TestCriteria_AddIsSelective(t *testing.T) {
	c := EmptyCriteria().Add(MediaKindVideo, MediaSourceDisplay)
	assert.True(t, c.Has(MediaKindVideo, MediaSourceDisplay))
	assert.False(t, c.Has(MediaKindVideo, MediaSourceDevice))
	assert.False(t, c.Has(MediaKindAudio, MediaSourceDevice))
	assert.False(t, c.IsEmpty())
}
