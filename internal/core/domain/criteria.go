package domain

// LocalStreamUpdateCriteria selects which (kind, source) track slots a
// local-stream update should refresh. Implemented as a small bitset.
type LocalStreamUpdateCriteria uint8

const (
	criterionDeviceAudio LocalStreamUpdateCriteria = 1 << iota
	criterionDisplayAudio
	criterionDeviceVideo
	criterionDisplayVideo
)

// EmptyCriteria returns criteria selecting nothing.
func EmptyCriteria() LocalStreamUpdateCriteria { return 0 }

// AllCriteria returns criteria selecting every kind and source.
func AllCriteria() LocalStreamUpdateCriteria {
	return criterionDeviceAudio | criterionDisplayAudio | criterionDeviceVideo | criterionDisplayVideo
}

func criterionBit(kind MediaKind, source MediaSourceKind) LocalStreamUpdateCriteria {
	switch {
	case kind == MediaKindAudio && source == MediaSourceDevice:
		return criterionDeviceAudio
	case kind == MediaKindAudio && source == MediaSourceDisplay:
		return criterionDisplayAudio
	case kind == MediaKindVideo && source == MediaSourceDevice:
		return criterionDeviceVideo
	case kind == MediaKindVideo && source == MediaSourceDisplay:
		return criterionDisplayVideo
	}
	return 0
}

// Add returns the criteria with the given (kind, source) pair selected.
func (c LocalStreamUpdateCriteria) Add(kind MediaKind, source MediaSourceKind) LocalStreamUpdateCriteria {
	return c | criterionBit(kind, source)
}

// Has reports whether the given (kind, source) pair is selected.
func (c LocalStreamUpdateCriteria) Has(kind MediaKind, source MediaSourceKind) bool {
	return c&criterionBit(kind, source) != 0
}

// IsEmpty reports whether nothing is selected.
func (c LocalStreamUpdateCriteria) IsEmpty() bool { return c == 0 }
