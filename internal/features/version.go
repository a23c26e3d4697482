package features

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion is returned when a model version (or metadata encoder
// version) has no entry in the feature table.
var ErrUnsupportedVersion = errors.New("unsupported model version")

// Input feature counts per inputs version.
const (
	NumSpatialFeaturesV3 = 22
	NumGlobalFeaturesV3  = 14

	NumSpatialFeaturesV4 = 13
	NumGlobalFeaturesV4  = 12

	NumSpatialFeaturesV5 = 22
	NumGlobalFeaturesV5  = 16

	NumSpatialFeaturesV6 = 22
	NumGlobalFeaturesV6  = 19

	NumSpatialFeaturesV7 = 22
	NumGlobalFeaturesV7  = 19
)

// Supported version range.
const (
	OldestModelVersion  = 3
	LatestModelVersion  = 16
	DefaultModelVersion = 16

	OldestInputsVersion = 3
	LatestInputsVersion = 7
)

// Fixed output channel counts.
const (
	ValueChannels     = 3
	OwnershipChannels = 1
)

// NumMetaChannelsV1 is the width of the SGF metadata input for encoder version 1.
const NumMetaChannelsV1 = 192

// unsupported is the sentinel count for versions outside the table.
const unsupported = -1

// InputsVersion returns the input feature version consumed by a model version.
func InputsVersion(modelVersion int) int {
	switch {
	case modelVersion >= 8 && modelVersion <= 16:
		return 7
	case modelVersion == 7:
		return 6
	case modelVersion == 6:
		return 5
	case modelVersion == 5:
		return 4
	case modelVersion == 3 || modelVersion == 4:
		return 3
	default:
		return unsupported
	}
}

// SpatialFeatures returns the number of spatial input channels, or -1.
func SpatialFeatures(modelVersion int) int {
	switch InputsVersion(modelVersion) {
	case 7:
		return NumSpatialFeaturesV7
	case 6:
		return NumSpatialFeaturesV6
	case 5:
		return NumSpatialFeaturesV5
	case 4:
		return NumSpatialFeaturesV4
	case 3:
		return NumSpatialFeaturesV3
	default:
		return unsupported
	}
}

// GlobalFeatures returns the number of global input channels, or -1.
func GlobalFeatures(modelVersion int) int {
	switch InputsVersion(modelVersion) {
	case 7:
		return NumGlobalFeaturesV7
	case 6:
		return NumGlobalFeaturesV6
	case 5:
		return NumGlobalFeaturesV5
	case 4:
		return NumGlobalFeaturesV4
	case 3:
		return NumGlobalFeaturesV3
	default:
		return unsupported
	}
}

// MetaChannels returns the number of metadata input channels for an SGF
// metadata encoder version: 0 when there is no encoder, -1 when unknown.
func MetaChannels(metaEncoderVersion int) int {
	switch metaEncoderVersion {
	case 0:
		return 0
	case 1:
		return NumMetaChannelsV1
	default:
		return unsupported
	}
}

// PolicyChannels returns the number of policy output channels.
func PolicyChannels(modelVersion int) int {
	switch {
	case modelVersion >= 16:
		return 4
	case modelVersion >= 12:
		return 2
	default:
		return 1
	}
}

// ScoreValueChannels returns the number of score-value output channels.
func ScoreValueChannels(modelVersion int) int {
	switch {
	case modelVersion >= 9:
		return 6
	case modelVersion >= 8:
		return 4
	case modelVersion >= 4:
		return 2
	default:
		return 1
	}
}

// Counts holds every per-stream channel count of one model version.
type Counts struct {
	ModelVersion       int
	Spatial            int
	Global             int
	Meta               int
	Policy             int
	Value              int
	ScoreValue         int
	Ownership          int
	MetaEncoderVersion int
}

// Resolve looks up all channel counts of a model version. It fails with
// ErrUnsupportedVersion if any required count is not positive, so no shape is
// ever built from a sentinel.
func Resolve(modelVersion, metaEncoderVersion int) (Counts, error) {
	c := Counts{
		ModelVersion:       modelVersion,
		Spatial:            SpatialFeatures(modelVersion),
		Global:             GlobalFeatures(modelVersion),
		Meta:               MetaChannels(metaEncoderVersion),
		Policy:             PolicyChannels(modelVersion),
		Value:              ValueChannels,
		ScoreValue:         ScoreValueChannels(modelVersion),
		Ownership:          OwnershipChannels,
		MetaEncoderVersion: metaEncoderVersion,
	}

	if c.Spatial <= 0 || c.Global <= 0 {
		return Counts{}, fmt.Errorf("%w: %d (supported %d-%d)",
			ErrUnsupportedVersion, modelVersion, OldestModelVersion, LatestModelVersion)
	}
	if c.Meta < 0 {
		return Counts{}, fmt.Errorf("%w: metadata encoder version %d", ErrUnsupportedVersion, metaEncoderVersion)
	}

	return c, nil
}
