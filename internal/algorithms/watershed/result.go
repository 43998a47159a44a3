package watershed

import (
	"strings"

	"watershed-segmenter/internal/opencv/safe"
)

// Stage names one of the seven images produced by a segmentation run.
type Stage string

const (
	StageModifiedMarkers Stage = "modified markers"
	StageSegmented       Stage = "segmented image"
	StageSureBackground  Stage = "sure background"
	StageDistance        Stage = "distance transform"
	StageSureForeground  Stage = "sure foreground"
	StageUnknown         Stage = "unknown"
	StageMarkers         Stage = "markers"
)

// Stages lists every output in the order they are reported.
var Stages = []Stage{
	StageModifiedMarkers,
	StageSegmented,
	StageSureBackground,
	StageDistance,
	StageSureForeground,
	StageUnknown,
	StageMarkers,
}

// Slug is the file-name friendly form, e.g. "sure_background".
func (s Stage) Slug() string {
	return strings.ReplaceAll(string(s), " ", "_")
}

// Result holds the outputs of one segmentation.
//
// Segmented is the caller's original image, painted in place; Close leaves it alone.
type Result struct {
	ModifiedMarkers *safe.Mat // CV_32SC1, -1 on boundaries
	Segmented       *safe.Mat // CV_8UC3, aliases the original input
	SureBackground  *safe.Mat // CV_8UC1
	Distance        *safe.Mat // CV_32FC1 in [0,1]
	SureForeground  *safe.Mat // CV_8UC1
	Unknown         *safe.Mat // CV_8UC1
	Markers         *safe.Mat // CV_32SC1 seed map, 0 on unknown pixels

	Parameters Parameters
	// Labels is the number of seed labels, background included.
	Labels int
	// BoundaryPixels counts -1 pixels in ModifiedMarkers.
	BoundaryPixels int
	// MaxDistance is the largest raw distance-transform value, in pixels.
	MaxDistance float64
	// Degenerate is set when the distance map was flat and sure foreground was left empty.
	// When no pixel was seeded either, the flood starts from a single background label 1.
	Degenerate bool
}

func (r *Result) Image(stage Stage) *safe.Mat {
	switch stage {
	case StageModifiedMarkers:
		return r.ModifiedMarkers
	case StageSegmented:
		return r.Segmented
	case StageSureBackground:
		return r.SureBackground
	case StageDistance:
		return r.Distance
	case StageSureForeground:
		return r.SureForeground
	case StageUnknown:
		return r.Unknown
	case StageMarkers:
		return r.Markers
	default:
		return nil
	}
}

// Images returns the named-image mapping.
func (r *Result) Images() map[Stage]*safe.Mat {
	images := make(map[Stage]*safe.Mat, len(Stages))
	for _, stage := range Stages {
		images[stage] = r.Image(stage)
	}
	return images
}

// Close releases every Mat the segmentation allocated.
func (r *Result) Close() {
	for _, m := range []*safe.Mat{r.ModifiedMarkers, r.SureBackground, r.Distance, r.SureForeground, r.Unknown, r.Markers} {
		if m != nil {
			m.Close()
		}
	}
}
