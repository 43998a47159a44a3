package watershed

import (
	"context"
	"fmt"
	"time"

	"watershed-segmenter/internal/logger"
	"watershed-segmenter/internal/opencv/conversion"
	"watershed-segmenter/internal/opencv/safe"

	"gocv.io/x/gocv"
)

const componentName = "Watershed"

// TimingTracker receives per-step timings.
type TimingTracker interface {
	StartTiming(operation string) context.Context
	EndTiming(ctx context.Context)
}

type Processor struct {
	name       string
	logger     logger.Logger
	memTracker safe.MemoryTracker
	timing     TimingTracker
}

type Option func(*Processor)

func WithLogger(l logger.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMemoryTracker(t safe.MemoryTracker) Option {
	return func(p *Processor) {
		p.memTracker = t
	}
}

func WithTimingTracker(t TimingTracker) Option {
	return func(p *Processor) {
		p.timing = t
	}
}

func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		name:   componentName,
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) GetName() string {
	return p.name
}

func (p *Processor) GetDefaultParameters() map[string]interface{} {
	return DefaultParameters().ToMap()
}

func (p *Processor) ValidateParameters(params map[string]interface{}) error {
	_, err := ParametersFromMap(params)
	return err
}

// Process runs the segmentation on a single image and returns the boundary-painted copy.
// Grayscale input is expanded to BGR for the flooding step; input itself is never modified.
func (p *Processor) Process(ctx context.Context, input *safe.Mat, params map[string]interface{}) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(input, "watershed processing"); err != nil {
		return nil, err
	}

	typed, err := ParametersFromMap(params)
	if err != nil {
		return nil, fmt.Errorf("parameter validation failed: %w", err)
	}

	gray, err := conversion.ConvertToGrayscale(input)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to grayscale: %w", err)
	}
	defer gray.Close()

	original, err := conversion.GrayToBGR(input)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare BGR copy: %w", err)
	}

	result, err := p.Segment(ctx, gray, original, typed)
	if err != nil {
		original.Close()
		return nil, err
	}
	result.Close()

	return original, nil
}

// Segment runs marker-controlled watershed. original is painted in place and returned as
// Result.Segmented; clone it first if it must be reused.
func (p *Processor) Segment(ctx context.Context, gray, original *safe.Mat, params Parameters) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if err := safe.ValidateSegmentationInputs(gray, original); err != nil {
		return nil, err
	}

	shape, err := params.KernelShape.morphShape()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, cols := gray.Rows(), gray.Cols()

	p.logger.Debug(componentName, "segmentation started", map[string]interface{}{
		"width":             cols,
		"height":            rows,
		"thresh":            params.Thresh,
		"kernel":            params.KernelString(),
		"kernel_shape":      string(params.KernelShape),
		"thresh_pre":        params.ThreshPre,
		"dilate_iterations": params.DilateIterations,
	})

	var s stages
	defer s.close()

	// Binary mask with objects at 255.
	err = p.step(ctx, "threshold", func() error {
		s.mask = gocv.NewMat()
		gocv.Threshold(gray.GetMat(), &s.mask, float32(params.ThreshPre), 255, gocv.ThresholdBinary)
		gocv.BitwiseNot(s.mask, &s.mask)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.step(ctx, "dilate", func() error {
		kernel := gocv.GetStructuringElement(shape, params.Kernel)
		defer kernel.Close()

		s.sureBG = s.mask.Clone()
		for i := 0; i < params.DilateIterations; i++ {
			gocv.Dilate(s.sureBG, &s.sureBG, kernel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var rawMax, normMax float32
	err = p.step(ctx, "distance_transform", func() error {
		labels := gocv.NewMat()
		defer labels.Close()

		s.dist = gocv.NewMat()
		gocv.DistanceTransform(s.mask, &s.dist, &labels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)
		_, rawMax, _, _ = gocv.MinMaxLoc(s.dist)

		gocv.Normalize(s.dist, &s.dist, 0, 1, gocv.NormMinMax)
		_, normMax, _, _ = gocv.MinMaxLoc(s.dist)
		return nil
	})
	if err != nil {
		return nil, err
	}

	degenerate := normMax <= 0
	err = p.step(ctx, "sure_foreground", func() error {
		if degenerate {
			s.sureFG = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC1)
			return nil
		}

		fg := gocv.NewMat()
		defer fg.Close()
		gocv.Threshold(s.dist, &fg, float32(params.Thresh)*normMax, 255, gocv.ThresholdBinary)

		s.sureFG = gocv.NewMat()
		fg.ConvertTo(&s.sureFG, gocv.MatTypeCV8UC1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if degenerate {
		p.logger.Warning(componentName, "flat distance map, sure foreground left empty", map[string]interface{}{
			"raw_max_distance": rawMax,
			"thresh_pre":       params.ThreshPre,
		})
	}

	err = p.step(ctx, "unknown", func() error {
		s.unknown = gocv.NewMat()
		gocv.Subtract(s.sureBG, s.sureFG, &s.unknown)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var labelCount, seeded int
	err = p.step(ctx, "markers", func() error {
		s.markers = gocv.NewMat()
		labelCount = gocv.ConnectedComponents(s.sureFG, &s.markers)
		n, seedErr := seedMarkers(&s.markers, &s.unknown)
		seeded = n
		return seedErr
	})
	if err != nil {
		return nil, err
	}

	var boundary int
	err = p.step(ctx, "flood", func() error {
		s.modified = s.markers.Clone()
		if seeded == 0 {
			// Nothing to flood from: the whole image is one unknown region, so it becomes
			// a single background region instead of staying 0.
			s.modified.SetTo(gocv.NewScalar(1, 0, 0, 0))
			p.logger.Warning(componentName, "no seed markers, image treated as one region", nil)
		}
		gocv.Watershed(original.GetMat(), &s.modified)

		n, paintErr := paintBoundaries(s.modified, original)
		boundary = n
		return paintErr
	})
	if err != nil {
		return nil, err
	}

	result, err := s.adopt(p.memTracker, original)
	if err != nil {
		return nil, err
	}
	result.Parameters = params
	result.Labels = labelCount
	result.BoundaryPixels = boundary
	result.MaxDistance = float64(rawMax)
	result.Degenerate = degenerate

	p.logger.Info(componentName, "segmentation completed", map[string]interface{}{
		"labels":          labelCount,
		"boundary_pixels": boundary,
		"degenerate":      degenerate,
		"duration_ms":     time.Since(start).Milliseconds(),
	})

	return result, nil
}

// step checks for cancellation, then runs fn under the timing tracker.
func (p *Processor) step(ctx context.Context, name string, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if p.timing != nil {
		tctx := p.timing.StartTiming("watershed." + name)
		defer p.timing.EndTiming(tctx)
	}

	if err := fn(); err != nil {
		return fmt.Errorf("watershed %s: %w", name, err)
	}
	return nil
}

// seedMarkers shifts connected-component labels up by one so background becomes 1,
// then clears every unknown pixel to 0. It returns the number of seeded pixels.
func seedMarkers(markers, unknown *gocv.Mat) (int, error) {
	labels, err := markers.DataPtrInt32()
	if err != nil {
		return 0, fmt.Errorf("marker buffer: %w", err)
	}

	mask, err := unknown.DataPtrUint8()
	if err != nil {
		return 0, fmt.Errorf("unknown buffer: %w", err)
	}

	if len(labels) != len(mask) {
		return 0, fmt.Errorf("marker and unknown sizes differ: %d vs %d", len(labels), len(mask))
	}

	seeded := 0
	for i := range labels {
		if mask[i] == 255 {
			labels[i] = 0
		} else {
			labels[i]++
			seeded++
		}
	}
	return seeded, nil
}

// paintBoundaries colors every -1 pixel pure red (BGR 0,0,255) on img and returns how many there were.
func paintBoundaries(markers gocv.Mat, img *safe.Mat) (int, error) {
	ridges := gocv.NewMat()
	defer ridges.Close()
	gocv.InRangeWithScalar(markers, gocv.NewScalar(-1, 0, 0, 0), gocv.NewScalar(-1, 0, 0, 0), &ridges)

	count := gocv.CountNonZero(ridges)
	if count == 0 {
		return 0, nil
	}
	if err := img.SetToWithMask(gocv.NewScalar(0, 0, 255, 0), ridges); err != nil {
		return 0, err
	}
	return count, nil
}

// stages owns the intermediate Mats until they are handed to a Result.
type stages struct {
	mask     gocv.Mat
	sureBG   gocv.Mat
	dist     gocv.Mat
	sureFG   gocv.Mat
	unknown  gocv.Mat
	markers  gocv.Mat
	modified gocv.Mat
	adopted  bool
}

func (s *stages) close() {
	closeIfSet(&s.mask)
	if s.adopted {
		return
	}
	for _, m := range []*gocv.Mat{&s.sureBG, &s.dist, &s.sureFG, &s.unknown, &s.markers, &s.modified} {
		closeIfSet(m)
	}
}

// closeIfSet closes m; closing a zero gocv.Mat is a no-op on the C side.
func closeIfSet(m *gocv.Mat) {
	m.Close()
}

func (s *stages) adopt(tracker safe.MemoryTracker, original *safe.Mat) (*Result, error) {
	r := &Result{Segmented: original}

	outputs := []struct {
		stage Stage
		mat   gocv.Mat
		dst   **safe.Mat
	}{
		{StageModifiedMarkers, s.modified, &r.ModifiedMarkers},
		{StageSureBackground, s.sureBG, &r.SureBackground},
		{StageDistance, s.dist, &r.Distance},
		{StageSureForeground, s.sureFG, &r.SureForeground},
		{StageUnknown, s.unknown, &r.Unknown},
		{StageMarkers, s.markers, &r.Markers},
	}

	s.adopted = true
	for i, out := range outputs {
		m, err := safe.Adopt(out.mat, tracker, out.stage.Slug())
		if err != nil {
			// Adopt already closed out.mat; release the rest ourselves.
			for _, rest := range outputs[i+1:] {
				rest.mat.Close()
			}
			r.Close()
			return nil, err
		}
		*out.dst = m
	}
	return r, nil
}
