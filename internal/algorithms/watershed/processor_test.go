package watershed

import (
	"context"
	"errors"
	"image"
	"testing"

	"watershed-segmenter/internal/opencv/memory"
	"watershed-segmenter/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

var (
	leftDisc  = disc{center: image.Pt(50, 60), radius: 30}
	rightDisc = disc{center: image.Pt(150, 60), radius: 30}
)

func TestSegmentDarkDiscsOnBrightBackground(t *testing.T) {
	gray, original := scene(t, 200, 120, 200, 0, leftDisc, rightDisc)

	result, err := NewProcessor().Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)
	defer result.Close()

	assert.Equal(t, 3, result.Labels)
	assert.False(t, result.Degenerate)

	seeds := result.Markers
	assert.EqualValues(t, 1, labelAt(t, seeds, image.Pt(5, 5)), "background seed")
	left := labelAt(t, seeds, leftDisc.center)
	right := labelAt(t, seeds, rightDisc.center)
	assert.ElementsMatch(t, []int32{2, 3}, []int32{left, right})

	modified := int32s(t, result.ModifiedMarkers)
	assert.Equal(t, map[int32]bool{1: true, 2: true, 3: true}, positiveLabels(modified))
	assert.Equal(t, left, labelAt(t, result.ModifiedMarkers, leftDisc.center))
	assert.Equal(t, right, labelAt(t, result.ModifiedMarkers, rightDisc.center))

	// The gap between the discs belongs to the background or to a ridge, never to a disc.
	between := labelAt(t, result.ModifiedMarkers, image.Pt(100, 60))
	assert.Contains(t, []int32{-1, 1}, between)
	assert.Greater(t, result.BoundaryPixels, 0)
}

func TestSegmentBrightDiscsOnDarkBackground(t *testing.T) {
	gray, original := scene(t, 200, 120, 0, 200, leftDisc, rightDisc)

	result, err := NewProcessor().Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)
	defer result.Close()

	// After inversion the dark field is the object; both discs fall into the shifted
	// connected-component background label.
	assert.Equal(t, 2, result.Labels)
	assert.EqualValues(t, 1, labelAt(t, result.Markers, leftDisc.center))
	assert.EqualValues(t, 1, labelAt(t, result.Markers, rightDisc.center))
	assert.EqualValues(t, 2, labelAt(t, result.Markers, image.Pt(5, 5)))

	modified := int32s(t, result.ModifiedMarkers)
	for _, l := range modified {
		assert.True(t, l == -1 || l > 0, "label %d after flooding", l)
	}
	assert.Greater(t, result.BoundaryPixels, 0)
}

func TestSegmentUnknownIsBackgroundMinusForeground(t *testing.T) {
	gray, original := scene(t, 200, 120, 200, 0, leftDisc, rightDisc)

	result, err := NewProcessor().Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)
	defer result.Close()

	bg := bytesOf(t, result.SureBackground)
	fg := bytesOf(t, result.SureForeground)
	unknown := bytesOf(t, result.Unknown)
	require.Len(t, fg, len(bg))
	require.Len(t, unknown, len(bg))

	for i := range bg {
		assert.Contains(t, []byte{0, 255}, fg[i])
		if fg[i] == 255 {
			assert.EqualValues(t, 255, bg[i], "foreground pixel %d outside background", i)
		}
		want := byte(0)
		if bg[i] == 255 && fg[i] == 0 {
			want = 255
		}
		if !assert.Equal(t, want, unknown[i], "pixel %d", i) {
			return
		}
	}
}

func TestSeedMarkersZeroExactlyOnUnknown(t *testing.T) {
	gray, original := scene(t, 200, 120, 200, 0, leftDisc, rightDisc)

	result, err := NewProcessor().Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)
	defer result.Close()

	seeds := int32s(t, result.Markers)
	unknown := bytesOf(t, result.Unknown)
	require.Len(t, seeds, len(unknown))

	for i, l := range seeds {
		if unknown[i] == 255 {
			require.Zero(t, l, "unknown pixel %d", i)
		} else {
			require.Positive(t, l, "known pixel %d", i)
		}
	}
}

func TestSegmentPaintsBoundariesRed(t *testing.T) {
	gray, original := scene(t, 200, 120, 200, 0, leftDisc, rightDisc)

	result, err := NewProcessor().Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)
	defer result.Close()

	assert.Same(t, original, result.Segmented)

	labels := int32s(t, result.ModifiedMarkers)
	cols := result.ModifiedMarkers.Cols()
	painted := 0
	for i, l := range labels {
		row, col := i/cols, i%cols
		b, _ := original.GetUCharAt3(row, col, 0)
		g, _ := original.GetUCharAt3(row, col, 1)
		r, _ := original.GetUCharAt3(row, col, 2)
		if l == -1 {
			require.Equal(t, [3]uint8{0, 0, 255}, [3]uint8{b, g, r})
			painted++
			continue
		}
		gv, _ := gray.GetUCharAt(row, col)
		require.Equal(t, [3]uint8{gv, gv, gv}, [3]uint8{b, g, r})
	}
	assert.Equal(t, result.BoundaryPixels, painted)
}

func TestSegmentIsRepeatableOnClonedOriginal(t *testing.T) {
	gray, original := scene(t, 200, 120, 200, 0, leftDisc, rightDisc)

	first, err := original.Clone()
	require.NoError(t, err)
	defer first.Close()
	second, err := original.Clone()
	require.NoError(t, err)
	defer second.Close()

	p := NewProcessor()
	a, err := p.Segment(context.Background(), gray, first, DefaultParameters())
	require.NoError(t, err)
	defer a.Close()
	b, err := p.Segment(context.Background(), gray, second, DefaultParameters())
	require.NoError(t, err)
	defer b.Close()

	for _, stage := range Stages {
		assert.Equal(t, bytesOf(t, a.Image(stage)), bytesOf(t, b.Image(stage)), string(stage))
	}
}

func TestSegmentDistanceIsNormalized(t *testing.T) {
	gray, original := scene(t, 200, 120, 200, 0, leftDisc, rightDisc)

	result, err := NewProcessor().Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)
	defer result.Close()

	require.Equal(t, gocv.MatTypeCV32FC1, result.Distance.Type())
	minVal, maxVal, _, _ := gocv.MinMaxLoc(result.Distance.GetMat())
	assert.InDelta(t, 0, minVal, 1e-6)
	assert.InDelta(t, 1, maxVal, 1e-6)
	assert.InDelta(t, 30, result.MaxDistance, 2.5)
}

func TestSegmentFlatDistanceLeavesForegroundEmpty(t *testing.T) {
	// Every pixel is above thresh_pre, so the inverted mask is empty.
	gray, original := scene(t, 64, 48, 255, 255)

	result, err := NewProcessor().Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)
	defer result.Close()

	assert.True(t, result.Degenerate)
	assert.Zero(t, gocv.CountNonZero(result.SureForeground.GetMat()))
	assert.Equal(t, 1, result.Labels)

	for _, l := range int32s(t, result.ModifiedMarkers) {
		assert.True(t, l == -1 || l == 1, "label %d", l)
	}
}

func TestSegmentAllDarkInputBecomesOneRegion(t *testing.T) {
	// Every pixel is at or below thresh_pre, so the mask covers the whole image and no
	// pixel is seeded.
	gray, original := scene(t, 64, 48, 0, 0)

	result, err := NewProcessor().Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)
	defer result.Close()

	assert.True(t, result.Degenerate)
	assert.Zero(t, gocv.CountNonZero(result.SureForeground.GetMat()))
	for _, l := range int32s(t, result.Markers) {
		require.Zero(t, l, "every seed pixel is unknown")
	}

	modified := int32s(t, result.ModifiedMarkers)
	for _, l := range modified {
		require.True(t, l == -1 || l == 1, "label %d after flooding", l)
	}
	assert.EqualValues(t, 1, labelAt(t, result.ModifiedMarkers, image.Pt(32, 24)))

	regions, summary, err := AnalyzeRegions(result.ModifiedMarkers)
	require.NoError(t, err)
	assert.Len(t, regions, 1)
	assert.Equal(t, 1, summary.Count)
}

func TestSeedMarkersCountsSeededPixels(t *testing.T) {
	markers := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 2, 3, gocv.MatTypeCV32SC1)
	defer markers.Close()
	markers.SetIntAt(0, 1, 1)

	unknown := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 2, 3, gocv.MatTypeCV8UC1)
	defer unknown.Close()
	unknown.SetUCharAt(1, 0, 255)
	unknown.SetUCharAt(1, 1, 255)

	seeded, err := seedMarkers(&markers, &unknown)
	require.NoError(t, err)
	assert.Equal(t, 4, seeded)

	got, err := markers.DataPtrInt32()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 1, 0, 0, 1}, got)

	allUnknown := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 2, 3, gocv.MatTypeCV8UC1)
	defer allUnknown.Close()
	seeded, err = seedMarkers(&markers, &allUnknown)
	require.NoError(t, err)
	assert.Zero(t, seeded)
}

func TestPaintBoundariesCountsRidges(t *testing.T) {
	_, original := scene(t, 4, 3, 10, 10)

	markers := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 0, 0, 0), 3, 4, gocv.MatTypeCV32SC1)
	defer markers.Close()
	markers.SetIntAt(0, 0, -1)
	markers.SetIntAt(2, 3, -1)

	n, err := paintBoundaries(markers, original)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, p := range []image.Point{{0, 0}, {3, 2}} {
		b, _ := original.GetUCharAt3(p.Y, p.X, 0)
		r, _ := original.GetUCharAt3(p.Y, p.X, 2)
		assert.Equal(t, [2]uint8{0, 255}, [2]uint8{b, r}, "ridge at %v", p)
	}
	v, _ := original.GetUCharAt3(1, 1, 2)
	assert.EqualValues(t, 10, v, "non-ridge pixel untouched")
}

func TestSegmentRejectsInvalidInput(t *testing.T) {
	gray, original := scene(t, 40, 30, 0, 200, disc{image.Pt(20, 15), 5})
	smallGray, smallOriginal := scene(t, 20, 30, 0, 200)

	closed, err := gray.Clone()
	require.NoError(t, err)
	closed.Close()

	cases := []struct {
		name           string
		gray, original *safe.Mat
	}{
		{"nil gray", nil, original},
		{"nil original", gray, nil},
		{"size mismatch", gray, smallOriginal},
		{"original not BGR", gray, smallGray},
		{"gray not single channel", original, original},
		{"closed gray", closed, original},
	}

	p := NewProcessor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Segment(context.Background(), tc.gray, tc.original, DefaultParameters())
			assert.True(t, errors.Is(err, safe.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestSegmentRejectsInvalidParameters(t *testing.T) {
	gray, original := scene(t, 40, 30, 0, 200)

	params := DefaultParameters()
	params.Thresh = 0

	_, err := NewProcessor().Segment(context.Background(), gray, original, params)
	assert.True(t, errors.Is(err, ErrInvalidParameters))
}

func TestSegmentHonoursCancellation(t *testing.T) {
	gray, original := scene(t, 40, 30, 0, 200)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProcessor().Segment(ctx, gray, original, DefaultParameters())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResultImagesAndClose(t *testing.T) {
	gray, original := scene(t, 200, 120, 200, 0, leftDisc, rightDisc)
	tracker := memory.NewTracker(nil)

	result, err := NewProcessor(WithMemoryTracker(tracker)).Segment(context.Background(), gray, original, DefaultParameters())
	require.NoError(t, err)

	images := result.Images()
	require.Len(t, images, 7)
	for _, key := range []Stage{"modified markers", "segmented image", "sure background",
		"distance transform", "sure foreground", "unknown", "markers"} {
		assert.NotNil(t, images[key], string(key))
	}
	assert.EqualValues(t, 6, tracker.Stats().CurrentlyActive)

	result.Close()
	assert.Zero(t, tracker.Stats().CurrentlyActive)
	assert.True(t, original.IsValid(), "segmented image belongs to the caller")
}

func TestProcessReturnsPaintedCopy(t *testing.T) {
	_, original := scene(t, 200, 120, 200, 0, leftDisc, rightDisc)
	before := bytesOf(t, original)

	p := NewProcessor()
	out, err := p.Process(context.Background(), original, p.GetDefaultParameters())
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, before, bytesOf(t, original))
	assert.Equal(t, gocv.MatTypeCV8UC3, out.Type())
	assert.NotEqual(t, before, bytesOf(t, out))
}
