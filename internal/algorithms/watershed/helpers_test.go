package watershed

import (
	"image"
	"image/color"
	"testing"

	"watershed-segmenter/internal/opencv/safe"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type disc struct {
	center image.Point
	radius int
}

// scene draws filled discs of intensity fill on a background and returns the grayscale
// image plus a BGR copy suitable as the watershed original.
func scene(t *testing.T, width, height int, background, fill uint8, discs ...disc) (*safe.Mat, *safe.Mat) {
	t.Helper()

	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(background), 0, 0, 0), height, width, gocv.MatTypeCV8UC1)
	c := color.RGBA{R: fill, G: fill, B: fill, A: 255}
	for _, d := range discs {
		gocv.Circle(&gray, d.center, d.radius, c, -1)
	}

	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)

	g, err := safe.Adopt(gray, nil, "test_gray")
	require.NoError(t, err)
	o, err := safe.Adopt(bgr, nil, "test_original")
	require.NoError(t, err)

	t.Cleanup(func() {
		g.Close()
		o.Close()
	})
	return g, o
}

func int32s(t *testing.T, m *safe.Mat) []int32 {
	t.Helper()
	require.Equal(t, gocv.MatTypeCV32SC1, m.Type())
	mat := m.GetMat()
	out, err := mat.DataPtrInt32()
	require.NoError(t, err)
	return append([]int32(nil), out...)
}

func bytesOf(t *testing.T, m *safe.Mat) []byte {
	t.Helper()
	b, err := m.ToBytes()
	require.NoError(t, err)
	return b
}

func labelAt(t *testing.T, m *safe.Mat, p image.Point) int32 {
	t.Helper()
	v, err := m.GetIntAt(p.Y, p.X)
	require.NoError(t, err)
	return v
}

func positiveLabels(labels []int32) map[int32]bool {
	set := make(map[int32]bool)
	for _, l := range labels {
		if l > 0 {
			set[l] = true
		}
	}
	return set
}
