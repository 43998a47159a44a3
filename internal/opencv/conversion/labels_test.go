package conversion

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestLabelColor(t *testing.T) {
	assert.Equal(t, BoundaryColor, LabelColor(-1))
	assert.Equal(t, UnknownColor, LabelColor(0))
	assert.Equal(t, LabelColor(5), LabelColor(5), "stable")

	seen := make(map[[3]uint8]bool)
	for label := int32(1); label <= 8; label++ {
		c := LabelColor(label)
		assert.Equal(t, uint8(255), c.A)
		seen[[3]uint8{c.R, c.G, c.B}] = true
	}
	assert.Len(t, seen, 8, "neighbouring labels get distinct colors")
}

func TestLabelsToImage(t *testing.T) {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 0, 0, 0), 3, 3, gocv.MatTypeCV32SC1)
	m.SetIntAt(0, 0, -1)
	m.SetIntAt(1, 1, 0)
	m.SetIntAt(2, 2, 2)
	markers := adopt(t, m)

	img, err := LabelsToImage(markers)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 3), img.Bounds())
	assert.Equal(t, BoundaryColor, img.RGBAAt(0, 0))
	assert.Equal(t, UnknownColor, img.RGBAAt(1, 1))
	assert.Equal(t, LabelColor(2), img.RGBAAt(2, 2))
	assert.Equal(t, LabelColor(1), img.RGBAAt(2, 0))

	gray := adopt(t, gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1))
	_, err = LabelsToImage(gray)
	assert.Error(t, err)
}

func TestDistanceToImage(t *testing.T) {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 1, 3, gocv.MatTypeCV32FC1)
	m.SetFloatAt(0, 1, 0.5)
	m.SetFloatAt(0, 2, 1.5)
	dist := adopt(t, m)

	img, err := DistanceToImage(dist)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 128, 255}, img.Pix)
}

func TestRenderDispatchesOnType(t *testing.T) {
	labels := adopt(t, gocv.NewMatWithSizeFromScalar(gocv.NewScalar(1, 0, 0, 0), 2, 2, gocv.MatTypeCV32SC1))
	dist := adopt(t, gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 2, 2, gocv.MatTypeCV32FC1))
	bgr := adopt(t, gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 2, 2, gocv.MatTypeCV8UC3))
	other := adopt(t, gocv.NewMatWithSize(2, 2, gocv.MatTypeCV64FC1))

	img, err := Render(labels)
	require.NoError(t, err)
	assert.IsType(t, &image.RGBA{}, img)

	img, err = Render(dist)
	require.NoError(t, err)
	assert.IsType(t, &image.Gray{}, img)

	img, err = Render(bgr)
	require.NoError(t, err)
	assert.IsType(t, &image.RGBA{}, img)

	_, err = Render(other)
	assert.Error(t, err)
}
