package conversion

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"watershed-segmenter/internal/opencv/safe"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

var (
	// BoundaryColor marks watershed ridge pixels (label -1).
	BoundaryColor = color.RGBA{R: 255, A: 255}
	// UnknownColor marks unassigned seed pixels (label 0).
	UnknownColor = color.RGBA{A: 255}
)

// goldenAngle spreads consecutive labels around the hue circle.
const goldenAngle = 137.50776405003785

// LabelColor returns a stable color for a positive region label.
func LabelColor(label int32) color.RGBA {
	switch {
	case label < 0:
		return BoundaryColor
	case label == 0:
		return UnknownColor
	}

	hue := math.Mod(float64(label-1)*goldenAngle, 360)
	sat := 0.55 + 0.15*float64(label%3)
	val := 0.95 - 0.1*float64(label%2)
	r, g, b := colorful.Hsv(hue, sat, val).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// LabelsToImage renders a CV_32SC1 marker map with one color per label.
func LabelsToImage(markers *safe.Mat) (*image.RGBA, error) {
	if err := safe.ValidateMatType(markers, gocv.MatTypeCV32SC1, "label rendering"); err != nil {
		return nil, err
	}

	rows, cols := markers.Rows(), markers.Cols()
	mat := markers.GetMat()
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))
	palette := make(map[int32]color.RGBA)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			label := mat.GetIntAt(y, x)
			c, ok := palette[label]
			if !ok {
				c = LabelColor(label)
				palette[label] = c
			}
			img.SetRGBA(x, y, c)
		}
	}

	return img, nil
}

// DistanceToImage maps a CV_32FC1 image in [0,1] onto 8-bit gray. Values outside the range are clamped.
func DistanceToImage(dist *safe.Mat) (*image.Gray, error) {
	if err := safe.ValidateMatType(dist, gocv.MatTypeCV32FC1, "distance rendering"); err != nil {
		return nil, err
	}

	rows, cols := dist.Rows(), dist.Cols()
	mat := dist.GetMat()
	img := image.NewGray(image.Rect(0, 0, cols, rows))

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := float64(mat.GetFloatAt(y, x))
			v = math.Max(0, math.Min(1, v))
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(v * 255))})
		}
	}

	return img, nil
}

// Render picks a renderer by Mat type: marker maps, distance maps or plain 8-bit images.
func Render(mat *safe.Mat) (image.Image, error) {
	if err := safe.ValidateMatForOperation(mat, "render"); err != nil {
		return nil, err
	}

	switch mat.Type() {
	case gocv.MatTypeCV32SC1:
		return LabelsToImage(mat)
	case gocv.MatTypeCV32FC1:
		return DistanceToImage(mat)
	case gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4:
		return MatToImage(mat)
	default:
		return nil, fmt.Errorf("no renderer for Mat type %v", mat.Type())
	}
}
