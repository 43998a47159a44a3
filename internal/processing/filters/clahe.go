package filters

import (
	"image"

	"watershed-segmenter/internal/opencv/safe"

	"gocv.io/x/gocv"
)

func applyCLAHE(src *safe.Mat, clipLimit float64, tileSize int) (*safe.Mat, error) {
	clahe := gocv.NewCLAHEWithParams(clipLimit, image.Pt(tileSize, tileSize))
	defer clahe.Close()

	dst := gocv.NewMat()
	clahe.Apply(src.GetMat(), &dst)
	return safe.Adopt(dst, nil, "clahe")
}
