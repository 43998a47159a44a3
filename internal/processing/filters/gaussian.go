package filters

import (
	"image"

	"watershed-segmenter/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// gaussianKernelSize covers about three sigma either side, odd and within [3,15].
func gaussianKernelSize(sigma float64) int {
	size := int(sigma*6) + 1
	if size%2 == 0 {
		size++
	}
	return max(3, min(size, 15))
}

func applyGaussianBlur(src *safe.Mat, sigma float64) (*safe.Mat, error) {
	k := gaussianKernelSize(sigma)
	dst := gocv.NewMat()
	gocv.GaussianBlur(src.GetMat(), &dst, image.Pt(k, k), sigma, sigma, gocv.BorderDefault)
	return safe.Adopt(dst, nil, "gaussian")
}
