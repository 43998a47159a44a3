package conversion

import (
	"fmt"
	"image"

	"watershed-segmenter/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// ConvertToGrayscale converts multi-channel images to single-channel grayscale
func ConvertToGrayscale(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "grayscale conversion"); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if src.Channels() == 1 {
		return src.Clone()
	}

	dst := gocv.NewMat()
	srcMat := src.GetMat()

	switch src.Channels() {
	case 3:
		gocv.CvtColor(srcMat, &dst, gocv.ColorBGRToGray)
	case 4:
		gocv.CvtColor(srcMat, &dst, gocv.ColorBGRAToGray)
	default:
		dst.Close()
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	return safe.Adopt(dst, nil, src.Tag()+"_gray")
}

// GrayToBGR expands a single-channel Mat into a 3-channel BGR Mat.
func GrayToBGR(src *safe.Mat) (*safe.Mat, error) {
	if err := safe.ValidateMatForOperation(src, "BGR conversion"); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	switch src.Channels() {
	case 3:
		return src.Clone()
	case 1:
		dst := gocv.NewMat()
		gocv.CvtColor(src.GetMat(), &dst, gocv.ColorGrayToBGR)
		return safe.Adopt(dst, nil, src.Tag()+"_bgr")
	case 4:
		dst := gocv.NewMat()
		gocv.CvtColor(src.GetMat(), &dst, gocv.ColorBGRAToBGR)
		return safe.Adopt(dst, nil, src.Tag()+"_bgr")
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}
}

// MatToImage converts an 8-bit GoCV Mat to a standard Go image
func MatToImage(src *safe.Mat) (image.Image, error) {
	if err := safe.ValidateMatForOperation(src, "Mat to image conversion"); err != nil {
		return nil, err
	}

	data, err := src.ToBytes()
	if err != nil {
		return nil, err
	}

	rows := src.Rows()
	cols := src.Cols()

	switch src.Type() {
	case gocv.MatTypeCV8UC1:
		img := image.NewGray(image.Rect(0, 0, cols, rows))
		copy(img.Pix, data)
		return img, nil
	case gocv.MatTypeCV8UC3:
		img := image.NewRGBA(image.Rect(0, 0, cols, rows))
		for i, j := 0, 0; i+2 < len(data); i, j = i+3, j+4 {
			img.Pix[j] = data[i+2]
			img.Pix[j+1] = data[i+1]
			img.Pix[j+2] = data[i]
			img.Pix[j+3] = 255
		}
		return img, nil
	case gocv.MatTypeCV8UC4:
		img := image.NewRGBA(image.Rect(0, 0, cols, rows))
		for i := 0; i+3 < len(data); i += 4 {
			img.Pix[i] = data[i+2]
			img.Pix[i+1] = data[i+1]
			img.Pix[i+2] = data[i]
			img.Pix[i+3] = data[i+3]
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported Mat type for image conversion: %v", src.Type())
	}
}
