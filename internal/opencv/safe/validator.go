package safe

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrInvalidInput marks image preconditions that would otherwise abort inside OpenCV.
var ErrInvalidInput = errors.New("invalid input")

func ValidateMatForOperation(mat *Mat, operation string) error {
	if mat == nil {
		return fmt.Errorf("%w: Mat is nil for operation: %s", ErrInvalidInput, operation)
	}

	if !mat.IsValid() {
		return fmt.Errorf("%w: Mat is closed for operation: %s", ErrInvalidInput, operation)
	}

	if mat.Empty() {
		return fmt.Errorf("%w: Mat is empty for operation: %s", ErrInvalidInput, operation)
	}

	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("%w: Mat has invalid dimensions %dx%d for operation: %s",
			ErrInvalidInput, mat.Cols(), mat.Rows(), operation)
	}

	return nil
}

func ValidateMatType(mat *Mat, want gocv.MatType, operation string) error {
	if err := ValidateMatForOperation(mat, operation); err != nil {
		return err
	}

	if got := mat.Type(); got != want {
		return fmt.Errorf("%w: %s requires Mat type %v, got %v", ErrInvalidInput, operation, want, got)
	}

	return nil
}

// ValidateSameSize requires a and b to share spatial dimensions.
func ValidateSameSize(a, b *Mat, operation string) error {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return fmt.Errorf("%w: %s requires matching sizes, got %dx%d and %dx%d",
			ErrInvalidInput, operation, a.Cols(), a.Rows(), b.Cols(), b.Rows())
	}
	return nil
}

// ValidateSegmentationInputs checks the grayscale/original pair fed to watershed:
// 8-bit single channel, 8-bit three channel, same size.
func ValidateSegmentationInputs(gray, original *Mat) error {
	if err := ValidateMatType(gray, gocv.MatTypeCV8UC1, "watershed grayscale input"); err != nil {
		return err
	}

	if err := ValidateMatType(original, gocv.MatTypeCV8UC3, "watershed original input"); err != nil {
		return err
	}

	return ValidateSameSize(gray, original, "watershed")
}

func ValidateDimensions(width, height int, operation string) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d for operation: %s", ErrInvalidInput, width, height, operation)
	}

	if width > 32768 || height > 32768 {
		return fmt.Errorf("%w: dimensions %dx%d exceed maximum size for operation: %s", ErrInvalidInput, width, height, operation)
	}

	return nil
}
