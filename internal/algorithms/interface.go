package algorithms

import (
	"context"

	"watershed-segmenter/internal/opencv/safe"
)

// Algorithm is a single-input image operation configured through a parameter map.
type Algorithm interface {
	Process(ctx context.Context, input *safe.Mat, params map[string]interface{}) (*safe.Mat, error)
	ValidateParameters(params map[string]interface{}) error
	GetDefaultParameters() map[string]interface{}
	GetName() string
}
