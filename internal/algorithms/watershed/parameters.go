package watershed

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

// ErrInvalidParameters wraps every parameter validation failure.
var ErrInvalidParameters = errors.New("invalid parameters")

// KernelShape selects the structuring element used for the background dilation.
type KernelShape string

const (
	KernelRect    KernelShape = "rect"
	KernelEllipse KernelShape = "ellipse"
	KernelCross   KernelShape = "cross"
)

func (k KernelShape) morphShape() (gocv.MorphShape, error) {
	switch k {
	case KernelRect, "":
		return gocv.MorphRect, nil
	case KernelEllipse:
		return gocv.MorphEllipse, nil
	case KernelCross:
		return gocv.MorphCross, nil
	default:
		return gocv.MorphRect, fmt.Errorf("%w: unknown kernel shape %q", ErrInvalidParameters, string(k))
	}
}

// Parameters tune the marker construction. The zero value is not usable; start from DefaultParameters.
type Parameters struct {
	// Thresh is the fraction of the maximum normalised distance above which a pixel is sure foreground.
	Thresh float64 `yaml:"thresh"`
	// Kernel is the structuring element size, X columns by Y rows.
	Kernel      image.Point `yaml:"-"`
	KernelShape KernelShape `yaml:"kernel_shape"`
	// ThreshPre is the binary threshold applied to the grayscale input.
	ThreshPre        float64 `yaml:"thresh_pre"`
	DilateIterations int     `yaml:"dilate_iterations"`
}

func DefaultParameters() Parameters {
	return Parameters{
		Thresh:           0.20,
		Kernel:           image.Pt(3, 3),
		KernelShape:      KernelRect,
		ThreshPre:        30,
		DilateIterations: 3,
	}
}

func (p Parameters) Validate() error {
	if p.Thresh <= 0 || p.Thresh > 1 {
		return fmt.Errorf("%w: thresh must be in (0,1], got %g", ErrInvalidParameters, p.Thresh)
	}

	if p.Kernel.X <= 0 || p.Kernel.Y <= 0 {
		return fmt.Errorf("%w: kernel must be positive, got %dx%d", ErrInvalidParameters, p.Kernel.X, p.Kernel.Y)
	}

	if p.ThreshPre <= 0 || p.ThreshPre > 255 {
		return fmt.Errorf("%w: thresh_pre must be in (0,255], got %g", ErrInvalidParameters, p.ThreshPre)
	}

	if p.DilateIterations <= 0 {
		return fmt.Errorf("%w: dilate_iterations must be positive, got %d", ErrInvalidParameters, p.DilateIterations)
	}

	if _, err := p.KernelShape.morphShape(); err != nil {
		return err
	}

	return nil
}

func (p Parameters) KernelString() string {
	return fmt.Sprintf("%dx%d", p.Kernel.X, p.Kernel.Y)
}

// ParseKernel accepts "WxH" or a single size "N" meaning NxN.
func ParseKernel(s string) (image.Point, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return image.Point{}, fmt.Errorf("%w: empty kernel size", ErrInvalidParameters)
	}

	parts := strings.Split(s, "x")
	if len(parts) > 2 {
		return image.Point{}, fmt.Errorf("%w: kernel %q is not WxH", ErrInvalidParameters, s)
	}

	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return image.Point{}, fmt.Errorf("%w: kernel width %q: %v", ErrInvalidParameters, parts[0], err)
	}
	h := w
	if len(parts) == 2 {
		h, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return image.Point{}, fmt.Errorf("%w: kernel height %q: %v", ErrInvalidParameters, parts[1], err)
		}
	}

	if w <= 0 || h <= 0 {
		return image.Point{}, fmt.Errorf("%w: kernel must be positive, got %dx%d", ErrInvalidParameters, w, h)
	}

	return image.Pt(w, h), nil
}

// ToMap exposes the parameters in the map form used by algorithms.Algorithm.
func (p Parameters) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"thresh":            p.Thresh,
		"kernel":            p.KernelString(),
		"kernel_shape":      string(p.KernelShape),
		"thresh_pre":        p.ThreshPre,
		"dilate_iterations": p.DilateIterations,
	}
}

// ParametersFromMap overlays recognised keys onto the defaults. Unknown keys are ignored.
func ParametersFromMap(params map[string]interface{}) (Parameters, error) {
	p := DefaultParameters()

	if v, ok := params["thresh"]; ok {
		f, err := toFloat(v)
		if err != nil {
			return p, fmt.Errorf("%w: thresh: %v", ErrInvalidParameters, err)
		}
		p.Thresh = f
	}

	if v, ok := params["thresh_pre"]; ok {
		f, err := toFloat(v)
		if err != nil {
			return p, fmt.Errorf("%w: thresh_pre: %v", ErrInvalidParameters, err)
		}
		p.ThreshPre = f
	}

	if v, ok := params["dilate_iterations"]; ok {
		n, err := toInt(v)
		if err != nil {
			return p, fmt.Errorf("%w: dilate_iterations: %v", ErrInvalidParameters, err)
		}
		p.DilateIterations = n
	}

	if v, ok := params["kernel"]; ok {
		switch k := v.(type) {
		case string:
			pt, err := ParseKernel(k)
			if err != nil {
				return p, err
			}
			p.Kernel = pt
		case image.Point:
			p.Kernel = k
		case int:
			p.Kernel = image.Pt(k, k)
		default:
			return p, fmt.Errorf("%w: kernel has unsupported type %T", ErrInvalidParameters, v)
		}
	}

	if v, ok := params["kernel_shape"]; ok {
		s, ok := v.(string)
		if !ok {
			return p, fmt.Errorf("%w: kernel_shape has unsupported type %T", ErrInvalidParameters, v)
		}
		p.KernelShape = KernelShape(strings.ToLower(s))
	}

	return p, p.Validate()
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// toInt accepts any numeric form of a whole number; fractional values are rejected.
func toInt(v interface{}) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not a whole number", v)
	}
	return int(f), nil
}
