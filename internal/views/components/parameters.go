package components

import (
	"fmt"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

var (
	kernelSizes  = []string{"1", "3", "5", "7", "9", "11", "15"}
	kernelShapes = []string{"rect", "ellipse", "cross"}
)

// ParameterPanel exposes the segmentation parameters as sliders and selects.
// Values are reported with the same keys the algorithm parameter map uses.
type ParameterPanel struct {
	container *fyne.Container

	threshSlider    *widget.Slider
	threshLabel     *widget.Label
	threshPreSlider *widget.Slider
	threshPreLabel  *widget.Label
	dilateSlider    *widget.Slider
	dilateLabel     *widget.Label
	kernelSelect    *widget.Select
	shapeSelect     *widget.Select
	resetButton     *widget.Button

	changeHandler func(name string, value interface{})
	resetHandler  func()
	updating      bool
}

// NewParameterPanel creates a new parameter panel
func NewParameterPanel() *ParameterPanel {
	pp := &ParameterPanel{}
	pp.createComponents()
	pp.buildLayout()
	return pp
}

func (pp *ParameterPanel) createComponents() {
	pp.threshLabel = widget.NewLabel("")
	pp.threshSlider = widget.NewSlider(0.01, 1)
	pp.threshSlider.Step = 0.01
	pp.threshSlider.OnChanged = func(v float64) {
		pp.threshLabel.SetText(fmt.Sprintf("Foreground threshold: %.2f", v))
		pp.notify("thresh", v)
	}

	pp.threshPreLabel = widget.NewLabel("")
	pp.threshPreSlider = widget.NewSlider(1, 255)
	pp.threshPreSlider.Step = 1
	pp.threshPreSlider.OnChanged = func(v float64) {
		pp.threshPreLabel.SetText(fmt.Sprintf("Binary threshold: %.0f", v))
		pp.notify("thresh_pre", v)
	}

	pp.dilateLabel = widget.NewLabel("")
	pp.dilateSlider = widget.NewSlider(1, 10)
	pp.dilateSlider.Step = 1
	pp.dilateSlider.OnChanged = func(v float64) {
		pp.dilateLabel.SetText(fmt.Sprintf("Dilate iterations: %.0f", v))
		pp.notify("dilate_iterations", int(v))
	}

	pp.kernelSelect = widget.NewSelect(kernelSizes, func(s string) {
		pp.notify("kernel", s+"x"+s)
	})
	pp.shapeSelect = widget.NewSelect(kernelShapes, func(s string) {
		pp.notify("kernel_shape", s)
	})

	pp.resetButton = widget.NewButton("Reset to defaults", func() {
		if pp.resetHandler != nil {
			pp.resetHandler()
		}
	})
}

func (pp *ParameterPanel) buildLayout() {
	pp.container = container.NewVBox(
		widget.NewLabelWithStyle("Parameters", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		pp.threshPreLabel, pp.threshPreSlider,
		pp.dilateLabel, pp.dilateSlider,
		pp.threshLabel, pp.threshSlider,
		container.NewGridWithColumns(2,
			widget.NewLabel("Kernel"), pp.kernelSelect,
			widget.NewLabel("Shape"), pp.shapeSelect,
		),
		pp.resetButton,
	)
}

func (pp *ParameterPanel) notify(name string, value interface{}) {
	if pp.updating || pp.changeHandler == nil {
		return
	}
	pp.changeHandler(name, value)
}

// SetParameterChangeHandler sets the callback for user edits
func (pp *ParameterPanel) SetParameterChangeHandler(handler func(name string, value interface{})) {
	pp.changeHandler = handler
}

func (pp *ParameterPanel) SetResetHandler(handler func()) {
	pp.resetHandler = handler
}

// UpdateParameters shows params without reporting them back as edits.
// Kernel is expected in "WxH" form; only square kernels are selectable.
func (pp *ParameterPanel) UpdateParameters(params map[string]interface{}) {
	pp.updating = true
	defer func() { pp.updating = false }()

	if v, ok := params["thresh"].(float64); ok {
		pp.threshSlider.SetValue(v)
		pp.threshLabel.SetText(fmt.Sprintf("Foreground threshold: %.2f", v))
	}
	if v, ok := params["thresh_pre"].(float64); ok {
		pp.threshPreSlider.SetValue(v)
		pp.threshPreLabel.SetText(fmt.Sprintf("Binary threshold: %.0f", v))
	}
	if v, ok := params["dilate_iterations"].(int); ok {
		pp.dilateSlider.SetValue(float64(v))
		pp.dilateLabel.SetText(fmt.Sprintf("Dilate iterations: %d", v))
	}
	if v, ok := params["kernel"].(string); ok {
		var w, h int
		if _, err := fmt.Sscanf(v, "%dx%d", &w, &h); err == nil && w == h {
			pp.kernelSelect.SetSelected(strconv.Itoa(w))
		}
	}
	if v, ok := params["kernel_shape"].(string); ok {
		pp.shapeSelect.SetSelected(v)
	}
}

// Values returns the current control state keyed like the algorithm parameter map
func (pp *ParameterPanel) Values() map[string]interface{} {
	values := map[string]interface{}{
		"thresh":            pp.threshSlider.Value,
		"thresh_pre":        pp.threshPreSlider.Value,
		"dilate_iterations": int(pp.dilateSlider.Value),
	}
	if k := pp.kernelSelect.Selected; k != "" {
		values["kernel"] = k + "x" + k
	}
	if s := pp.shapeSelect.Selected; s != "" {
		values["kernel_shape"] = s
	}
	return values
}

func (pp *ParameterPanel) ResetButton() *widget.Button {
	return pp.resetButton
}

func (pp *ParameterPanel) GetContainer() *fyne.Container {
	return pp.container
}
