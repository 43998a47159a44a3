package components

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Toolbar holds the open, segment and save actions
type Toolbar struct {
	container     *fyne.Container
	openButton    *widget.Button
	segmentButton *widget.Button
	saveButton    *widget.Button
	formatSelect  *widget.Select

	openHandler    func()
	segmentHandler func()
	saveHandler    func(format string)
}

// NewToolbar creates a new toolbar component
func NewToolbar() *Toolbar {
	t := &Toolbar{}
	t.createComponents()
	t.buildLayout()
	return t
}

func (t *Toolbar) createComponents() {
	t.openButton = widget.NewButton("Open Image", func() {
		if t.openHandler != nil {
			t.openHandler()
		}
	})
	t.openButton.Importance = widget.HighImportance

	t.segmentButton = widget.NewButton("Segment", func() {
		if t.segmentHandler != nil {
			t.segmentHandler()
		}
	})
	t.segmentButton.Importance = widget.HighImportance
	t.segmentButton.Disable()

	t.formatSelect = widget.NewSelect([]string{"png", "jpeg", "tiff", "bmp"}, nil)
	t.formatSelect.SetSelected("png")

	t.saveButton = widget.NewButton("Save All", func() {
		if t.saveHandler != nil {
			t.saveHandler(t.formatSelect.Selected)
		}
	})
	t.saveButton.Disable()
}

func (t *Toolbar) buildLayout() {
	t.container = container.NewHBox(
		t.openButton,
		widget.NewSeparator(),
		t.segmentButton,
		widget.NewSeparator(),
		t.formatSelect,
		t.saveButton,
	)
}

func (t *Toolbar) SetOpenHandler(handler func()) {
	t.openHandler = handler
}

func (t *Toolbar) SetSegmentHandler(handler func()) {
	t.segmentHandler = handler
}

func (t *Toolbar) SetSaveHandler(handler func(format string)) {
	t.saveHandler = handler
}

// SetImageLoaded enables segmentation once an image is available
func (t *Toolbar) SetImageLoaded(loaded bool) {
	setEnabled(t.segmentButton, loaded)
}

// SetResultAvailable enables saving once a segmentation has finished
func (t *Toolbar) SetResultAvailable(available bool) {
	setEnabled(t.saveButton, available)
}

// SetBusy locks every action while a segmentation runs
func (t *Toolbar) SetBusy(busy bool) {
	setEnabled(t.openButton, !busy)
	setEnabled(t.segmentButton, !busy)
}

func (t *Toolbar) SegmentEnabled() bool {
	return !t.segmentButton.Disabled()
}

func (t *Toolbar) SaveEnabled() bool {
	return !t.saveButton.Disabled()
}

func (t *Toolbar) GetContainer() *fyne.Container {
	return t.container
}

func setEnabled(w fyne.Disableable, enabled bool) {
	if enabled {
		w.Enable()
	} else {
		w.Disable()
	}
}
