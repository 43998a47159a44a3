package views

import (
	"image"

	"watershed-segmenter/internal/algorithms/watershed"
	"watershed-segmenter/internal/views/components"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
)

// MainView is the viewer window: toolbar on top, parameters on the left,
// one tab per segmentation stage in the centre and a status bar below.
type MainView struct {
	window        fyne.Window
	mainContainer *fyne.Container
	toolbar       *components.Toolbar
	paramPanel    *components.ParameterPanel
	stages        *components.StageDisplay
	statusBar     *components.StatusBar
}

// NewMainView creates the view and sets it as the window content
func NewMainView(window fyne.Window) *MainView {
	names := make([]string, len(watershed.Stages))
	for i, s := range watershed.Stages {
		names[i] = string(s)
	}

	mv := &MainView{
		window:     window,
		toolbar:    components.NewToolbar(),
		paramPanel: components.NewParameterPanel(),
		stages:     components.NewStageDisplay(names),
		statusBar:  components.NewStatusBar(),
	}

	mv.mainContainer = container.NewBorder(
		mv.toolbar.GetContainer(),
		mv.statusBar.GetContainer(),
		mv.paramPanel.GetContainer(),
		nil,
		mv.stages.GetContainer(),
	)
	window.SetContent(mv.mainContainer)

	return mv
}

// Event handler setters, called by the controller

func (mv *MainView) SetOpenHandler(handler func()) {
	mv.toolbar.SetOpenHandler(handler)
}

func (mv *MainView) SetSegmentHandler(handler func()) {
	mv.toolbar.SetSegmentHandler(handler)
}

func (mv *MainView) SetSaveHandler(handler func(format string)) {
	mv.toolbar.SetSaveHandler(handler)
}

func (mv *MainView) SetParameterChangeHandler(handler func(name string, value interface{})) {
	mv.paramPanel.SetParameterChangeHandler(handler)
}

func (mv *MainView) SetParameterResetHandler(handler func()) {
	mv.paramPanel.SetResetHandler(handler)
}

// UI update methods; safe to call from any goroutine

// UpdateParameters shows the given parameter map in the panel
func (mv *MainView) UpdateParameters(params map[string]interface{}) {
	fyne.Do(func() {
		mv.paramPanel.UpdateParameters(params)
	})
}

// ShowOriginal places the loaded image in the segmented tab until a run replaces it
func (mv *MainView) ShowOriginal(img image.Image, width, height, channels int, format string) {
	fyne.Do(func() {
		mv.stages.Clear()
		mv.stages.SetImage(string(watershed.StageSegmented), img)
		mv.stages.Select(string(watershed.StageSegmented))
		mv.statusBar.SetImageInfo(width, height, channels, format)
		mv.toolbar.SetImageLoaded(true)
		mv.toolbar.SetResultAvailable(false)
	})
}

// ShowStages replaces every tab with the rendered outputs of a run
func (mv *MainView) ShowStages(images map[watershed.Stage]image.Image, regions, boundary int, degenerate bool) {
	fyne.Do(func() {
		for stage, img := range images {
			mv.stages.SetImage(string(stage), img)
		}
		mv.statusBar.SetRegionInfo(regions, boundary, degenerate)
		mv.toolbar.SetResultAvailable(true)
	})
}

func (mv *MainView) SetBusy(busy bool) {
	fyne.Do(func() {
		mv.toolbar.SetBusy(busy)
		mv.statusBar.SetBusy(busy)
	})
}

func (mv *MainView) UpdateStatus(status string) {
	fyne.Do(func() {
		mv.statusBar.SetStatus(status)
	})
}

// ShowError displays an error dialog
func (mv *MainView) ShowError(err error) {
	fyne.Do(func() {
		dialog.ShowError(err, mv.window)
	})
}

// ShowOpenDialog asks for an image file and passes its local path to callback
func (mv *MainView) ShowOpenDialog(callback func(path string)) {
	fyne.Do(func() {
		dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
			if err != nil {
				dialog.ShowError(err, mv.window)
				return
			}
			if reader == nil {
				return
			}
			path := reader.URI().Path()
			reader.Close()
			callback(path)
		}, mv.window)
	})
}

// ShowFolderDialog asks for an output directory
func (mv *MainView) ShowFolderDialog(callback func(dir string)) {
	fyne.Do(func() {
		dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
			if err != nil {
				dialog.ShowError(err, mv.window)
				return
			}
			if uri == nil {
				return
			}
			callback(uri.Path())
		}, mv.window)
	})
}

func (mv *MainView) GetWindow() fyne.Window {
	return mv.window
}

func (mv *MainView) GetToolbar() *components.Toolbar {
	return mv.toolbar
}

func (mv *MainView) GetParameterPanel() *components.ParameterPanel {
	return mv.paramPanel
}

func (mv *MainView) GetStageDisplay() *components.StageDisplay {
	return mv.stages
}

func (mv *MainView) GetStatusBar() *components.StatusBar {
	return mv.statusBar
}
