package components

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// StatusBar displays application status, image and region information
type StatusBar struct {
	container   *fyne.Container
	statusLabel *widget.Label
	imageInfo   *widget.Label
	regionInfo  *widget.Label
	activity    *widget.ProgressBarInfinite
}

// NewStatusBar creates a new status bar component
func NewStatusBar() *StatusBar {
	sb := &StatusBar{
		statusLabel: widget.NewLabel("Ready"),
		imageInfo:   widget.NewLabel("No image loaded"),
		regionInfo:  widget.NewLabel("Regions: --"),
		activity:    widget.NewProgressBarInfinite(),
	}
	sb.activity.Stop()
	sb.activity.Hide()

	sb.container = container.NewHBox(
		sb.statusLabel,
		widget.NewSeparator(),
		sb.imageInfo,
		widget.NewSeparator(),
		sb.regionInfo,
		sb.activity,
	)
	return sb
}

func (sb *StatusBar) SetStatus(status string) {
	sb.statusLabel.SetText(status)
}

func (sb *StatusBar) GetStatus() string {
	return sb.statusLabel.Text
}

func (sb *StatusBar) SetImageInfo(width, height, channels int, format string) {
	sb.imageInfo.SetText(fmt.Sprintf("Image: %dx%d, %d channels, %s", width, height, channels, format))
}

// SetRegionInfo shows the region count and boundary length of the last run
func (sb *StatusBar) SetRegionInfo(regions, boundary int, degenerate bool) {
	text := fmt.Sprintf("Regions: %d, boundary px: %d", regions, boundary)
	if degenerate {
		text += " (flat distance map)"
	}
	sb.regionInfo.SetText(text)
}

func (sb *StatusBar) GetRegionInfo() string {
	return sb.regionInfo.Text
}

// SetBusy shows or hides the activity indicator
func (sb *StatusBar) SetBusy(busy bool) {
	if busy {
		sb.activity.Show()
		sb.activity.Start()
		return
	}
	sb.activity.Stop()
	sb.activity.Hide()
}

func (sb *StatusBar) Reset() {
	sb.statusLabel.SetText("Ready")
	sb.imageInfo.SetText("No image loaded")
	sb.regionInfo.SetText("Regions: --")
	sb.SetBusy(false)
}

func (sb *StatusBar) GetContainer() *fyne.Container {
	return sb.container
}
