package components

import (
	"image"
	"image/color"
	"image/draw"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
)

const (
	ImageAreaWidth  = 600
	ImageAreaHeight = 450
)

var placeholderColor = color.RGBA{R: 240, G: 240, B: 240, A: 255}

// StageDisplay shows one tab per named image, in a fixed order
type StageDisplay struct {
	tabs   *container.AppTabs
	images map[string]*canvas.Image
	order  []string
	filled map[string]bool
}

// NewStageDisplay creates tabs for names, each holding a placeholder until set
func NewStageDisplay(names []string) *StageDisplay {
	sd := &StageDisplay{
		images: make(map[string]*canvas.Image, len(names)),
		filled: make(map[string]bool, len(names)),
		order:  append([]string(nil), names...),
	}

	items := make([]*container.TabItem, 0, len(names))
	for _, name := range names {
		img := canvas.NewImageFromImage(placeholder())
		img.FillMode = canvas.ImageFillContain
		img.ScaleMode = canvas.ImageScaleFastest
		img.SetMinSize(fyne.NewSize(ImageAreaWidth, ImageAreaHeight))
		sd.images[name] = img
		items = append(items, container.NewTabItem(name, img))
	}
	sd.tabs = container.NewAppTabs(items...)
	sd.tabs.SetTabLocation(container.TabLocationTop)

	return sd
}

func placeholder() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, ImageAreaWidth, ImageAreaHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(placeholderColor), image.Point{}, draw.Src)
	return img
}

// SetImage replaces the content of the named tab. Unknown names are ignored.
func (sd *StageDisplay) SetImage(name string, img image.Image) {
	c, ok := sd.images[name]
	if !ok || img == nil {
		return
	}
	c.Image = img
	c.Refresh()
	sd.filled[name] = true
}

// Select brings the named tab to the front
func (sd *StageDisplay) Select(name string) {
	for i, n := range sd.order {
		if n == name {
			sd.tabs.SelectIndex(i)
			return
		}
	}
}

// Clear restores every placeholder
func (sd *StageDisplay) Clear() {
	for name, c := range sd.images {
		c.Image = placeholder()
		c.Refresh()
		sd.filled[name] = false
	}
}

func (sd *StageDisplay) HasImage(name string) bool {
	return sd.filled[name]
}

func (sd *StageDisplay) Selected() string {
	if item := sd.tabs.Selected(); item != nil {
		return item.Text
	}
	return ""
}

func (sd *StageDisplay) TabCount() int {
	return len(sd.tabs.Items)
}

func (sd *StageDisplay) GetContainer() fyne.CanvasObject {
	return sd.tabs
}
