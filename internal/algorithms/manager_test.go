package algorithms

import (
	"context"
	"image"
	"image/color"
	"testing"

	"watershed-segmenter/internal/algorithms/watershed"
	"watershed-segmenter/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestManagerRegistersWatershed(t *testing.T) {
	m := NewManager(watershed.NewProcessor())

	assert.Equal(t, "Watershed", m.GetCurrentAlgorithm())
	assert.Equal(t, watershed.DefaultParameters().ToMap(), m.GetParameters("Watershed"))

	_, err := m.GetAlgorithm("Otsu")
	assert.Error(t, err)
}

func TestManagerSetParameterValidates(t *testing.T) {
	m := NewManager(watershed.NewProcessor())

	require.NoError(t, m.SetParameter("Watershed", "thresh", 0.35))
	assert.Equal(t, 0.35, m.GetParameters("Watershed")["thresh"])

	err := m.SetParameter("Watershed", "thresh", 1.5)
	assert.ErrorIs(t, err, watershed.ErrInvalidParameters)
	assert.Equal(t, 0.35, m.GetParameters("Watershed")["thresh"], "rejected value is not stored")

	require.NoError(t, m.ResetParameters("Watershed"))
	assert.Equal(t, 0.20, m.GetParameters("Watershed")["thresh"])

	assert.Error(t, m.SetParameter("Otsu", "thresh", 0.1))
}

func TestManagerProcessCurrent(t *testing.T) {
	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 0, 0, 0), 80, 80, gocv.MatTypeCV8UC1)
	gocv.Circle(&gray, image.Pt(40, 40), 20, color.RGBA{A: 255}, -1)
	input, err := safe.Adopt(gray, nil, "input")
	require.NoError(t, err)
	defer input.Close()

	m := NewManager(watershed.NewProcessor())
	out, err := m.ProcessCurrent(context.Background(), input)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, gocv.MatTypeCV8UC3, out.Type())
	assert.Equal(t, input.Rows(), out.Rows())

	require.NoError(t, m.SetParameter("Watershed", "thresh_pre", 255.0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.ProcessCurrent(ctx, input)
	assert.ErrorIs(t, err, context.Canceled)
}
