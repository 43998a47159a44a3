package safe

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type recordingTracker struct {
	mu        sync.Mutex
	allocated map[uint64]int64
	released  []uint64
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{allocated: make(map[uint64]int64)}
}

func (r *recordingTracker) TrackAllocation(id uint64, size int64, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allocated[id] = size
}

func (r *recordingTracker) TrackDeallocation(id uint64, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, id)
}

// blank returns a zero-filled Mat owned by the test.
func blank(t *testing.T, rows, cols int, typ gocv.MatType) *Mat {
	t.Helper()
	m, err := Adopt(gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, typ), nil, t.Name())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestAdoptTracksAndClosesOnce(t *testing.T) {
	tracker := newRecordingTracker()
	m, err := Adopt(gocv.NewMatWithSize(4, 5, gocv.MatTypeCV8UC3), tracker, "test")
	require.NoError(t, err)

	assert.Equal(t, int64(4*5*3), tracker.allocated[m.ID()])
	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 5, m.Cols())
	assert.Equal(t, 3, m.Channels())
	assert.Equal(t, "test", m.Tag())

	m.Close()
	m.Close()
	assert.Equal(t, []uint64{m.ID()}, tracker.released)
	assert.False(t, m.IsValid())
	assert.True(t, m.Empty())
	assert.Zero(t, m.Rows())
}

func TestAdoptTakesOwnership(t *testing.T) {
	raw := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV32SC1)
	m, err := Adopt(raw, nil, "adopted")
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.SetIntAt(1, 1, -1))
	v, err := m.GetIntAt(1, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), v)

	_, err = Adopt(gocv.NewMat(), nil, "empty")
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	m := blank(t, 3, 3, gocv.MatTypeCV8UC1)
	require.NoError(t, m.SetUCharAt(0, 0, 7))

	c, err := m.Clone()
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetUCharAt(0, 0, 9))

	v, _ := m.GetUCharAt(0, 0)
	assert.Equal(t, uint8(7), v)
	assert.NotEqual(t, m.ID(), c.ID())
}

func TestPixelAccessChecks(t *testing.T) {
	m := blank(t, 2, 2, gocv.MatTypeCV8UC3)

	require.NoError(t, m.SetUCharAt3(1, 0, 2, 200))
	v, err := m.GetUCharAt3(1, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, uint8(200), v)

	_, err = m.GetUCharAt3(1, 0, 3)
	assert.Error(t, err)
	_, err = m.GetUCharAt(2, 0)
	assert.Error(t, err)
	_, err = m.GetIntAt(0, 0)
	assert.Error(t, err, "wrong type")
	_, err = m.GetFloatAt(0, 0)
	assert.Error(t, err, "wrong type")
}

func TestClosedMatErrors(t *testing.T) {
	m := blank(t, 2, 2, gocv.MatTypeCV8UC1)
	m.Close()

	_, err := m.Clone()
	assert.True(t, errors.Is(err, ErrClosedMat))
	_, err = m.ToBytes()
	assert.True(t, errors.Is(err, ErrClosedMat))
	_, err = m.GetUCharAt(0, 0)
	assert.True(t, errors.Is(err, ErrClosedMat))
}

func TestSetToWithMask(t *testing.T) {
	m := blank(t, 3, 4, gocv.MatTypeCV8UC3)

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 3, 4, gocv.MatTypeCV8UC1)
	defer mask.Close()
	mask.SetUCharAt(1, 2, 255)
	mask.SetUCharAt(2, 0, 255)

	require.NoError(t, m.SetToWithMask(gocv.NewScalar(0, 0, 255, 0), mask))

	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			want := [3]uint8{}
			if (row == 1 && col == 2) || (row == 2 && col == 0) {
				want = [3]uint8{0, 0, 255}
			}
			var got [3]uint8
			for ch := range got {
				v, err := m.GetUCharAt3(row, col, ch)
				require.NoError(t, err)
				got[ch] = v
			}
			assert.Equal(t, want, got, "pixel (%d,%d)", col, row)
		}
	}

	small := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC1)
	defer small.Close()
	assert.ErrorIs(t, m.SetToWithMask(gocv.NewScalar(0, 0, 0, 0), small), ErrInvalidInput)

	m.Close()
	assert.ErrorIs(t, m.SetToWithMask(gocv.NewScalar(0, 0, 0, 0), mask), ErrClosedMat)
}

func TestValidators(t *testing.T) {
	gray := blank(t, 4, 4, gocv.MatTypeCV8UC1)
	bgr := blank(t, 4, 4, gocv.MatTypeCV8UC3)
	small := blank(t, 2, 4, gocv.MatTypeCV8UC3)

	assert.NoError(t, ValidateSegmentationInputs(gray, bgr))
	assert.ErrorIs(t, ValidateSegmentationInputs(bgr, bgr), ErrInvalidInput)
	assert.ErrorIs(t, ValidateSegmentationInputs(gray, gray), ErrInvalidInput)
	assert.ErrorIs(t, ValidateSegmentationInputs(gray, small), ErrInvalidInput)
	assert.ErrorIs(t, ValidateMatForOperation(nil, "nil"), ErrInvalidInput)

	assert.NoError(t, ValidateDimensions(10, 10, "dims"))
	assert.ErrorIs(t, ValidateDimensions(0, 10, "dims"), ErrInvalidInput)
	assert.ErrorIs(t, ValidateDimensions(40000, 10, "dims"), ErrInvalidInput)
}
