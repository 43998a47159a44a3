package safe

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// ErrClosedMat is returned by accessors once Close has run.
var ErrClosedMat = errors.New("mat is closed")

// MemoryTracker interface to avoid import cycles
type MemoryTracker interface {
	TrackAllocation(id uint64, size int64, tag string)
	TrackDeallocation(id uint64, tag string)
}

// Mat owns a gocv.Mat and guards it against use after Close.
type Mat struct {
	mat        gocv.Mat
	isValid    int32
	mu         sync.RWMutex
	id         uint64
	memTracker MemoryTracker
	tag        string
}

var nextMatID uint64

func NewMatFromMatWithTracker(srcMat gocv.Mat, memTracker MemoryTracker, tag string) (*Mat, error) {
	if srcMat.Empty() {
		return nil, fmt.Errorf("source Mat is empty")
	}

	clonedMat := srcMat.Clone()
	if clonedMat.Empty() {
		clonedMat.Close()
		return nil, fmt.Errorf("failed to clone Mat")
	}

	return wrap(clonedMat, memTracker, tag), nil
}

// Adopt takes ownership of mat without copying it. mat must not be closed by the caller afterwards.
func Adopt(mat gocv.Mat, memTracker MemoryTracker, tag string) (*Mat, error) {
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("cannot adopt empty Mat (%s)", tag)
	}
	return wrap(mat, memTracker, tag), nil
}

func wrap(mat gocv.Mat, memTracker MemoryTracker, tag string) *Mat {
	safeMat := &Mat{
		mat:        mat,
		isValid:    1,
		id:         atomic.AddUint64(&nextMatID, 1),
		memTracker: memTracker,
		tag:        tag,
	}

	if memTracker != nil {
		memTracker.TrackAllocation(safeMat.id, matSize(mat), tag)
	}

	// Set finalizer for cleanup if Close() is not called
	runtime.SetFinalizer(safeMat, (*Mat).finalize)

	return safeMat
}

func (sm *Mat) IsValid() bool {
	return atomic.LoadInt32(&sm.isValid) == 1
}

func (sm *Mat) Empty() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return true
	}

	return sm.mat.Empty()
}

func (sm *Mat) Rows() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Rows()
}

func (sm *Mat) Cols() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Cols()
}

func (sm *Mat) Channels() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}

	return sm.mat.Channels()
}

func (sm *Mat) Type() gocv.MatType {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return gocv.MatTypeCV8UC1
	}

	return sm.mat.Type()
}

func (sm *Mat) Tag() string {
	return sm.tag
}

func (sm *Mat) Clone() (*Mat, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return nil, ErrClosedMat
	}

	if sm.mat.Empty() {
		return nil, fmt.Errorf("cannot clone empty Mat")
	}

	return NewMatFromMatWithTracker(sm.mat, sm.memTracker, sm.tag+"_clone")
}

// SetToWithMask writes value into every pixel where mask is non-zero, under one write lock.
// mask must be CV_8UC1 with the same size as sm.
func (sm *Mat) SetToWithMask(value gocv.Scalar, mask gocv.Mat) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.IsValid() {
		return ErrClosedMat
	}

	if mask.Type() != gocv.MatTypeCV8UC1 || mask.Rows() != sm.mat.Rows() || mask.Cols() != sm.mat.Cols() {
		return fmt.Errorf("%w: mask %dx%d type %v does not fit %dx%d",
			ErrInvalidInput, mask.Cols(), mask.Rows(), mask.Type(), sm.mat.Cols(), sm.mat.Rows())
	}

	fill := gocv.NewMatWithSizeFromScalar(value, sm.mat.Rows(), sm.mat.Cols(), sm.mat.Type())
	defer fill.Close()
	fill.CopyToWithMask(&sm.mat, mask)
	return nil
}

// ToBytes returns a copy of the pixel buffer.
func (sm *Mat) ToBytes() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return nil, ErrClosedMat
	}

	return sm.mat.ToBytes(), nil
}

func (sm *Mat) checkPixel(row, col int) error {
	if !sm.IsValid() {
		return ErrClosedMat
	}

	if row < 0 || row >= sm.mat.Rows() || col < 0 || col >= sm.mat.Cols() {
		return fmt.Errorf("coordinates out of bounds: (%d,%d) for size %dx%d",
			col, row, sm.mat.Cols(), sm.mat.Rows())
	}

	return nil
}

func (sm *Mat) checkChannel(channel int) error {
	if channel < 0 || channel >= sm.mat.Channels() {
		return fmt.Errorf("channel out of bounds: %d for %d channels", channel, sm.mat.Channels())
	}
	return nil
}

func (sm *Mat) GetUCharAt(row, col int) (uint8, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkPixel(row, col); err != nil {
		return 0, err
	}

	return sm.mat.GetUCharAt(row, col), nil
}

func (sm *Mat) SetUCharAt(row, col int, value uint8) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.checkPixel(row, col); err != nil {
		return err
	}

	sm.mat.SetUCharAt(row, col, value)
	return nil
}

func (sm *Mat) GetUCharAt3(row, col, channel int) (uint8, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkPixel(row, col); err != nil {
		return 0, err
	}
	if err := sm.checkChannel(channel); err != nil {
		return 0, err
	}

	return sm.mat.GetUCharAt3(row, col, channel), nil
}

func (sm *Mat) SetUCharAt3(row, col, channel int, value uint8) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.checkPixel(row, col); err != nil {
		return err
	}
	if err := sm.checkChannel(channel); err != nil {
		return err
	}

	sm.mat.SetUCharAt3(row, col, channel, value)
	return nil
}

// GetIntAt reads a CV_32S sample, as used by marker maps.
func (sm *Mat) GetIntAt(row, col int) (int32, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkPixel(row, col); err != nil {
		return 0, err
	}
	if sm.mat.Type() != gocv.MatTypeCV32SC1 {
		return 0, fmt.Errorf("GetIntAt requires CV_32SC1, got %v", sm.mat.Type())
	}

	return sm.mat.GetIntAt(row, col), nil
}

func (sm *Mat) SetIntAt(row, col int, value int32) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.checkPixel(row, col); err != nil {
		return err
	}
	if sm.mat.Type() != gocv.MatTypeCV32SC1 {
		return fmt.Errorf("SetIntAt requires CV_32SC1, got %v", sm.mat.Type())
	}

	sm.mat.SetIntAt(row, col, value)
	return nil
}

// GetFloatAt reads a CV_32F sample, as used by the distance map.
func (sm *Mat) GetFloatAt(row, col int) (float32, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkPixel(row, col); err != nil {
		return 0, err
	}
	if sm.mat.Type() != gocv.MatTypeCV32FC1 {
		return 0, fmt.Errorf("GetFloatAt requires CV_32FC1, got %v", sm.mat.Type())
	}

	return sm.mat.GetFloatAt(row, col), nil
}

// GetMat exposes the wrapped gocv.Mat. It shares storage with sm and must not be closed.
func (sm *Mat) GetMat() gocv.Mat {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.mat
}

func (sm *Mat) ID() uint64 {
	return sm.id
}

func (sm *Mat) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		if sm.memTracker != nil {
			sm.memTracker.TrackDeallocation(sm.id, sm.tag)
		}

		sm.mat.Close()

		runtime.SetFinalizer(sm, nil)
	}
}

// finalize is called by Go's garbage collector as last resort cleanup
func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}

func matSize(mat gocv.Mat) int64 {
	return int64(mat.Total()) * int64(mat.ElemSize())
}
