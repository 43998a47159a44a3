package memory

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"watershed-segmenter/internal/logger"
)

type AllocationInfo struct {
	ID          uint64
	Size        int64
	Tag         string
	AllocatedAt time.Time
}

type Stats struct {
	TotalAllocated   int64
	TotalDeallocated int64
	CurrentlyActive  int64
	AllocationCount  int64
	UntrackedCount   int64
}

// Tracker records every safe.Mat created with it so leaked OpenCV buffers can be reported.
type Tracker struct {
	allocations  map[uint64]AllocationInfo
	mu           sync.RWMutex
	logger       logger.Logger
	totalAlloc   int64
	totalDealloc int64
	allocCount   int64
	untracked    int64
}

func NewTracker(log logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Tracker{
		allocations: make(map[uint64]AllocationInfo),
		logger:      log,
	}
}

func (mt *Tracker) TrackAllocation(id uint64, size int64, tag string) {
	atomic.AddInt64(&mt.totalAlloc, size)
	atomic.AddInt64(&mt.allocCount, 1)

	mt.mu.Lock()
	mt.allocations[id] = AllocationInfo{
		ID:          id,
		Size:        size,
		Tag:         tag,
		AllocatedAt: time.Now(),
	}
	mt.mu.Unlock()
}

func (mt *Tracker) TrackDeallocation(id uint64, tag string) {
	mt.mu.Lock()
	info, exists := mt.allocations[id]
	if exists {
		delete(mt.allocations, id)
	}
	mt.mu.Unlock()

	if !exists {
		atomic.AddInt64(&mt.untracked, 1)
		mt.logger.Warning("MemoryTracker", "release of untracked Mat", map[string]interface{}{
			"id":  id,
			"tag": tag,
		})
		return
	}

	atomic.AddInt64(&mt.totalDealloc, info.Size)
}

func (mt *Tracker) Stats() Stats {
	mt.mu.RLock()
	active := int64(len(mt.allocations))
	mt.mu.RUnlock()

	return Stats{
		TotalAllocated:   atomic.LoadInt64(&mt.totalAlloc),
		TotalDeallocated: atomic.LoadInt64(&mt.totalDealloc),
		CurrentlyActive:  active,
		AllocationCount:  atomic.LoadInt64(&mt.allocCount),
		UntrackedCount:   atomic.LoadInt64(&mt.untracked),
	}
}

// Active lists live allocations, oldest first.
func (mt *Tracker) Active() []AllocationInfo {
	mt.mu.RLock()
	result := make([]AllocationInfo, 0, len(mt.allocations))
	for _, info := range mt.allocations {
		result = append(result, info)
	}
	mt.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// ReportLeaks logs each live allocation and returns how many there were.
func (mt *Tracker) ReportLeaks() int {
	stats := mt.Stats()
	mt.logger.Debug("MemoryTracker", "allocation summary", map[string]interface{}{
		"allocations":     stats.AllocationCount,
		"bytes_allocated": stats.TotalAllocated,
		"active":          stats.CurrentlyActive,
		"untracked":       stats.UntrackedCount,
	})

	active := mt.Active()
	for _, info := range active {
		mt.logger.Warning("MemoryTracker", "Mat still allocated", map[string]interface{}{
			"id":    info.ID,
			"tag":   info.Tag,
			"bytes": info.Size,
			"age":   time.Since(info.AllocatedAt).String(),
		})
	}
	return len(active)
}
