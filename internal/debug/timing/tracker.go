package timing

import (
	"context"
	"sort"
	"sync"
	"time"
)

type timingKey struct{}

type TimingInfo struct {
	Operation string
	StartTime time.Time
}

// Stat aggregates every recorded duration of one operation.
type Stat struct {
	Operation string
	Count     int
	Total     time.Duration
	Average   time.Duration
	Max       time.Duration
}

type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
	enabled bool
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		enabled: true,
	}
}

func (tt *Tracker) StartTiming(operation string) context.Context {
	tt.mu.RLock()
	enabled := tt.enabled
	tt.mu.RUnlock()

	if !enabled {
		return context.Background()
	}

	return context.WithValue(context.Background(), timingKey{}, TimingInfo{
		Operation: operation,
		StartTime: time.Now(),
	})
}

func (tt *Tracker) EndTiming(ctx context.Context) {
	timingInfo, ok := ctx.Value(timingKey{}).(TimingInfo)
	if !ok {
		return
	}

	tt.Record(timingInfo.Operation, time.Since(timingInfo.StartTime))
}

// Record adds a duration measured elsewhere.
func (tt *Tracker) Record(operation string, d time.Duration) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if !tt.enabled {
		return
	}
	tt.timings[operation] = append(tt.timings[operation], d)
}

// Summary returns one Stat per operation, sorted by name.
func (tt *Tracker) Summary() []Stat {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	stats := make([]Stat, 0, len(tt.timings))
	for op, durations := range tt.timings {
		s := Stat{Operation: op, Count: len(durations)}
		for _, d := range durations {
			s.Total += d
			if d > s.Max {
				s.Max = d
			}
		}
		if s.Count > 0 {
			s.Average = s.Total / time.Duration(s.Count)
		}
		stats = append(stats, s)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Operation < stats[j].Operation })
	return stats
}

// SetEnabled turns recording on or off; StartTiming is free while disabled.
func (tt *Tracker) SetEnabled(enabled bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.enabled = enabled
}

// Reset drops the durations of operation, or of every operation when it is empty.
func (tt *Tracker) Reset(operation string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if operation == "" {
		tt.timings = make(map[string][]time.Duration)
	} else {
		delete(tt.timings, operation)
	}
}
