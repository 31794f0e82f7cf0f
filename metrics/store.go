package metrics

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity is how many recent predictions a Store retains.
const DefaultHistoryCapacity = 100

// Store aggregates prediction outcomes and the latest GPU sample. The
// recent history is a fixed-size ring; totals cover the whole process.
//
//	store := metrics.NewStore(metrics.StoreConfig{Version: core.Version}, time.Now())
//	store.Record(rec)
//	snap := store.Snapshot(10)
type Store struct {
	mu sync.RWMutex

	history []PredictionRecord
	head    int
	size    int

	total      int64
	succeeded  int64
	failed     int64
	totalTime  time.Duration
	maxTime    time.Duration
	byStyle    map[string]*styleStats
	failuresBy map[string]int64
	gpu        GPUMetrics
	gpuSampled bool
	startTime  time.Time
	version    string
}

type styleStats struct {
	count     int64
	succeeded int64
	totalTime time.Duration
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// HistoryCapacity is the number of recent predictions kept (default 100)
	HistoryCapacity int
	Version         string
}

// NewStore creates a store. startTime is the reference for uptime.
func NewStore(cfg StoreConfig, startTime time.Time) *Store {
	capacity := cfg.HistoryCapacity
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &Store{
		history:    make([]PredictionRecord, capacity),
		byStyle:    make(map[string]*styleStats),
		failuresBy: make(map[string]int64),
		startTime:  startTime,
		version:    cfg.Version,
	}
}

// Record adds a finished prediction.
func (s *Store) Record(rec PredictionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = rec
	s.head = (s.head + 1) % len(s.history)
	if s.size < len(s.history) {
		s.size++
	}

	s.total++
	s.totalTime += rec.Duration
	if rec.Duration > s.maxTime {
		s.maxTime = rec.Duration
	}

	stats, ok := s.byStyle[rec.Style]
	if !ok {
		stats = &styleStats{}
		s.byStyle[rec.Style] = stats
	}
	stats.count++
	stats.totalTime += rec.Duration

	if rec.Status == StatusSucceeded {
		s.succeeded++
		stats.succeeded++
		return
	}
	s.failed++
	kind := rec.ErrorKind
	if kind == "" {
		kind = "unknown"
	}
	s.failuresBy[kind]++
}

// Recent returns up to limit of the most recent predictions, oldest first.
func (s *Store) Recent(limit int) []PredictionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(limit)
}

func (s *Store) recentLocked(limit int) []PredictionRecord {
	if limit <= 0 || s.size == 0 {
		return []PredictionRecord{}
	}
	if limit > s.size {
		limit = s.size
	}
	n := len(s.history)
	out := make([]PredictionRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.history[(s.head-limit+i+n)%n]
	}
	return out
}

// UpdateGPU stores the latest GPU sample.
func (s *Store) UpdateGPU(g GPUMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gpu = g
	s.gpuSampled = true
}

// GPU returns the latest GPU sample, if any was recorded.
func (s *Store) GPU() (GPUMetrics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gpu, s.gpuSampled
}

// Snapshot aggregates everything recorded so far, including up to recent
// history entries.
func (s *Store) Snapshot(recent int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version:       s.version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Total:         s.total,
		Succeeded:     s.succeeded,
		Failed:        s.failed,
		MaxDurationMS: durationMS(s.maxTime),
		ByStyle:       make(map[string]*StyleMetrics, len(s.byStyle)),
		FailuresBy:    make(map[string]int64, len(s.failuresBy)),
		Recent:        s.recentLocked(recent),
	}
	if s.total > 0 {
		snap.SuccessRate = float64(s.succeeded) / float64(s.total) * 100
		snap.AvgDurationMS = durationMS(s.totalTime / time.Duration(s.total))
	}
	for style, st := range s.byStyle {
		snap.ByStyle[style] = &StyleMetrics{
			Count:         st.count,
			SuccessRate:   float64(st.succeeded) / float64(st.count) * 100,
			AvgDurationMS: durationMS(st.totalTime / time.Duration(st.count)),
		}
	}
	for kind, n := range s.failuresBy {
		snap.FailuresBy[kind] = n
	}
	if s.gpuSampled {
		g := s.gpu
		snap.GPU = &g
	}
	return snap
}
