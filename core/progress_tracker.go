package core

import (
	"sync"
	"time"
)

// ProgressInfo is a snapshot of a download in progress.
type ProgressInfo struct {
	// Total bytes to download (0 if unknown)
	Total int64
	// Downloaded bytes so far, including any resumed prefix
	Downloaded int64
	// Percent complete (0-100), or -1 if Total is unknown
	Percent float64
	// SpeedBytesPerSec is an exponential moving average of throughput
	SpeedBytesPerSec float64
	// ETA is the estimated time remaining (0 if unknown)
	ETA     time.Duration
	Elapsed time.Duration
}

// ProgressTracker accumulates download progress. It is safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	total      int64
	downloaded int64
	start      time.Time
	lastTime   time.Time
	lastBytes  int64
	speedAvg   float64
	now        func() time.Time
}

// speedAlpha weights the most recent sample in the moving average.
const speedAlpha = 0.3

// NewProgressTracker creates a tracker for total bytes (0 if unknown).
func NewProgressTracker(total int64) *ProgressTracker {
	return newProgressTrackerAt(total, time.Now)
}

func newProgressTrackerAt(total int64, now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{total: total, start: t, lastTime: t, now: now}
}

// SetDownloaded records bytes already present before this session (resume).
func (p *ProgressTracker) SetDownloaded(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.downloaded = n
	p.lastBytes = n
}

// Update adds n freshly downloaded bytes.
func (p *ProgressTracker) Update(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.downloaded += n
	now := p.now()
	if dt := now.Sub(p.lastTime).Seconds(); dt >= 0.2 {
		sample := float64(p.downloaded-p.lastBytes) / dt
		if p.speedAvg == 0 {
			p.speedAvg = sample
		} else {
			p.speedAvg = speedAlpha*sample + (1-speedAlpha)*p.speedAvg
		}
		p.lastTime = now
		p.lastBytes = p.downloaded
	}
}

// Downloaded returns the byte count so far.
func (p *ProgressTracker) Downloaded() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downloaded
}

// Progress returns a snapshot.
func (p *ProgressTracker) Progress() ProgressInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := ProgressInfo{
		Total:            p.total,
		Downloaded:       p.downloaded,
		Percent:          -1,
		SpeedBytesPerSec: p.speedAvg,
		Elapsed:          p.now().Sub(p.start),
	}
	if p.total > 0 {
		info.Percent = float64(p.downloaded) / float64(p.total) * 100
		if info.Percent > 100 {
			info.Percent = 100
		}
		if remaining := p.total - p.downloaded; remaining > 0 && p.speedAvg > 0 {
			info.ETA = time.Duration(float64(remaining) / p.speedAvg * float64(time.Second))
		}
	}
	return info
}
