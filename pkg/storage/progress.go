package storage

import (
	"io"
	"sync"
	"time"
)

// Progress is a snapshot of a transfer.
type Progress struct {
	TotalBytes     int64
	ProcessedBytes int64
	StartTime      time.Time
	ElapsedTime    time.Duration
	AverageSpeed   float64 // bytes per second
	EstimatedTime  time.Duration
}

// ProgressCallback receives progress snapshots.
type ProgressCallback func(Progress)

// ProgressTracker accumulates bytes from concurrent workers and reports at
// most once per update interval, plus once on Complete.
type ProgressTracker struct {
	mu             sync.Mutex
	totalBytes     int64
	processedBytes int64
	startTime      time.Time
	lastUpdate     time.Time
	callback       ProgressCallback
	updateInterval time.Duration
	now            func() time.Time
}

// NewProgressTracker creates a new progress tracker. A nil callback makes
// every method a no-op.
func NewProgressTracker(totalBytes int64, callback ProgressCallback) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		totalBytes:     totalBytes,
		startTime:      now,
		lastUpdate:     now,
		callback:       callback,
		updateInterval: 100 * time.Millisecond,
		now:            time.Now,
	}
}

// AddBytes adds to the processed bytes count
func (pt *ProgressTracker) AddBytes(n int64) {
	if pt == nil || pt.callback == nil {
		return
	}

	pt.mu.Lock()
	pt.processedBytes += n
	now := pt.now()
	if now.Sub(pt.lastUpdate) < pt.updateInterval {
		pt.mu.Unlock()
		return
	}
	pt.lastUpdate = now
	p := pt.snapshot(now)
	pt.mu.Unlock()

	pt.callback(p)
}

// Complete reports the transfer as finished.
func (pt *ProgressTracker) Complete() {
	if pt == nil || pt.callback == nil {
		return
	}

	pt.mu.Lock()
	pt.processedBytes = pt.totalBytes
	p := pt.snapshot(pt.now())
	pt.mu.Unlock()

	pt.callback(p)
}

func (pt *ProgressTracker) snapshot(now time.Time) Progress {
	elapsed := now.Sub(pt.startTime)

	averageSpeed := float64(0)
	if s := elapsed.Seconds(); s > 0 {
		averageSpeed = float64(pt.processedBytes) / s
	}

	estimated := time.Duration(0)
	if averageSpeed > 0 && pt.totalBytes > 0 {
		remaining := pt.totalBytes - pt.processedBytes
		estimated = time.Duration(float64(remaining) / averageSpeed * float64(time.Second))
	}

	return Progress{
		TotalBytes:     pt.totalBytes,
		ProcessedBytes: pt.processedBytes,
		StartTime:      pt.startTime,
		ElapsedTime:    elapsed,
		AverageSpeed:   averageSpeed,
		EstimatedTime:  estimated,
	}
}

// ProgressReader wraps a reader to track progress
type ProgressReader struct {
	reader  io.Reader
	tracker *ProgressTracker
}

// NewProgressReader creates a new progress reader
func NewProgressReader(reader io.Reader, tracker *ProgressTracker) *ProgressReader {
	return &ProgressReader{
		reader:  reader,
		tracker: tracker,
	}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.tracker.AddBytes(int64(n))
	}
	return n, err
}
