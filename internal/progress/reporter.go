package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalHolders is the number of holders to download.
	TotalHolders int

	// Workers is the number of parallel sessions.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source is the blob service address (for display).
	Source string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu                sync.Mutex
	receivedBytes     atomic.Int64
	receivedChunks    atomic.Int64
	completedSessions atomic.Int32
	failedSessions    atomic.Int32
	inProgress        atomic.Int32
	startTime         time.Time
	lastUpdate        time.Time
	lastBytes         int64
	stopCh            chan struct{}
	doneCh            chan struct{}
	started           bool
	stopped           bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[blobget] Downloading from: %s\n", r.opts.Source)
	fmt.Fprintf(r.opts.Output, "[blobget] Holders: %d | Workers: %d\n",
		r.opts.TotalHolders,
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and waits for the final status line.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// SessionStarted marks a holder as in progress.
func (r *Reporter) SessionStarted() {
	r.inProgress.Add(1)
}

// ChunkReceived records a chunk of n bytes delivered to the caller.
func (r *Reporter) ChunkReceived(n int) {
	r.receivedBytes.Add(int64(n))
	r.receivedChunks.Add(1)
}

// SessionCompleted marks a holder as fully downloaded.
func (r *Reporter) SessionCompleted() {
	r.completedSessions.Add(1)
	r.inProgress.Add(-1)
}

// SessionFailed marks a holder as failed (removes from in-progress).
func (r *Reporter) SessionFailed() {
	r.failedSessions.Add(1)
	r.inProgress.Add(-1)
}

// ReceivedBytes returns the number of bytes received so far.
func (r *Reporter) ReceivedBytes() int64 {
	return r.receivedBytes.Load()
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	received := r.receivedBytes.Load()
	completed := int(r.completedSessions.Load())
	failed := int(r.failedSessions.Load())
	inProgress := int(r.inProgress.Load())

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(received-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = received

	pending := r.opts.TotalHolders - completed - failed - inProgress
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "\r[blobget] Received: %s | Speed: %s/s    ",
		formatBytes(received),
		formatBytes(int64(speed)),
	)
	fmt.Fprintf(r.opts.Output, "\n[blobget] Sessions: %d completed | %d in-progress | %d pending | %d failed    \033[A",
		completed,
		inProgress,
		pending,
		failed,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	received := r.receivedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(received) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[blobget] Received: %s in %d chunks | Complete!    \n",
		formatBytes(received),
		r.receivedChunks.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[blobget] Sessions: %d completed | %d failed    \n",
		r.completedSessions.Load(),
		r.failedSessions.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[blobget] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable IEC string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}

	units := []string{"KiB", "MiB", "GiB", "TiB"}
	value := float64(b) / unit
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}

	if value >= 100 || value == float64(int64(value)) && value >= 10 {
		return fmt.Sprintf("%.0f %s", value, units[i])
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// byteUnits maps suffixes to multipliers. Longer suffixes come first so
// "KiB" is matched before "B".
var byteUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"TiB", 1 << 40},
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"TB", 1000 * 1000 * 1000 * 1000},
	{"GB", 1000 * 1000 * 1000},
	{"MB", 1000 * 1000},
	{"KB", 1000},
	{"B", 1},
}

// ParseBytes parses a human-readable byte string (e.g. "256MiB", "1MB").
// IEC suffixes are powers of 1024, SI suffixes powers of 1000.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var multiplier int64 = 1
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.multiplier
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %q", s)
	}

	return int64(value * float64(multiplier)), nil
}
