package stream

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OpenSourceNeuro/Spikeling/internal/wire"
)

// ReplaySource plays back a recorded text-protocol session from disk.
// Pacing follows the recorded timestamps scaled by SpeedFactor, so a
// session replays with the same inter-sample rhythm the device produced.
type ReplaySource struct {
	path        string
	speedFactor float64
	loop        bool

	samplesCh chan wire.Sample
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	startTime time.Time
	decoded   uint64
	dropped   uint64
	skipped   uint64
}

// NewReplaySource creates a playback source. speedFactor 1 replays in
// real time, 2 at double speed, 0 as fast as the consumer drains.
func NewReplaySource(path string, speedFactor float64, loop bool) *ReplaySource {
	return &ReplaySource{
		path:        path,
		speedFactor: speedFactor,
		loop:        loop,
		samplesCh:   make(chan wire.Sample, sampleChanCap),
		stopCh:      make(chan struct{}),
	}
}

// Start verifies the recording exists and begins playback.
func (r *ReplaySource) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("replay source already running")
	}
	if _, err := os.Stat(r.path); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to open recording: %w", err)
	}
	r.isRunning = true
	r.startTime = time.Now()
	r.mu.Unlock()

	slog.Info("replay source starting",
		"path", r.path,
		"speed_factor", r.speedFactor,
		"loop", r.loop,
	)

	r.wg.Add(1)
	go r.playLoop(ctx)

	return nil
}

// Samples returns the decoded sample channel. It is closed when the
// recording ends (unless looping) or on Stop.
func (r *ReplaySource) Samples() <-chan wire.Sample {
	return r.samplesCh
}

// Stop halts playback.
func (r *ReplaySource) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()

	slog.Info("replay source stopped",
		"samples_decoded", r.decoded,
		"duration", time.Since(r.startTime),
	)
	return nil
}

// Stats returns a counter snapshot.
func (r *ReplaySource) Stats() SourceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return SourceStats{
		SamplesDecoded: r.decoded,
		SamplesDropped: r.dropped,
		LinesSkipped:   r.skipped,
		Source:         r.path,
		Running:        r.isRunning,
	}
}

func (r *ReplaySource) playLoop(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.samplesCh)

	for {
		if done := r.playOnce(ctx); done || !r.loop {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}
	}
}

// playOnce streams the file top to bottom. Returns true when playback
// should not continue (stop, cancel, or read failure).
func (r *ReplaySource) playOnce(ctx context.Context) bool {
	f, err := os.Open(r.path)
	if err != nil {
		slog.Error("replay open failed", "path", r.path, "error", err)
		return true
	}
	defer f.Close()

	dec := wire.NewLineDecoder()
	scanner := bufio.NewScanner(f)
	var lastTMs float64
	haveLast := false

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return true
		case <-r.stopCh:
			return true
		default:
		}

		sample, ok := dec.Decode(scanner.Text())
		if !ok {
			r.mu.Lock()
			r.skipped = dec.Skipped()
			r.mu.Unlock()
			continue
		}

		if r.speedFactor > 0 && sample.HasTimestamp {
			if haveLast {
				gap := sample.TimestampMs - lastTMs
				if gap > 0 && gap < 1000 {
					r.sleep(time.Duration(gap / r.speedFactor * float64(time.Millisecond)))
				}
			}
			lastTMs = sample.TimestampMs
			haveLast = true
		}

		select {
		case r.samplesCh <- sample:
			r.mu.Lock()
			r.decoded++
			r.mu.Unlock()
		case <-r.stopCh:
			return true
		case <-ctx.Done():
			return true
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("replay read failed", "path", r.path, "error", err)
		return true
	}
	return false
}

func (r *ReplaySource) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-r.stopCh:
	}
}
