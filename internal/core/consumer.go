package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/OpenSourceNeuro/Spikeling/internal/stream"
)

// reconnectDelay paces reopen attempts after a device disconnect.
const reconnectDelay = 2 * time.Second

// consumeSamples owns the source lifecycle: it opens the source, forwards
// decoded samples into the pipeline, and on channel close treats the link
// as disconnected. A disconnect resets the whole model (pipeline restart),
// rotates the MQTT session ID, and retries the source until the context
// ends. Replay sources that finish without looping end the consumer.
func (s *Service) consumeSamples(ctx context.Context) {
	defer s.wg.Done()

	slog.Info("sample consumer started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("sample consumer stopping")
			return
		default:
		}

		src := s.newSource()
		if err := src.Start(ctx); err != nil {
			slog.Error("failed to start sample source", "error", err)
			if !s.sleepOrDone(ctx, reconnectDelay) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.source = src
		s.mu.Unlock()

		finished := s.forwardSamples(ctx, src)

		src.Stop()
		s.mu.Lock()
		s.source = nil
		s.disconnects++
		s.mu.Unlock()

		// Disconnect is total: clear the queue, reset every integrator
		// and rolling buffer, then start clean for the next link.
		s.pipeline.Stop()
		s.emitter.FlushSamples()
		session := s.emitter.NewSession()

		if ctx.Err() != nil {
			return
		}
		if finished {
			slog.Info("recording finished, sample consumer exiting")
			return
		}

		slog.Warn("sample source disconnected, state reset",
			"next_session", session,
		)

		if err := s.pipeline.Start(); err != nil {
			slog.Error("failed to restart imaging pipeline", "error", err)
			return
		}
		if !s.sleepOrDone(ctx, reconnectDelay) {
			return
		}
	}
}

// forwardSamples pumps the source channel into the pipeline until it
// closes. Returns true when the source ended by running out of data
// rather than by losing the link.
func (s *Service) forwardSamples(ctx context.Context, src stream.Source) bool {
	sampleCount := uint64(0)
	lastLog := time.Now()
	logInterval := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			slog.Info("sample forwarding stopping", "total_samples", sampleCount)
			return false

		case sample, ok := <-src.Samples():
			if !ok {
				slog.Info("sample channel closed", "total_samples", sampleCount)
				// A finite replay draining to its end is completion,
				// not a lost link.
				return s.cfg.Source.Mode == "replay" && !s.cfg.Source.Replay.Loop
			}

			sampleCount++

			// Skip ingestion if paused; the device keeps talking, we
			// just stop listening.
			if !s.isPausedCheck() {
				s.pipeline.Enqueue(sample)
			}

			if time.Since(lastLog) >= logInterval {
				srcStats := src.Stats()
				pipeStats := s.pipeline.Stats()

				slog.Debug("acquisition stats",
					"samples_forwarded", sampleCount,
					"source_decoded", srcStats.SamplesDecoded,
					"source_dropped", srcStats.SamplesDropped,
					"bytes_discarded", srcStats.BytesDiscarded,
					"queue_len", pipeStats.QueueLen,
					"pipeline_dropped", pipeStats.Dropped,
					"frames_committed", pipeStats.FramesCommitted,
					"timing_faults", pipeStats.TimingFaults,
				)

				if pipeStats.Dropped > 0 {
					slog.Warn("pipeline dropping samples under load",
						"dropped_total", pipeStats.Dropped,
					)
				}

				lastLog = time.Now()
			}
		}
	}
}

// sleepOrDone waits d unless the context ends first.
func (s *Service) sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
