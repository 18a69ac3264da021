package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/OpenSourceNeuro/Spikeling/internal/imaging"
)

// getStatus returns the current service status
func (s *Service) getStatus() map[string]interface{} {
	s.mu.RLock()
	src := s.source
	s.mu.RUnlock()

	pipeStats := s.pipeline.Stats()
	emitterStats := s.emitter.Stats()
	params := s.pipeline.Parameters()

	status := map[string]interface{}{
		"instance_id": s.cfg.InstanceID,
		"uptime_s":    time.Since(s.started).Seconds(),
		"running":     s.isRunningCheck(),
		"paused":      s.isPausedCheck(),
		"session_id":  emitterStats.SessionID,
		"pipeline": map[string]interface{}{
			"queue_len":        pipeStats.QueueLen,
			"enqueued":         pipeStats.Enqueued,
			"dropped":          pipeStats.Dropped,
			"processed":        pipeStats.Processed,
			"frames_committed": pipeStats.FramesCommitted,
			"timing_faults":    pipeStats.TimingFaults,
		},
		"imaging": map[string]interface{}{
			"mode":          string(params.Mode),
			"frame_rate_hz": params.FrameRateHz,
			"laser":         params.Laser,
			"pmt":           params.PMT,
			"kd_um":         params.KdUM,
			"hill_n":        params.HillN,
			"dff_max":       params.DFFMax,
			"baseline_f0":   s.pipeline.BaselineF0()[0],
		},
		"emitter": map[string]interface{}{
			"connected": emitterStats.Connected,
			"published": emitterStats.Published,
			"errors":    emitterStats.Errors,
		},
		"mqtt": map[string]interface{}{
			"broker":        s.cfg.MQTT.Broker,
			"control_topic": s.cfg.MQTT.Topics.Control,
			"samples_topic": s.cfg.MQTT.Topics.Samples,
			"frames_topic":  s.cfg.MQTT.Topics.Frames,
		},
	}

	if src != nil {
		srcStats := src.Stats()
		status["source"] = map[string]interface{}{
			"mode":            s.cfg.Source.Mode,
			"source":          srcStats.Source,
			"connected":       srcStats.Running,
			"samples_decoded": srcStats.SamplesDecoded,
			"samples_dropped": srcStats.SamplesDropped,
			"bytes_discarded": srcStats.BytesDiscarded,
		}
	} else {
		status["source"] = map[string]interface{}{
			"mode":      s.cfg.Source.Mode,
			"connected": false,
		}
	}

	return status
}

// pauseAcquisition pauses sample ingestion and publishing
func (s *Service) pauseAcquisition() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isPaused {
		return fmt.Errorf("already paused")
	}

	s.isPaused = true
	return nil
}

// resumeAcquisition resumes sample ingestion and publishing
func (s *Service) resumeAcquisition() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isPaused {
		return fmt.Errorf("not paused")
	}

	s.isPaused = false
	return nil
}

// updateParameters validates and stages an imaging parameter update. The
// whole map is validated against a scratch copy first so a bad key rejects
// the entire command instead of applying half of it.
func (s *Service) updateParameters(params map[string]interface{}) error {
	scratch := s.pipeline.Parameters()
	for key, value := range params {
		if err := scratch.Set(key, value); err != nil {
			return err
		}
	}

	s.pipeline.UpdateParameters(func(dst *imaging.Parameters) {
		for key, value := range params {
			if err := dst.Set(key, value); err != nil {
				slog.Error("staged parameter rejected", "key", key, "error", err)
			}
		}
	})

	slog.Info("imaging parameters staged", "count", len(params))
	return nil
}

// setIndicator stages an indicator preset change
func (s *Service) setIndicator(name string) error {
	if _, ok := imaging.Presets[name]; !ok {
		return fmt.Errorf("unknown indicator preset %q", name)
	}
	s.pipeline.ApplyPreset(name)
	return nil
}

// setFrameRate stages a camera frame rate change
func (s *Service) setFrameRate(rateHz float64) error {
	if rateHz <= 0 || rateHz > 1000 {
		return fmt.Errorf("frame rate %.1f Hz out of range (0, 1000]", rateHz)
	}
	s.pipeline.UpdateParameters(func(dst *imaging.Parameters) {
		dst.FrameRateHz = rateHz
	})
	return nil
}

// resetSession restarts the pipeline state and rotates the session ID,
// as if the device had been replugged.
func (s *Service) resetSession() map[string]interface{} {
	s.pipeline.Stop()
	s.emitter.FlushSamples()
	session := s.emitter.NewSession()
	if err := s.pipeline.Start(); err != nil {
		slog.Error("pipeline restart failed during session reset", "error", err)
	}

	slog.Info("session reset", "session_id", session)
	return map[string]interface{}{
		"session_id": session,
		"message":    "model state cleared",
	}
}

// shutdownViaControl triggers graceful shutdown from the MQTT control plane
func (s *Service) shutdownViaControl() error {
	s.mu.RLock()
	cancel := s.cancelCtx
	s.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("service not running")
	}

	cancel()
	return nil
}

// isPausedCheck returns whether acquisition is paused
func (s *Service) isPausedCheck() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isPaused
}

// isRunningCheck returns whether the service is running
func (s *Service) isRunningCheck() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
