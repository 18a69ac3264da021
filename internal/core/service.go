package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenSourceNeuro/Spikeling/internal/config"
	"github.com/OpenSourceNeuro/Spikeling/internal/control"
	"github.com/OpenSourceNeuro/Spikeling/internal/emitter"
	"github.com/OpenSourceNeuro/Spikeling/internal/imaging"
	"github.com/OpenSourceNeuro/Spikeling/internal/stream"
)

// Service is the main spikelingd orchestrator: device samples in, imaging
// records out.
type Service struct {
	cfg *config.Config

	// Core components
	source         stream.Source
	pipeline       *imaging.Pipeline
	emitter        *emitter.MQTTEmitter
	controlHandler *control.Handler

	// Lifecycle management
	started     time.Time
	mu          sync.RWMutex
	wg          sync.WaitGroup
	isRunning   bool
	isPaused    bool
	disconnects uint64
	cancelCtx   context.CancelFunc // For MQTT shutdown command
}

// NewService creates a new service instance from a config file
func NewService(configPath string) (*Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"source_mode", cfg.Source.Mode,
		"indicator", cfg.Imaging.Indicator,
	)

	s := &Service{cfg: cfg}
	s.emitter = emitter.NewMQTTEmitter(cfg)

	s.pipeline = imaging.NewPipeline(imaging.PipelineConfig{
		Params:        cfg.Imaging.Parameters,
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		DrainBatch:    cfg.Pipeline.DrainBatch,
		DrainInterval: time.Second / time.Duration(cfg.Pipeline.DrainHz),
		SampleHistory: cfg.Pipeline.SampleHistory,
		FrameHistory:  cfg.Pipeline.FrameHistory,
		OnSample:      s.emitSample,
		OnFrame:       s.emitFrame,
	})

	return s, nil
}

// newSource builds a fresh sample source per the configured mode. Sources
// are single-use: after a disconnect the consumer builds a new one.
func (s *Service) newSource() stream.Source {
	switch s.cfg.Source.Mode {
	case "replay":
		return stream.NewReplaySource(
			s.cfg.Source.Replay.Path,
			s.cfg.Source.Replay.SpeedFactor,
			s.cfg.Source.Replay.Loop,
		)
	default:
		return stream.NewSerialSource(s.cfg.Source.Serial.Port, s.cfg.Source.Serial.Baud)
	}
}

// Run starts the service and blocks until the context is cancelled
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	// Create cancellable context for MQTT shutdown command
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelCtx = cancel
	s.mu.Unlock()

	slog.Info("spikelingd service starting",
		"instance_id", s.cfg.InstanceID,
	)

	// Connect MQTT emitter
	if err := s.emitter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	// Setup control plane handler
	s.controlHandler = control.NewHandler(s.cfg, s.emitter.Client, control.CommandCallbacks{
		OnGetStatus:        s.getStatus,
		OnPause:            s.pauseAcquisition,
		OnResume:           s.resumeAcquisition,
		OnUpdateParameters: s.updateParameters,
		OnSetIndicator:     s.setIndicator,
		OnSetFrameRate:     s.setFrameRate,
		OnResetSession:     s.resetSession,
		OnShutdown:         s.shutdownViaControl,
	})

	if err := s.controlHandler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	// Start the imaging pipeline
	if err := s.pipeline.Start(); err != nil {
		return fmt.Errorf("failed to start imaging pipeline: %w", err)
	}

	// Start the sample consumer (owns the source lifecycle)
	s.wg.Add(1)
	go s.consumeSamples(ctx)

	slog.Info("spikelingd service running")

	// Wait for context cancellation
	<-ctx.Done()

	slog.Info("spikelingd service run loop exiting")
	return nil
}

// Shutdown performs graceful shutdown of all components
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	slog.Info("shutting down spikelingd service")

	// Shutdown sequence (order is important!):
	// 1. Wait for the consumer to stop (it stops the source)
	slog.Info("waiting for goroutines to finish")
	s.wg.Wait()
	slog.Info("all goroutines finished")

	// 2. Stop the imaging pipeline
	if s.pipeline != nil {
		s.pipeline.Stop()
	}

	// 3. Stop control plane
	if s.controlHandler != nil {
		slog.Info("stopping control handler")
		if err := s.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 4. Disconnect MQTT (flushes pending sample batches)
	if s.emitter != nil {
		if err := s.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	slog.Info("spikelingd service shutdown complete",
		"uptime", uptime,
	)

	return nil
}

// HealthPort returns the configured health endpoint port; 0 disables it.
func (s *Service) HealthPort() int {
	return s.cfg.HealthPort
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (s *Service) ShutdownTimeout() time.Duration {
	timeout := time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
	if timeout == 0 {
		return 5 * time.Second // Default
	}
	return timeout
}

// emitSample forwards one pipeline record to MQTT unless paused.
func (s *Service) emitSample(rec imaging.SampleRecord) {
	if s.isPausedCheck() {
		return
	}
	s.emitter.EmitSample(rec)
}

// emitFrame forwards one camera frame to MQTT unless paused.
func (s *Service) emitFrame(frame imaging.FrameRecord) {
	if s.isPausedCheck() {
		return
	}
	if err := s.emitter.EmitFrame(frame); err != nil {
		slog.Debug("frame publish failed", "error", err)
	}
}
