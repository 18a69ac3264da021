package core

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus represents the health state of the spikelingd service
type HealthStatus struct {
	Status          string  `json:"status"` // "healthy", "degraded", "unhealthy"
	UptimeSeconds   int64   `json:"uptime_seconds"`
	SourceConnected bool    `json:"source_connected"`
	MQTTConnected   bool    `json:"mqtt_connected"`
	Paused          bool    `json:"paused"`
	Disconnects     uint64  `json:"disconnects"`
	QueueLen        int     `json:"queue_len"`
	SamplesDropped  uint64  `json:"samples_dropped"`
	FramesCommitted uint64  `json:"frames_committed"`
	TimingFaults    uint64  `json:"timing_faults"`
	BaselineF0      float64 `json:"baseline_f0"`
}

// HealthCheck returns the current health status of the service
func (s *Service) HealthCheck() HealthStatus {
	s.mu.RLock()
	src := s.source
	disconnects := s.disconnects
	running := s.isRunning
	paused := s.isPaused
	started := s.started
	s.mu.RUnlock()

	pipeStats := s.pipeline.Stats()

	status := HealthStatus{
		Status:          "healthy",
		UptimeSeconds:   int64(time.Since(started).Seconds()),
		Paused:          paused,
		Disconnects:     disconnects,
		QueueLen:        pipeStats.QueueLen,
		SamplesDropped:  pipeStats.Dropped,
		FramesCommitted: pipeStats.FramesCommitted,
		TimingFaults:    pipeStats.TimingFaults,
		BaselineF0:      s.pipeline.BaselineF0()[0],
	}

	if src != nil && src.Stats().Running {
		status.SourceConnected = true
	}
	if s.emitter != nil && s.emitter.Client != nil && s.emitter.Client.IsConnected() {
		status.MQTTConnected = true
	}

	if !running {
		status.Status = "unhealthy"
	} else if !status.SourceConnected || !status.MQTTConnected {
		status.Status = "degraded"
	}

	return status
}

// LivenessHandler handles /health endpoint (simple liveness check)
// Returns 200 if the service process is alive
func (s *Service) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler handles /readiness endpoint (detailed readiness check)
func (s *Service) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := s.HealthCheck()

	statusCode := http.StatusOK
	if health.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(health)
}

// StartHealthServer starts the HTTP health check server on the given port
// This runs in a separate goroutine and does not block
func (s *Service) StartHealthServer(port int) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.LivenessHandler)
	mux.HandleFunc("/readiness", s.ReadinessHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting health check server",
		"port", port,
		"endpoints", []string{"/health", "/readiness"},
	)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health check server failed", "error", err)
		}
	}()

	return nil
}
