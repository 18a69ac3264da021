// Package emitter publishes imaging output over MQTT. Per-sample records
// travel in msgpack batches, camera frames individually; both carry the
// session ID so a subscriber can tell reconnects apart.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/OpenSourceNeuro/Spikeling/internal/config"
	"github.com/OpenSourceNeuro/Spikeling/internal/imaging"
)

// SampleBatch is the wire envelope for a run of per-sample records.
type SampleBatch struct {
	InstanceID string                 `msgpack:"instance_id"`
	SessionID  string                 `msgpack:"session_id"`
	Seq        uint64                 `msgpack:"seq"`
	Records    []imaging.SampleRecord `msgpack:"records"`
}

// FrameEnvelope is the wire envelope for one camera frame.
type FrameEnvelope struct {
	InstanceID string              `msgpack:"instance_id"`
	SessionID  string              `msgpack:"session_id"`
	Seq        uint64              `msgpack:"seq"`
	Frame      imaging.FrameRecord `msgpack:"frame"`
}

// MQTTEmitter publishes imaging records to an MQTT broker
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for control plane

	mu         sync.RWMutex
	sessionID  string
	sampleSeq  uint64
	frameSeq   uint64
	published  map[string]uint64 // count per topic
	errors     uint64
	connected  bool
	sampleBuf  []imaging.SampleRecord
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		published: make(map[string]uint64),
		sampleBuf: make([]imaging.SampleRecord, 0, cfg.MQTT.SampleBatch),
	}
}

// SessionID identifies this emitter lifetime in every payload.
func (e *MQTTEmitter) SessionID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionID
}

// NewSession rotates the session ID, used when the device reconnects.
func (e *MQTTEmitter) NewSession() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = uuid.NewString()
	e.sampleSeq = 0
	e.frameSeq = 0
	e.sampleBuf = e.sampleBuf[:0]
	return e.sessionID
}

// Connect establishes connection to the MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.MQTT.Broker)
	opts.SetClientID(e.cfg.InstanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established",
			"broker", e.cfg.MQTT.Broker,
			"client_id", e.cfg.InstanceID,
			"auto_reconnect", "enabled")
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.MQTT.Broker,
			"max_retry_interval", "30s")
	}

	e.Client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", e.cfg.MQTT.Broker)

	token := e.Client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// EmitSample buffers one record and publishes when the batch fills.
// Called from the pipeline's drain goroutine; must not block long.
func (e *MQTTEmitter) EmitSample(rec imaging.SampleRecord) {
	e.mu.Lock()
	e.sampleBuf = append(e.sampleBuf, rec)
	full := len(e.sampleBuf) >= e.cfg.MQTT.SampleBatch
	e.mu.Unlock()

	if full {
		if err := e.FlushSamples(); err != nil {
			slog.Debug("sample batch publish failed", "error", err)
		}
	}
}

// FlushSamples publishes the pending sample batch, if any.
func (e *MQTTEmitter) FlushSamples() error {
	e.mu.Lock()
	if len(e.sampleBuf) == 0 {
		e.mu.Unlock()
		return nil
	}
	batch := SampleBatch{
		InstanceID: e.cfg.InstanceID,
		SessionID:  e.sessionID,
		Seq:        e.sampleSeq,
		Records:    append([]imaging.SampleRecord(nil), e.sampleBuf...),
	}
	e.sampleSeq++
	e.sampleBuf = e.sampleBuf[:0]
	e.mu.Unlock()

	return e.publish(e.cfg.MQTT.Topics.Samples, e.getQoS("samples"), batch)
}

// EmitFrame publishes one camera frame immediately.
func (e *MQTTEmitter) EmitFrame(frame imaging.FrameRecord) error {
	e.mu.Lock()
	env := FrameEnvelope{
		InstanceID: e.cfg.InstanceID,
		SessionID:  e.sessionID,
		Seq:        e.frameSeq,
		Frame:      frame,
	}
	e.frameSeq++
	e.mu.Unlock()

	return e.publish(e.cfg.MQTT.Topics.Frames, e.getQoS("frames"), env)
}

// PublishHealth publishes a health message
func (e *MQTTEmitter) PublishHealth(payload []byte) error {
	if !e.isConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	topic := e.cfg.MQTT.Topics.Health
	qos := e.getQoS("health")

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish timeout")
	}

	return token.Error()
}

func (e *MQTTEmitter) publish(topic string, qos byte, v any) error {
	if !e.isConnected() {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := msgpack.Marshal(v)
	if err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	token := e.Client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.mu.Lock()
		e.errors++
		e.mu.Unlock()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("record published",
		"topic", topic,
		"qos", qos,
		"size", len(payload),
	)

	return nil
}

// Disconnect flushes pending samples and closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if err := e.FlushSamples(); err != nil {
		slog.Debug("final sample flush failed", "error", err)
	}

	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64)
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		SessionID: e.sessionID,
		Published: published,
		Errors:    e.errors,
	}
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	SessionID string
	Published map[string]uint64
	Errors    uint64
}

// isConnected returns connection status
func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

// getQoS returns the QoS level for a given record class
func (e *MQTTEmitter) getQoS(class string) byte {
	if qos, ok := e.cfg.MQTT.QoS[class]; ok {
		return qos
	}
	return 0 // default QoS 0
}
