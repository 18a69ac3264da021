package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OpenSourceNeuro/Spikeling/internal/imaging"
)

// Config represents the complete spikelingd configuration
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Source           SourceConfig   `yaml:"source"`
	Pipeline         PipelineConfig `yaml:"pipeline"`
	Imaging          ImagingConfig  `yaml:"imaging"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	HealthPort       int            `yaml:"health_port"` // 0 disables the health endpoint
}

// SourceConfig selects and configures the sample source
type SourceConfig struct {
	Mode   string       `yaml:"mode"` // serial, replay
	Serial SerialConfig `yaml:"serial"`
	Replay ReplayConfig `yaml:"replay"`
}

// SerialConfig contains device link settings
type SerialConfig struct {
	Port string `yaml:"port"` // e.g. /dev/ttyUSB0
	Baud int    `yaml:"baud"` // default 250000
}

// ReplayConfig contains recording playback settings
type ReplayConfig struct {
	Path string `yaml:"path"` // recorded text stream
	// SpeedFactor scales playback pacing; 0 means as fast as possible.
	SpeedFactor float64 `yaml:"speed_factor"`
	Loop        bool    `yaml:"loop"`
}

// PipelineConfig contains ingestion tuning
type PipelineConfig struct {
	QueueCapacity int `yaml:"queue_capacity"` // arrival queue bound
	DrainBatch    int `yaml:"drain_batch"`    // max samples per drain tick
	DrainHz       int `yaml:"drain_hz"`       // drain cadence
	SampleHistory int `yaml:"sample_history"` // rolling sample buffer size
	FrameHistory  int `yaml:"frame_history"`  // rolling frame buffer size
}

// ImagingConfig wraps the model parameters with the indicator selection
type ImagingConfig struct {
	Indicator  string             `yaml:"indicator"` // preset name, e.g. GCaMP6f
	Parameters imaging.Parameters `yaml:",inline"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
	// SampleBatch groups per-sample records into one publish (default: 100)
	SampleBatch int `yaml:"sample_batch"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `yaml:"control"`
	Samples string `yaml:"samples"`
	Frames  string `yaml:"frames"`
	Health  string `yaml:"health"`
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every tunable at its default.
// Loading overlays the file on top of this, so omitted keys keep working
// values.
func Default() *Config {
	return &Config{
		ShutdownTimeoutS: 5,
		Source: SourceConfig{
			Mode: "serial",
			Serial: SerialConfig{
				Port: "/dev/ttyUSB0",
				Baud: 250000,
			},
		},
		Pipeline: PipelineConfig{
			QueueCapacity: imaging.DefaultQueueCapacity,
			DrainBatch:    imaging.DefaultDrainBatch,
			DrainHz:       60,
			SampleHistory: imaging.DefaultSampleHistory,
			FrameHistory:  imaging.DefaultFrameHistory,
		},
		Imaging: ImagingConfig{
			Indicator:  imaging.DefaultPreset,
			Parameters: imaging.DefaultParameters(),
		},
		MQTT: MQTTConfig{
			SampleBatch: 100,
		},
		HealthPort: 8090,
	}
}
