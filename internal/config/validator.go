package config

import (
	"fmt"
	"regexp"

	"github.com/OpenSourceNeuro/Spikeling/internal/imaging"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	// Validate source config
	switch cfg.Source.Mode {
	case "serial":
		if cfg.Source.Serial.Port == "" {
			return fmt.Errorf("source.serial.port is required in serial mode")
		}
		if cfg.Source.Serial.Baud <= 0 {
			cfg.Source.Serial.Baud = 250000 // default
		}
	case "replay":
		if cfg.Source.Replay.Path == "" {
			return fmt.Errorf("source.replay.path is required in replay mode")
		}
		if cfg.Source.Replay.SpeedFactor < 0 {
			return fmt.Errorf("source.replay.speed_factor must be >= 0")
		}
	default:
		return fmt.Errorf("source.mode must be 'serial' or 'replay', got %q", cfg.Source.Mode)
	}

	// Validate pipeline config
	if cfg.Pipeline.QueueCapacity <= 0 {
		cfg.Pipeline.QueueCapacity = imaging.DefaultQueueCapacity
	}
	if cfg.Pipeline.DrainBatch <= 0 {
		cfg.Pipeline.DrainBatch = imaging.DefaultDrainBatch
	}
	if cfg.Pipeline.DrainHz <= 0 {
		cfg.Pipeline.DrainHz = 60
	}

	// Validate imaging config
	if _, ok := imaging.Presets[cfg.Imaging.Indicator]; !ok {
		return fmt.Errorf("unknown imaging.indicator %q", cfg.Imaging.Indicator)
	}
	if cfg.Imaging.Parameters.FrameRateHz <= 0 {
		return fmt.Errorf("imaging.frame_rate_hz must be > 0")
	}
	// Naming an indicator loads its published chemistry. Under the default
	// indicator any explicit chemistry keys in the file win.
	if cfg.Imaging.Indicator != imaging.DefaultPreset {
		if err := cfg.Imaging.Parameters.ApplyPreset(cfg.Imaging.Indicator); err != nil {
			return fmt.Errorf("invalid imaging.indicator: %w", err)
		}
	}
	cfg.Imaging.Parameters.Normalize()

	// Validate MQTT broker
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	// Set default topics if not provided
	if cfg.MQTT.Topics.Control == "" {
		cfg.MQTT.Topics.Control = fmt.Sprintf("spikeling/control/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Samples == "" {
		cfg.MQTT.Topics.Samples = fmt.Sprintf("spikeling/samples/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Frames == "" {
		cfg.MQTT.Topics.Frames = fmt.Sprintf("spikeling/frames/%s", cfg.InstanceID)
	}
	if cfg.MQTT.Topics.Health == "" {
		cfg.MQTT.Topics.Health = fmt.Sprintf("spikeling/health/%s", cfg.InstanceID)
	}

	// Set default QoS if not provided
	if cfg.MQTT.QoS == nil {
		cfg.MQTT.QoS = map[string]byte{
			"control": 1,
			"samples": 0,
			"frames":  0,
			"health":  0,
		}
	}
	if cfg.MQTT.SampleBatch <= 0 {
		cfg.MQTT.SampleBatch = 100
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	return nil
}
