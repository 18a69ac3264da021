package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenSourceNeuro/Spikeling/internal/imaging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spikelingd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
instance_id: bench-rig-01
source:
  mode: serial
  serial:
    port: /dev/ttyACM0
mqtt:
  broker: tcp://localhost:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Serial.Baud != 250000 {
		t.Errorf("baud %d, want default 250000", cfg.Source.Serial.Baud)
	}
	if cfg.MQTT.Topics.Samples != "spikeling/samples/bench-rig-01" {
		t.Errorf("samples topic %q", cfg.MQTT.Topics.Samples)
	}
	if cfg.MQTT.QoS["control"] != 1 {
		t.Errorf("control qos %d, want 1", cfg.MQTT.QoS["control"])
	}
	if cfg.Imaging.Indicator != "Generic" {
		t.Errorf("indicator %q, want Generic", cfg.Imaging.Indicator)
	}
	if cfg.Imaging.Parameters.FrameRateHz != 10 {
		t.Errorf("frame rate %g, want 10", cfg.Imaging.Parameters.FrameRateHz)
	}
	if cfg.ShutdownTimeoutS != 5 {
		t.Errorf("shutdown timeout %d, want 5", cfg.ShutdownTimeoutS)
	}
}

func TestLoadOverridesImaging(t *testing.T) {
	path := writeConfig(t, `
instance_id: bench-rig-02
source:
  mode: replay
  replay:
    path: /data/session.log
imaging:
  indicator: GCaMP6f
  frame_rate_hz: 30
  laser: 1.2
mqtt:
  broker: tcp://localhost:1883
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Imaging.Indicator != "GCaMP6f" {
		t.Errorf("indicator %q, want GCaMP6f", cfg.Imaging.Indicator)
	}
	if cfg.Imaging.Parameters.FrameRateHz != 30 {
		t.Errorf("frame rate %g, want 30", cfg.Imaging.Parameters.FrameRateHz)
	}
	if cfg.Imaging.Parameters.Laser != 1.2 {
		t.Errorf("laser %g, want 1.2", cfg.Imaging.Parameters.Laser)
	}
	// Naming an indicator pulls in its chemistry.
	if cfg.Imaging.Parameters.KdUM != imaging.Presets["GCaMP6f"].KdUM {
		t.Errorf("kd %g, want preset value", cfg.Imaging.Parameters.KdUM)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing instance id", `
source:
  mode: serial
  serial: {port: /dev/ttyACM0}
mqtt: {broker: tcp://localhost:1883}
`},
		{"bad instance id", `
instance_id: Bench_Rig
source:
  mode: serial
  serial: {port: /dev/ttyACM0}
mqtt: {broker: tcp://localhost:1883}
`},
		{"unknown source mode", `
instance_id: rig
source: {mode: telepathy}
mqtt: {broker: tcp://localhost:1883}
`},
		{"missing serial port", `
instance_id: rig
source:
  mode: serial
  serial: {port: ""}
mqtt: {broker: tcp://localhost:1883}
`},
		{"missing broker", `
instance_id: rig
source:
  mode: serial
  serial: {port: /dev/ttyACM0}
`},
		{"unknown indicator", `
instance_id: rig
source:
  mode: serial
  serial: {port: /dev/ttyACM0}
imaging: {indicator: GCaMP99}
mqtt: {broker: tcp://localhost:1883}
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
