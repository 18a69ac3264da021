package wire

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Payload field order, fixed by the firmware SamplePacket struct.
const (
	idxVm = iota
	idxStim
	idxItot
	idxSyn1Vm
	idxISyn1
	idxSyn2Vm
	idxISyn2
	idxTrigger
	payloadFields
)

// Quantization scales applied by the firmware before transmission.
const (
	voltageScale    = 100.0
	currentScale    = 100.0
	synVoltageScale = 1.0
)

// NominalSampleIntervalMs is the firmware sample cadence. It substitutes
// for the inter-sample delta whenever a source carries no usable
// timestamps.
const NominalSampleIntervalMs = 0.1

// Sample is one physical-unit reading from the device: the primary neuron
// plus two auxiliary synapse channels.
type Sample struct {
	// TimestampMs is the device timestamp in milliseconds. Only valid when
	// HasTimestamp is set; binary frames carry none.
	TimestampMs  float64
	HasTimestamp bool

	// Vm holds membrane voltages in mV: primary, aux1, aux2.
	Vm [3]float64

	// Stim is the stimulus value as sent (raw units).
	Stim float64
	// Itot is the total membrane current in nA.
	Itot float64
	// ISyn1, ISyn2 are the synapse currents in nA.
	ISyn1 float64
	ISyn2 float64
	// Trigger is the stimulus trigger flag as sent (raw units).
	Trigger float64
}

// DecodePayload converts one 16-byte frame payload into a Sample.
//
// The payload is eight little-endian int16 values in firmware order.
// Voltages and synapse currents are divided by 100, synapse voltages pass
// through, stim and trigger are the raw integer values.
func DecodePayload(p []byte) (Sample, error) {
	if len(p) != PayloadSize {
		return Sample{}, fmt.Errorf("payload: want %d bytes, got %d", PayloadSize, len(p))
	}

	var q [payloadFields]int16
	for i := range q {
		q[i] = int16(binary.LittleEndian.Uint16(p[2*i:]))
	}

	return Sample{
		Vm: [3]float64{
			float64(q[idxVm]) / voltageScale,
			float64(q[idxSyn1Vm]) / synVoltageScale,
			float64(q[idxSyn2Vm]) / synVoltageScale,
		},
		Stim:    float64(q[idxStim]),
		Itot:    float64(q[idxItot]) / currentScale,
		ISyn1:   float64(q[idxISyn1]) / currentScale,
		ISyn2:   float64(q[idxISyn2]) / currentScale,
		Trigger: float64(q[idxTrigger]),
	}, nil
}

// EncodePayload builds the 16-byte wire payload for the given quantized
// values, in firmware field order. Used by the replay source and tests.
func EncodePayload(q [8]int16) []byte {
	p := make([]byte, PayloadSize)
	for i, v := range q {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(v))
	}
	return p
}

// LineDecoder parses the legacy text protocol: one newline-terminated line
// of 8 comma-separated decimal fields, or 9 with a leading timestamp.
// Values are taken as plain floats with no rescaling. Lines with a
// non-numeric token or the wrong field count are skipped, never fatal.
//
// When a line carries no timestamp the decoder synthesizes one by
// advancing a fallback clock by the nominal sample interval.
type LineDecoder struct {
	fallbackMs float64
	skipped    uint64
}

// NewLineDecoder returns a decoder with its fallback clock at zero.
func NewLineDecoder() *LineDecoder { return &LineDecoder{} }

// Decode parses one text line. It reports false for lines that do not
// decode; such lines are counted and otherwise ignored.
func (d *LineDecoder) Decode(line string) (Sample, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, false
	}

	fields := strings.Split(line, ",")
	if len(fields) != 8 && len(fields) != 9 {
		d.skipped++
		return Sample{}, false
	}

	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			d.skipped++
			return Sample{}, false
		}
		vals[i] = v
	}

	// Field order: [ts?, Vm0, Stim, Itot, Vm1, ISyn1, Vm2, ISyn2, Trigger].
	var s Sample
	if len(vals) == 9 {
		s.TimestampMs = vals[0]
		vals = vals[1:]
	} else {
		d.fallbackMs += NominalSampleIntervalMs
		s.TimestampMs = d.fallbackMs
	}
	s.HasTimestamp = true
	s.Vm = [3]float64{vals[0], vals[3], vals[5]}
	s.Stim = vals[1]
	s.Itot = vals[2]
	s.ISyn1 = vals[4]
	s.ISyn2 = vals[6]
	s.Trigger = vals[7]
	return s, true
}

// Skipped reports how many lines were rejected since creation.
func (d *LineDecoder) Skipped() uint64 { return d.skipped }
