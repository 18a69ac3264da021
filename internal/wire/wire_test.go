package wire

import (
	"math"
	"testing"
)

func buildFrame(q [8]int16) []byte {
	frame := append([]byte{0xAA, 0x55}, EncodePayload(q)...)
	return frame
}

// TestRoundTrip verifies that building a frame and decoding it reproduces
// the scaled floats for arbitrary quantized values.
func TestRoundTrip(t *testing.T) {
	q := [8]int16{-7012, 100, 2500, -70, 1234, 15, -32768, 1}

	d := NewFrameDecoder()
	d.Write(buildFrame(q))

	payload, ok := d.Next()
	if !ok {
		t.Fatal("Next returned no frame for a complete buffer")
	}
	s, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}

	if got, want := s.Vm[0], -70.12; math.Abs(got-want) > 1e-9 {
		t.Errorf("Vm[0] = %v, want %v", got, want)
	}
	if got, want := s.Stim, 100.0; got != want {
		t.Errorf("Stim = %v, want %v", got, want)
	}
	if got, want := s.Itot, 25.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Itot = %v, want %v", got, want)
	}
	if got, want := s.Vm[1], -70.0; got != want {
		t.Errorf("Vm[1] = %v, want %v", got, want)
	}
	if got, want := s.ISyn1, 12.34; math.Abs(got-want) > 1e-9 {
		t.Errorf("ISyn1 = %v, want %v", got, want)
	}
	if got, want := s.Vm[2], 15.0; got != want {
		t.Errorf("Vm[2] = %v, want %v", got, want)
	}
	if got, want := s.ISyn2, -327.68; math.Abs(got-want) > 1e-9 {
		t.Errorf("ISyn2 = %v, want %v", got, want)
	}
	if got, want := s.Trigger, 1.0; got != want {
		t.Errorf("Trigger = %v, want %v", got, want)
	}

	if s.HasTimestamp {
		t.Error("binary samples must not carry a timestamp")
	}
}

// TestResynchronization embeds a valid frame inside random garbage and
// expects exactly one decoded frame with the right values.
func TestResynchronization(t *testing.T) {
	q := [8]int16{-4200, 50, 0, 0, 0, 0, 0, 0}

	var stream []byte
	stream = append(stream, []byte{0x13, 0x37, 0xAA, 0x01, 0xFF}...) // junk, incl. lone 0xAA
	stream = append(stream, buildFrame(q)...)
	stream = append(stream, []byte{0xDE, 0xAD}...) // trailing junk

	d := NewFrameDecoder()
	d.Write(stream)

	payload, ok := d.Next()
	if !ok {
		t.Fatal("expected one frame after resync")
	}
	s, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if got, want := s.Vm[0], -42.0; got != want {
		t.Errorf("Vm[0] = %v, want %v", got, want)
	}

	if _, ok := d.Next(); ok {
		t.Error("trailing junk produced a second frame")
	}
}

// TestGarbageOnly verifies pure noise yields no frames and that the buffer
// does not retain it.
func TestGarbageOnly(t *testing.T) {
	d := NewFrameDecoder()
	junk := make([]byte, 1024)
	for i := range junk {
		junk[i] = byte(i * 7) // no 0xAA 0x55 pair
	}
	// Make sure the pattern really contains no header.
	for i := 0; i+1 < len(junk); i++ {
		if junk[i] == 0xAA && junk[i+1] == 0x55 {
			junk[i+1] = 0x00
		}
	}
	d.Write(junk)

	if _, ok := d.Next(); ok {
		t.Fatal("garbage produced a frame")
	}
	if d.Buffered() >= HeaderSize {
		t.Errorf("decoder retained %d junk bytes, want < %d", d.Buffered(), HeaderSize)
	}
}

// TestSplitFrameReassembly feeds a frame byte by byte and expects the same
// single decode as feeding it whole.
func TestSplitFrameReassembly(t *testing.T) {
	q := [8]int16{-2001, 0, 0, 10, 0, 20, 0, 0}
	frame := buildFrame(q)

	d := NewFrameDecoder()
	for i, b := range frame {
		d.Write([]byte{b})
		_, ok := d.Next()
		if i < len(frame)-1 {
			if ok {
				t.Fatalf("frame decoded after %d of %d bytes", i+1, len(frame))
			}
			continue
		}
		if !ok {
			t.Fatal("no frame after the final byte")
		}
	}

	if _, ok := d.Next(); ok {
		t.Error("duplicate frame from a single write sequence")
	}
}

// TestBackToBackFrames drains a burst of consecutive frames in order.
func TestBackToBackFrames(t *testing.T) {
	d := NewFrameDecoder()
	for i := int16(0); i < 5; i++ {
		d.Write(buildFrame([8]int16{i * 100, 0, 0, 0, 0, 0, 0, 0}))
	}

	for i := 0; i < 5; i++ {
		payload, ok := d.Next()
		if !ok {
			t.Fatalf("frame %d missing", i)
		}
		s, _ := DecodePayload(payload)
		if got, want := s.Vm[0], float64(i); got != want {
			t.Errorf("frame %d: Vm[0] = %v, want %v", i, got, want)
		}
	}
	if _, ok := d.Next(); ok {
		t.Error("extra frame after burst")
	}
}

// TestLineDecoderLayouts covers the 8- and 9-field text layouts.
func TestLineDecoderLayouts(t *testing.T) {
	d := NewLineDecoder()

	// 9 fields: leading timestamp is authoritative.
	s, ok := d.Decode("12.5,-65.0,50,1.2,-70.0,0.4,-68.0,0.1,1\n")
	if !ok {
		t.Fatal("9-field line rejected")
	}
	if !s.HasTimestamp || s.TimestampMs != 12.5 {
		t.Errorf("timestamp = %v (has=%v), want 12.5", s.TimestampMs, s.HasTimestamp)
	}
	if s.Vm != [3]float64{-65.0, -70.0, -68.0} {
		t.Errorf("Vm = %v", s.Vm)
	}
	if s.Stim != 50 || s.Trigger != 1 {
		t.Errorf("stim/trigger = %v/%v", s.Stim, s.Trigger)
	}

	// 8 fields: fallback clock advances by the nominal interval per line.
	s, ok = d.Decode("-65.0,50,1.2,-70.0,0.4,-68.0,0.1,0")
	if !ok {
		t.Fatal("8-field line rejected")
	}
	if got, want := s.TimestampMs, NominalSampleIntervalMs; math.Abs(got-want) > 1e-12 {
		t.Errorf("synthesized timestamp = %v, want %v", got, want)
	}
	s, _ = d.Decode("-65.0,50,1.2,-70.0,0.4,-68.0,0.1,0")
	if got, want := s.TimestampMs, 2*NominalSampleIntervalMs; math.Abs(got-want) > 1e-12 {
		t.Errorf("second synthesized timestamp = %v, want %v", got, want)
	}
}

// TestLineDecoderSkips verifies malformed lines are skipped, not fatal.
func TestLineDecoderSkips(t *testing.T) {
	d := NewLineDecoder()

	bad := []string{
		"",
		"1,2,3",
		"a,b,c,d,e,f,g,h",
		"1,2,3,4,5,6,7,-", // bare minus sign is not a number
		"1,2,3,4,5,6,7,8,9,10",
	}
	for _, line := range bad {
		if _, ok := d.Decode(line); ok {
			t.Errorf("line %q decoded, want skip", line)
		}
	}
	if d.Skipped() != 4 { // empty lines are not counted
		t.Errorf("Skipped = %d, want 4", d.Skipped())
	}
}
