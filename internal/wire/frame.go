// Package wire decodes the Spikeling serial protocol.
//
// The firmware emits fixed-size binary frames: a 2-byte sync header
// (0xAA 0x55) followed by a 16-byte payload of eight little-endian int16
// values. A legacy firmware emits newline-terminated CSV lines instead.
// There is no checksum in either format; resynchronization relies on the
// header marker alone, so a marker byte pair inside payload data can
// mis-trigger. That fragility is part of the protocol and is reproduced
// here, not repaired.
package wire

import "bytes"

// header is the 2-byte sync marker preceding every binary sample packet.
var header = []byte{0xAA, 0x55}

const (
	// HeaderSize is the length of the sync marker in bytes.
	HeaderSize = 2
	// PayloadSize is the length of one sample packet: 8 x int16.
	PayloadSize = 16
	// FrameSize is the on-wire size of one complete frame.
	FrameSize = HeaderSize + PayloadSize
)

// FrameDecoder extracts complete binary frames from an append-only byte
// stream that may contain noise, partial frames or dropped bytes.
//
// Contract:
//   - Write appends raw bytes as they arrive from the transport.
//   - Next pops the next complete 16-byte payload, resynchronizing on the
//     header marker and discarding unrecognized bytes.
//   - Neither call blocks; work per call is amortized linear in the
//     buffered byte count, and the buffer never retains more than one
//     incomplete frame plus leading junk awaiting a header.
//
// Not safe for concurrent use; owned by the transport read goroutine.
type FrameDecoder struct {
	buf   []byte
	stats FrameDecoderStats
}

// FrameDecoderStats counts decoder activity since creation.
type FrameDecoderStats struct {
	// FramesDecoded is the number of complete payloads returned by Next.
	FramesDecoded uint64
	// BytesDiscarded counts junk bytes dropped while searching for a header.
	BytesDiscarded uint64
}

// NewFrameDecoder returns an empty decoder.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{buf: make([]byte, 0, 4*FrameSize)}
}

// Write appends raw transport bytes to the decode buffer.
func (d *FrameDecoder) Write(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next extracts the next complete frame payload, if one is buffered.
//
// Returns the 16-byte payload and true, or nil and false when the buffer
// holds no complete frame. The returned slice is a copy; callers may keep
// it. Call repeatedly until it reports false to drain a burst.
func (d *FrameDecoder) Next() ([]byte, bool) {
	if len(d.buf) < FrameSize {
		return nil, false
	}

	idx := bytes.Index(d.buf, header)
	if idx == -1 {
		// No header anywhere. Drop everything except the last byte, which
		// could be the first half of a header split across reads.
		drop := len(d.buf) - (HeaderSize - 1)
		if drop > 0 {
			d.stats.BytesDiscarded += uint64(drop)
			d.buf = d.buf[:copy(d.buf, d.buf[drop:])]
		}
		return nil, false
	}

	if idx > 0 {
		// Junk before the header is unrecoverable; discard it.
		d.stats.BytesDiscarded += uint64(idx)
		d.buf = d.buf[:copy(d.buf, d.buf[idx:])]
	}

	if len(d.buf) < FrameSize {
		// Header seen but the payload is still in flight.
		return nil, false
	}

	payload := make([]byte, PayloadSize)
	copy(payload, d.buf[HeaderSize:FrameSize])
	d.buf = d.buf[:copy(d.buf, d.buf[FrameSize:])]
	d.stats.FramesDecoded++
	return payload, true
}

// Buffered reports how many undecoded bytes the decoder is holding.
func (d *FrameDecoder) Buffered() int { return len(d.buf) }

// Stats returns a snapshot of decoder counters.
func (d *FrameDecoder) Stats() FrameDecoderStats { return d.stats }
