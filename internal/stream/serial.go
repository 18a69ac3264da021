package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	goserial "go.bug.st/serial"

	"github.com/OpenSourceNeuro/Spikeling/internal/wire"
)

// SerialSource reads the device's framed binary protocol from a serial
// port. Bytes flow through a resynchronizing frame decoder, so the source
// recovers from attaching mid-stream or losing bytes to a flaky cable.
type SerialSource struct {
	port string
	baud int

	samplesCh chan wire.Sample
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu        sync.RWMutex
	dev       goserial.Port
	isRunning bool
	startTime time.Time
	decoded   uint64
	dropped   uint64
	bytesRead uint64
	discarded uint64
}

// NewSerialSource creates a serial sample source. The port is opened on
// Start, not here, so a daemon can be configured before the device is
// plugged in.
func NewSerialSource(port string, baud int) *SerialSource {
	return &SerialSource{
		port:      port,
		baud:      baud,
		samplesCh: make(chan wire.Sample, sampleChanCap),
		stopCh:    make(chan struct{}),
	}
}

// Start opens the port at 8N1 and begins the read loop.
func (s *SerialSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("serial source already running")
	}

	mode := &goserial.Mode{
		BaudRate: s.baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}
	dev, err := goserial.Open(s.port, mode)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}
	s.dev = dev
	s.isRunning = true
	s.startTime = time.Now()
	s.mu.Unlock()

	slog.Info("serial source starting",
		"port", s.port,
		"baud", s.baud,
	)

	s.wg.Add(1)
	go s.readLoop(ctx)

	return nil
}

// Samples returns the decoded sample channel. It is closed on transport
// failure or Stop.
func (s *SerialSource) Samples() <-chan wire.Sample {
	return s.samplesCh
}

// Stop closes the port and waits for the read loop to drain.
func (s *SerialSource) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	dev := s.dev
	s.mu.Unlock()

	slog.Info("serial source stopping")

	close(s.stopCh)
	if dev != nil {
		dev.Close() // unblocks a pending Read
	}
	s.wg.Wait()

	slog.Info("serial source stopped",
		"samples_decoded", s.decoded,
		"duration", time.Since(s.startTime),
	)
	return nil
}

// Stats returns a counter snapshot.
func (s *SerialSource) Stats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SourceStats{
		SamplesDecoded: s.decoded,
		SamplesDropped: s.dropped,
		BytesRead:      s.bytesRead,
		BytesDiscarded: s.discarded,
		Source:         s.port,
		Running:        s.isRunning,
	}
}

func (s *SerialSource) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.samplesCh)

	var dec wire.FrameDecoder
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		n, err := s.dev.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.bytesRead += uint64(n)
			s.mu.Unlock()
			dec.Write(buf[:n])
			s.emitFrames(&dec)
		}
		if err != nil {
			// Closing the channel is the disconnect signal; the
			// consumer resets all downstream state in response.
			if !errors.Is(err, io.EOF) && !s.stopping() {
				slog.Error("serial read failed", "port", s.port, "error", err)
			}
			return
		}
	}
}

func (s *SerialSource) emitFrames(dec *wire.FrameDecoder) {
	for {
		payload, ok := dec.Next()
		if !ok {
			break
		}
		sample, err := wire.DecodePayload(payload)
		if err != nil {
			continue
		}
		select {
		case s.samplesCh <- sample:
			s.mu.Lock()
			s.decoded++
			s.mu.Unlock()
		default:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		}
	}
	st := dec.Stats()
	s.mu.Lock()
	s.discarded = st.BytesDiscarded
	s.mu.Unlock()
}

func (s *SerialSource) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
