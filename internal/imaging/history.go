package imaging

import "github.com/OpenSourceNeuro/Spikeling/internal/ringbuf"

// History holds the fixed-capacity rolling buffers exposed to display
// consumers: one ring per signal, per-channel rings indexed by neuron.
// The pipeline is the only writer; readers snapshot concurrently.
type History struct {
	SampleTime *ringbuf.Ring
	Stim       *ringbuf.Ring
	Trigger    *ringbuf.Ring
	Vm         [NumNeurons]*ringbuf.Ring
	Calcium    [NumNeurons]*ringbuf.Ring

	FrameTime *ringbuf.Ring
	Fluo      [NumNeurons]*ringbuf.Ring
}

// NewHistory sizes all rings at initialization: sampleCap entries for the
// per-sample signals, frameCap for the camera-frame signals.
func NewHistory(sampleCap, frameCap int) *History {
	h := &History{
		SampleTime: ringbuf.MustNew(sampleCap),
		Stim:       ringbuf.MustNew(sampleCap),
		Trigger:    ringbuf.MustNew(sampleCap),
		FrameTime:  ringbuf.MustNew(frameCap),
	}
	for i := 0; i < NumNeurons; i++ {
		h.Vm[i] = ringbuf.MustNew(sampleCap)
		h.Calcium[i] = ringbuf.MustNew(sampleCap)
		h.Fluo[i] = ringbuf.MustNew(frameCap)
	}
	return h
}

func (h *History) appendSample(rec SampleRecord) {
	h.SampleTime.Push(rec.TMs)
	h.Stim.Push(rec.Stim)
	h.Trigger.Push(rec.Trigger)
	for i := 0; i < NumNeurons; i++ {
		h.Vm[i].Push(rec.Vm[i])
		h.Calcium[i].Push(rec.Calcium[i])
	}
}

func (h *History) appendFrame(rec FrameRecord) {
	h.FrameTime.Push(rec.TMs)
	for i := 0; i < NumNeurons; i++ {
		h.Fluo[i].Push(rec.Fluo[i])
	}
}

// Reset discards all held samples on disconnect.
func (h *History) Reset() {
	h.SampleTime.Reset()
	h.Stim.Reset()
	h.Trigger.Reset()
	h.FrameTime.Reset()
	for i := 0; i < NumNeurons; i++ {
		h.Vm[i].Reset()
		h.Calcium[i].Reset()
		h.Fluo[i].Reset()
	}
}
