package imaging

// SpikeDetector is a per-neuron rising-edge threshold detector with
// refractory suppression. It is a pure edge detector: no hysteresis
// beyond the refractory window.
type SpikeDetector struct {
	lastSpikeMs float64
	spiked      bool
}

// Detect reports 1 when the membrane voltage crosses the threshold upward
// (vmPrev < threshold <= vmNow) outside the refractory window, else 0.
// A positive detection records tNowMs as the last spike time.
func (d *SpikeDetector) Detect(vmPrev, vmNow, tNowMs, thresholdMV, refractoryMs float64) int {
	if !(vmPrev < thresholdMV && vmNow >= thresholdMV) {
		return 0
	}
	if d.spiked && tNowMs-d.lastSpikeMs < refractoryMs {
		return 0
	}
	d.lastSpikeMs = tNowMs
	d.spiked = true
	return 1
}

// Reset clears the refractory history.
func (d *SpikeDetector) Reset() {
	*d = SpikeDetector{}
}
