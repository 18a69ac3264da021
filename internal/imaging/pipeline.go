// Package imaging turns decoded membrane-voltage samples into synthetic
// calcium and fluorescence traces, as if a microscope were recording a
// genetically-encoded calcium indicator in a live neuron.
//
// Philosophy, shared with the rest of the service: drop samples, never
// queue unbounded. Ingest favors recency over completeness under overload,
// trading data loss for constant memory and bounded per-tick latency.
package imaging

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/OpenSourceNeuro/Spikeling/internal/wire"
)

// NumNeurons is the number of simulated channels: the primary neuron plus
// two auxiliaries, fixed by the device sample format.
const NumNeurons = 3

// Ingestion defaults.
const (
	// DefaultQueueCapacity bounds the arrival queue; overflow drops the
	// oldest entry so the producer never blocks.
	DefaultQueueCapacity = 20000
	// DefaultDrainBatch caps how many samples one drain tick may process.
	DefaultDrainBatch = 5000
	// DefaultDrainInterval is the drain cadence (~60 Hz).
	DefaultDrainInterval = time.Second / 60
	// DefaultSampleHistory sizes the per-sample rolling buffers
	// (5 s window at the 0.1 ms nominal interval).
	DefaultSampleHistory = 50000
	// DefaultFrameHistory sizes the camera-frame rolling buffers.
	DefaultFrameHistory = 2048
)

// ErrAlreadyRunning is returned by Start when the pipeline is active.
var ErrAlreadyRunning = errors.New("imaging: pipeline already running")

// SampleRecord is the per-sample output tuple.
type SampleRecord struct {
	TMs     float64             `msgpack:"t"`
	Vm      [NumNeurons]float64 `msgpack:"vm"`
	Stim    float64             `msgpack:"stim"`
	Trigger float64             `msgpack:"trig"`
	Calcium [NumNeurons]float64 `msgpack:"ca"`
}

// FrameRecord is the per-camera-frame output tuple.
type FrameRecord struct {
	TMs  float64             `msgpack:"t"`
	Fluo [NumNeurons]float64 `msgpack:"f"`
}

// PipelineConfig configures a Pipeline. Zero values take the defaults
// above. The callbacks run on the drain goroutine and must not block.
type PipelineConfig struct {
	Params        Parameters
	QueueCapacity int
	DrainBatch    int
	DrainInterval time.Duration
	SampleHistory int
	FrameHistory  int

	OnSample func(SampleRecord)
	OnFrame  func(FrameRecord)

	// Seed fixes the noise generator; 0 seeds from the clock.
	Seed int64
}

// PipelineStats is a snapshot of ingestion counters.
type PipelineStats struct {
	Enqueued        uint64
	Dropped         uint64
	Processed       uint64
	FramesCommitted uint64
	TimingFaults    uint64
	QueueLen        int
	Running         bool
}

// Pipeline decouples arrival-time bursts from the fixed-cadence model
// update. The bounded queue is the only state shared between the arrival
// context and the drain goroutine; all model state is owned exclusively by
// the drain path.
type Pipeline struct {
	cfg PipelineConfig

	mu      sync.Mutex
	queue   []wire.Sample
	qHead   int
	qLen    int
	pending []func(*Parameters)
	stats   PipelineStats
	running bool
	f0      [NumNeurons]float64
	held    [NumNeurons]float64

	// Model state below is touched only by the drain goroutine while
	// running, and by Start/Stop while it is not.
	params   Parameters
	neurons  [NumNeurons]neuronState
	bleach   Photobleach
	clock    FrameClock
	lastTMs  float64
	haveLast bool
	rng      *rand.Rand

	history *History

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type neuronState struct {
	detector  SpikeDetector
	kernel    CalciumKernel
	indicator Indicator
	lastVm    float64
	haveVm    bool
}

// NewPipeline builds an idle pipeline. Call Start to begin draining.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.DrainBatch <= 0 {
		cfg.DrainBatch = DefaultDrainBatch
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.SampleHistory <= 0 {
		cfg.SampleHistory = DefaultSampleHistory
	}
	if cfg.FrameHistory <= 0 {
		cfg.FrameHistory = DefaultFrameHistory
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	p := &Pipeline{
		cfg:     cfg,
		queue:   make([]wire.Sample, cfg.QueueCapacity),
		params:  cfg.Params,
		bleach:  NewPhotobleach(),
		rng:     rand.New(rand.NewSource(seed)),
		history: NewHistory(cfg.SampleHistory, cfg.FrameHistory),
	}
	p.params.Normalize()
	p.resetModel()
	return p
}

// Start resets the model to its steady state for baseline calcium and
// launches the drain loop.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	p.stats.Running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.resetModel()

	slog.Info("imaging pipeline started",
		"queue_capacity", p.cfg.QueueCapacity,
		"drain_batch", p.cfg.DrainBatch,
		"drain_interval", p.cfg.DrainInterval,
		"mode", p.params.Mode,
	)

	p.wg.Add(1)
	go p.drainLoop()
	return nil
}

// Stop is the disconnect path: immediate and total. The drain halts, the
// queue is cleared, and all per-neuron and clock state returns to initial
// values. No pending work survives. Idempotent.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.stats.Running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.qHead = 0
	p.qLen = 0
	p.stats.QueueLen = 0
	p.mu.Unlock()

	p.resetModel()
	slog.Info("imaging pipeline stopped")
}

// Enqueue accepts one decoded sample from the arrival context. It never
// blocks: when the queue is full the oldest entry is evicted. Samples
// arriving while stopped are discarded.
func (p *Pipeline) Enqueue(s wire.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	if p.qLen == len(p.queue) {
		p.qHead = (p.qHead + 1) % len(p.queue)
		p.qLen--
		p.stats.Dropped++
	}
	p.queue[(p.qHead+p.qLen)%len(p.queue)] = s
	p.qLen++
	p.stats.Enqueued++
	p.stats.QueueLen = p.qLen
}

// UpdateParameters stages a mutation of the imaging parameters. It is
// applied between drain ticks, never mid-step.
func (p *Pipeline) UpdateParameters(apply func(*Parameters)) {
	p.mu.Lock()
	p.pending = append(p.pending, apply)
	p.mu.Unlock()
}

// SetParameters stages a whole-record replacement.
func (p *Pipeline) SetParameters(params Parameters) {
	p.UpdateParameters(func(dst *Parameters) { *dst = params })
}

// ApplyPreset stages an indicator preset change.
func (p *Pipeline) ApplyPreset(name string) {
	p.UpdateParameters(func(dst *Parameters) {
		if err := dst.ApplyPreset(name); err != nil {
			slog.Warn("indicator preset", "error", err)
		} else {
			slog.Info("indicator preset applied", "preset", name)
		}
	})
}

// Parameters returns a copy of the parameters as of the last drain tick.
func (p *Pipeline) Parameters() Parameters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

// History exposes the rolling output buffers for display consumers.
func (p *Pipeline) History() *History { return p.history }

// BaselineF0 returns the per-channel noise-free baseline fluorescence.
func (p *Pipeline) BaselineF0() [NumNeurons]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.f0
}

// HeldFluorescence returns the last committed camera reading per channel;
// between exposures the value holds, modeling an integrating camera.
func (p *Pipeline) HeldFluorescence() [NumNeurons]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// Stats returns an ingestion counter snapshot.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pipeline) drainLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.drainTick()
		}
	}
}

// drainTick applies staged parameter updates, then pops up to one batch
// and advances the model in arrival order.
func (p *Pipeline) drainTick() {
	p.mu.Lock()
	if len(p.pending) > 0 {
		for _, apply := range p.pending {
			apply(&p.params)
		}
		p.pending = p.pending[:0]
		p.params.Normalize()
		p.refreshBaselineLocked()
	}

	n := p.qLen
	if n > p.cfg.DrainBatch {
		n = p.cfg.DrainBatch
	}
	batch := make([]wire.Sample, n)
	for i := 0; i < n; i++ {
		batch[i] = p.queue[(p.qHead+i)%len(p.queue)]
	}
	p.qHead = (p.qHead + n) % len(p.queue)
	p.qLen -= n
	p.stats.QueueLen = p.qLen
	p.mu.Unlock()

	for i := range batch {
		p.step(batch[i])
	}
}

// step advances the whole model by one sample.
func (p *Pipeline) step(s wire.Sample) {
	dt := p.sampleDelta(s)
	tNow := p.lastTMs

	var ca, state [NumNeurons]float64
	for i := 0; i < NumNeurons; i++ {
		ns := &p.neurons[i]
		vmPrev := s.Vm[i]
		if ns.haveVm {
			vmPrev = ns.lastVm
		}
		spike := ns.detector.Detect(vmPrev, s.Vm[i], tNow, p.params.SpikeThresholdMV, p.params.RefractoryMs)
		ca[i] = ns.kernel.Step(spike, dt, &p.params, p.rng.NormFloat64())
		state[i] = ns.indicator.Step(ca[i], dt, &p.params)
		ns.lastVm = s.Vm[i]
		ns.haveVm = true
	}

	p.bleach.Step(p.params.Laser, dt, &p.params)

	rec := SampleRecord{TMs: tNow, Vm: s.Vm, Stim: s.Stim, Trigger: s.Trigger, Calcium: ca}
	p.history.appendSample(rec)
	if p.cfg.OnSample != nil {
		p.cfg.OnSample(rec)
	}

	periodMs := 1000.0 / p.params.FrameRateHz
	frames := p.clock.Advance(dt, periodMs)
	for j := frames - 1; j >= 0; j-- {
		frame := FrameRecord{TMs: tNow - p.clock.PhaseMs() - float64(j)*periodMs}
		for i := 0; i < NumNeurons; i++ {
			frame.Fluo[i] = Observe(ca[i], state[i], p.bleach.Factor(), &p.params, p.rng.NormFloat64())
		}
		p.history.appendFrame(frame)
		if p.cfg.OnFrame != nil {
			p.cfg.OnFrame(frame)
		}
		p.mu.Lock()
		p.held = frame.Fluo
		p.stats.FramesCommitted++
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.stats.Processed++
	p.mu.Unlock()
}

// sampleDelta computes the inter-sample interval and advances the model
// clock. Timing anomalies (non-finite, non-positive or implausibly large
// deltas) are replaced by the nominal interval so a single corrupt or
// duplicated timestamp cannot destabilize the integrators.
func (p *Pipeline) sampleDelta(s wire.Sample) float64 {
	dt := wire.NominalSampleIntervalMs

	if s.HasTimestamp {
		if p.haveLast {
			dt = s.TimestampMs - p.lastTMs
			if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 || dt > 1000 {
				dt = wire.NominalSampleIntervalMs
				p.mu.Lock()
				p.stats.TimingFaults++
				p.mu.Unlock()
			}
		}
		p.lastTMs = s.TimestampMs
	} else {
		p.lastTMs += dt
	}
	p.haveLast = true
	return dt
}

// resetModel restores all per-neuron, clock and bleach state to the
// steady state for baseline calcium.
func (p *Pipeline) resetModel() {
	cb := p.params.CalciumBaselineUM
	state0 := EquilibriumState(cb, &p.params)

	for i := range p.neurons {
		p.neurons[i].detector.Reset()
		p.neurons[i].kernel.Reset()
		p.neurons[i].indicator.Reset(state0, &p.params)
		p.neurons[i].haveVm = false
	}
	p.bleach.Reset()
	p.clock.Reset()
	p.lastTMs = 0
	p.haveLast = false
	p.history.Reset()

	p.mu.Lock()
	p.refreshBaselineLocked()
	p.held = p.f0
	p.mu.Unlock()
}

// refreshBaselineLocked recomputes the noise-free baseline fluorescence.
// Caller holds p.mu.
func (p *Pipeline) refreshBaselineLocked() {
	f0 := BaselineF0(&p.params, p.bleach.Factor())
	for i := range p.f0 {
		p.f0[i] = f0
	}
}
