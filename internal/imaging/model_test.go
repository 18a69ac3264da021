package imaging

import (
	"math"
	"testing"
)

func TestSpikeDetectorEdgeAndRefractory(t *testing.T) {
	var d SpikeDetector
	thr, refr := -20.0, 3.0

	if got := d.Detect(-60, -10, 0, thr, refr); got != 1 {
		t.Fatalf("upward crossing: got %d, want 1", got)
	}
	// Second crossing 1 ms later falls inside the refractory window.
	if got := d.Detect(-60, -10, 1, thr, refr); got != 0 {
		t.Fatalf("refractory crossing: got %d, want 0", got)
	}
	// 4 ms later the window has passed.
	if got := d.Detect(-60, -10, 4, thr, refr); got != 1 {
		t.Fatalf("post-refractory crossing: got %d, want 1", got)
	}
	// Staying above threshold is not an edge.
	if got := d.Detect(-10, -5, 10, thr, refr); got != 0 {
		t.Fatalf("sustained depolarization: got %d, want 0", got)
	}
	// Exact threshold on the new sample counts as a crossing.
	if got := d.Detect(-60, thr, 20, thr, refr); got != 1 {
		t.Fatalf("exact threshold: got %d, want 1", got)
	}
}

func TestCalciumKernelTransient(t *testing.T) {
	p := DefaultParameters()
	p.CalciumNoiseSigma = 0

	var k CalciumKernel
	dt := 0.1

	base := k.Step(0, dt, &p, 0)
	if math.Abs(base-p.CalciumBaselineUM) > 1e-12 {
		t.Fatalf("resting calcium = %g, want baseline %g", base, p.CalciumBaselineUM)
	}

	// A spike produces a transient that rises above baseline and then
	// decays back toward it.
	ca := k.Step(1, dt, &p, 0)
	peak := ca
	for i := 0; i < 5000; i++ {
		ca = k.Step(0, dt, &p, 0)
		if ca > peak {
			peak = ca
		}
	}
	if peak <= p.CalciumBaselineUM {
		t.Fatalf("transient never rose above baseline (peak %g)", peak)
	}
	// After 500 ms the transient has mostly decayed (tau_d = 300 ms).
	if ca >= peak/2 {
		t.Fatalf("transient did not decay: final %g, peak %g", ca, peak)
	}
}

func TestCalciumKernelClampsNegative(t *testing.T) {
	p := DefaultParameters()
	p.CalciumNoiseSigma = 10

	var k CalciumKernel
	// A large negative noise draw cannot push calcium below zero.
	if ca := k.Step(0, 0.1, &p, -100); ca != 0 {
		t.Fatalf("got %g, want 0", ca)
	}
}

func TestHillSaturationHalfPoint(t *testing.T) {
	for _, n := range []float64{1, 2, 2.7, 4} {
		if got := HillSaturation(0.3, 0.3, n); math.Abs(got-0.5) > 1e-12 {
			t.Errorf("n=%g: Sat(Kd) = %g, want 0.5", n, got)
		}
	}
	if got := HillSaturation(0, 0.3, 2); got != 0 {
		t.Errorf("Sat(0) = %g, want 0", got)
	}
	if lo, hi := HillSaturation(0.1, 0.3, 2), HillSaturation(1.0, 0.3, 2); lo >= hi {
		t.Errorf("saturation not monotone: %g >= %g", lo, hi)
	}
}

func TestSigmoidSaturationHalfPoint(t *testing.T) {
	if got := SigmoidSaturation(0.2, 10, 0.2); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("Sat(c_half) = %g, want 0.5", got)
	}
}

func TestIndicatorFilterAsymmetry(t *testing.T) {
	p := DefaultParameters()
	p.Mode = ModeHill
	p.IndTauRiseMs = 10
	p.IndTauDecayMs = 200

	var up, down Indicator
	up.Reset(0, &p)
	down.Reset(1, &p)

	// Toward a higher target the fast tau applies, toward a lower one
	// the slow tau: after the same interval the riser has closed more
	// of its gap than the faller.
	target := HillSaturation(p.KdUM, p.KdUM, p.HillN) // 0.5
	var riseState, fallState float64
	for i := 0; i < 100; i++ {
		riseState = up.Step(p.KdUM, 1.0, &p)
		fallState = down.Step(p.KdUM, 1.0, &p)
	}
	riseClosed := riseState / target
	fallClosed := (1 - fallState) / (1 - target)
	if riseClosed <= fallClosed {
		t.Fatalf("rise fraction %g should exceed fall fraction %g", riseClosed, fallClosed)
	}
}

func TestBindingConservation(t *testing.T) {
	p := DefaultParameters()
	p.BindingEnabled = true
	p.BindingSTot = 1
	p.BindingN = 2
	p.BindingKOn = 50
	p.BindingKOff = 10

	var ind Indicator
	ind.Reset(0, &p)
	for i := 0; i < 10000; i++ {
		ca := 5 * math.Abs(math.Sin(float64(i)/100))
		s := ind.Step(ca, 0.1, &p)
		if s < 0 || s > 1 {
			t.Fatalf("step %d: state %g outside [0,1]", i, s)
		}
	}
}

func TestBindingEquilibrium(t *testing.T) {
	p := DefaultParameters()
	p.BindingEnabled = true
	p.BindingSTot = 1
	p.BindingN = 1
	p.BindingKOn = 1
	p.BindingKOff = 1

	// With Ca = 1 held, on and off rates balance at S = 0.5.
	var ind Indicator
	ind.Reset(0, &p)
	var s float64
	for i := 0; i < 100000; i++ {
		s = ind.Step(1.0, 0.1, &p)
	}
	if math.Abs(s-0.5) > 1e-3 {
		t.Fatalf("equilibrium state %g, want 0.5", s)
	}
	if eq := EquilibriumState(1.0, &p); math.Abs(eq-0.5) > 1e-12 {
		t.Fatalf("EquilibriumState = %g, want 0.5", eq)
	}
}

func TestPhotobleachDirections(t *testing.T) {
	p := DefaultParameters()
	p.BleachRate = 1
	p.RecoverRate = 1

	pb := NewPhotobleach()

	// Above nominal: monotone decay.
	pb.Step(2.0, 1000, &p)
	afterBleach := pb.Factor()
	if afterBleach >= 1 {
		t.Fatalf("bleach did not attenuate: %g", afterBleach)
	}

	// At nominal: untouched.
	pb.Step(1.0, 1000, &p)
	if pb.Factor() != afterBleach {
		t.Fatalf("factor changed at nominal power: %g -> %g", afterBleach, pb.Factor())
	}

	// Below nominal: recovery toward 1.
	pb.Step(0.5, 1000, &p)
	if pb.Factor() <= afterBleach {
		t.Fatalf("no recovery below nominal: %g", pb.Factor())
	}

	// The floor holds under sustained bleaching.
	for i := 0; i < 100; i++ {
		pb.Step(10.0, 10000, &p)
	}
	if pb.Factor() < p.BleachMin {
		t.Fatalf("factor %g fell below floor %g", pb.Factor(), p.BleachMin)
	}
}

func TestFrameClockMultipleFrames(t *testing.T) {
	var c FrameClock
	period := 100.0

	if got := c.Advance(99, period); got != 0 {
		t.Fatalf("before period: got %d frames", got)
	}
	if got := c.Advance(1, period); got != 1 {
		t.Fatalf("at period: got %d frames, want 1", got)
	}
	// One long gap covers several exposures.
	if got := c.Advance(350, period); got != 3 {
		t.Fatalf("long gap: got %d frames, want 3", got)
	}
	if phase := c.PhaseMs(); math.Abs(phase-50) > 1e-9 {
		t.Fatalf("residual phase %g, want 50", phase)
	}
}

func TestObserveNoiseFreeMatchesBaseline(t *testing.T) {
	p := DefaultParameters()
	cb := p.CalciumBaselineUM
	state := EquilibriumState(cb, &p)

	got := Observe(cb, state, 1.0, &p, 0)
	want := BaselineF0(&p, 1.0)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("noise-free reading %g, want baseline %g", got, want)
	}
}

func TestObserveLinearMode(t *testing.T) {
	p := DefaultParameters()
	p.Mode = ModeLinear
	p.LinearAlpha = 2
	p.LinearBeta = 0.1
	p.FluoOffset = 0.5
	p.Laser, p.PMT, p.FluoScale = 1, 1, 1

	got := Observe(0.4, 0, 1.0, &p, 0)
	want := 0.5 + 2*(0.4+0.1)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("linear reading %g, want %g", got, want)
	}
}

func TestObservePMTExcessNoise(t *testing.T) {
	p := DefaultParameters()
	state := EquilibriumState(p.CalciumBaselineUM, &p)

	p.PMT = 1.0
	atNominal := Observe(p.CalciumBaselineUM, state, 1.0, &p, 1.0) - BaselineF0(&p, 1.0)

	p.PMT = 3.0
	pushed := Observe(p.CalciumBaselineUM, state, 1.0, &p, 1.0) - BaselineF0(&p, 1.0)

	if pushed <= atNominal {
		t.Fatalf("excess noise missing: sigma %g at PMT=3 vs %g at nominal", pushed, atNominal)
	}
}

func TestApplyPresetKnownAndUnknown(t *testing.T) {
	p := DefaultParameters()
	if err := p.ApplyPreset("GCaMP6f"); err != nil {
		t.Fatalf("known preset: %v", err)
	}
	if p.KdUM != Presets["GCaMP6f"].KdUM {
		t.Fatalf("Kd %g, want %g", p.KdUM, Presets["GCaMP6f"].KdUM)
	}
	if err := p.ApplyPreset("nonsense"); err == nil {
		t.Fatal("unknown preset accepted")
	}
	// Unknown falls back to the generic indicator.
	if p.KdUM != Presets[DefaultPreset].KdUM {
		t.Fatalf("fallback Kd %g, want %g", p.KdUM, Presets[DefaultPreset].KdUM)
	}
}

func TestParametersSet(t *testing.T) {
	p := DefaultParameters()
	if err := p.Set("laser", 1.5); err != nil {
		t.Fatalf("set laser: %v", err)
	}
	if p.Laser != 1.5 {
		t.Fatalf("laser %g, want 1.5", p.Laser)
	}
	if err := p.Set("mode", "sigmoid"); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if p.Mode != ModeSigmoid {
		t.Fatalf("mode %q, want sigmoid", p.Mode)
	}
	if err := p.Set("no_such_knob", 1.0); err == nil {
		t.Fatal("unknown key accepted")
	}
}
